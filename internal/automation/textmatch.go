package automation

import (
	"fmt"
	"strconv"
	"strings"
)

// Text operators. Comparison is case-insensitive.
const (
	OpStartsWith    = "starts_with"
	OpEndsWith      = "ends_with"
	OpContains      = "contains"
	OpNotStartsWith = "not_starts_with"
	OpNotEndsWith   = "not_ends_with"
	OpNotContains   = "not_contains"
)

// Numeric operators.
const (
	OpGreater      = ">"
	OpGreaterEqual = ">="
	OpLess         = "<"
	OpLessEqual    = "<="
	OpEqual        = "=="
)

func isTextOperator(op string) bool {
	switch op {
	case OpStartsWith, OpEndsWith, OpContains, OpNotStartsWith, OpNotEndsWith, OpNotContains:
		return true
	}
	return false
}

func isNumericOperator(op string) bool {
	switch op {
	case OpGreater, OpGreaterEqual, OpLess, OpLessEqual, OpEqual:
		return true
	}
	return false
}

// matchText applies a text operator to subject and value.
func matchText(op, subject, value string) (bool, error) {
	s := strings.ToLower(subject)
	v := strings.ToLower(value)

	switch op {
	case OpStartsWith:
		return strings.HasPrefix(s, v), nil
	case OpEndsWith:
		return strings.HasSuffix(s, v), nil
	case OpContains:
		return strings.Contains(s, v), nil
	case OpNotStartsWith:
		return !strings.HasPrefix(s, v), nil
	case OpNotEndsWith:
		return !strings.HasSuffix(s, v), nil
	case OpNotContains:
		return !strings.Contains(s, v), nil
	}
	return false, fmt.Errorf("%w: text operator %q", ErrInvalidCondition, op)
}

// errNotNumeric is returned by matchNumber when either side does not parse.
var errNotNumeric = fmt.Errorf("%w: not a number", ErrInvalidCondition)

// matchNumber applies a numeric operator to subject and value.
func matchNumber(op, subject, value string) (bool, error) {
	a, err := strconv.ParseFloat(strings.TrimSpace(subject), 64)
	if err != nil {
		return false, errNotNumeric
	}
	b, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return false, errNotNumeric
	}

	switch op {
	case OpGreater:
		return a > b, nil
	case OpGreaterEqual:
		return a >= b, nil
	case OpLess:
		return a < b, nil
	case OpLessEqual:
		return a <= b, nil
	case OpEqual:
		return a == b, nil
	}
	return false, fmt.Errorf("%w: numeric operator %q", ErrInvalidCondition, op)
}
