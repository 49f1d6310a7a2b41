package automation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/nerrad567/boardflow-core/internal/event"
)

// Completion values for custom_field_presence.
const (
	CompletionCompleted    = "completed"
	CompletionNotCompleted = "not_completed"
)

// CustomFieldPresenceCondition selects cards by whether a custom field is set
// and by completion state.
type CustomFieldPresenceCondition struct {
	Inclusion   string `json:"inclusion"`
	CustomField string `json:"custom_field,omitempty"`
	Completion  string `json:"completion,omitempty"`
}

type customFieldPresence struct{}

func (customFieldPresence) parse(condition json.RawMessage) (CustomFieldPresenceCondition, error) {
	var c CustomFieldPresenceCondition
	if err := decodeCondition(condition, &c); err != nil {
		return c, err
	}
	if c.Inclusion != InclusionWith && c.Inclusion != InclusionWithout {
		return c, fmt.Errorf("%w: inclusion %q", ErrInvalidCondition, c.Inclusion)
	}
	switch c.Completion {
	case "", CompletionCompleted, CompletionNotCompleted:
	default:
		return c, fmt.Errorf("%w: completion %q", ErrInvalidCondition, c.Completion)
	}
	return c, nil
}

func (e customFieldPresence) Validate(condition json.RawMessage) error {
	_, err := e.parse(condition)
	return err
}

func (e customFieldPresence) Evaluate(_ context.Context, condition json.RawMessage, ev *event.DomainEvent, _ string) FilterEvaluationResult {
	c, err := e.parse(condition)
	if err != nil {
		return failed(err)
	}
	// An event without a card has no fields and is not completed.
	completed := ev.Data.Card != nil && ev.Data.Card.IsCompleted

	// Without a named field, any non-blank field counts.
	var hasField bool
	if c.CustomField != "" {
		v, ok := ev.FieldValue(c.CustomField)
		hasField = ok && strings.TrimSpace(v) != ""
	} else if card := ev.Data.Card; card != nil {
		hasField = slices.ContainsFunc(card.CustomFields, func(f event.CustomFieldValue) bool {
			return strings.TrimSpace(f.Value) != ""
		})
	}

	completionOK := true
	switch c.Completion {
	case CompletionCompleted:
		completionOK = completed
	case CompletionNotCompleted:
		completionOK = !completed
	}

	ok := hasField && completionOK
	if c.Inclusion == InclusionWithout {
		return verdict(!ok, "card lacks field or completion state")
	}
	return verdict(ok, "card has field and completion state")
}

// CustomFieldValueCondition compares a custom field value.
type CustomFieldValueCondition struct {
	Inclusion   string     `json:"inclusion"`
	CustomField string     `json:"custom_field"`
	Operator    string     `json:"operator"`
	Value       flexString `json:"value"`
}

type customFieldValue struct{}

func (customFieldValue) parse(condition json.RawMessage) (CustomFieldValueCondition, error) {
	var c CustomFieldValueCondition
	if err := decodeCondition(condition, &c); err != nil {
		return c, err
	}
	if c.Inclusion != InclusionWith && c.Inclusion != InclusionWithout {
		return c, fmt.Errorf("%w: inclusion %q", ErrInvalidCondition, c.Inclusion)
	}
	if c.CustomField == "" {
		return c, fmt.Errorf("%w: custom_field is required", ErrInvalidCondition)
	}
	if !isTextOperator(c.Operator) && !isNumericOperator(c.Operator) {
		return c, fmt.Errorf("%w: operator %q", ErrInvalidCondition, c.Operator)
	}
	return c, nil
}

func (e customFieldValue) Validate(condition json.RawMessage) error {
	_, err := e.parse(condition)
	return err
}

func (e customFieldValue) Evaluate(_ context.Context, condition json.RawMessage, ev *event.DomainEvent, _ string) FilterEvaluationResult {
	c, err := e.parse(condition)
	if err != nil {
		return failed(err)
	}
	if ev.Data.Card == nil {
		return failed(ErrNoCard)
	}
	without := c.Inclusion == InclusionWithout

	value, ok := ev.FieldValue(c.CustomField)
	if !ok {
		return verdict(without, "custom field not set")
	}

	var hit bool
	if isNumericOperator(c.Operator) {
		hit, err = matchNumber(c.Operator, value, string(c.Value))
		if errors.Is(err, errNotNumeric) {
			return verdict(without, "custom field value is not numeric")
		}
	} else {
		hit, err = matchText(c.Operator, value, string(c.Value))
	}
	if err != nil {
		return failed(err)
	}

	if without {
		return verdict(!hit, "custom field value does not satisfy operator")
	}
	return verdict(hit, "custom field value satisfies operator")
}
