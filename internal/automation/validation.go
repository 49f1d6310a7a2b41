package automation

import (
	"fmt"
	"slices"
	"strings"
)

// Validation limits.
const (
	maxFilters = 20
	maxActions = 20
)

// ValidateRule checks an authored rule: its type and group, the exact key
// set of its trigger condition, the trigger values, its filters and its
// actions. Returns an error wrapping ErrValidation for the first problem.
func ValidateRule(r *Rule) error {
	if r == nil {
		return fmt.Errorf("%w: rule is nil", ErrValidation)
	}
	if r.WorkspaceID == "" {
		return fmt.Errorf("%w: workspace_id is required", ErrValidation)
	}

	group, ok := groupOf[r.Type]
	if !ok {
		return fmt.Errorf("%w: unknown rule type %q", ErrValidation, r.Type)
	}
	if r.GroupType != group {
		return fmt.Errorf("%w: rule type %s belongs to group %s, not %q", ErrValidation, r.Type, group, r.GroupType)
	}

	if err := ValidateConditionKeys(r.Type, r.Condition); err != nil {
		return err
	}
	if _, err := ParseTrigger(r.Type, r.Condition); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}

	if err := ValidateFilters(r.Filters); err != nil {
		return err
	}

	if len(r.Actions) > maxActions {
		return fmt.Errorf("%w: exceeds maximum of %d actions", ErrValidation, maxActions)
	}
	for i := range r.Actions {
		if err := ValidateAction(&r.Actions[i]); err != nil {
			return fmt.Errorf("action %d: %w", i, err)
		}
	}
	return nil
}

// ValidateConditionKeys checks that condition has exactly the keys the rule
// type requires.
func ValidateConditionKeys(ruleType RuleType, condition []byte) error {
	want, ok := RequiredConditionKeys[ruleType]
	if !ok {
		return fmt.Errorf("%w: unknown rule type %q", ErrValidation, ruleType)
	}
	got, err := conditionKeys(condition)
	if err != nil || !slices.Equal(got, want) {
		return fmt.Errorf("%w: we need %s condition for %s", ErrValidation, strings.Join(want, ", "), ruleType)
	}
	return nil
}

// ValidateFilters checks that every filter has a registered type and a
// condition its evaluator accepts.
func ValidateFilters(filters []Filter) error {
	if len(filters) > maxFilters {
		return fmt.Errorf("%w: exceeds maximum of %d filters", ErrValidation, maxFilters)
	}
	for i, f := range filters {
		ev, err := CreateEvaluator(f.Type, Deps{})
		if err != nil {
			return fmt.Errorf("%w: filter %d: %w", ErrValidation, i, err)
		}
		if err := ev.Validate(f.Condition); err != nil {
			return fmt.Errorf("%w: filter %d (%s): %w", ErrValidation, i, f.Type, err)
		}
	}
	return nil
}

// ValidateAction checks a single rule action.
func ValidateAction(a *RuleAction) error {
	if a == nil {
		return fmt.Errorf("%w: action is nil", ErrValidation)
	}
	if a.Type != "" && a.Type != ActionTypeCard {
		return fmt.Errorf("%w: unknown action type %q", ErrValidation, a.Type)
	}

	switch a.Condition.Action {
	case ActionMove:
		if a.Condition.Position.IsZero() {
			return fmt.Errorf("%w: move requires a position", ErrValidation)
		}
		return validatePosition(a.Condition.Position)
	case ActionCopy:
		if a.Condition.Position.IsZero() {
			return nil
		}
		return validatePosition(a.Condition.Position)
	case "":
		return fmt.Errorf("%w: action is required", ErrValidation)
	default:
		return fmt.Errorf("%w: unknown action %q", ErrValidation, a.Condition.Action)
	}
}

func validatePosition(p ActionPosition) error {
	if p.IsIndex {
		if p.Index < 0 {
			return fmt.Errorf("%w: position index must not be negative", ErrValidation)
		}
		return nil
	}
	switch p.Name {
	case PositionTopOfList, PositionBottomOfList, PositionNextList, PositionPrevList:
		return nil
	}
	return fmt.Errorf("%w: unknown position %q", ErrValidation, p.Name)
}
