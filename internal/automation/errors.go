package automation

import "errors"

var (
	// ErrRuleNotFound is returned when a rule ID does not exist.
	ErrRuleNotFound = errors.New("automation: rule not found")

	// ErrRuleExists is returned when creating a rule or action with a taken ID.
	ErrRuleExists = errors.New("automation: rule already exists")

	// ErrValidation is returned when an authored rule, filter or action is malformed.
	ErrValidation = errors.New("automation: validation failed")

	// ErrUnsupportedFilterType is returned by CreateEvaluator for an
	// unregistered filter type.
	ErrUnsupportedFilterType = errors.New("automation: unsupported filter type")

	// ErrInvalidCondition is returned when a filter or trigger condition
	// cannot be decoded or uses an unknown operator.
	ErrInvalidCondition = errors.New("automation: invalid condition")

	// ErrNoCard is returned when an action or evaluator needs a card the
	// event does not carry.
	ErrNoCard = errors.New("automation: event has no card")

	// ErrNoAdjacentList is returned by next_list/prev_list when the card's
	// list is already at that end of the board.
	ErrNoAdjacentList = errors.New("automation: no adjacent list")
)
