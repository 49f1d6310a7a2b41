package automation

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/boardflow-core/internal/ordering"
)

// GroupType is the family a rule trigger belongs to.
type GroupType string

// Rule group types.
const (
	GroupCardMove    GroupType = "card_move"
	GroupCardChanges GroupType = "card_changes"
	GroupField       GroupType = "field"
)

// RuleType identifies the trigger a rule listens for.
type RuleType string

// Rule types.
const (
	TypeCardInBoard        RuleType = "card_in_board"
	TypeCardInList         RuleType = "card_in_list"
	TypeUserInCardChange   RuleType = "user_in_card_change"
	TypeLabelOnCard        RuleType = "label_on_card"
	TypeCardMarkedComplete RuleType = "card_marked_complete"
	TypeFieldSetToValue    RuleType = "field_set_to_value"
)

// Rule is a workspace-scoped automation: a trigger condition, optional
// filters that must all match, and the actions to run.
type Rule struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspace_id"`
	GroupType   GroupType `json:"group_type"`
	Type        RuleType  `json:"type"`

	// Condition is the trigger condition. Its key set is fixed per Type.
	Condition json.RawMessage `json:"condition"`

	Filters []Filter     `json:"filters"`
	Actions []RuleAction `json:"actions"`

	// CreatedBy resolves the subject "me" in conditions.
	CreatedBy string `json:"created_by"`
	Enabled   bool   `json:"enabled"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeepCopy returns a copy sharing no slices with r.
func (r *Rule) DeepCopy() *Rule {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Condition = slices.Clone(r.Condition)
	cp.Filters = make([]Filter, len(r.Filters))
	for i, f := range r.Filters {
		cp.Filters[i] = Filter{Type: f.Type, Condition: slices.Clone(f.Condition)}
	}
	cp.Actions = slices.Clone(r.Actions)
	return &cp
}

// FilterType identifies a filter evaluator.
type FilterType string

// Registered filter types.
const (
	FilterListInclusion       FilterType = "list_inclusion"
	FilterLabelInclusion      FilterType = "label_inclusion"
	FilterAssignment          FilterType = "assignment"
	FilterCustomFieldPresence FilterType = "custom_field_presence"
	FilterCustomFieldValue    FilterType = "custom_field_value"
	FilterContentText         FilterType = "content_text"
)

// Filter is one additional condition a rule requires.
type Filter struct {
	Type      FilterType      `json:"type"`
	Condition json.RawMessage `json:"condition"`
}

// ActionTypeCard is the only action type: an operation on the event's card.
const ActionTypeCard = "card"

// RuleAction is one step a matched rule runs.
type RuleAction struct {
	ID        string          `json:"id"`
	RuleID    string          `json:"rule_id"`
	Type      string          `json:"type"`
	Condition ActionCondition `json:"condition"`
	SortOrder int             `json:"sort_order"`
}

// Action verbs.
const (
	ActionMove = "move"
	ActionCopy = "copy"
)

// ActionCondition says what an action does.
type ActionCondition struct {
	Action   string         `json:"action"`
	Position ActionPosition `json:"position,omitempty"`
}

// Named positions.
const (
	PositionTopOfList    = "top_of_list"
	PositionBottomOfList = "bottom_of_list"
	PositionNextList     = "next_list"
	PositionPrevList     = "prev_list"
)

// ActionPosition is either a named position or a zero-based index. On the
// wire it is a string ("top_of_list") or a number (2).
type ActionPosition struct {
	Name    string
	Index   int
	IsIndex bool
}

// IndexPosition returns a position at index i.
func IndexPosition(i int) ActionPosition {
	return ActionPosition{Index: i, IsIndex: true}
}

// NamedPosition returns a named position.
func NamedPosition(name string) ActionPosition {
	return ActionPosition{Name: name}
}

// IsZero reports whether no position was given.
func (p ActionPosition) IsZero() bool {
	return !p.IsIndex && p.Name == ""
}

// String implements fmt.Stringer.
func (p ActionPosition) String() string {
	if p.IsIndex {
		return strconv.Itoa(p.Index)
	}
	return p.Name
}

// Ordering maps top/bottom/index positions onto an ordering.Position.
// next_list and prev_list are resolved by the executor and return false.
func (p ActionPosition) Ordering() (ordering.Position, bool) {
	switch {
	case p.IsIndex:
		return ordering.AtIndex(p.Index), true
	case p.Name == PositionTopOfList:
		return ordering.Top(), true
	case p.Name == PositionBottomOfList:
		return ordering.Bottom(), true
	default:
		return ordering.Position{}, false
	}
}

// MarshalJSON implements json.Marshaler.
func (p ActionPosition) MarshalJSON() ([]byte, error) {
	if p.IsIndex {
		return json.Marshal(p.Index)
	}
	if p.Name == "" {
		return []byte("null"), nil
	}
	return json.Marshal(p.Name)
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *ActionPosition) UnmarshalJSON(data []byte) error {
	*p = ActionPosition{}
	if string(data) == "null" {
		return nil
	}
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		p.Name = name
		return nil
	}
	var idx float64
	if err := json.Unmarshal(data, &idx); err != nil {
		return fmt.Errorf("position must be a name or an index: %w", err)
	}
	if idx != float64(int(idx)) {
		return fmt.Errorf("position index %v is not an integer", idx)
	}
	p.Index = int(idx)
	p.IsIndex = true
	return nil
}

// RuleFilter narrows rule queries. Empty fields match everything.
type RuleFilter struct {
	WorkspaceID string
	GroupType   GroupType
	Types       []RuleType
}

// Matches reports whether r satisfies the filter.
func (f RuleFilter) Matches(r *Rule) bool {
	if f.WorkspaceID != "" && r.WorkspaceID != f.WorkspaceID {
		return false
	}
	if f.GroupType != "" && r.GroupType != f.GroupType {
		return false
	}
	if len(f.Types) > 0 && !slices.Contains(f.Types, r.Type) {
		return false
	}
	return true
}

// ExecutionStatus is the outcome of one rule run.
type ExecutionStatus string

// Execution statuses.
const (
	StatusCompleted ExecutionStatus = "completed"
	StatusPartial   ExecutionStatus = "partial" // some actions failed
	StatusFailed    ExecutionStatus = "failed"  // every attempted action failed
)

// ActionStatus is the outcome of one action.
type ActionStatus string

// Action statuses.
const (
	ActionCompleted ActionStatus = "completed"
	ActionFailed    ActionStatus = "failed"
	ActionSkipped   ActionStatus = "skipped"
)

// ActionResult reports what one action did.
type ActionResult struct {
	ActionID string       `json:"action_id"`
	Action   string       `json:"action"`
	Position string       `json:"position,omitempty"`
	Status   ActionStatus `json:"status"`
	CardID   string       `json:"card_id,omitempty"`
	ListID   string       `json:"list_id,omitempty"`
	Order    *float64     `json:"order,omitempty"`
	Error    string       `json:"error,omitempty"`
}

// ActionFailure records a failed action within an execution.
type ActionFailure struct {
	ActionID string `json:"action_id"`
	Action   string `json:"action"`
	Position string `json:"position,omitempty"`
	ErrorMsg string `json:"error_message"`
}

// RuleExecution is the log entry for one rule run against one event.
type RuleExecution struct {
	ID            string          `json:"id"`
	RuleID        string          `json:"rule_id"`
	WorkspaceID   string          `json:"workspace_id"`
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	Status        ExecutionStatus `json:"status"`
	ActionsTotal  int             `json:"actions_total"`
	ActionsFailed int             `json:"actions_failed"`
	Failures      []ActionFailure `json:"failures,omitempty"`
	StartedAt     time.Time       `json:"started_at"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
	DurationMS    *int            `json:"duration_ms,omitempty"`
}

// summarize derives the execution status and failures from action results.
// Skipped actions count as neither success nor failure.
func summarize(results []ActionResult) (ExecutionStatus, []ActionFailure) {
	var failures []ActionFailure
	attempted := 0
	for _, r := range results {
		if r.Status == ActionSkipped {
			continue
		}
		attempted++
		if r.Status == ActionFailed {
			failures = append(failures, ActionFailure{
				ActionID: r.ActionID,
				Action:   r.Action,
				Position: r.Position,
				ErrorMsg: r.Error,
			})
		}
	}
	switch {
	case len(failures) == 0:
		return StatusCompleted, nil
	case len(failures) == attempted:
		return StatusFailed, failures
	default:
		return StatusPartial, failures
	}
}

// GenerateID creates a new UUID for a rule, action or execution.
func GenerateID() string {
	return uuid.New().String()
}
