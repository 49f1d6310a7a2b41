package automation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/nerrad567/boardflow-core/internal/event"
)

// Subject values shared by trigger and filter conditions.
const (
	SubjectAnyone = "anyone"
	SubjectMe     = "me"
)

// Trigger actions.
const (
	TriggerAdded      = "added"
	TriggerRemoved    = "removed"
	TriggerComplete   = "complete"
	TriggerIncomplete = "incomplete"
)

// RequiredConditionKeys lists the exact key set a rule condition must carry
// for each rule type, sorted.
var RequiredConditionKeys = map[RuleType][]string{
	TypeCardInBoard:        {"action", "board", "by"},
	TypeCardInList:         {"action", "by", "list_id"},
	TypeUserInCardChange:   {"action", "by", "user_id"},
	TypeLabelOnCard:        {"action", "by", "label_id"},
	TypeCardMarkedComplete: {"action", "by"},
	TypeFieldSetToValue:    {"by", "custom_field", "value"},
}

// groupOf maps each rule type to the group it must be authored under.
var groupOf = map[RuleType]GroupType{
	TypeCardInBoard:        GroupCardMove,
	TypeCardInList:         GroupCardMove,
	TypeUserInCardChange:   GroupCardChanges,
	TypeLabelOnCard:        GroupCardChanges,
	TypeCardMarkedComplete: GroupCardChanges,
	TypeFieldSetToValue:    GroupField,
}

// Trigger is a decoded rule condition.
type Trigger interface {
	// Matches reports whether ev fires the trigger for a rule authored by
	// createdBy.
	Matches(ev *event.DomainEvent, createdBy string) bool
}

// ParseTrigger decodes a rule condition into its typed trigger.
func ParseTrigger(ruleType RuleType, condition json.RawMessage) (Trigger, error) {
	var (
		t   Trigger
		err error
	)
	switch ruleType {
	case TypeCardInList:
		var c CardInListTrigger
		err = decodeCondition(condition, &c)
		if err == nil {
			err = c.validate()
		}
		t = c
	case TypeCardInBoard:
		var c CardInBoardTrigger
		err = decodeCondition(condition, &c)
		if err == nil {
			err = c.validate()
		}
		t = c
	case TypeUserInCardChange:
		var c UserInCardChangeTrigger
		err = decodeCondition(condition, &c)
		if err == nil {
			err = c.validate()
		}
		t = c
	case TypeLabelOnCard:
		var c LabelOnCardTrigger
		err = decodeCondition(condition, &c)
		if err == nil {
			err = c.validate()
		}
		t = c
	case TypeCardMarkedComplete:
		var c CardMarkedCompleteTrigger
		err = decodeCondition(condition, &c)
		if err == nil {
			err = c.validate()
		}
		t = c
	case TypeFieldSetToValue:
		var c FieldSetToValueTrigger
		err = decodeCondition(condition, &c)
		if err == nil {
			err = c.validate()
		}
		t = c
	default:
		return nil, fmt.Errorf("%w: unknown rule type %q", ErrInvalidCondition, ruleType)
	}
	if err != nil {
		return nil, fmt.Errorf("%s condition: %w", ruleType, err)
	}
	return t, nil
}

// CardInListTrigger fires when a card enters or leaves a list.
type CardInListTrigger struct {
	ListID string     `json:"list_id"`
	By     flexString `json:"by"`
	Action string     `json:"action"`
}

func (c CardInListTrigger) validate() error {
	if c.ListID == "" {
		return fmt.Errorf("%w: list_id is required", ErrInvalidCondition)
	}
	return validateAddedRemoved(c.Action)
}

// Matches implements Trigger.
func (c CardInListTrigger) Matches(ev *event.DomainEvent, createdBy string) bool {
	card := ev.Data.Card
	if card == nil || !matchesBy(string(c.By), ev.UserID, createdBy) {
		return false
	}
	prev := ev.PreviousListID()

	switch c.Action {
	case TriggerAdded:
		switch ev.Type {
		case event.CardCreated:
			return card.ListID == c.ListID
		case event.CardMoved:
			return card.ListID == c.ListID && prev != c.ListID
		}
	case TriggerRemoved:
		return ev.Type == event.CardMoved && prev == c.ListID && card.ListID != c.ListID
	}
	return false
}

// CardInBoardTrigger fires when a card is created on, or moved onto or off,
// a board.
type CardInBoardTrigger struct {
	Board  string     `json:"board"`
	By     flexString `json:"by"`
	Action string     `json:"action"`
}

func (c CardInBoardTrigger) validate() error {
	if c.Board == "" {
		return fmt.Errorf("%w: board is required", ErrInvalidCondition)
	}
	return validateAddedRemoved(c.Action)
}

// Matches implements Trigger.
func (c CardInBoardTrigger) Matches(ev *event.DomainEvent, createdBy string) bool {
	if !matchesBy(string(c.By), ev.UserID, createdBy) {
		return false
	}
	switch c.Action {
	case TriggerAdded:
		if ev.Type != event.CardCreated && ev.Type != event.CardMovedIn {
			return false
		}
		return currentBoardID(ev) == c.Board
	case TriggerRemoved:
		return ev.Type == event.CardMovedOut && previousBoardID(ev) == c.Board
	}
	return false
}

func currentBoardID(ev *event.DomainEvent) string {
	if ev.Data.Card != nil && ev.Data.Card.BoardID != "" {
		return ev.Data.Card.BoardID
	}
	if ev.Data.Board != nil {
		return ev.Data.Board.ID
	}
	return ""
}

func previousBoardID(ev *event.DomainEvent) string {
	if p := ev.Data.PreviousData; p != nil {
		if p.Card != nil && p.Card.BoardID != "" {
			return p.Card.BoardID
		}
		if p.Board != nil && p.Board.ID != "" {
			return p.Board.ID
		}
	}
	// card.moved_out carries the board the card left in Data.Board.
	if ev.Data.Board != nil {
		return ev.Data.Board.ID
	}
	return ""
}

// UserInCardChangeTrigger fires when a member joins or leaves a card.
type UserInCardChangeTrigger struct {
	UserID flexString `json:"user_id"`
	By     flexString `json:"by"`
	Action string     `json:"action"`
}

func (c UserInCardChangeTrigger) validate() error {
	if c.UserID == "" {
		return fmt.Errorf("%w: user_id is required", ErrInvalidCondition)
	}
	return validateAddedRemoved(c.Action)
}

// Matches implements Trigger.
func (c UserInCardChangeTrigger) Matches(ev *event.DomainEvent, createdBy string) bool {
	want := event.CardMemberAdded
	if c.Action == TriggerRemoved {
		want = event.CardMemberRemoved
	}
	if ev.Type != want || ev.Data.Member == nil {
		return false
	}
	if !matchesBy(string(c.By), ev.UserID, createdBy) {
		return false
	}
	return matchesBy(string(c.UserID), ev.Data.Member.ID, createdBy)
}

// LabelOnCardTrigger fires when a label is added to or removed from a card.
type LabelOnCardTrigger struct {
	LabelID string     `json:"label_id"`
	By      flexString `json:"by"`
	Action  string     `json:"action"`
}

func (c LabelOnCardTrigger) validate() error {
	if c.LabelID == "" {
		return fmt.Errorf("%w: label_id is required", ErrInvalidCondition)
	}
	return validateAddedRemoved(c.Action)
}

// Matches implements Trigger.
func (c LabelOnCardTrigger) Matches(ev *event.DomainEvent, createdBy string) bool {
	want := event.CardLabelAdded
	if c.Action == TriggerRemoved {
		want = event.CardLabelRemoved
	}
	if ev.Type != want || ev.Data.Label == nil {
		return false
	}
	if !matchesBy(string(c.By), ev.UserID, createdBy) {
		return false
	}
	return c.LabelID == SubjectAnyone || c.LabelID == ev.Data.Label.ID
}

// CardMarkedCompleteTrigger fires when a card is completed or reopened.
type CardMarkedCompleteTrigger struct {
	By     flexString `json:"by"`
	Action string     `json:"action"`
}

func (c CardMarkedCompleteTrigger) validate() error {
	if c.Action != TriggerComplete && c.Action != TriggerIncomplete {
		return fmt.Errorf("%w: action must be %q or %q", ErrInvalidCondition, TriggerComplete, TriggerIncomplete)
	}
	return nil
}

// Matches implements Trigger.
func (c CardMarkedCompleteTrigger) Matches(ev *event.DomainEvent, createdBy string) bool {
	want := event.CardCompleted
	if c.Action == TriggerIncomplete {
		want = event.CardUncompleted
	}
	return ev.Type == want && matchesBy(string(c.By), ev.UserID, createdBy)
}

// FieldSetToValueTrigger fires when a custom field is set to a value.
type FieldSetToValueTrigger struct {
	CustomField string     `json:"custom_field"`
	Value       flexString `json:"value"`
	By          flexString `json:"by"`
}

func (c FieldSetToValueTrigger) validate() error {
	if c.CustomField == "" {
		return fmt.Errorf("%w: custom_field is required", ErrInvalidCondition)
	}
	return nil
}

// Matches implements Trigger. Values compare case-insensitively after
// trimming.
func (c FieldSetToValueTrigger) Matches(ev *event.DomainEvent, createdBy string) bool {
	if ev.Type != event.CardCustomFieldUpdated || !matchesBy(string(c.By), ev.UserID, createdBy) {
		return false
	}

	var value string
	switch {
	case ev.Data.CustomField != nil:
		if ev.Data.CustomField.ID != c.CustomField {
			return false
		}
		value = ev.Data.CustomField.Value
	default:
		v, ok := ev.FieldValue(c.CustomField)
		if !ok {
			return false
		}
		value = v
	}
	return strings.EqualFold(strings.TrimSpace(value), strings.TrimSpace(string(c.Value)))
}

// matchesBy resolves a subject against a user id. An empty subject is
// treated as anyone.
func matchesBy(subject, userID, createdBy string) bool {
	switch subject {
	case "", SubjectAnyone:
		return true
	case SubjectMe:
		return createdBy != "" && userID == createdBy
	default:
		return subject == userID
	}
}

func validateAddedRemoved(action string) error {
	if action != TriggerAdded && action != TriggerRemoved {
		return fmt.Errorf("%w: action must be %q or %q", ErrInvalidCondition, TriggerAdded, TriggerRemoved)
	}
	return nil
}

// conditionKeys returns the sorted top-level keys of a JSON object.
func conditionKeys(condition json.RawMessage) ([]string, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(condition, &m); err != nil {
		return nil, fmt.Errorf("%w: condition must be an object: %w", ErrInvalidCondition, err)
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys, nil
}

// decodeCondition decodes a JSON object into v, rejecting unknown keys.
func decodeCondition(condition json.RawMessage, v any) error {
	if len(bytes.TrimSpace(condition)) == 0 {
		return fmt.Errorf("%w: empty condition", ErrInvalidCondition)
	}
	dec := json.NewDecoder(bytes.NewReader(condition))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCondition, err)
	}
	return nil
}

// flexString decodes from a JSON string or number.
type flexString string

// UnmarshalJSON implements json.Unmarshaler.
func (s *flexString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = ""
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*s = flexString(str)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return fmt.Errorf("expected string or number, got %s", data)
	}
	if f, err := num.Float64(); err == nil {
		*s = flexString(strconv.FormatFloat(f, 'f', -1, 64))
		return nil
	}
	*s = flexString(num.String())
	return nil
}
