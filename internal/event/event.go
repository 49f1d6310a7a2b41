// Package event defines the DomainEvent published after every successful
// card or list mutation and consumed by the automation pipeline.
//
// A single user action may produce several events with different types
// (for example card.moved plus card.moved_in). Consumers must not assume one
// event per mutation, and the transport may redeliver.
package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type identifies what happened.
type Type string

// Event types emitted by card and list mutations.
const (
	CardCreated            Type = "card.created"
	CardUpdated            Type = "card.updated"
	CardMoved              Type = "card.moved"
	CardMovedIn            Type = "card.moved_in"
	CardMovedOut           Type = "card.moved_out"
	CardCompleted          Type = "card.completed"
	CardUncompleted        Type = "card.uncompleted"
	CardMemberAdded        Type = "card.member_added"
	CardMemberRemoved      Type = "card.member_removed"
	CardLabelAdded         Type = "card.label_added"
	CardLabelRemoved       Type = "card.label_removed"
	CardCustomFieldUpdated Type = "card.custom_field_updated"
	ListMoved              Type = "list.moved"
)

// Errors returned by Validate and Decode.
var (
	// ErrMalformed is returned when a payload cannot be decoded into an event.
	ErrMalformed = errors.New("event: malformed payload")

	// ErrInvalid is returned when a decoded event is missing required fields.
	ErrInvalid = errors.New("event: invalid")
)

// DomainEvent is an immutable record of a user or automation-triggered action.
type DomainEvent struct {
	EventID     string    `json:"event_id"`
	Type        Type      `json:"type"`
	WorkspaceID string    `json:"workspace_id"`
	UserID      string    `json:"user_id"`
	Timestamp   time.Time `json:"timestamp"`
	Data        Payload   `json:"data"`
}

// Payload carries the mutated entities. Every field is optional.
type Payload struct {
	Card         *Card        `json:"card,omitempty"`
	List         *List        `json:"list,omitempty"`
	Board        *Board       `json:"board,omitempty"`
	CustomField  *CustomField `json:"custom_field,omitempty"`
	Member       *Member      `json:"member,omitempty"`
	Label        *Label       `json:"label,omitempty"`
	PreviousData *Previous    `json:"previous_data,omitempty"`
}

// Card is the post-mutation state of a card.
type Card struct {
	ID           string             `json:"id"`
	BoardID      string             `json:"board_id"`
	ListID       string             `json:"list_id"`
	Name         string             `json:"name"`
	Description  string             `json:"description,omitempty"`
	Order        float64            `json:"order"`
	IsCompleted  bool               `json:"is_completed"`
	CustomFields []CustomFieldValue `json:"custom_fields,omitempty"`
}

// CustomFieldValue is one custom field set on a card.
type CustomFieldValue struct {
	ID    string `json:"id"`
	Value string `json:"value"`
}

// List is the post-mutation state of a list.
type List struct {
	ID      string  `json:"id"`
	BoardID string  `json:"board_id"`
	Name    string  `json:"name,omitempty"`
	Order   float64 `json:"order"`
}

// Board identifies the board a mutation happened on.
type Board struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// CustomField is the field that changed in a card.custom_field_updated event.
type CustomField struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Value string `json:"value"`
}

// Member is the user added to or removed from a card.
type Member struct {
	ID string `json:"id"`
}

// Label is the label added to or removed from a card.
type Label struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Previous is a shadow copy of the pre-mutation state.
type Previous struct {
	Card  *Card  `json:"card,omitempty"`
	List  *List  `json:"list,omitempty"`
	Board *Board `json:"board,omitempty"`
}

// New builds an event with a fresh UUID and the current UTC time.
func New(eventType Type, workspaceID, userID string, data Payload) DomainEvent {
	return DomainEvent{
		EventID:     uuid.NewString(),
		Type:        eventType,
		WorkspaceID: workspaceID,
		UserID:      userID,
		Timestamp:   time.Now().UTC(),
		Data:        data,
	}
}

// Validate checks the fields every consumer relies on.
func (e *DomainEvent) Validate() error {
	switch {
	case e.EventID == "":
		return fmt.Errorf("%w: event_id is required", ErrInvalid)
	case e.Type == "":
		return fmt.Errorf("%w: type is required", ErrInvalid)
	case e.WorkspaceID == "":
		return fmt.Errorf("%w: workspace_id is required", ErrInvalid)
	}
	return nil
}

// Encode marshals the event to its wire form.
func (e *DomainEvent) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encoding event %s: %w", e.EventID, err)
	}
	return data, nil
}

// Decode parses and validates a wire payload.
func Decode(payload []byte) (DomainEvent, error) {
	var e DomainEvent
	if err := json.Unmarshal(payload, &e); err != nil {
		return DomainEvent{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if err := e.Validate(); err != nil {
		return DomainEvent{}, err
	}
	return e, nil
}

// CardID returns the id of the card the event refers to, or "".
func (e *DomainEvent) CardID() string {
	if e.Data.Card == nil {
		return ""
	}
	return e.Data.Card.ID
}

// PreviousListID returns the card's list before the mutation, or "".
func (e *DomainEvent) PreviousListID() string {
	if e.Data.PreviousData == nil || e.Data.PreviousData.Card == nil {
		return ""
	}
	return e.Data.PreviousData.Card.ListID
}

// FieldValue returns the value of a custom field on the event's card.
func (e *DomainEvent) FieldValue(fieldID string) (string, bool) {
	if e.Data.Card == nil {
		return "", false
	}
	for _, f := range e.Data.Card.CustomFields {
		if f.ID == fieldID {
			return f.Value, true
		}
	}
	return "", false
}
