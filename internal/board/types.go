package board

import (
	"time"

	"github.com/nerrad567/boardflow-core/internal/event"
	"github.com/nerrad567/boardflow-core/internal/ordering"
)

// Board groups lists within a workspace.
type Board struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspace_id"`
	Name        string    `json:"name"`
	CreatedAt   time.Time `json:"created_at"`
}

// List is an ordered column of cards on a board.
type List struct {
	ID      string  `json:"id"`
	BoardID string  `json:"board_id"`
	Name    string  `json:"name"`
	Order   float64 `json:"order"`
}

// Card is a unit of work positioned within a list.
type Card struct {
	ID           string             `json:"id"`
	WorkspaceID  string             `json:"workspace_id"`
	BoardID      string             `json:"board_id"`
	ListID       string             `json:"list_id"`
	Name         string             `json:"name"`
	Description  string             `json:"description"`
	Order        float64            `json:"order"`
	IsCompleted  bool               `json:"is_completed"`
	CustomFields []CustomFieldValue `json:"custom_fields"`
	CreatedAt    time.Time          `json:"created_at"`
}

// CustomFieldValue is the value of one custom field on a card.
type CustomFieldValue struct {
	ID    string `json:"id"`
	Value string `json:"value"`
}

// Snapshot converts the card to its event payload form.
func (c *Card) Snapshot() *event.Card {
	fields := make([]event.CustomFieldValue, len(c.CustomFields))
	for i, f := range c.CustomFields {
		fields[i] = event.CustomFieldValue{ID: f.ID, Value: f.Value}
	}
	return &event.Card{
		ID:           c.ID,
		BoardID:      c.BoardID,
		ListID:       c.ListID,
		Name:         c.Name,
		Description:  c.Description,
		Order:        c.Order,
		IsCompleted:  c.IsCompleted,
		CustomFields: fields,
	}
}

// Snapshot converts the list to its event payload form.
func (l *List) Snapshot() *event.List {
	return &event.List{ID: l.ID, BoardID: l.BoardID, Name: l.Name, Order: l.Order}
}

// CardFilter selects the card UpdateCard writes to. ID is required;
// WorkspaceID, when set, must also match.
type CardFilter struct {
	ID          string
	WorkspaceID string
}

// CardUpdate holds the fields UpdateCard may change. Nil fields are left as is.
type CardUpdate struct {
	Order  *float64
	ListID *string
}

// AdjacentLists holds the neighbours of a list on its board ordered by
// order value. Empty strings mean there is no neighbour on that side.
type AdjacentLists struct {
	Prev string `json:"prev"`
	Next string `json:"next"`
}

// MoveCardRequest asks for a card to be placed in a list. An empty
// ToListID keeps the card in its current list.
type MoveCardRequest struct {
	CardID   string
	ToListID string
	Position ordering.Position
}

// MoveCardResult describes a completed card move.
type MoveCardResult struct {
	Card     Card `json:"card"`
	Previous Card `json:"previous"`

	// Moved is false when the card already sat at the requested position.
	Moved bool `json:"moved"`

	// Renumbered counts siblings rewritten by normalization.
	Renumbered int `json:"renumbered"`
}

// Events returns the domain events a completed move produces: card.moved,
// plus card.moved_out and card.moved_in when the card changed board.
// A no-op move produces none.
func (r *MoveCardResult) Events(workspaceID, userID string) []event.DomainEvent {
	if !r.Moved {
		return nil
	}

	previous := &event.Previous{
		Card:  r.Previous.Snapshot(),
		Board: &event.Board{ID: r.Previous.BoardID},
	}
	moved := event.New(event.CardMoved, workspaceID, userID, event.Payload{
		Card:         r.Card.Snapshot(),
		Board:        &event.Board{ID: r.Card.BoardID},
		PreviousData: previous,
	})
	if r.Card.BoardID == r.Previous.BoardID {
		return []event.DomainEvent{moved}
	}

	out := event.New(event.CardMovedOut, workspaceID, userID, event.Payload{
		Card:         r.Card.Snapshot(),
		Board:        &event.Board{ID: r.Previous.BoardID},
		PreviousData: previous,
	})
	in := event.New(event.CardMovedIn, workspaceID, userID, event.Payload{
		Card:         r.Card.Snapshot(),
		Board:        &event.Board{ID: r.Card.BoardID},
		PreviousData: previous,
	})
	return []event.DomainEvent{moved, out, in}
}

// MoveListRequest asks for a list to be repositioned on its board.
type MoveListRequest struct {
	ListID   string
	Position ordering.Position
}

// MoveListResult describes a completed list move.
type MoveListResult struct {
	List       List `json:"list"`
	Previous   List `json:"previous"`
	Moved      bool `json:"moved"`
	Renumbered int  `json:"renumbered"`
}

// Event returns the list.moved event, or false for a no-op move.
func (r *MoveListResult) Event(workspaceID, userID string) (event.DomainEvent, bool) {
	if !r.Moved {
		return event.DomainEvent{}, false
	}
	return event.New(event.ListMoved, workspaceID, userID, event.Payload{
		List:         r.List.Snapshot(),
		Board:        &event.Board{ID: r.List.BoardID},
		PreviousData: &event.Previous{List: r.Previous.Snapshot()},
	}), true
}
