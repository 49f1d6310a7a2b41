package event

import (
	"errors"
	"testing"
)

func TestNew(t *testing.T) {
	a := New(CardMoved, "ws-1", "user-1", Payload{Card: &Card{ID: "card-1"}})
	b := New(CardMoved, "ws-1", "user-1", Payload{Card: &Card{ID: "card-1"}})

	if a.EventID == "" {
		t.Fatal("EventID not set")
	}
	if a.EventID == b.EventID {
		t.Errorf("EventID reused across calls: %s", a.EventID)
	}
	if a.Timestamp.IsZero() {
		t.Error("Timestamp not set")
	}
	if err := a.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestDecode(t *testing.T) {
	t.Run("valid payload", func(t *testing.T) {
		payload := []byte(`{
			"event_id": "e-1",
			"type": "card.moved",
			"workspace_id": "W1",
			"user_id": "U1",
			"timestamp": "2026-01-02T03:04:05Z",
			"data": {
				"card": {"id": "C1", "list_id": "L1", "board_id": "B1", "name": "Fix bug", "order": 1500},
				"previous_data": {"card": {"id": "C1", "list_id": "L0"}}
			}
		}`)

		e, err := Decode(payload)
		if err != nil {
			t.Fatalf("Decode() error = %v", err)
		}
		if e.Type != CardMoved {
			t.Errorf("Type = %q, want %q", e.Type, CardMoved)
		}
		if e.CardID() != "C1" {
			t.Errorf("CardID() = %q, want C1", e.CardID())
		}
		if e.PreviousListID() != "L0" {
			t.Errorf("PreviousListID() = %q, want L0", e.PreviousListID())
		}
	})

	t.Run("malformed JSON", func(t *testing.T) {
		_, err := Decode([]byte(`{"event_id": `))
		if !errors.Is(err, ErrMalformed) {
			t.Errorf("Decode() error = %v, want ErrMalformed", err)
		}
	})

	t.Run("missing workspace", func(t *testing.T) {
		_, err := Decode([]byte(`{"event_id":"e-1","type":"card.moved"}`))
		if !errors.Is(err, ErrInvalid) {
			t.Errorf("Decode() error = %v, want ErrInvalid", err)
		}
	})
}

func TestFieldValue(t *testing.T) {
	e := New(CardUpdated, "W1", "U1", Payload{Card: &Card{
		ID:           "C1",
		CustomFields: []CustomFieldValue{{ID: "estimate", Value: "8"}},
	}})

	if v, ok := e.FieldValue("estimate"); !ok || v != "8" {
		t.Errorf("FieldValue(estimate) = %q, %v", v, ok)
	}
	if _, ok := e.FieldValue("missing"); ok {
		t.Error("FieldValue(missing) reported present")
	}

	empty := DomainEvent{}
	if _, ok := empty.FieldValue("estimate"); ok {
		t.Error("FieldValue on event without card reported present")
	}
}
