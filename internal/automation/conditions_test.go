package automation

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/nerrad567/boardflow-core/internal/event"
)

func movedEvent(from, to string) *event.DomainEvent {
	ev := event.New(event.CardMoved, "W1", "U1", event.Payload{
		Card:         &event.Card{ID: "C1", ListID: to, BoardID: "B1"},
		PreviousData: &event.Previous{Card: &event.Card{ID: "C1", ListID: from, BoardID: "B1"}},
	})
	return &ev
}

func typedEvent(t event.Type, data event.Payload) *event.DomainEvent {
	ev := event.New(t, "W1", "U1", data)
	return &ev
}

func TestTriggerMatches(t *testing.T) {
	created := typedEvent(event.CardCreated, event.Payload{Card: &event.Card{ID: "C1", ListID: "L1", BoardID: "B1"}})
	movedIn := typedEvent(event.CardMovedIn, event.Payload{
		Card:  &event.Card{ID: "C1", ListID: "L3", BoardID: "B2"},
		Board: &event.Board{ID: "B2"},
	})
	movedOut := typedEvent(event.CardMovedOut, event.Payload{
		Card:         &event.Card{ID: "C1", ListID: "L3", BoardID: "B2"},
		Board:        &event.Board{ID: "B1"},
		PreviousData: &event.Previous{Card: &event.Card{ID: "C1", BoardID: "B1"}},
	})
	memberAdded := typedEvent(event.CardMemberAdded, event.Payload{Card: &event.Card{ID: "C1"}, Member: &event.Member{ID: "U7"}})
	labelRemoved := typedEvent(event.CardLabelRemoved, event.Payload{Card: &event.Card{ID: "C1"}, Label: &event.Label{ID: "bug"}})
	completed := typedEvent(event.CardCompleted, event.Payload{Card: &event.Card{ID: "C1", IsCompleted: true}})
	fieldSet := typedEvent(event.CardCustomFieldUpdated, event.Payload{
		Card:        &event.Card{ID: "C1"},
		CustomField: &event.CustomField{ID: "status", Value: " Ready "},
	})

	tests := []struct {
		name      string
		ruleType  RuleType
		condition string
		ev        *event.DomainEvent
		createdBy string
		want      bool
	}{
		{"list added by move", TypeCardInList, `{"list_id":"L1","by":"anyone","action":"added"}`, movedEvent("L0", "L1"), "", true},
		{"list added by create", TypeCardInList, `{"list_id":"L1","by":"anyone","action":"added"}`, created, "", true},
		{"list added ignores reorder", TypeCardInList, `{"list_id":"L1","by":"anyone","action":"added"}`, movedEvent("L1", "L1"), "", false},
		{"list added other list", TypeCardInList, `{"list_id":"L2","by":"anyone","action":"added"}`, movedEvent("L0", "L1"), "", false},
		{"list removed", TypeCardInList, `{"list_id":"L0","by":"anyone","action":"removed"}`, movedEvent("L0", "L1"), "", true},
		{"list removed not on create", TypeCardInList, `{"list_id":"L1","by":"anyone","action":"removed"}`, created, "", false},
		{"by me", TypeCardInList, `{"list_id":"L1","by":"me","action":"added"}`, movedEvent("L0", "L1"), "U1", true},
		{"by me other user", TypeCardInList, `{"list_id":"L1","by":"me","action":"added"}`, movedEvent("L0", "L1"), "U2", false},
		{"by me without creator", TypeCardInList, `{"list_id":"L1","by":"me","action":"added"}`, movedEvent("L0", "L1"), "", false},
		{"by literal user", TypeCardInList, `{"list_id":"L1","by":"U1","action":"added"}`, movedEvent("L0", "L1"), "", true},

		{"board added on create", TypeCardInBoard, `{"board":"B1","by":"anyone","action":"added"}`, created, "", true},
		{"board added on moved_in", TypeCardInBoard, `{"board":"B2","by":"anyone","action":"added"}`, movedIn, "", true},
		{"board removed on moved_out", TypeCardInBoard, `{"board":"B1","by":"anyone","action":"removed"}`, movedOut, "", true},
		{"board removed wrong board", TypeCardInBoard, `{"board":"B2","by":"anyone","action":"removed"}`, movedOut, "", false},
		{"board added ignores moved_out", TypeCardInBoard, `{"board":"B2","by":"anyone","action":"added"}`, movedOut, "", false},

		{"member added specific", TypeUserInCardChange, `{"user_id":"U7","by":"anyone","action":"added"}`, memberAdded, "", true},
		{"member added anyone", TypeUserInCardChange, `{"user_id":"anyone","by":"anyone","action":"added"}`, memberAdded, "", true},
		{"member added me", TypeUserInCardChange, `{"user_id":"me","by":"anyone","action":"added"}`, memberAdded, "U7", true},
		{"member removed wrong action", TypeUserInCardChange, `{"user_id":"U7","by":"anyone","action":"removed"}`, memberAdded, "", false},

		{"label removed", TypeLabelOnCard, `{"label_id":"bug","by":"anyone","action":"removed"}`, labelRemoved, "", true},
		{"label removed other label", TypeLabelOnCard, `{"label_id":"docs","by":"anyone","action":"removed"}`, labelRemoved, "", false},

		{"completed", TypeCardMarkedComplete, `{"by":"anyone","action":"complete"}`, completed, "", true},
		{"incomplete on completed", TypeCardMarkedComplete, `{"by":"anyone","action":"incomplete"}`, completed, "", false},

		{"field value case-insensitive", TypeFieldSetToValue, `{"custom_field":"status","value":"ready","by":"anyone"}`, fieldSet, "", true},
		{"field value differs", TypeFieldSetToValue, `{"custom_field":"status","value":"blocked","by":"anyone"}`, fieldSet, "", false},
		{"other field", TypeFieldSetToValue, `{"custom_field":"estimate","value":"ready","by":"anyone"}`, fieldSet, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trigger, err := ParseTrigger(tt.ruleType, json.RawMessage(tt.condition))
			if err != nil {
				t.Fatalf("ParseTrigger() error = %v", err)
			}
			if got := trigger.Matches(tt.ev, tt.createdBy); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseTriggerNumericValue(t *testing.T) {
	trigger, err := ParseTrigger(TypeFieldSetToValue, json.RawMessage(`{"custom_field":"points","value":5,"by":"anyone"}`))
	if err != nil {
		t.Fatalf("ParseTrigger() error = %v", err)
	}
	ev := typedEvent(event.CardCustomFieldUpdated, event.Payload{
		Card:        &event.Card{ID: "C1"},
		CustomField: &event.CustomField{ID: "points", Value: "5"},
	})
	if !trigger.Matches(ev, "") {
		t.Error("numeric condition value did not match string field value")
	}
}

func TestParseTriggerErrors(t *testing.T) {
	tests := []struct {
		name      string
		ruleType  RuleType
		condition string
	}{
		{"unknown type", "card_due_soon", `{}`},
		{"bad action", TypeCardInList, `{"list_id":"L1","by":"anyone","action":"archived"}`},
		{"missing list", TypeCardInList, `{"list_id":"","by":"anyone","action":"added"}`},
		{"not an object", TypeCardMarkedComplete, `["by"]`},
		{"empty", TypeCardMarkedComplete, ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTrigger(tt.ruleType, json.RawMessage(tt.condition))
			if !errors.Is(err, ErrInvalidCondition) {
				t.Errorf("ParseTrigger() error = %v, want ErrInvalidCondition", err)
			}
		})
	}
}

func TestTriggerTypesFor(t *testing.T) {
	tests := []struct {
		eventType event.Type
		want      []RuleType
	}{
		{event.CardCreated, []RuleType{TypeCardInList, TypeCardInBoard}},
		{event.CardMoved, []RuleType{TypeCardInList}},
		{event.CardMovedOut, []RuleType{TypeCardInBoard}},
		{event.CardMemberRemoved, []RuleType{TypeUserInCardChange}},
		{event.CardLabelAdded, []RuleType{TypeLabelOnCard}},
		{event.CardUncompleted, []RuleType{TypeCardMarkedComplete}},
		{event.CardCustomFieldUpdated, []RuleType{TypeFieldSetToValue}},
		{event.CardUpdated, nil},
		{event.ListMoved, nil},
	}

	for _, tt := range tests {
		t.Run(string(tt.eventType), func(t *testing.T) {
			got := TriggerTypesFor(tt.eventType)
			if len(got) != len(tt.want) {
				t.Fatalf("TriggerTypesFor() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("TriggerTypesFor()[%d] = %s, want %s", i, got[i], tt.want[i])
				}
			}
		})
	}

	// Callers may not mutate the table.
	TriggerTypesFor(event.CardMoved)[0] = "tampered"
	if TriggerTypesFor(event.CardMoved)[0] != TypeCardInList {
		t.Error("TriggerTypesFor() returned the shared slice")
	}
}

func TestActionPositionJSON(t *testing.T) {
	tests := []struct {
		in      string
		want    ActionPosition
		wantErr bool
	}{
		{`"top_of_list"`, NamedPosition(PositionTopOfList), false},
		{`3`, IndexPosition(3), false},
		{`null`, ActionPosition{}, false},
		{`1.5`, ActionPosition{}, true},
		{`{}`, ActionPosition{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var got ActionPosition
			err := json.Unmarshal([]byte(tt.in), &got)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Unmarshal() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("Unmarshal() = %+v, want %+v", got, tt.want)
			}
		})
	}

	data, err := json.Marshal(ActionCondition{Action: ActionMove, Position: IndexPosition(0)})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if !strings.Contains(string(data), `"position":0`) {
		t.Errorf("Marshal() = %s, want numeric position", data)
	}
}
