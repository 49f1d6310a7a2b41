package automation

import "github.com/nerrad567/boardflow-core/internal/event"

// triggerTypes maps an event type to the rule types it can fire.
var triggerTypes = map[event.Type][]RuleType{
	event.CardCreated:            {TypeCardInList, TypeCardInBoard},
	event.CardMoved:              {TypeCardInList},
	event.CardMovedIn:            {TypeCardInBoard},
	event.CardMovedOut:           {TypeCardInBoard},
	event.CardMemberAdded:        {TypeUserInCardChange},
	event.CardMemberRemoved:      {TypeUserInCardChange},
	event.CardLabelAdded:         {TypeLabelOnCard},
	event.CardLabelRemoved:       {TypeLabelOnCard},
	event.CardCompleted:          {TypeCardMarkedComplete},
	event.CardUncompleted:        {TypeCardMarkedComplete},
	event.CardCustomFieldUpdated: {TypeFieldSetToValue},
}

// TriggerTypesFor returns the rule types an event type can fire, or nil.
// card.updated and list.moved fire no rules.
func TriggerTypesFor(t event.Type) []RuleType {
	types := triggerTypes[t]
	if len(types) == 0 {
		return nil
	}
	out := make([]RuleType, len(types))
	copy(out, types)
	return out
}

// CandidateFilter builds the coarse rule query for an event.
func CandidateFilter(ev *event.DomainEvent) (RuleFilter, bool) {
	types := TriggerTypesFor(ev.Type)
	if len(types) == 0 {
		return RuleFilter{}, false
	}
	return RuleFilter{WorkspaceID: ev.WorkspaceID, Types: types}, true
}
