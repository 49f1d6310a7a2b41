package automation

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/nerrad567/boardflow-core/internal/event"
)

type panicEvaluator struct{}

func (panicEvaluator) Evaluate(context.Context, json.RawMessage, *event.DomainEvent, string) FilterEvaluationResult {
	panic("evaluator exploded")
}

func (panicEvaluator) Validate(json.RawMessage) error { return nil }

func TestMatcherEvaluateRecoversPanic(t *testing.T) {
	const ft FilterType = "test_panic"
	evaluators[ft] = func(Deps) Evaluator { return panicEvaluator{} }
	t.Cleanup(func() { delete(evaluators, ft) })

	m := NewMatcher(Deps{})
	got := m.Evaluate(context.Background(), ft, json.RawMessage(`{}`), movedEvent("L0", "L1"), "U1")
	if got.Matches || !strings.Contains(got.Error, "evaluator exploded") {
		t.Errorf("Evaluate() = %+v, want recovered panic", got)
	}
}

func TestMatcherEvaluateUnknownType(t *testing.T) {
	m := NewMatcher(Deps{})
	got := m.Evaluate(context.Background(), "nope", json.RawMessage(`{}`), movedEvent("L0", "L1"), "U1")
	if got.Matches || !strings.Contains(got.Error, ErrUnsupportedFilterType.Error()) {
		t.Errorf("Evaluate() = %+v, want unsupported filter type", got)
	}
}

func TestMatcherMatch(t *testing.T) {
	deps := Deps{
		Labels:  fakeLabels{labels: map[string][]string{"C1": {"bug"}}},
		Members: fakeMembers{members: map[string][]string{"C1": {"U1"}}},
	}
	m := NewMatcher(deps)
	ev := movedEvent("L0", "L1")

	withFilters := func(filters ...Filter) *Rule {
		r := listRule("R1", "L1")
		r.Filters = filters
		return r
	}
	filter := func(ft FilterType, cond string) Filter {
		return Filter{Type: ft, Condition: json.RawMessage(cond)}
	}

	tests := []struct {
		name   string
		rule   *Rule
		want   bool
		reason string
	}{
		{"trigger only", withFilters(), true, ""},
		{"all filters pass", withFilters(
			filter(FilterListInclusion, `{"inclusion":"in","list":["L1"]}`),
			filter(FilterLabelInclusion, `{"inclusion":"with","labels":["bug"]}`),
			filter(FilterAssignment, `{"assignment":"assigned_to","subject":"me"}`),
		), true, ""},
		{"one filter fails", withFilters(
			filter(FilterListInclusion, `{"inclusion":"in","list":["L1"]}`),
			filter(FilterLabelInclusion, `{"inclusion":"without_any","labels":[]}`),
		), false, "label_inclusion did not match"},
		{"filter error fails closed", withFilters(
			filter("unknown_filter", `{}`),
		), false, "unknown_filter failed"},
		{"trigger misses", listRule("R1", "L2"), false, "trigger did not fire"},
		{"disabled", func() *Rule { r := listRule("R1", "L1"); r.Enabled = false; return r }(), false, "rule disabled"},
		{"other workspace", func() *Rule { r := listRule("R1", "L1"); r.WorkspaceID = "W2"; return r }(), false, "different workspace"},
		{"broken trigger", func() *Rule { r := listRule("R1", "L1"); r.Condition = json.RawMessage(`{`); return r }(), false, "invalid condition"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := m.Match(context.Background(), tt.rule, ev)
			if got.Matched != tt.want {
				t.Fatalf("Match() = %+v, want matched=%v", got, tt.want)
			}
			if tt.reason != "" && !strings.Contains(got.Reason, tt.reason) {
				t.Errorf("Match().Reason = %q, want substring %q", got.Reason, tt.reason)
			}
		})
	}
}

func TestMatcherRepositoryErrorFailsClosed(t *testing.T) {
	m := NewMatcher(Deps{Labels: fakeLabels{err: errors.New("connection reset")}})
	r := listRule("R1", "L1")
	r.Filters = []Filter{{Type: FilterLabelInclusion, Condition: json.RawMessage(`{"inclusion":"without","labels":["x"]}`)}}

	got := m.Match(context.Background(), r, movedEvent("L0", "L1"))
	if got.Matched {
		t.Fatal("Match() matched despite repository error")
	}
	if len(got.Filters) != 1 || !strings.Contains(got.Filters[0].Error, "connection reset") {
		t.Errorf("Filters = %+v", got.Filters)
	}
}
