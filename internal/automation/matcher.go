package automation

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nerrad567/boardflow-core/internal/event"
)

// MatchResult explains why a rule did or did not match an event.
type MatchResult struct {
	Matched bool                     `json:"matched"`
	Reason  string                   `json:"reason,omitempty"`
	Filters []FilterEvaluationResult `json:"filters,omitempty"`
}

// Matcher decides whether rules fire for an event. Any error is a
// non-match.
type Matcher struct {
	deps   Deps
	logger Logger
}

// NewMatcher creates a matcher whose evaluators read from deps.
func NewMatcher(deps Deps) *Matcher {
	return &Matcher{deps: deps, logger: noopLogger{}}
}

// SetLogger sets the logger for evaluation errors.
func (m *Matcher) SetLogger(logger Logger) {
	if logger != nil {
		m.logger = logger
	}
}

// Evaluate runs one filter. Unknown filter types and evaluator panics come
// back as a result with Error set.
func (m *Matcher) Evaluate(ctx context.Context, filterType FilterType, condition json.RawMessage, ev *event.DomainEvent, createdBy string) (res FilterEvaluationResult) {
	evaluator, err := CreateEvaluator(filterType, m.deps)
	if err != nil {
		return failed(err)
	}

	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("filter evaluator panic recovered",
				"filter_type", filterType,
				"event_id", ev.EventID,
				"panic", r,
			)
			res = failed(fmt.Errorf("%w: evaluator %s panicked: %v", ErrInvalidCondition, filterType, r))
		}
	}()

	res = evaluator.Evaluate(ctx, condition, ev, createdBy)
	if res.Error != "" {
		res.Matches = false
	}
	return res
}

// Match checks the rule's trigger and then every filter. Disabled rules and
// rules from another workspace never match.
//
// Parameters:
//   - ctx: passed to evaluators that read labels or members
//   - rule: a candidate from the registry
//   - ev: the event being processed
//
// Returns:
//   - MatchResult: Matched only when the trigger and every filter match.
//     The first failing filter's reason, and its error if any, are kept.
//     Evaluator errors and panics fail closed.
func (m *Matcher) Match(ctx context.Context, rule *Rule, ev *event.DomainEvent) MatchResult {
	if !rule.Enabled {
		return MatchResult{Reason: "rule disabled"}
	}
	if rule.WorkspaceID != ev.WorkspaceID {
		return MatchResult{Reason: "different workspace"}
	}

	trigger, err := ParseTrigger(rule.Type, rule.Condition)
	if err != nil {
		m.logger.Warn("rule trigger condition invalid",
			"rule_id", rule.ID,
			"type", rule.Type,
			"error", err,
		)
		return MatchResult{Reason: err.Error()}
	}
	if !trigger.Matches(ev, rule.CreatedBy) {
		return MatchResult{Reason: "trigger did not fire"}
	}

	results := make([]FilterEvaluationResult, 0, len(rule.Filters))
	for _, f := range rule.Filters {
		res := m.Evaluate(ctx, f.Type, f.Condition, ev, rule.CreatedBy)
		results = append(results, res)
		if res.Error != "" {
			m.logger.Warn("filter evaluation failed",
				"rule_id", rule.ID,
				"filter_type", f.Type,
				"error", res.Error,
			)
			return MatchResult{Reason: fmt.Sprintf("filter %s failed", f.Type), Filters: results}
		}
		if !res.Matches {
			return MatchResult{Reason: fmt.Sprintf("filter %s did not match", f.Type), Filters: results}
		}
	}
	return MatchResult{Matched: true, Filters: results}
}
