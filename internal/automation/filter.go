package automation

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nerrad567/boardflow-core/internal/board"
	"github.com/nerrad567/boardflow-core/internal/event"
)

// FilterEvaluationResult is the outcome of one filter. A non-empty Error
// always comes with Matches false.
type FilterEvaluationResult struct {
	Matches bool   `json:"matches"`
	Reason  string `json:"reason,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Evaluator checks one filter kind against an event.
type Evaluator interface {
	// Evaluate decides whether ev satisfies condition. createdBy is the
	// rule author, used to resolve the subject "me".
	Evaluate(ctx context.Context, condition json.RawMessage, ev *event.DomainEvent, createdBy string) FilterEvaluationResult

	// Validate checks a condition at authoring time.
	Validate(condition json.RawMessage) error
}

// Deps holds the repositories evaluators read from.
type Deps struct {
	Labels  board.LabelRepository
	Members board.MemberRepository
}

var evaluators = map[FilterType]func(Deps) Evaluator{
	FilterListInclusion:       func(Deps) Evaluator { return listInclusion{} },
	FilterLabelInclusion:      func(d Deps) Evaluator { return labelInclusion{labels: d.Labels} },
	FilterAssignment:          func(d Deps) Evaluator { return assignment{members: d.Members} },
	FilterCustomFieldPresence: func(Deps) Evaluator { return customFieldPresence{} },
	FilterCustomFieldValue:    func(Deps) Evaluator { return customFieldValue{} },
	FilterContentText:         func(Deps) Evaluator { return contentText{} },
}

// CreateEvaluator returns the evaluator registered for filterType.
//
// Constructors are pure: they capture deps and do no I/O, so evaluators
// can be created per call.
//
// Returns:
//   - Evaluator: ready to use
//   - error: ErrUnsupportedFilterType for an unregistered type
func CreateEvaluator(filterType FilterType, deps Deps) (Evaluator, error) {
	ctor, ok := evaluators[filterType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFilterType, filterType)
	}
	return ctor(deps), nil
}

// FilterTypes returns the registered filter types.
func FilterTypes() []FilterType {
	out := make([]FilterType, 0, len(evaluators))
	for t := range evaluators {
		out = append(out, t)
	}
	return out
}

func matched(reason string) FilterEvaluationResult {
	return FilterEvaluationResult{Matches: true, Reason: reason}
}

func notMatched(reason string) FilterEvaluationResult {
	return FilterEvaluationResult{Reason: reason}
}

func failed(err error) FilterEvaluationResult {
	return FilterEvaluationResult{Error: err.Error()}
}

// verdict returns matched or notMatched depending on ok.
func verdict(ok bool, reason string) FilterEvaluationResult {
	if ok {
		return matched(reason)
	}
	return notMatched(reason)
}

// Inclusion values.
const (
	InclusionIn         = "in"
	InclusionNotIn      = "not_in"
	InclusionWith       = "with"
	InclusionWithout    = "without"
	InclusionWithoutAny = "without_any"
)
