package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/nerrad567/boardflow-core/internal/event"
)

// ListInclusionCondition selects cards by the list they sit in.
type ListInclusionCondition struct {
	Inclusion string   `json:"inclusion"`
	List      []string `json:"list"`
}

type listInclusion struct{}

func (listInclusion) parse(condition json.RawMessage) (ListInclusionCondition, error) {
	var c ListInclusionCondition
	if err := decodeCondition(condition, &c); err != nil {
		return c, err
	}
	if c.Inclusion != InclusionIn && c.Inclusion != InclusionNotIn {
		return c, fmt.Errorf("%w: inclusion %q", ErrInvalidCondition, c.Inclusion)
	}
	return c, nil
}

func (e listInclusion) Validate(condition json.RawMessage) error {
	_, err := e.parse(condition)
	return err
}

func (e listInclusion) Evaluate(_ context.Context, condition json.RawMessage, ev *event.DomainEvent, _ string) FilterEvaluationResult {
	c, err := e.parse(condition)
	if err != nil {
		return failed(err)
	}
	if ev.Data.Card == nil {
		return failed(ErrNoCard)
	}

	in := slices.Contains(c.List, ev.Data.Card.ListID)
	if c.Inclusion == InclusionNotIn {
		return verdict(!in, "card list not in set")
	}
	return verdict(in, "card list in set")
}
