package automation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/nerrad567/boardflow-core/internal/board"
	"github.com/nerrad567/boardflow-core/internal/event"
)

// LabelInclusionCondition selects cards by their assigned labels.
type LabelInclusionCondition struct {
	Inclusion string   `json:"inclusion"`
	Labels    []string `json:"labels"`
}

type labelInclusion struct {
	labels board.LabelRepository
}

func (labelInclusion) parse(condition json.RawMessage) (LabelInclusionCondition, error) {
	var c LabelInclusionCondition
	if err := decodeCondition(condition, &c); err != nil {
		return c, err
	}
	switch c.Inclusion {
	case InclusionWith, InclusionWithout, InclusionWithoutAny:
		return c, nil
	}
	return c, fmt.Errorf("%w: inclusion %q", ErrInvalidCondition, c.Inclusion)
}

func (e labelInclusion) Validate(condition json.RawMessage) error {
	_, err := e.parse(condition)
	return err
}

func (e labelInclusion) Evaluate(ctx context.Context, condition json.RawMessage, ev *event.DomainEvent, _ string) FilterEvaluationResult {
	c, err := e.parse(condition)
	if err != nil {
		return failed(err)
	}
	cardID := ev.CardID()
	if cardID == "" {
		return failed(ErrNoCard)
	}
	if e.labels == nil {
		return failed(errors.New("automation: no label repository"))
	}

	assigned, err := e.labels.GetAssignedLabels(ctx, ev.WorkspaceID, cardID)
	if err != nil {
		return failed(fmt.Errorf("loading labels for card %s: %w", cardID, err))
	}

	switch c.Inclusion {
	case InclusionWith:
		return verdict(containsAny(assigned, c.Labels), "card has one of the labels")
	case InclusionWithout:
		return verdict(!containsAny(assigned, c.Labels), "card has none of the labels")
	default:
		return verdict(len(assigned) == 0, "card has no labels")
	}
}

func containsAny(have, want []string) bool {
	for _, w := range want {
		if slices.Contains(have, w) {
			return true
		}
	}
	return false
}
