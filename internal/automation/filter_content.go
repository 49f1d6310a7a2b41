package automation

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nerrad567/boardflow-core/internal/event"
)

// Content fields.
const (
	FieldName               = "name"
	FieldDescription        = "description"
	FieldNameAndDescription = "name_and_description"
)

// ContentTextCondition matches text in the card name or description.
type ContentTextCondition struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
}

type contentText struct{}

func (contentText) parse(condition json.RawMessage) (ContentTextCondition, error) {
	var c ContentTextCondition
	if err := decodeCondition(condition, &c); err != nil {
		return c, err
	}
	switch c.Field {
	case FieldName, FieldDescription, FieldNameAndDescription:
	default:
		return c, fmt.Errorf("%w: field %q", ErrInvalidCondition, c.Field)
	}
	if !isTextOperator(c.Operator) {
		return c, fmt.Errorf("%w: operator %q", ErrInvalidCondition, c.Operator)
	}
	return c, nil
}

func (e contentText) Validate(condition json.RawMessage) error {
	_, err := e.parse(condition)
	return err
}

func (e contentText) Evaluate(_ context.Context, condition json.RawMessage, ev *event.DomainEvent, _ string) FilterEvaluationResult {
	c, err := e.parse(condition)
	if err != nil {
		return failed(err)
	}
	card := ev.Data.Card
	if card == nil {
		return failed(ErrNoCard)
	}

	var text string
	switch c.Field {
	case FieldName:
		text = card.Name
	case FieldDescription:
		text = card.Description
	default:
		text = card.Name + " " + card.Description
	}

	hit, err := matchText(c.Operator, text, c.Value)
	if err != nil {
		return failed(err)
	}
	return verdict(hit, fmt.Sprintf("%s %s %q", c.Field, c.Operator, c.Value))
}
