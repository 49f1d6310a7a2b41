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

// Assignment modes.
const (
	AssignedTo     = "assigned_to"
	AssignedOnlyTo = "assigned_only_to"
	NotAssignedTo  = "not_assigned_to"
)

// SubjectSpecificMember selects the members listed in the condition.
const SubjectSpecificMember = "a_specific_member"

// AssignmentCondition selects cards by their members.
type AssignmentCondition struct {
	Assignment string   `json:"assignment"`
	Subject    string   `json:"subject"`
	Members    []string `json:"members,omitempty"`
}

type assignment struct {
	members board.MemberRepository
}

func (assignment) parse(condition json.RawMessage) (AssignmentCondition, error) {
	var c AssignmentCondition
	if err := decodeCondition(condition, &c); err != nil {
		return c, err
	}
	switch c.Assignment {
	case AssignedTo, AssignedOnlyTo, NotAssignedTo:
	default:
		return c, fmt.Errorf("%w: assignment %q", ErrInvalidCondition, c.Assignment)
	}
	switch c.Subject {
	case SubjectMe, SubjectAnyone:
	case SubjectSpecificMember:
		if len(c.Members) == 0 {
			return c, fmt.Errorf("%w: %s needs members", ErrInvalidCondition, SubjectSpecificMember)
		}
	default:
		return c, fmt.Errorf("%w: subject %q", ErrInvalidCondition, c.Subject)
	}
	return c, nil
}

func (e assignment) Validate(condition json.RawMessage) error {
	_, err := e.parse(condition)
	return err
}

func (e assignment) Evaluate(ctx context.Context, condition json.RawMessage, ev *event.DomainEvent, createdBy string) FilterEvaluationResult {
	c, err := e.parse(condition)
	if err != nil {
		return failed(err)
	}
	cardID := ev.CardID()
	if cardID == "" {
		return failed(ErrNoCard)
	}
	if e.members == nil {
		return failed(errors.New("automation: no member repository"))
	}

	var targets []string
	switch c.Subject {
	case SubjectMe:
		if createdBy == "" {
			return failed(fmt.Errorf("%w: rule has no creator to resolve %q", ErrInvalidCondition, SubjectMe))
		}
		targets = []string{createdBy}
	case SubjectSpecificMember:
		targets = c.Members
	}

	members, err := e.members.GetMembersByCard(ctx, cardID)
	if err != nil {
		return failed(fmt.Errorf("loading members for card %s: %w", cardID, err))
	}

	if c.Subject == SubjectAnyone {
		switch c.Assignment {
		case AssignedTo:
			return verdict(len(members) > 0, "card has a member")
		case AssignedOnlyTo:
			return verdict(len(members) == 1, "card has exactly one member")
		default:
			return verdict(len(members) == 0, "card has no members")
		}
	}

	switch c.Assignment {
	case AssignedTo:
		return verdict(containsAny(members, targets), "card assigned to subject")
	case AssignedOnlyTo:
		return verdict(len(members) > 0 && containsAll(targets, members), "card assigned only to subject")
	default:
		return verdict(!containsAny(members, targets), "card not assigned to subject")
	}
}

// containsAll reports whether every element of have is in set.
func containsAll(set, have []string) bool {
	for _, h := range have {
		if !slices.Contains(set, h) {
			return false
		}
	}
	return true
}
