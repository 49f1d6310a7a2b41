package automation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/nerrad567/boardflow-core/internal/board"
	"github.com/nerrad567/boardflow-core/internal/event"
	"github.com/nerrad567/boardflow-core/internal/ordering"
)

// Executor defaults.
const (
	DefaultMaxConcurrentActions = 16
	DefaultActionTimeout        = 30 * time.Second
)

// CardMover reads and repositions cards.
type CardMover interface {
	GetCard(ctx context.Context, id string) (*board.Card, error)
	MoveCard(ctx context.Context, req board.MoveCardRequest) (*board.MoveCardResult, error)
}

// ListLocator finds a list's neighbours on its board.
type ListLocator interface {
	GetAdjacentListIds(ctx context.Context, listID, boardID string) (board.AdjacentLists, error)
}

// Executor runs rule actions against the event's card.
//
// A rule's actions run in sort order, since they all act on the same card.
// Each action holds one slot of a weighted semaphore shared by every rule,
// so the number of actions in flight across concurrently executing rules is
// bounded. A failed action does not stop the ones after it.
type Executor struct {
	cards   CardMover
	lists   ListLocator
	sem     *semaphore.Weighted
	timeout time.Duration
	logger  Logger
}

// NewExecutor creates an executor.
//
// Parameters:
//   - cards: card reads and moves (board.SQLiteRepository in production)
//   - lists: adjacent-list lookup for next_list and prev_list moves
//   - maxConcurrent: actions in flight across every rule; <= 0 uses
//     DefaultMaxConcurrentActions
//   - timeout: deadline for one action; <= 0 uses DefaultActionTimeout
//
// Thread Safety:
//
//	Execute is safe for concurrent use; all callers share the one action
//	semaphore.
func NewExecutor(cards CardMover, lists ListLocator, maxConcurrent int64, timeout time.Duration) *Executor {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentActions
	}
	if timeout <= 0 {
		timeout = DefaultActionTimeout
	}
	return &Executor{
		cards:   cards,
		lists:   lists,
		sem:     semaphore.NewWeighted(maxConcurrent),
		timeout: timeout,
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for action outcomes.
func (e *Executor) SetLogger(logger Logger) {
	if logger != nil {
		e.logger = logger
	}
}

// Execute runs every action of rule for ev and returns one result per
// action, in action order.
//
// Actions run one after another because they target the same card, each
// holding an executor slot and its own timeout. A failed or skipped action
// does not stop the ones after it.
//
// Returns:
//   - []ActionResult: completed, failed (with Error) or skipped per action
func (e *Executor) Execute(ctx context.Context, rule *Rule, ev *event.DomainEvent) []ActionResult {
	results := make([]ActionResult, len(rule.Actions))
	for i := range rule.Actions {
		results[i] = e.runAction(ctx, &rule.Actions[i], ev)
		if results[i].Status == ActionFailed {
			e.logger.Warn("automation action failed",
				"rule_id", rule.ID,
				"action_id", results[i].ActionID,
				"action", results[i].Action,
				"position", results[i].Position,
				"error", results[i].Error,
			)
		}
	}
	return results
}

func (e *Executor) runAction(ctx context.Context, action *RuleAction, ev *event.DomainEvent) (res ActionResult) {
	res = ActionResult{
		ActionID: action.ID,
		Action:   action.Condition.Action,
		Position: action.Condition.Position.String(),
		CardID:   ev.CardID(),
	}

	if action.Condition.Action == ActionCopy {
		res.Status = ActionSkipped
		return res
	}

	if err := e.sem.Acquire(ctx, 1); err != nil {
		return failAction(res, fmt.Errorf("waiting for action slot: %w", err))
	}
	defer e.sem.Release(1)

	defer func() {
		if r := recover(); r != nil {
			res = failAction(res, fmt.Errorf("action panicked: %v", r))
		}
	}()

	actx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	moved, err := e.move(actx, action, res.CardID)
	if err != nil {
		return failAction(res, err)
	}

	res.Status = ActionCompleted
	res.ListID = moved.Card.ListID
	order := moved.Card.Order
	res.Order = &order
	return res
}

// move dispatches a move action on the card's position.
func (e *Executor) move(ctx context.Context, action *RuleAction, cardID string) (*board.MoveCardResult, error) {
	if action.Condition.Action != ActionMove {
		return nil, fmt.Errorf("%w: unknown action %q", ErrInvalidCondition, action.Condition.Action)
	}
	if cardID == "" {
		return nil, ErrNoCard
	}

	pos := action.Condition.Position
	if p, ok := pos.Ordering(); ok {
		return e.cards.MoveCard(ctx, board.MoveCardRequest{CardID: cardID, Position: p})
	}

	switch pos.Name {
	case PositionNextList, PositionPrevList:
	default:
		return nil, fmt.Errorf("%w: unknown position %q", ErrInvalidCondition, pos.String())
	}

	card, err := e.cards.GetCard(ctx, cardID)
	if err != nil {
		return nil, err
	}
	adj, err := e.lists.GetAdjacentListIds(ctx, card.ListID, card.BoardID)
	if err != nil {
		return nil, err
	}

	target := adj.Next
	if pos.Name == PositionPrevList {
		target = adj.Prev
	}
	if target == "" {
		return nil, fmt.Errorf("%w: %s of list %s", ErrNoAdjacentList, pos.Name, card.ListID)
	}
	return e.cards.MoveCard(ctx, board.MoveCardRequest{
		CardID:   cardID,
		ToListID: target,
		Position: ordering.Bottom(),
	})
}

func failAction(res ActionResult, err error) ActionResult {
	res.Status = ActionFailed
	res.Error = err.Error()
	if errors.Is(err, context.DeadlineExceeded) {
		res.Error = "action timed out: " + err.Error()
	}
	return res
}
