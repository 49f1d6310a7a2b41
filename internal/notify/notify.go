// Package notify sends a notification when a card description mentions
// users with @id.
//
// Only card.created and card.updated events are considered. On update, only
// users that were not already mentioned before the change are notified, and
// the author never notifies themselves. The same (card, content, recipients)
// notification is sent at most once per dedup window.
package notify

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/nerrad567/boardflow-core/internal/dedup"
	"github.com/nerrad567/boardflow-core/internal/event"
)

// ErrNoRecipients is returned by Notify when there is nobody to notify.
var ErrNoRecipients = errors.New("notify: no recipients")

const (
	// DefaultTimeout bounds one background notification: the dedup round
	// trip plus the publish.
	DefaultTimeout = 5 * time.Second

	// maxInFlight bounds background notifications.
	maxInFlight = 16
)

// Publisher sends a JSON payload to a topic.
type Publisher interface {
	PublishJSON(topic string, v any) error
}

// Logger is the logging interface used by the notifier.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Mention is the payload published for one notification.
type Mention struct {
	EventID     string    `json:"event_id"`
	WorkspaceID string    `json:"workspace_id"`
	BoardID     string    `json:"board_id,omitempty"`
	CardID      string    `json:"card_id"`
	CardName    string    `json:"card_name,omitempty"`
	MentionedBy string    `json:"mentioned_by"`
	Recipients  []string  `json:"recipients"`
	Content     string    `json:"content"`
	Timestamp   time.Time `json:"timestamp"`
}

// Notifier turns card events into mention notifications.
type Notifier struct {
	publisher Publisher
	topic     string
	dedup     dedup.Deduper
	logger    Logger
	timeout   time.Duration

	inFlight *semaphore.Weighted
	wg       sync.WaitGroup
}

// NewNotifier creates a notifier publishing to topic.
//
// Parameters:
//   - publisher: sends the JSON notification (the MQTT client in production)
//   - topic: destination, normally Topics.MentionNotification
//   - d: dedup window shared by every notification this notifier sends
//
// Thread Safety:
//
//	Handle, Notify and Wait are safe for concurrent use. SetLogger and
//	SetTimeout must be called before the first event.
func NewNotifier(publisher Publisher, topic string, d dedup.Deduper) *Notifier {
	return &Notifier{
		publisher: publisher,
		topic:     topic,
		dedup:     d,
		logger:    noopLogger{},
		timeout:   DefaultTimeout,
		inFlight:  semaphore.NewWeighted(maxInFlight),
	}
}

// SetTimeout bounds each background notification. Values <= 0 are ignored.
func (n *Notifier) SetTimeout(d time.Duration) {
	if d > 0 {
		n.timeout = d
	}
}

// SetLogger sets the logger.
func (n *Notifier) SetLogger(logger Logger) {
	if logger != nil {
		n.logger = logger
	}
}

// Handle is the transport handler. Events that mention nobody new return
// at once; the rest are notified in the background under the notifier's
// timeout, so a slow dedup backend or broker never stalls the caller's
// loop beyond maxInFlight outstanding notifications. Errors are logged.
func (n *Notifier) Handle(ctx context.Context, ev event.DomainEvent) {
	if _, ok := Build(&ev); !ok {
		return
	}
	if err := n.inFlight.Acquire(ctx, 1); err != nil {
		n.logger.Warn("mention notification dropped", "event_id", ev.EventID, "error", err)
		return
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		defer n.inFlight.Release(1)

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
		defer cancel()
		n.handle(ctx, ev)
	}()
}

// Wait blocks until every notification started by Handle has finished.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

func (n *Notifier) handle(ctx context.Context, ev event.DomainEvent) {
	sent, err := n.Notify(ctx, &ev)
	switch {
	case errors.Is(err, ErrNoRecipients):
	case err != nil:
		n.logger.Error("mention notification failed", "event_id", ev.EventID, "card_id", ev.CardID(), "error", err)
	case !sent:
		n.logger.Debug("mention notification suppressed", "event_id", ev.EventID, "card_id", ev.CardID())
	}
}

// Notify publishes a notification for ev if it mentions new users. It
// returns false without error when an identical notification was sent
// within the dedup window.
func (n *Notifier) Notify(ctx context.Context, ev *event.DomainEvent) (bool, error) {
	m, ok := Build(ev)
	if !ok {
		return false, ErrNoRecipients
	}

	key := dedup.Key(m.CardID, m.Content, m.Recipients)
	added, err := n.dedup.Add(ctx, key)
	if err != nil {
		return false, fmt.Errorf("checking dedup: %w", err)
	}
	if !added {
		return false, nil
	}

	if err := n.publisher.PublishJSON(n.topic, m); err != nil {
		// Forget the key so a redelivery can retry.
		if rerr := n.dedup.Remove(ctx, key); rerr != nil {
			n.logger.Warn("dedup key rollback failed", "card_id", m.CardID, "error", rerr)
		}
		return false, fmt.Errorf("publishing mention: %w", err)
	}
	return true, nil
}

// Build computes the notification for ev. It reports false when ev is not a
// card create or update, or nobody new is mentioned.
func Build(ev *event.DomainEvent) (Mention, bool) {
	if ev.Type != event.CardCreated && ev.Type != event.CardUpdated {
		return Mention{}, false
	}
	card := ev.Data.Card
	if card == nil || card.Description == "" {
		return Mention{}, false
	}

	var before []string
	if prev := ev.Data.PreviousData; ev.Type == event.CardUpdated && prev != nil && prev.Card != nil {
		before = ExtractMentions(prev.Card.Description)
	}

	var recipients []string
	for _, id := range ExtractMentions(card.Description) {
		if id == ev.UserID || slices.Contains(before, id) {
			continue
		}
		recipients = append(recipients, id)
	}
	if len(recipients) == 0 {
		return Mention{}, false
	}
	slices.Sort(recipients)

	return Mention{
		EventID:     ev.EventID,
		WorkspaceID: ev.WorkspaceID,
		BoardID:     card.BoardID,
		CardID:      card.ID,
		CardName:    card.Name,
		MentionedBy: ev.UserID,
		Recipients:  recipients,
		Content:     card.Description,
		Timestamp:   ev.Timestamp,
	}, true
}
