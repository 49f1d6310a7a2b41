package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nerrad567/boardflow-core/internal/event"
	"github.com/nerrad567/boardflow-core/internal/infrastructure/mqtt"
)

// DefaultBufferSize is the subscriber channel capacity when none is given.
const DefaultBufferSize = 256

var (
	// ErrMalformedEvent is logged when a payload cannot be decoded or its
	// type disagrees with its topic.
	ErrMalformedEvent = errors.New("transport: malformed event")

	// ErrAlreadyStarted is returned by Start on a running subscriber.
	ErrAlreadyStarted = errors.New("transport: subscriber already started")
)

// Broker is the subset of the MQTT client the transport uses.
type Broker interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	DefaultQoS() byte
}

// Logger is the logging interface used by the transport.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

func orNoop(l Logger) Logger {
	if l == nil {
		return noopLogger{}
	}
	return l
}

// Publisher sends domain events to the broker.
type Publisher struct {
	broker Broker
	topics mqtt.Topics
	logger Logger
}

// NewPublisher creates a publisher.
//
// Parameters:
//   - broker: connection used for every publish
//   - topics: builds the per-type user action topic
//   - logger: may be nil, in which case failures are dropped silently
func NewPublisher(broker Broker, topics mqtt.Topics, logger Logger) *Publisher {
	return &Publisher{broker: broker, topics: topics, logger: orNoop(logger)}
}

// Publish sends ev. Failures are logged and never returned: a mutation that
// already committed must not fail because its event could not be sent.
//
// Thread Safety: safe for concurrent use; ordering across goroutines is not
// preserved.
func (p *Publisher) Publish(ctx context.Context, ev event.DomainEvent) {
	if err := ctx.Err(); err != nil {
		p.logger.Warn("event publish skipped", "event_id", ev.EventID, "type", ev.Type, "error", err)
		return
	}
	data, err := ev.Encode()
	if err != nil {
		p.logger.Error("event encode failed", "event_id", ev.EventID, "type", ev.Type, "error", err)
		return
	}

	topic := p.topics.UserAction(string(ev.Type))
	if err := p.broker.Publish(topic, data, p.broker.DefaultQoS(), false); err != nil {
		p.logger.Error("event publish failed",
			"event_id", ev.EventID,
			"type", ev.Type,
			"topic", topic,
			"error", err,
		)
		return
	}
	p.logger.Debug("event published", "event_id", ev.EventID, "topic", topic)
}

// PublishAll sends events in order.
func (p *Publisher) PublishAll(ctx context.Context, events []event.DomainEvent) {
	for _, ev := range events {
		p.Publish(ctx, ev)
	}
}

// Handler consumes one decoded event.
type Handler func(ctx context.Context, ev event.DomainEvent)

type message struct {
	topic   string
	payload []byte
}

// Subscriber receives domain events and feeds them to a handler from one
// goroutine, in arrival order.
type Subscriber struct {
	broker Broker
	topics mqtt.Topics
	logger Logger
	buffer int

	mu      sync.Mutex
	queue   chan message
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewSubscriber creates a subscriber with a channel of bufferSize.
func NewSubscriber(broker Broker, topics mqtt.Topics, bufferSize int, logger Logger) *Subscriber {
	if bufferSize < 1 {
		bufferSize = DefaultBufferSize
	}
	return &Subscriber{broker: broker, topics: topics, logger: orNoop(logger), buffer: bufferSize}
}

// Start subscribes to every user action topic and starts the consumer loop.
// The loop stops when ctx is cancelled or Stop is called.
//
// Parameters:
//   - ctx: bounds the consumer loop
//   - handler: called once per decoded event, one at a time
//
// Returns:
//   - error: ErrAlreadyStarted on a second call, or the broker's subscribe
//     error
//
// Thread Safety: handler runs only on the loop goroutine, so it sees events
// in arrival order. A full buffer blocks the broker callback.
func (s *Subscriber) Start(ctx context.Context, handler Handler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrAlreadyStarted
	}

	loopCtx, cancel := context.WithCancel(ctx)
	queue := make(chan message, s.buffer)

	err := s.broker.Subscribe(s.topics.AllUserActions(), s.broker.DefaultQoS(), func(topic string, payload []byte) error {
		// Copy: the broker may reuse its buffer after the callback returns.
		msg := message{topic: topic, payload: append([]byte(nil), payload...)}
		select {
		case queue <- msg:
			return nil
		case <-loopCtx.Done():
			return fmt.Errorf("subscriber stopped: %w", loopCtx.Err())
		}
	})
	if err != nil {
		cancel()
		return fmt.Errorf("subscribing to %s: %w", s.topics.AllUserActions(), err)
	}

	s.queue = queue
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	go s.loop(loopCtx, queue, handler, s.done)

	s.logger.Info("event subscriber started", "topic", s.topics.AllUserActions(), "buffer", s.buffer)
	return nil
}

// Stop unsubscribes and waits for the consumer loop to exit. Messages still
// buffered are discarded.
func (s *Subscriber) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if err := s.broker.Unsubscribe(s.topics.AllUserActions()); err != nil {
		s.logger.Warn("event unsubscribe failed", "error", err)
	}
	cancel()
	<-done
	s.logger.Info("event subscriber stopped")
}

func (s *Subscriber) loop(ctx context.Context, queue <-chan message, handler Handler, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-queue:
			s.dispatch(ctx, msg, handler)
		}
	}
}

func (s *Subscriber) dispatch(ctx context.Context, msg message, handler Handler) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("event handler panic recovered", "topic", msg.topic, "panic", r)
		}
	}()

	ev, err := s.decode(msg)
	if err != nil {
		s.logger.Warn("dropping malformed event", "topic", msg.topic, "error", err)
		return
	}
	handler(ctx, ev)
}

func (s *Subscriber) decode(msg message) (event.DomainEvent, error) {
	ev, err := event.Decode(msg.payload)
	if err != nil {
		return event.DomainEvent{}, fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}
	if t, ok := s.topics.ActionType(msg.topic); ok && t != string(ev.Type) {
		return event.DomainEvent{}, fmt.Errorf("%w: topic type %q, payload type %q", ErrMalformedEvent, t, ev.Type)
	}
	return ev, nil
}
