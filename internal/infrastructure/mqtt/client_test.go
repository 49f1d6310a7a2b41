package mqtt

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/boardflow-core/internal/infrastructure/config"
)

const testBrokerAddr = "127.0.0.1:1883"

// testConfig returns a configuration for the local test broker.
func testConfig(clientID string) config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: clientID,
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// connectOrSkip connects to the local broker, skipping the test when none
// is listening.
func connectOrSkip(t *testing.T, clientID string) *Client {
	t.Helper()

	conn, err := net.DialTimeout("tcp", testBrokerAddr, 200*time.Millisecond)
	if err != nil {
		t.Skipf("no MQTT broker at %s: %v", testBrokerAddr, err)
	}
	conn.Close() //nolint:errcheck // reachability check only

	client, err := ConnectWithTopics(testConfig(clientID), NewTopics("boardflow-test"))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { client.Close() }) //nolint:errcheck // Test cleanup
	return client
}

// =============================================================================
// Broker-free tests
// =============================================================================

func TestCloseNil(t *testing.T) {
	client := &Client{}
	if err := client.Close(); err != nil {
		t.Errorf("Close() on unconnected client error = %v, want nil", err)
	}
}

func TestIsConnectedInitialState(t *testing.T) {
	client := &Client{}
	if client.IsConnected() {
		t.Error("IsConnected() should be false for uninitialised client")
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

func TestValidationBeforeConnectionCheck(t *testing.T) {
	client := &Client{subscriptions: make(map[string]subscription)}
	noop := func(string, []byte) error { return nil }

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"publish empty topic", client.Publish("", []byte("x"), 1, false), ErrInvalidTopic},
		{"publish invalid qos", client.Publish("a/b", []byte("x"), 3, false), ErrInvalidQoS},
		{"publish oversized", client.Publish("a/b", make([]byte, maxPayloadSize+1), 1, false), ErrPublishFailed},
		{"publish disconnected", client.Publish("a/b", []byte("x"), 1, false), ErrNotConnected},
		{"subscribe empty topic", client.Subscribe("", 1, noop), ErrInvalidTopic},
		{"subscribe invalid qos", client.Subscribe("a/b", 5, noop), ErrInvalidQoS},
		{"subscribe nil handler", client.Subscribe("a/b", 1, nil), ErrSubscribeFailed},
		{"subscribe disconnected", client.Subscribe("a/b", 1, noop), ErrNotConnected},
		{"unsubscribe empty topic", client.Unsubscribe(""), ErrInvalidTopic},
		{"unsubscribe disconnected", client.Unsubscribe("a/b"), ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.want) {
				t.Errorf("error = %v, want %v", tt.err, tt.want)
			}
		})
	}

	if client.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d after rejected subscribes, want 0", client.SubscriptionCount())
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig("boardflow-opts")
	cfg.Auth.Username = "svc"
	cfg.Auth.Password = "secret"

	opts := buildClientOptions(cfg)
	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://127.0.0.1:1883" {
		t.Errorf("Servers = %v, want tcp://127.0.0.1:1883", opts.Servers)
	}
	if opts.ClientID != "boardflow-opts" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.Username != "svc" || opts.Password != "secret" {
		t.Error("credentials not applied")
	}
	if !opts.AutoReconnect || !opts.CleanSession {
		t.Error("expected auto-reconnect with clean session")
	}

	cfg.Broker.TLS = true
	opts = buildClientOptions(cfg)
	if opts.Servers[0].Scheme != "ssl" || opts.TLSConfig == nil {
		t.Errorf("TLS not configured: scheme=%s", opts.Servers[0].Scheme)
	}
}

func TestConfigureLWT(t *testing.T) {
	opts := pahomqtt.NewClientOptions()
	configureLWT(opts, NewTopics("acme"), "core-1")

	if !opts.WillEnabled || !opts.WillRetained {
		t.Fatal("expected retained will")
	}
	if opts.WillTopic != "acme/system/status" {
		t.Errorf("WillTopic = %q", opts.WillTopic)
	}
	if !strings.Contains(string(opts.WillPayload), `"reason":"unexpected_disconnect"`) {
		t.Errorf("WillPayload = %s", opts.WillPayload)
	}
}

// fakeMessage implements pahomqtt.Message for handler tests.
type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type recordingLogger struct {
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (l *recordingLogger) Info(string, ...any) {}

func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

func TestWrapHandler(t *testing.T) {
	logger := &recordingLogger{}
	client := &Client{}
	client.SetLogger(logger)
	msg := fakeMessage{topic: "boardflow/user/action/card.moved", payload: []byte("{}")}

	t.Run("panic is recovered", func(t *testing.T) {
		client.wrapHandler(func(string, []byte) error { panic("boom") })(nil, msg)
		if len(logger.errors) != 1 {
			t.Errorf("errors logged = %d, want 1", len(logger.errors))
		}
	})

	t.Run("handler error is logged", func(t *testing.T) {
		client.wrapHandler(func(string, []byte) error { return errors.New("bad") })(nil, msg)
		if len(logger.warns) != 1 {
			t.Errorf("warnings logged = %d, want 1", len(logger.warns))
		}
	})

	t.Run("payload and topic are passed through", func(t *testing.T) {
		var gotTopic string
		client.wrapHandler(func(topic string, _ []byte) error {
			gotTopic = topic
			return nil
		})(nil, msg)
		if gotTopic != msg.topic {
			t.Errorf("topic = %q, want %q", gotTopic, msg.topic)
		}
	})
}

// =============================================================================
// Broker tests
// =============================================================================

func TestConnectAndClose(t *testing.T) {
	client := connectOrSkip(t, "boardflow-test-close")

	if !client.IsConnected() {
		t.Fatal("IsConnected() = false, want true")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
	if err := client.Publish("a/b", []byte("x"), 1, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() after Close error = %v, want ErrNotConnected", err)
	}
}

func TestHealthCheckCancelled(t *testing.T) {
	client := connectOrSkip(t, "boardflow-test-health")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := client.HealthCheck(ctx); err == nil {
		t.Error("HealthCheck() expected error for cancelled context")
	}
}

func TestUserActionRoundtrip(t *testing.T) {
	pub := connectOrSkip(t, "boardflow-test-pub")
	sub := connectOrSkip(t, "boardflow-test-sub")
	topics := sub.Topics()

	received := make(chan string, 1)
	err := sub.Subscribe(topics.AllUserActions(), 1, func(topic string, payload []byte) error {
		eventType, ok := topics.ActionType(topic)
		if !ok {
			return errors.New("unexpected topic " + topic)
		}
		received <- eventType + "=" + string(payload)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if !sub.HasSubscription(topics.AllUserActions()) || sub.SubscriptionCount() != 1 {
		t.Error("subscription not tracked")
	}

	time.Sleep(100 * time.Millisecond)

	if err := pub.PublishJSON(topics.UserAction("card.moved"), map[string]string{"id": "C1"}); err != nil {
		t.Fatalf("PublishJSON() error = %v", err)
	}

	select {
	case got := <-received:
		if got != `card.moved={"id":"C1"}` {
			t.Errorf("received %q", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for message")
	}

	if err := sub.Unsubscribe(topics.AllUserActions()); err != nil {
		t.Errorf("Unsubscribe() error = %v", err)
	}
	if sub.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d after Unsubscribe, want 0", sub.SubscriptionCount())
	}
}

func TestOnConnectCallback(t *testing.T) {
	client := connectOrSkip(t, "boardflow-test-callback")

	called := make(chan struct{}, 1)
	client.SetOnConnect(func() {
		select {
		case called <- struct{}{}:
		default:
		}
	})
	client.handleConnect()

	select {
	case <-called:
	case <-time.After(time.Second):
		t.Error("OnConnect callback not invoked")
	}
}
