package mqtt

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/AaronLay10/decisiongraph/internal/blackboard"
	"github.com/AaronLay10/decisiongraph/internal/events"
)

// MockMQTTClient records subscriptions and publications.
type MockMQTTClient struct {
	mu            sync.Mutex
	subscriptions map[string]paho.MessageHandler
	published     map[string][][]byte
	connected     bool
	subscribeErr  error
}

func NewMockMQTTClient() *MockMQTTClient {
	return &MockMQTTClient{
		subscriptions: make(map[string]paho.MessageHandler),
		published:     make(map[string][][]byte),
		connected:     true,
	}
}

func (m *MockMQTTClient) Subscribe(topic string, handler paho.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subscribeErr != nil {
		return m.subscribeErr
	}
	m.subscriptions[topic] = handler
	return nil
}

func (m *MockMQTTClient) Publish(topic string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published[topic] = append(m.published[topic], payload)
	return nil
}

func (m *MockMQTTClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// SimulateMessage delivers payload through the handler subscribed to filter.
func (m *MockMQTTClient) SimulateMessage(filter, topic string, payload []byte) {
	m.mu.Lock()
	handler, ok := m.subscriptions[filter]
	m.mu.Unlock()
	if ok {
		handler(nil, &mockMessage{topic: topic, payload: payload})
	}
}

type mockMessage struct {
	topic   string
	payload []byte
}

func (m *mockMessage) Duplicate() bool   { return false }
func (m *mockMessage) Qos() byte         { return 1 }
func (m *mockMessage) Retained() bool    { return false }
func (m *mockMessage) Topic() string     { return m.topic }
func (m *mockMessage) MessageID() uint16 { return 0 }
func (m *mockMessage) Payload() []byte   { return m.payload }
func (m *mockMessage) Ack()              {}

func TestTracePublisherTopics(t *testing.T) {
	mock := NewMockMQTTClient()
	bus := events.NewBus(8)
	bus.AddSink(NewTracePublisher(mock, "sim/trace/"))

	bus.Emit("info", "state.entered", "", map[string]any{"state": "idle"})

	msgs := mock.published["sim/trace/state.entered"]
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message on sim/trace/state.entered, got %d (%v)", len(msgs), mock.published)
	}
	var e events.Event
	if err := json.Unmarshal(msgs[0], &e); err != nil {
		t.Fatalf("payload is not an event: %v", err)
	}
	if e.Fields["state"] != "idle" {
		t.Errorf("expected state 'idle', got %v", e.Fields["state"])
	}
}

func TestTracePublisherDropsWhileDisconnected(t *testing.T) {
	mock := NewMockMQTTClient()
	mock.connected = false
	p := NewTracePublisher(mock, "trace")

	if err := p.Append(events.Event{Name: "runner.tick"}); err != nil {
		t.Fatalf("expected no error while disconnected, got %v", err)
	}
	if p.Dropped() != 1 {
		t.Errorf("expected 1 dropped event, got %d", p.Dropped())
	}
	if len(mock.published) != 0 {
		t.Error("expected nothing published")
	}
}

func TestSignalBridgeKeyTopic(t *testing.T) {
	mock := NewMockMQTTClient()
	bus := events.NewBus(8)
	bridge := NewSignalBridge("sim/signals/#", bus)
	guard := blackboard.New()
	bridge.Attach("guard", guard)

	if err := bridge.Subscribe(mock); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if !bridge.IsSubscribed() {
		t.Error("expected bridge to be subscribed")
	}
	if _, ok := mock.subscriptions["sim/signals/#"]; !ok {
		t.Fatalf("expected wildcard subscription, got %v", mock.subscriptions)
	}

	mock.SimulateMessage("sim/signals/#", "sim/signals/guard/noise", []byte("0.75"))
	mock.SimulateMessage("sim/signals/#", "sim/signals/guard/alarm", []byte("true"))
	mock.SimulateMessage("sim/signals/#", "sim/signals/guard/intruder", []byte("fox"))

	if v := guard.FloatOr("noise", 0); v != 0.75 {
		t.Errorf("expected noise 0.75, got %v", v)
	}
	if !guard.Bool("alarm") {
		t.Error("expected alarm to be true")
	}
	if v, _ := guard.Get("intruder").(string); v != "fox" {
		t.Errorf("expected raw string payload 'fox', got %v", guard.Get("intruder"))
	}

	var received int
	for _, e := range bus.Snapshot() {
		if e.Name == "signal.received" {
			received++
		}
	}
	if received != 3 {
		t.Errorf("expected 3 signal.received events, got %d", received)
	}
}

func TestSignalBridgeObjectAndBroadcast(t *testing.T) {
	bridge := NewSignalBridge("signals", nil)
	a, b := blackboard.New(), blackboard.New()
	bridge.Attach("a", a)
	bridge.Attach("b", b)

	if err := bridge.Deliver("signals/a", []byte(`{"hunger": 0.5, "tired": false}`)); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if a.FloatOr("hunger", 0) != 0.5 || !a.Has("tired") {
		t.Errorf("expected object members on board a, got %v", a.Snapshot())
	}
	if b.Len() != 0 {
		t.Error("board b must not receive signals for a")
	}

	if err := bridge.Deliver("signals/all/daylight", []byte("1")); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if a.FloatOr("daylight", 0) != 1 || b.FloatOr("daylight", 0) != 1 {
		t.Error("expected broadcast to reach every board")
	}
	if got := bridge.Agents(); len(got) != 2 || got[0] != "a" {
		t.Errorf("unexpected agents %v", got)
	}
}

func TestSignalBridgeRejects(t *testing.T) {
	bridge := NewSignalBridge("signals", nil)
	bridge.Attach("a", blackboard.New())

	if err := bridge.Deliver("other/a/x", []byte("1")); !errors.Is(err, ErrBadTopic) {
		t.Errorf("expected ErrBadTopic, got %v", err)
	}
	if err := bridge.Deliver("signals/a", []byte("1")); !errors.Is(err, ErrBadTopic) {
		t.Errorf("expected ErrBadTopic for scalar without key, got %v", err)
	}
	if err := bridge.Deliver("signals/ghost/x", []byte("1")); !errors.Is(err, ErrUnknownAgent) {
		t.Errorf("expected ErrUnknownAgent, got %v", err)
	}
}

func TestSignalBridgeSubscribeIdempotent(t *testing.T) {
	mock := NewMockMQTTClient()
	bridge := NewSignalBridge("signals", nil)

	mock.subscribeErr = &TimeoutError{Op: "subscribe", Topic: bridge.Topic()}
	if err := bridge.Subscribe(mock); err == nil {
		t.Fatal("expected subscribe error")
	}
	if bridge.IsSubscribed() {
		t.Error("failed subscribe must not mark the bridge subscribed")
	}

	mock.subscribeErr = nil
	if err := bridge.Subscribe(mock); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	delete(mock.subscriptions, bridge.Topic())
	if err := bridge.Subscribe(mock); err != nil {
		t.Fatalf("second subscribe: %v", err)
	}
	if len(mock.subscriptions) != 0 {
		t.Error("expected second subscribe to be a no-op")
	}

	bridge.ClearSubscription()
	if err := bridge.Subscribe(mock); err != nil {
		t.Fatalf("resubscribe: %v", err)
	}
	if len(mock.subscriptions) != 1 {
		t.Error("expected resubscribe after ClearSubscription")
	}
}

func TestTimeoutErrors(t *testing.T) {
	if (&TimeoutError{Op: "connect"}).Error() != "mqtt connect timeout" {
		t.Error("unexpected connect timeout message")
	}
	if (&TimeoutError{Op: "publish", Topic: "x"}).Error() != "mqtt publish timeout: x" {
		t.Error("unexpected publish timeout message")
	}
}

func TestNewClientDefaults(t *testing.T) {
	c := NewClient(Options{ClientID: "test"})
	if c.BrokerURL() != DefaultBrokerURL {
		t.Errorf("expected default broker, got %s", c.BrokerURL())
	}
	if c.IsConnected() {
		t.Error("new client must not be connected")
	}
}
