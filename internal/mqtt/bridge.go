package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/AaronLay10/decisiongraph/internal/blackboard"
	"github.com/AaronLay10/decisiongraph/internal/events"
)

// Broadcast addresses every attached board.
const Broadcast = "all"

// Subscribing is the part of Client the bridge needs.
type Subscribing interface {
	Subscribe(topic string, handler paho.MessageHandler) error
}

// SignalBridge writes broker messages into agent blackboards. Messages on
// <prefix>/<agent>/<key> set one key; a JSON object on <prefix>/<agent> sets
// each of its members. The agent "all" addresses every board.
type SignalBridge struct {
	prefix string
	bus    *events.Bus

	mu         sync.RWMutex
	boards     map[string]*blackboard.Blackboard
	subscribed bool
}

// NewSignalBridge creates a bridge for the given prefix. bus may be nil.
func NewSignalBridge(prefix string, bus *events.Bus) *SignalBridge {
	return &SignalBridge{
		prefix: strings.TrimSuffix(strings.TrimSuffix(prefix, "#"), "/"),
		bus:    bus,
		boards: make(map[string]*blackboard.Blackboard),
	}
}

// Attach routes signals for agent into board.
func (s *SignalBridge) Attach(agent string, board *blackboard.Blackboard) {
	s.mu.Lock()
	s.boards[agent] = board
	s.mu.Unlock()
}

// Agents returns the attached agent names, sorted.
func (s *SignalBridge) Agents() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.boards))
	for name := range s.boards {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Topic is the wildcard subscription covering every agent.
func (s *SignalBridge) Topic() string { return s.prefix + "/#" }

// Subscribe registers the bridge handler. It is idempotent until
// ClearSubscription is called, which a reconnect handler should do.
func (s *SignalBridge) Subscribe(c Subscribing) error {
	s.mu.Lock()
	if s.subscribed {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if err := c.Subscribe(s.Topic(), s.handle); err != nil {
		return err
	}

	s.mu.Lock()
	s.subscribed = true
	s.mu.Unlock()
	return nil
}

// ClearSubscription allows Subscribe to register again.
func (s *SignalBridge) ClearSubscription() {
	s.mu.Lock()
	s.subscribed = false
	s.mu.Unlock()
}

// IsSubscribed reports whether the handler is registered.
func (s *SignalBridge) IsSubscribed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.subscribed
}

func (s *SignalBridge) handle(_ paho.Client, msg paho.Message) {
	if err := s.Deliver(msg.Topic(), msg.Payload()); err != nil && s.bus != nil {
		s.bus.Emit("warning", "system.error", "signal rejected", map[string]any{
			"topic": msg.Topic(),
			"error": err.Error(),
		})
	}
}

var (
	ErrUnknownAgent = errors.New("unknown agent")
	ErrBadTopic     = errors.New("topic outside signal prefix")
)

// Deliver applies one message. It is what the subscription handler calls and
// may be used directly by hosts without a broker.
func (s *SignalBridge) Deliver(topic string, payload []byte) error {
	rest, ok := strings.CutPrefix(topic, s.prefix+"/")
	if !ok || rest == "" {
		return fmt.Errorf("%w: %s", ErrBadTopic, topic)
	}
	agent, key, _ := strings.Cut(rest, "/")

	values := map[string]any{}
	v := decode(payload)
	if key != "" {
		values[key] = v
	} else if obj, ok := v.(map[string]any); ok {
		values = obj
	} else {
		return fmt.Errorf("%w: %s needs a key or an object payload", ErrBadTopic, topic)
	}

	boards := s.targets(agent)
	if len(boards) == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownAgent, agent)
	}
	for _, b := range boards {
		for k, val := range values {
			b.Set(k, val)
		}
	}

	if s.bus != nil {
		keys := make([]string, 0, len(values))
		for k := range values {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		s.bus.Emit("info", "signal.received", "", map[string]any{
			"agent": agent,
			"topic": topic,
			"keys":  keys,
		})
	}
	return nil
}

func (s *SignalBridge) targets(agent string) []*blackboard.Blackboard {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if agent == Broadcast {
		out := make([]*blackboard.Blackboard, 0, len(s.boards))
		for _, b := range s.boards {
			out = append(out, b)
		}
		return out
	}
	if b, ok := s.boards[agent]; ok {
		return []*blackboard.Blackboard{b}
	}
	return nil
}

// decode parses the payload as JSON if possible, else keeps the raw string.
func decode(payload []byte) any {
	var v any
	if err := json.Unmarshal(payload, &v); err != nil {
		return string(payload)
	}
	return v
}
