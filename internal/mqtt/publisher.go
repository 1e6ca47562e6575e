package mqtt

import (
	"strings"
	"sync/atomic"

	"github.com/AaronLay10/decisiongraph/internal/events"
)

// Publishing is the part of Client the publisher needs.
type Publishing interface {
	Publish(topic string, payload []byte) error
	IsConnected() bool
}

// TracePublisher forwards trace events to <Topic>/<event name>. It
// implements events.Sink. Events emitted while disconnected are dropped.
type TracePublisher struct {
	Client Publishing
	Topic  string

	dropped atomic.Uint64
}

func NewTracePublisher(c Publishing, topic string) *TracePublisher {
	return &TracePublisher{Client: c, Topic: strings.TrimSuffix(topic, "/")}
}

func (p *TracePublisher) Append(e events.Event) error {
	if !p.Client.IsConnected() {
		p.dropped.Add(1)
		return nil
	}
	b, err := e.JSON()
	if err != nil {
		return err
	}
	return p.Client.Publish(p.Topic+"/"+e.Name, b)
}

// Dropped returns the number of events skipped while disconnected.
func (p *TracePublisher) Dropped() uint64 { return p.dropped.Load() }

var _ events.Sink = (*TracePublisher)(nil)
