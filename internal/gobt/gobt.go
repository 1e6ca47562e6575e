// Package gobt bridges decision graphs and github.com/joeycumines/go-behaviortree,
// in both directions.
package gobt

import (
	"errors"
	"fmt"
	"log/slog"

	bt "github.com/joeycumines/go-behaviortree"

	"github.com/AaronLay10/decisiongraph/internal/core"
)

// ErrGraphFault is returned from a tick whose graph finished with StatusError.
var ErrGraphFault = errors.New("graph finished with error status")

// ToStatus maps a go-behaviortree status onto core.Status.
func ToStatus(s bt.Status) core.Status {
	switch s {
	case bt.Running:
		return core.StatusRunning
	case bt.Success:
		return core.StatusSuccess
	case bt.Failure:
		return core.StatusFailure
	default:
		return core.StatusError
	}
}

// FromStatus maps a core.Status onto go-behaviortree. None and Error have no
// counterpart and map to Failure with an error.
func FromStatus(s core.Status) (bt.Status, error) {
	switch s {
	case core.StatusRunning:
		return bt.Running, nil
	case core.StatusSuccess:
		return bt.Success, nil
	case core.StatusFailure:
		return bt.Failure, nil
	case core.StatusError:
		return bt.Failure, ErrGraphFault
	default:
		return bt.Failure, fmt.Errorf("unexpected status %s", s)
	}
}

// NodeAction runs a go-behaviortree node as a core.Action, ticking it once per
// Update. Tick errors are logged and reported as StatusError.
type NodeAction struct {
	Node   bt.Node
	Logger *slog.Logger

	err error
}

func FromNode(n bt.Node) *NodeAction { return &NodeAction{Node: n} }

// Err returns the error of the last tick, if any.
func (a *NodeAction) Err() error { return a.err }

func (a *NodeAction) Start() { a.err = nil }
func (a *NodeAction) Stop()  {}

func (a *NodeAction) Update() core.Status {
	if a.Node == nil {
		return core.StatusError
	}
	s, err := a.Node.Tick()
	if err != nil {
		a.err = err
		a.logger().Warn("behaviour tree node failed", "error", err)
		return core.StatusError
	}
	return ToStatus(s)
}

func (a *NodeAction) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}

// ToNode exposes e as a go-behaviortree leaf. Each tick starts e if needed and
// executes it once; a finished graph is restarted on the following tick.
func ToNode(e core.Executable) bt.Node {
	return bt.New(func(children []bt.Node) (bt.Status, error) {
		if e.Status() != core.StatusRunning {
			if err := e.Start(); err != nil {
				return bt.Failure, err
			}
		}
		e.Execute()
		return FromStatus(e.Status())
	})
}

// ActionNode exposes a core.Action as a go-behaviortree leaf. The action is
// started on the first tick and stopped once it finishes.
func ActionNode(a core.Action) bt.Node {
	running := false
	return bt.New(func(children []bt.Node) (bt.Status, error) {
		if !running {
			a.Start()
			running = true
		}
		s := a.Update()
		if s != core.StatusRunning {
			a.Stop()
			running = false
		}
		return FromStatus(s)
	})
}

// PerceptionNode exposes a core.Perception as a go-behaviortree condition.
func PerceptionNode(p core.Perception) bt.Node {
	return bt.New(func(children []bt.Node) (bt.Status, error) {
		p.Start()
		ok := p.Check()
		p.Stop()
		if ok {
			return bt.Success, nil
		}
		return bt.Failure, nil
	})
}
