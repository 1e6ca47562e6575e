// Package compose lets one graph run inside another as a leaf action, and
// exposes graph or node status as a perception.
package compose

import (
	"github.com/AaronLay10/decisiongraph/internal/core"
)

// EnterGraphAction runs an embedded graph as an Action. The embedded graph
// ticks once per Update of the action.
type EnterGraphAction struct {
	Graph core.Executable
	// ExecuteOnLoop restarts the embedded graph whenever it finishes instead of
	// reporting its result.
	ExecuteOnLoop bool
	// DontStopOnInterrupt skips stopping an embedded graph that has already
	// finished, so its final status stays visible to the parent after the
	// action is stopped. A graph still running is always stopped.
	DontStopOnInterrupt bool

	err error
}

// Enter wraps g with default options.
func Enter(g core.Executable) *EnterGraphAction {
	return &EnterGraphAction{Graph: g}
}

// Loop wraps g so that it restarts every time it finishes.
func Loop(g core.Executable) *EnterGraphAction {
	return &EnterGraphAction{Graph: g, ExecuteOnLoop: true}
}

// Err returns the error from the last failed Start of the embedded graph.
func (a *EnterGraphAction) Err() error { return a.err }

func (a *EnterGraphAction) Start() {
	a.err = nil
	if a.Graph == nil {
		return
	}
	a.err = a.Graph.Start()
}

func (a *EnterGraphAction) Update() core.Status {
	if a.Graph == nil || a.err != nil {
		return core.StatusError
	}
	a.Graph.Execute()
	s := a.Graph.Status()
	if s == core.StatusRunning {
		return s
	}
	if a.ExecuteOnLoop && s != core.StatusError {
		a.Graph.Stop()
		if a.err = a.Graph.Start(); a.err != nil {
			return core.StatusError
		}
		return core.StatusRunning
	}
	return s
}

func (a *EnterGraphAction) Stop() {
	if a.Graph == nil {
		return
	}
	if a.DontStopOnInterrupt && a.Graph.Status().IsFinished() {
		return
	}
	a.Graph.Stop()
}

// StatusSource is anything exposing a status: graphs, behaviour tree nodes,
// states and utility candidates.
type StatusSource interface {
	Status() core.Status
}

// StatusPerception is true while Target's status matches Flags.
type StatusPerception struct {
	Target StatusSource
	Flags  core.StatusFlags
}

// Finished is true once target succeeds or fails.
func Finished(target StatusSource) *StatusPerception {
	return &StatusPerception{Target: target, Flags: core.FlagFinished}
}

// Succeeded is true once target succeeds.
func Succeeded(target StatusSource) *StatusPerception {
	return &StatusPerception{Target: target, Flags: core.FlagSuccess}
}

// Failed is true once target fails.
func Failed(target StatusSource) *StatusPerception {
	return &StatusPerception{Target: target, Flags: core.FlagFailure}
}

func (p *StatusPerception) Start() {}
func (p *StatusPerception) Stop()  {}

func (p *StatusPerception) Check() bool {
	if p.Target == nil {
		return false
	}
	return p.Flags.Match(p.Target.Status())
}

var (
	_ core.Action     = (*EnterGraphAction)(nil)
	_ core.Perception = (*StatusPerception)(nil)
)
