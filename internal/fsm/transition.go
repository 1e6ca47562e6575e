package fsm

import (
	"fmt"

	"github.com/AaronLay10/decisiongraph/internal/core"
)

// TransitionNode is implemented by Transition and the types embedding it.
type TransitionNode interface {
	core.Node
	transition() *Transition
	// Perform fires the transition. It reports false, doing nothing, when the
	// machine is not in the transition's source state.
	Perform() bool
}

// Transition moves the machine from its source state to its target. Pulled
// transitions are polled by the source state; others only fire through Perform.
type Transition struct {
	core.NodeBase
	Perception core.Perception
	Action     core.Action
	// Flags restricts firing to source state statuses it matches.
	Flags  core.StatusFlags
	Pulled bool

	source StateNode
	target StateNode
}

func (t *Transition) SetDefaults() {
	t.Flags = core.FlagActive
	t.Pulled = true
}

func (t *Transition) transition() *Transition { return t }

func (t *Transition) Source() StateNode { return t.source }
func (t *Transition) Target() StateNode { return t.target }

func (t *Transition) MaxInputConnections() int  { return 1 }
func (t *Transition) MaxOutputConnections() int { return 1 }

func (t *Transition) AcceptsChild(child core.Node) bool {
	_, ok := child.(StateNode)
	return ok
}

func (t *Transition) BuildConnections(parents, children []core.Node) error {
	t.source, t.target = nil, nil
	if len(parents) > 0 {
		s, ok := parents[0].(StateNode)
		if !ok {
			return core.NodeError(t, fmt.Errorf("%w: source %T", core.ErrChildType, parents[0]))
		}
		t.source = s
	}
	if len(children) > 0 {
		t.target = children[0].(StateNode)
	}
	return nil
}

func (t *Transition) Validate() error {
	if t.source == nil {
		return core.NodeError(t, fmt.Errorf("%w: no source state", core.ErrInvalidParameter))
	}
	if t.target == nil {
		return core.NodeError(t, core.ErrMissingChild)
	}
	return nil
}

// Check reports whether the transition would fire from its source's current status.
func (t *Transition) Check() bool {
	if t.source == nil || !t.Flags.Match(t.source.Status()) {
		return false
	}
	return t.Perception == nil || t.Perception.Check()
}

func (t *Transition) startPerception() {
	if t.Pulled && t.Perception != nil {
		t.Perception.Start()
	}
}

func (t *Transition) stopPerception() {
	if t.Pulled && t.Perception != nil {
		t.Perception.Stop()
	}
}

// ready returns the machine when t may fire from its current state.
func (t *Transition) ready() (*FSM, bool) {
	m := machineOf(t)
	if m == nil || !m.IsRunning() || m.current == nil || t.source == nil {
		return nil, false
	}
	if m.current.fsmState() != t.source.fsmState() {
		return nil, false
	}
	return m, true
}

// fire runs the transition action once and notifies the machine.
func (t *Transition) fire(m *FSM, self TransitionNode) {
	if t.Action != nil {
		t.Action.Start()
		t.Action.Update()
		t.Action.Stop()
	}
	m.triggered(self)
}

func (t *Transition) Perform() bool {
	m, ok := t.ready()
	if !ok || t.target == nil {
		return false
	}
	t.fire(m, t)
	m.switchTo(t.target)
	return true
}

// ExitTransition finishes the machine with ExitStatus.
type ExitTransition struct {
	Transition
	ExitStatus core.Status
}

func (t *ExitTransition) SetDefaults() {
	t.Transition.SetDefaults()
	t.ExitStatus = core.StatusSuccess
}

func (t *ExitTransition) MaxOutputConnections() int { return 0 }

func (t *ExitTransition) Validate() error {
	if t.source == nil {
		return core.NodeError(t, fmt.Errorf("%w: no source state", core.ErrInvalidParameter))
	}
	if !t.ExitStatus.IsFinished() {
		return core.NodeError(t, fmt.Errorf("%w: exit status %s", core.ErrInvalidParameter, t.ExitStatus))
	}
	return nil
}

func (t *ExitTransition) Perform() bool {
	m, ok := t.ready()
	if !ok {
		return false
	}
	t.fire(m, t)
	m.Finish(t.ExitStatus)
	return true
}
