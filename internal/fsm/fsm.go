// Package fsm implements finite state machines on top of the core graph model.
// States and transitions are both nodes: State -> Transition -> State.
package fsm

import (
	"github.com/AaronLay10/decisiongraph/internal/core"
)

// FSM runs its current state once per tick. Transitions switch the current
// state; exit transitions finish the machine.
type FSM struct {
	*core.Graph
	current StateNode

	// onTrigger is called after a transition's action and before the switch.
	onTrigger func(TransitionNode)
	onEnter   func()
}

type machineOwner interface {
	machine() *FSM
}

func (f *FSM) machine() *FSM { return f }

// New creates an empty state machine. Loops and repeated connections are allowed.
func New(name string) *FSM {
	f := &FSM{}
	f.init(name, f)
	return f
}

func (f *FSM) init(name string, owner machineOwner) {
	f.Graph = core.NewGraph(name, owner, core.Policy{CanRepeatConnection: true, CanCreateLoops: true}, core.Hooks{
		Start:   f.enter,
		Execute: f.tick,
		Stop:    f.exit,
	})
}

// machineOf resolves the state machine a node belongs to.
func machineOf(n core.Node) *FSM {
	g := n.Base().Graph()
	if g == nil {
		return nil
	}
	if o, ok := g.Owner().(machineOwner); ok {
		return o.machine()
	}
	return nil
}

// CurrentState returns the active state, or nil when the machine is not running.
func (f *FSM) CurrentState() StateNode { return f.current }

func (f *FSM) entryState() StateNode {
	if s, ok := f.ExplicitStartNode().(StateNode); ok {
		return s
	}
	for _, n := range f.Nodes() {
		if s, ok := n.(StateNode); ok {
			return s
		}
	}
	return nil
}

func (f *FSM) enter() error {
	if f.onEnter != nil {
		f.onEnter()
	}
	entry := f.entryState()
	if entry == nil {
		return core.ErrNoStartNode
	}
	f.switchTo(entry)
	return nil
}

func (f *FSM) tick() {
	if f.current == nil {
		f.ReportError(core.ErrNoStartNode)
		f.Finish(core.StatusError)
		return
	}
	f.current.update()
}

func (f *FSM) exit() {
	if f.current != nil {
		f.current.exit()
		f.current = nil
	}
}

// SetCurrentState forces a switch to s without firing a transition. It is a
// no-op unless the machine is running and s belongs to it.
func (f *FSM) SetCurrentState(s StateNode) bool {
	if !f.IsRunning() || !f.Contains(s) {
		return false
	}
	f.switchTo(s)
	return true
}

func (f *FSM) switchTo(next StateNode) {
	if f.current != nil {
		f.current.exit()
	}
	f.current = next
	next.enter()
	if f.Tracing() {
		f.Trace("state.entered", map[string]any{"state": next.Base().Label()})
	}
}

func (f *FSM) triggered(t TransitionNode) {
	if f.Tracing() {
		f.Trace("transition.fired", map[string]any{"transition": t.Base().Label()})
	}
	if f.onTrigger != nil {
		f.onTrigger(t)
	}
}

// CreateState adds a state running action, which may be nil.
func (f *FSM) CreateState(name string, action core.Action) (*State, error) {
	s, err := core.CreateNode[State](f.Graph, name)
	if err != nil {
		return nil, err
	}
	s.Action = action
	return s, nil
}

// CreateProbabilisticState adds a state that picks among its weighted
// transitions at random.
func (f *FSM) CreateProbabilisticState(name string, action core.Action) (*ProbabilisticState, error) {
	s, err := core.CreateNode[ProbabilisticState](f.Graph, name)
	if err != nil {
		return nil, err
	}
	s.Action = action
	return s, nil
}

// CreateTransition connects from to to through a new transition guarded by p.
// A nil perception always fires.
func (f *FSM) CreateTransition(name string, from, to StateNode, p core.Perception) (*Transition, error) {
	t, err := core.CreateNode[Transition](f.Graph, name)
	if err != nil {
		return nil, err
	}
	t.Perception = p
	if err := f.link(t, from, to); err != nil {
		return nil, err
	}
	return t, nil
}

// CreateExitTransition adds a transition that finishes the machine with status.
func (f *FSM) CreateExitTransition(name string, from StateNode, status core.Status, p core.Perception) (*ExitTransition, error) {
	t, err := core.CreateNode[ExitTransition](f.Graph, name)
	if err != nil {
		return nil, err
	}
	t.Perception = p
	t.ExitStatus = status
	if err := f.link(t, from, nil); err != nil {
		return nil, err
	}
	return t, nil
}

func (f *FSM) link(t TransitionNode, from, to StateNode) error {
	if from != nil {
		if _, err := f.Connect(from, t); err != nil {
			return err
		}
	}
	if to != nil {
		if _, err := f.Connect(t, to); err != nil {
			return err
		}
	}
	return nil
}
