package fsm

import "github.com/AaronLay10/decisiongraph/internal/core"

// StackFSM is a state machine that remembers where push transitions came
// from, so a pop transition or comeback state can return to the caller.
type StackFSM struct {
	*FSM
	history []StateNode
}

func NewStack(name string) *StackFSM {
	s := &StackFSM{FSM: &FSM{}}
	s.FSM.init(name, s)
	s.onTrigger = s.record
	s.onEnter = func() { s.history = s.history[:0] }
	return s
}

func (s *StackFSM) machine() *FSM { return s.FSM }

// Depth returns the number of states waiting to be returned to.
func (s *StackFSM) Depth() int { return len(s.history) }

func (s *StackFSM) record(t TransitionNode) {
	if p, ok := t.(*PushTransition); ok {
		s.history = append(s.history, p.source)
	}
}

func (s *StackFSM) pop() StateNode {
	if len(s.history) == 0 {
		return nil
	}
	top := s.history[len(s.history)-1]
	s.history = s.history[:len(s.history)-1]
	return top
}

// CreatePushTransition adds a transition that records from before switching to to.
func (s *StackFSM) CreatePushTransition(name string, from, to StateNode, p core.Perception) (*PushTransition, error) {
	t, err := core.CreateNode[PushTransition](s.Graph, name)
	if err != nil {
		return nil, err
	}
	t.Perception = p
	if err := s.link(t, from, to); err != nil {
		return nil, err
	}
	return t, nil
}

// CreatePopTransition adds a transition that returns to the most recently pushed state.
func (s *StackFSM) CreatePopTransition(name string, from StateNode, p core.Perception) (*PopTransition, error) {
	t, err := core.CreateNode[PopTransition](s.Graph, name)
	if err != nil {
		return nil, err
	}
	t.Perception = p
	if err := s.link(t, from, nil); err != nil {
		return nil, err
	}
	return t, nil
}

// CreateComebackState adds a state whose action returns to the most recently
// pushed state on its first tick. It fails when the history is empty.
func (s *StackFSM) CreateComebackState(name string) (*State, error) {
	return s.CreateState(name, &comebackAction{stack: s})
}

// PushTransition records its source state on the stack before switching.
type PushTransition struct{ Transition }

func (t *PushTransition) Perform() bool {
	m, ok := t.ready()
	if !ok || t.target == nil {
		return false
	}
	t.fire(m, t)
	m.switchTo(t.target)
	return true
}

// PopTransition switches back to the state on top of the stack.
type PopTransition struct{ Transition }

func (t *PopTransition) MaxOutputConnections() int { return 0 }

func (t *PopTransition) Validate() error {
	if t.source == nil {
		return core.NodeError(t, core.ErrInvalidParameter)
	}
	if _, ok := t.Graph().Owner().(*StackFSM); !ok {
		return core.NodeError(t, core.ErrInvalidParameter)
	}
	return nil
}

func (t *PopTransition) Perform() bool {
	m, ok := t.ready()
	if !ok {
		return false
	}
	stack, ok := t.Graph().Owner().(*StackFSM)
	if !ok || stack.Depth() == 0 {
		return false
	}
	t.fire(m, t)
	m.switchTo(stack.pop())
	return true
}

type comebackAction struct {
	stack *StackFSM
}

func (a *comebackAction) Start() {}
func (a *comebackAction) Stop()  {}

func (a *comebackAction) Update() core.Status {
	prev := a.stack.pop()
	if prev == nil {
		return core.StatusFailure
	}
	a.stack.switchTo(prev)
	return core.StatusSuccess
}
