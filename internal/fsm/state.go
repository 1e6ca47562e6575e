package fsm

import (
	"fmt"

	"github.com/AaronLay10/decisiongraph/internal/core"
)

// StateNode is implemented by State and the types embedding it.
type StateNode interface {
	core.Node
	Status() core.Status
	fsmState() *State
	enter()
	update()
	exit()
}

// State runs an optional Action and polls its pulled transitions in
// declaration order every tick. The first one that matches fires.
type State struct {
	core.NodeBase
	Action core.Action

	status      core.Status
	transitions []TransitionNode
}

func (s *State) fsmState() *State { return s }

// Status is Running after entry, then the result of the action once it finishes.
func (s *State) Status() core.Status { return s.status }

// Transitions returns the outgoing transitions in declaration order.
func (s *State) Transitions() []TransitionNode { return s.transitions }

func (s *State) MaxInputConnections() int  { return core.Unbounded }
func (s *State) MaxOutputConnections() int { return core.Unbounded }

func (s *State) AcceptsChild(child core.Node) bool {
	_, ok := child.(TransitionNode)
	return ok
}

func (s *State) BuildConnections(parents, children []core.Node) error {
	s.transitions = s.transitions[:0]
	for _, c := range children {
		t, ok := c.(TransitionNode)
		if !ok {
			return core.NodeError(s, fmt.Errorf("%w: %T", core.ErrChildType, c))
		}
		s.transitions = append(s.transitions, t)
	}
	return nil
}

func (s *State) enter() {
	s.status = core.StatusRunning
	if s.Action != nil {
		s.Action.Start()
	}
	for _, t := range s.transitions {
		t.transition().startPerception()
	}
}

// runAction updates the action while it is running. It reports false when the
// action switched the machine away from this state.
func (s *State) runAction() bool {
	if s.Action != nil && s.status == core.StatusRunning {
		st := s.Action.Update()
		if !s.isCurrent() {
			return false
		}
		s.status = st
	}
	return s.isCurrent()
}

func (s *State) isCurrent() bool {
	m := machineOf(s)
	return m != nil && m.current != nil && m.current.fsmState() == s
}

func (s *State) update() {
	if !s.runAction() {
		return
	}
	for _, t := range s.transitions {
		if t.transition().Pulled && t.transition().Check() && t.Perform() {
			return
		}
	}
}

func (s *State) exit() {
	for _, t := range s.transitions {
		t.transition().stopPerception()
	}
	if s.Action != nil {
		s.Action.Stop()
	}
	s.status = core.StatusNone
}

// ProbabilisticState draws one weighted transition per tick. Weights summing
// below one leave the remainder as the chance of no weighted transition.
// Unweighted transitions are checked in order when no weighted one fires.
type ProbabilisticState struct {
	State
	weights map[TransitionNode]float64
}

// SetProbability assigns a weight to one of the state's transitions.
func (s *ProbabilisticState) SetProbability(t TransitionNode, weight float64) error {
	if weight < 0 {
		return core.NodeError(s, fmt.Errorf("%w: negative probability %v", core.ErrInvalidParameter, weight))
	}
	if !s.IsParentOf(t) {
		return core.NodeError(s, fmt.Errorf("%w: %s is not an outgoing transition", core.ErrInvalidParameter, t.Base().Label()))
	}
	if s.weights == nil {
		s.weights = make(map[TransitionNode]float64)
	}
	s.weights[t] = weight
	return nil
}

// Probability returns the weight assigned to t, or zero.
func (s *ProbabilisticState) Probability(t TransitionNode) float64 { return s.weights[t] }

func (s *ProbabilisticState) update() {
	if !s.runAction() {
		return
	}
	var sum float64
	for _, t := range s.transitions {
		sum += s.weights[t]
	}
	if sum > 0 {
		r := s.Graph().Rand().Float64() * max(sum, 1)
		var acc float64
		for _, t := range s.transitions {
			w, ok := s.weights[t]
			if !ok || w == 0 {
				continue
			}
			acc += w
			if r < acc {
				if t.transition().Pulled && t.transition().Check() && t.Perform() {
					return
				}
				break
			}
		}
	}
	for _, t := range s.transitions {
		if _, weighted := s.weights[t]; weighted {
			continue
		}
		if t.transition().Pulled && t.transition().Check() && t.Perform() {
			return
		}
	}
}
