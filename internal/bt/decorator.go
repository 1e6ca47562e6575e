package bt

import (
	"fmt"
	"time"

	"github.com/AaronLay10/decisiongraph/internal/core"
)

type decorator struct {
	nodeBase
	child Node
}

func (d *decorator) MaxOutputConnections() int { return 1 }

func (d *decorator) BuildConnections(parents, children []core.Node) error {
	d.child = nil
	if len(children) > 0 {
		d.child = children[0].(Node)
	}
	return nil
}

// Child returns the decorated node, or nil when none is connected.
func (d *decorator) Child() Node { return d.child }

func (d *decorator) Validate() error {
	if d.child == nil {
		return core.NodeError(d, core.ErrMissingChild)
	}
	return nil
}

func (d *decorator) startChild() {
	if d.child != nil {
		startNode(d.child)
	}
}

func (d *decorator) updateChild() core.Status {
	if d.child == nil {
		return core.StatusError
	}
	return updateNode(d.child)
}

func (d *decorator) stopChild() {
	if d.child != nil {
		stopNode(d.child)
	}
}

func (d *decorator) restartChild() {
	if d.child != nil {
		restartNode(d.child)
	}
}

// InverterNode swaps Success and Failure.
type InverterNode struct{ decorator }

func (n *InverterNode) onStart()              { n.startChild() }
func (n *InverterNode) onUpdate() core.Status { return n.updateChild().Inverted() }
func (n *InverterNode) onStop()               { n.stopChild() }

// SucceederNode turns Failure into Success.
type SucceederNode struct{ decorator }

func (n *SucceederNode) onStart() { n.startChild() }
func (n *SucceederNode) onUpdate() core.Status {
	if s := n.updateChild(); s != core.StatusFailure {
		return s
	}
	return core.StatusSuccess
}
func (n *SucceederNode) onStop() { n.stopChild() }

// FailerNode turns Success into Failure.
type FailerNode struct{ decorator }

func (n *FailerNode) onStart() { n.startChild() }
func (n *FailerNode) onUpdate() core.Status {
	if s := n.updateChild(); s != core.StatusSuccess {
		return s
	}
	return core.StatusFailure
}
func (n *FailerNode) onStop() { n.stopChild() }

// LoopUntilNode restarts its child until it finishes with TargetStatus or
// MaxIterations runs have completed. MaxIterations of core.Unbounded loops forever.
type LoopUntilNode struct {
	decorator
	TargetStatus  core.Status
	MaxIterations int

	iterations int
}

func (n *LoopUntilNode) SetDefaults() {
	n.TargetStatus = core.StatusSuccess
	n.MaxIterations = core.Unbounded
}

func (n *LoopUntilNode) Validate() error {
	if err := n.decorator.Validate(); err != nil {
		return err
	}
	if n.TargetStatus != core.StatusSuccess && n.TargetStatus != core.StatusFailure {
		return core.NodeError(n, fmt.Errorf("%w: target status %s", core.ErrInvalidParameter, n.TargetStatus))
	}
	if n.MaxIterations != core.Unbounded && n.MaxIterations < 1 {
		return core.NodeError(n, fmt.Errorf("%w: max iterations %d", core.ErrInvalidParameter, n.MaxIterations))
	}
	return nil
}

// Iterations returns the number of child runs completed since the node started.
func (n *LoopUntilNode) Iterations() int { return n.iterations }

func (n *LoopUntilNode) onStart() {
	n.iterations = 0
	n.startChild()
}

func (n *LoopUntilNode) onUpdate() core.Status {
	s := n.updateChild()
	if !s.IsFinished() || s == core.StatusError {
		return s
	}
	n.iterations++
	if s == n.TargetStatus {
		return s
	}
	if n.MaxIterations != core.Unbounded && n.iterations >= n.MaxIterations {
		return s
	}
	n.restartChild()
	return core.StatusRunning
}

func (n *LoopUntilNode) onStop() { n.stopChild() }

// IteratorNode runs its child Iterations times regardless of the result and
// reports the result of the last run.
type IteratorNode struct {
	decorator
	Iterations int

	count int
}

func (n *IteratorNode) SetDefaults() { n.Iterations = 1 }

func (n *IteratorNode) Validate() error {
	if err := n.decorator.Validate(); err != nil {
		return err
	}
	if n.Iterations < 1 {
		return core.NodeError(n, fmt.Errorf("%w: iterations %d", core.ErrInvalidParameter, n.Iterations))
	}
	return nil
}

func (n *IteratorNode) onStart() {
	n.count = 0
	n.startChild()
}

func (n *IteratorNode) onUpdate() core.Status {
	s := n.updateChild()
	if !s.IsFinished() || s == core.StatusError {
		return s
	}
	n.count++
	if n.count >= n.Iterations {
		return s
	}
	n.restartChild()
	return core.StatusRunning
}

func (n *IteratorNode) onStop() { n.stopChild() }

// TimerNode waits Duration on the graph clock before starting its child.
type TimerNode struct {
	decorator
	Duration time.Duration

	startedAt    time.Time
	childStarted bool
}

func (n *TimerNode) Validate() error {
	if err := n.decorator.Validate(); err != nil {
		return err
	}
	if n.Duration < 0 {
		return core.NodeError(n, fmt.Errorf("%w: negative duration", core.ErrInvalidParameter))
	}
	return nil
}

func (n *TimerNode) onStart() {
	n.startedAt = n.Graph().Clock().Now()
	n.childStarted = false
}

func (n *TimerNode) onUpdate() core.Status {
	if !n.childStarted {
		if n.Graph().Clock().Now().Sub(n.startedAt) < n.Duration {
			return core.StatusRunning
		}
		n.startChild()
		n.childStarted = true
	}
	return n.updateChild()
}

func (n *TimerNode) onStop() {
	if n.childStarted {
		n.stopChild()
		n.childStarted = false
	}
}

// ConditionNode checks Perception once when started. When it is false the
// node fails without starting the child.
type ConditionNode struct {
	decorator
	Perception core.Perception

	passed bool
}

func (n *ConditionNode) Validate() error {
	if err := n.decorator.Validate(); err != nil {
		return err
	}
	if n.Perception == nil {
		return core.NodeError(n, core.ErrMissingPerception)
	}
	return nil
}

func (n *ConditionNode) onStart() {
	n.passed = false
	if n.Perception == nil {
		return
	}
	n.Perception.Start()
	n.passed = n.Perception.Check()
	n.Perception.Stop()
	if n.passed {
		n.startChild()
	}
}

func (n *ConditionNode) onUpdate() core.Status {
	if n.Perception == nil {
		return core.StatusError
	}
	if !n.passed {
		return core.StatusFailure
	}
	return n.updateChild()
}

func (n *ConditionNode) onStop() {
	if n.passed {
		n.stopChild()
		n.passed = false
	}
}

// SwitchNode checks Perception every tick, running the child while it holds
// and stopping it when it no longer does.
type SwitchNode struct {
	decorator
	Perception core.Perception

	active bool
}

func (n *SwitchNode) Validate() error {
	if err := n.decorator.Validate(); err != nil {
		return err
	}
	if n.Perception == nil {
		return core.NodeError(n, core.ErrMissingPerception)
	}
	return nil
}

func (n *SwitchNode) onStart() {
	n.active = false
	if n.Perception != nil {
		n.Perception.Start()
	}
}

func (n *SwitchNode) onUpdate() core.Status {
	if n.Perception == nil {
		return core.StatusError
	}
	on := n.Perception.Check()
	switch {
	case on && !n.active:
		n.startChild()
		n.active = true
	case !on && n.active:
		n.stopChild()
		n.active = false
	}
	if !n.active {
		return core.StatusRunning
	}
	return n.updateChild()
}

func (n *SwitchNode) onStop() {
	if n.active {
		n.stopChild()
		n.active = false
	}
	if n.Perception != nil {
		n.Perception.Stop()
	}
}
