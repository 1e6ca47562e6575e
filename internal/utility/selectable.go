package utility

import (
	"fmt"

	"github.com/AaronLay10/decisiongraph/internal/core"
)

// Selectable is a candidate chosen by a utility system or bucket.
type Selectable interface {
	core.Node
	Utility() float64
	Status() core.Status
	// ExecutionPriority reports whether the candidate claims the turn, ending
	// the enclosing selection early.
	ExecutionPriority() bool
	// FinishExecutionWhenActionFinishes reports whether the enclosing system
	// should finish once the candidate stops running.
	FinishExecutionWhenActionFinishes() bool
	evaluate() float64
	start()
	update() core.Status
	stop()
}

type selectableBase struct {
	core.NodeBase
	utility float64
	status  core.Status
}

func (s *selectableBase) Utility() float64         { return s.utility }
func (s *selectableBase) Status() core.Status      { return s.status }
func (s *selectableBase) ExecutionPriority() bool  { return false }
func (s *selectableBase) MaxInputConnections() int { return 1 }

func (s *selectableBase) BuildConnections(parents, children []core.Node) error { return nil }

// factorSlot is embedded by candidates driven by a single factor.
type factorSlot struct {
	selectableBase
	factor Factor
}

func (s *factorSlot) MaxOutputConnections() int { return 1 }

func (s *factorSlot) AcceptsChild(child core.Node) bool {
	_, ok := child.(Factor)
	return ok
}

func (s *factorSlot) BuildConnections(parents, children []core.Node) error {
	s.factor = nil
	if len(children) > 0 {
		s.factor = children[0].(Factor)
	}
	return nil
}

// Factor returns the factor driving the candidate's utility.
func (s *factorSlot) Factor() Factor { return s.factor }

func (s *factorSlot) evaluate() float64 {
	if s.factor == nil {
		s.utility = 0
	} else {
		s.utility = clamp01(s.factor.updateUtility())
	}
	return s.utility
}

func (s *factorSlot) validateFactor() error {
	if s.factor == nil {
		return core.NodeError(s, core.ErrMissingChild)
	}
	return nil
}

// UtilityAction runs Action while selected. When the action finishes it is
// restarted, unless FinishSystemOnComplete is set, in which case the
// enclosing system finishes with the action's result.
type UtilityAction struct {
	factorSlot
	Action                 core.Action
	FinishSystemOnComplete bool
}

func (a *UtilityAction) Validate() error {
	if err := a.validateFactor(); err != nil {
		return err
	}
	if a.Action == nil {
		return core.NodeError(a, core.ErrMissingAction)
	}
	return nil
}

func (a *UtilityAction) FinishExecutionWhenActionFinishes() bool { return a.FinishSystemOnComplete }

func (a *UtilityAction) start() {
	a.status = core.StatusRunning
	if a.Action != nil {
		a.Action.Start()
	}
}

func (a *UtilityAction) update() core.Status {
	if a.Action == nil {
		a.status = core.StatusError
		return a.status
	}
	if a.status != core.StatusRunning {
		return a.status
	}
	s := a.Action.Update()
	if s == core.StatusRunning || s == core.StatusError || a.FinishSystemOnComplete {
		a.status = s
		return s
	}
	a.Action.Stop()
	a.Action.Start()
	return s
}

func (a *UtilityAction) stop() {
	if a.status == core.StatusNone {
		return
	}
	if a.Action != nil {
		a.Action.Stop()
	}
	a.status = core.StatusNone
}

// UtilityExitNode finishes the enclosing system with ExitStatus when selected.
type UtilityExitNode struct {
	factorSlot
	ExitStatus core.Status
}

func (e *UtilityExitNode) SetDefaults() { e.ExitStatus = core.StatusSuccess }

func (e *UtilityExitNode) Validate() error {
	if err := e.validateFactor(); err != nil {
		return err
	}
	if !e.ExitStatus.IsFinished() {
		return core.NodeError(e, fmt.Errorf("%w: exit status %s", core.ErrInvalidParameter, e.ExitStatus))
	}
	return nil
}

func (e *UtilityExitNode) FinishExecutionWhenActionFinishes() bool { return true }

func (e *UtilityExitNode) start()              { e.status = core.StatusRunning }
func (e *UtilityExitNode) update() core.Status { e.status = e.ExitStatus; return e.status }
func (e *UtilityExitNode) stop()               { e.status = core.StatusNone }

// UtilityBucket groups candidates and runs the same selection over them. Its
// utility is that of its best child; above BucketThreshold it claims the
// enclosing selection.
type UtilityBucket struct {
	selectableBase
	selector
	BucketThreshold float64

	pending  Selectable
	priority bool
}

// Default bucket tuning.
const DefaultBucketThreshold = 0.3

func (b *UtilityBucket) SetDefaults() {
	b.selector.setDefaults()
	b.BucketThreshold = DefaultBucketThreshold
}

func (b *UtilityBucket) MaxOutputConnections() int { return core.Unbounded }

func (b *UtilityBucket) AcceptsChild(child core.Node) bool {
	_, ok := child.(Selectable)
	return ok
}

func (b *UtilityBucket) BuildConnections(parents, children []core.Node) error {
	b.candidates = b.candidates[:0]
	for _, c := range children {
		b.candidates = append(b.candidates, c.(Selectable))
	}
	if b.fallback != nil && !b.IsParentOf(b.fallback) {
		b.fallback = nil
	}
	return nil
}

// Candidates returns the bucket's children in declaration order.
func (b *UtilityBucket) Candidates() []Selectable { return b.candidates }

// Selected returns the child currently executing, if any.
func (b *UtilityBucket) Selected() Selectable { return b.current }

// SetDefaultCandidate designates the child chosen when every utility falls
// below the bucket's threshold.
func (b *UtilityBucket) SetDefaultCandidate(c Selectable) error {
	if !b.IsParentOf(c) {
		return core.NodeError(b, fmt.Errorf("%w: %s is not a child", core.ErrInvalidParameter, c.Base().Label()))
	}
	b.fallback = c
	return nil
}

func (b *UtilityBucket) Validate() error {
	if len(b.candidates) == 0 {
		return core.NodeError(b, core.ErrEmptyCandidates)
	}
	if err := b.checkTuning(); err != nil {
		return core.NodeError(b, err)
	}
	return nil
}

func (b *UtilityBucket) ExecutionPriority() bool { return b.priority }

func (b *UtilityBucket) FinishExecutionWhenActionFinishes() bool {
	return b.current != nil && b.current.FinishExecutionWhenActionFinishes()
}

func (b *UtilityBucket) evaluate() float64 {
	b.pending = b.choose()
	b.utility, b.priority = 0, false
	if b.pending != nil {
		b.utility = b.pending.Utility()
		b.priority = b.utility > b.BucketThreshold
	}
	return b.utility
}

func (b *UtilityBucket) start() {
	b.status = core.StatusRunning
	b.current = nil
}

func (b *UtilityBucket) update() core.Status {
	if b.pending == nil {
		b.evaluate()
	}
	if b.pending == nil {
		b.status = core.StatusError
		return b.status
	}
	b.switchTo(b.pending, b.Graph())
	b.pending = nil
	b.status = b.current.update()
	if (b.status == core.StatusSuccess || b.status == core.StatusFailure) && !b.current.FinishExecutionWhenActionFinishes() {
		b.status = core.StatusRunning
	}
	return b.status
}

func (b *UtilityBucket) stop() {
	b.release()
	b.pending = nil
	b.status = core.StatusNone
}
