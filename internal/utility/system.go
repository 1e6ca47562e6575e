// Package utility implements utility systems: candidates scored by factor
// graphs, with inertia, a fallback threshold and bucket locking.
package utility

import (
	"fmt"

	"github.com/AaronLay10/decisiongraph/internal/core"
)

// Default selection tuning.
const (
	DefaultInertia          = 1.3
	DefaultUtilityThreshold = 0
)

// selector is the best-candidate choice shared by System and UtilityBucket.
type selector struct {
	// Inertia multiplies the score of the current candidate before comparison.
	Inertia float64
	// UtilityThreshold is the best score below which the default candidate is chosen.
	UtilityThreshold float64

	candidates []Selectable
	fallback   Selectable
	current    Selectable
}

func (s *selector) setDefaults() {
	s.Inertia = DefaultInertia
	s.UtilityThreshold = DefaultUtilityThreshold
}

func (s *selector) checkTuning() error {
	if s.Inertia <= 0 {
		return fmt.Errorf("%w: inertia %v", core.ErrInvalidParameter, s.Inertia)
	}
	return nil
}

func (s *selector) defaultCandidate() Selectable {
	if s.fallback != nil {
		return s.fallback
	}
	if len(s.candidates) > 0 {
		return s.candidates[0]
	}
	return nil
}

// choose scores candidates in order and returns the one to execute. A
// candidate replaces the running best only with a strictly greater score, and
// one claiming execution priority ends the pass.
func (s *selector) choose() Selectable {
	// A bucket skipped by a locking candidate must not keep a choice from an
	// earlier pass.
	for _, c := range s.candidates {
		if b, ok := c.(*UtilityBucket); ok {
			b.pending = nil
		}
	}
	var best Selectable
	top := -1.0
	for _, c := range s.candidates {
		score := c.evaluate()
		if c == s.current {
			score *= s.Inertia
		}
		if score > top {
			top, best = score, c
			if c.ExecutionPriority() {
				break
			}
		}
	}
	if best == nil || top < s.UtilityThreshold {
		best = s.defaultCandidate()
	}
	return best
}

// switchTo makes next the current candidate, stopping the previous one.
func (s *selector) switchTo(next Selectable, g *core.Graph) {
	if next == s.current {
		return
	}
	if s.current != nil {
		s.current.stop()
	}
	s.current = next
	next.start()
	if g != nil && g.Tracing() {
		g.Trace("utility.selected", map[string]any{
			"candidate": next.Base().Label(),
			"utility":   next.Utility(),
		})
	}
}

func (s *selector) release() {
	if s.current != nil {
		s.current.stop()
		s.current = nil
	}
}

// System executes the best top-level candidate every tick.
type System struct {
	*core.Graph
	selector
}

// New creates an empty utility system. Systems reject loops and repeated connections.
func New(name string) *System {
	s := &System{}
	s.setDefaults()
	s.Graph = core.NewGraph(name, s, core.Policy{}, core.Hooks{
		Start:   s.enter,
		Execute: s.tick,
		Stop:    s.exit,
	})
	return s
}

// Candidates returns the top-level candidates resolved by the last Start.
func (s *System) Candidates() []Selectable { return s.candidates }

// Selected returns the candidate currently executing, if any.
func (s *System) Selected() Selectable { return s.current }

// SetDefaultCandidate designates the candidate chosen when every utility falls
// below UtilityThreshold. It must be a top-level candidate.
func (s *System) SetDefaultCandidate(c Selectable) error {
	if !s.Contains(c) || len(c.Base().Parents()) != 0 {
		return &core.ConfigError{Graph: s.Name(), Node: c.Base().Label(), Err: fmt.Errorf("%w: not a top-level candidate", core.ErrInvalidParameter)}
	}
	s.fallback = c
	return nil
}

func (s *System) enter() error {
	s.candidates = s.candidates[:0]
	for _, n := range s.Nodes() {
		if c, ok := n.(Selectable); ok && len(n.Base().Parents()) == 0 {
			s.candidates = append(s.candidates, c)
		}
	}
	if len(s.candidates) == 0 {
		return core.ErrEmptyCandidates
	}
	if s.fallback != nil && !s.Contains(s.fallback) {
		s.fallback = nil
	}
	if err := s.checkTuning(); err != nil {
		return err
	}
	s.current = nil
	return nil
}

func (s *System) tick() {
	best := s.choose()
	if best == nil {
		s.ReportError(core.ErrEmptyCandidates)
		s.Finish(core.StatusError)
		return
	}
	s.switchTo(best, s.Graph)
	st := s.current.update()
	if s.current.FinishExecutionWhenActionFinishes() && st != core.StatusRunning {
		s.Finish(st)
	}
}

func (s *System) exit() { s.release() }

// CreateConstantFactor adds a factor that always reports v.
func (s *System) CreateConstantFactor(name string, v float64) (*ConstantFactor, error) {
	f, err := core.CreateNode[ConstantFactor](s.Graph, name)
	if err != nil {
		return nil, err
	}
	f.Value = v
	return f, nil
}

// CreateVariableFactor adds a factor normalizing variable between lo and hi.
func (s *System) CreateVariableFactor(name string, variable func() float64, lo, hi float64) (*VariableFactor, error) {
	f, err := core.CreateNode[VariableFactor](s.Graph, name)
	if err != nil {
		return nil, err
	}
	f.Variable, f.Min, f.Max = variable, lo, hi
	return f, nil
}

// CreateFusionFactor adds a factor combining children with method.
func (s *System) CreateFusionFactor(name string, method FusionMethod, children ...Factor) (*FusionFactor, error) {
	f, err := core.CreateNode[FusionFactor](s.Graph, name)
	if err != nil {
		return nil, err
	}
	f.Method = method
	for _, c := range children {
		if _, err := s.Connect(f, c); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// CreateWeightedFactor adds a weighted-sum fusion; weights pair with children.
func (s *System) CreateWeightedFactor(name string, weights []float64, children ...Factor) (*FusionFactor, error) {
	f, err := s.CreateFusionFactor(name, FusionWeightedSum, children...)
	if err != nil {
		return nil, err
	}
	f.Weights = weights
	return f, nil
}

// CreateFunctionFactor adds a factor applying curve to child.
func (s *System) CreateFunctionFactor(name string, curve Curve, child Factor) (*FunctionFactor, error) {
	f, err := core.CreateNode[FunctionFactor](s.Graph, name)
	if err != nil {
		return nil, err
	}
	f.Curve = curve
	if child != nil {
		if _, err := s.Connect(f, child); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// CreateUtilityAction adds a candidate running action, scored by factor.
func (s *System) CreateUtilityAction(name string, factor Factor, action core.Action, finishOnComplete bool) (*UtilityAction, error) {
	a, err := core.CreateNode[UtilityAction](s.Graph, name)
	if err != nil {
		return nil, err
	}
	a.Action = action
	a.FinishSystemOnComplete = finishOnComplete
	if factor != nil {
		if _, err := s.Connect(a, factor); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// CreateUtilityExitNode adds a candidate that finishes the system with status.
func (s *System) CreateUtilityExitNode(name string, factor Factor, status core.Status) (*UtilityExitNode, error) {
	e, err := core.CreateNode[UtilityExitNode](s.Graph, name)
	if err != nil {
		return nil, err
	}
	e.ExitStatus = status
	if factor != nil {
		if _, err := s.Connect(e, factor); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// CreateBucket adds a bucket grouping children.
func (s *System) CreateBucket(name string, threshold float64, children ...Selectable) (*UtilityBucket, error) {
	b, err := core.CreateNode[UtilityBucket](s.Graph, name)
	if err != nil {
		return nil, err
	}
	b.BucketThreshold = threshold
	for _, c := range children {
		if _, err := s.Connect(b, c); err != nil {
			return nil, err
		}
	}
	return b, nil
}
