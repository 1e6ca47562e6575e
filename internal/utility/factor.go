package utility

import (
	"fmt"

	"github.com/AaronLay10/decisiongraph/internal/core"
)

// Factor is a node computing a utility in [0,1], usually from child factors.
type Factor interface {
	core.Node
	Utility() float64
	updateUtility() float64
}

type factorBase struct {
	core.NodeBase
	utility float64
}

// Utility returns the value computed on the last update.
func (f *factorBase) Utility() float64 { return f.utility }

func (f *factorBase) MaxInputConnections() int  { return core.Unbounded }
func (f *factorBase) MaxOutputConnections() int { return core.Unbounded }

func (f *factorBase) AcceptsChild(child core.Node) bool {
	_, ok := child.(Factor)
	return ok
}

func (f *factorBase) BuildConnections(parents, children []core.Node) error { return nil }

func (f *factorBase) set(v float64) float64 {
	f.utility = clamp01(v)
	return f.utility
}

func factorsOf(children []core.Node) []Factor {
	out := make([]Factor, 0, len(children))
	for _, c := range children {
		out = append(out, c.(Factor))
	}
	return out
}

// ConstantFactor always reports Value.
type ConstantFactor struct {
	factorBase
	Value float64
}

func (f *ConstantFactor) MaxOutputConnections() int { return 0 }
func (f *ConstantFactor) updateUtility() float64    { return f.set(f.Value) }

// VariableFactor samples Variable and normalizes it between Min and Max.
type VariableFactor struct {
	factorBase
	Variable func() float64
	Min, Max float64
}

func (f *VariableFactor) SetDefaults() { f.Max = 1 }

func (f *VariableFactor) MaxOutputConnections() int { return 0 }

func (f *VariableFactor) Validate() error {
	if f.Variable == nil {
		return core.NodeError(f, fmt.Errorf("%w: no variable", core.ErrInvalidParameter))
	}
	return nil
}

func (f *VariableFactor) updateUtility() float64 {
	if f.Variable == nil {
		return f.set(0)
	}
	v := f.Variable()
	if f.Max == f.Min {
		if v >= f.Max {
			return f.set(1)
		}
		return f.set(0)
	}
	return f.set((v - f.Min) / (f.Max - f.Min))
}

// FusionMethod selects how a FusionFactor combines its children.
type FusionMethod int

const (
	FusionMax FusionMethod = iota
	FusionMin
	FusionWeightedSum
	FusionCustom
)

func (m FusionMethod) String() string {
	switch m {
	case FusionMax:
		return "max"
	case FusionMin:
		return "min"
	case FusionWeightedSum:
		return "weighted_sum"
	case FusionCustom:
		return "custom"
	default:
		return "unknown"
	}
}

// FusionFactor combines the utilities of its children.
type FusionFactor struct {
	factorBase
	Method FusionMethod
	// Weights pairs with children in connection order for FusionWeightedSum.
	Weights []float64
	// Custom combines utilities for FusionCustom.
	Custom func(utilities []float64) float64

	children []Factor
	scratch  []float64
}

func (f *FusionFactor) BuildConnections(parents, children []core.Node) error {
	f.children = factorsOf(children)
	f.scratch = make([]float64, len(f.children))
	return nil
}

func (f *FusionFactor) Validate() error {
	if len(f.children) == 0 {
		return core.NodeError(f, core.ErrMissingChild)
	}
	switch f.Method {
	case FusionWeightedSum:
		if len(f.Weights) != len(f.children) {
			return core.NodeError(f, fmt.Errorf("%w: %d weights for %d children", core.ErrInvalidParameter, len(f.Weights), len(f.children)))
		}
	case FusionCustom:
		if f.Custom == nil {
			return core.NodeError(f, fmt.Errorf("%w: no custom fusion", core.ErrInvalidParameter))
		}
	}
	return nil
}

func (f *FusionFactor) updateUtility() float64 {
	if len(f.children) == 0 {
		return f.set(0)
	}
	for i, c := range f.children {
		f.scratch[i] = c.updateUtility()
	}
	switch f.Method {
	case FusionMin:
		return f.set(minOf(f.scratch))
	case FusionWeightedSum:
		var sum float64
		for i, u := range f.scratch {
			if i < len(f.Weights) {
				sum += u * f.Weights[i]
			}
		}
		return f.set(sum)
	case FusionCustom:
		if f.Custom == nil {
			return f.set(0)
		}
		return f.set(f.Custom(f.scratch))
	default:
		return f.set(maxOf(f.scratch))
	}
}

func maxOf(vs []float64) float64 {
	m := vs[0]
	for _, v := range vs[1:] {
		m = max(m, v)
	}
	return m
}

func minOf(vs []float64) float64 {
	m := vs[0]
	for _, v := range vs[1:] {
		m = min(m, v)
	}
	return m
}

// FunctionFactor applies Curve to its single child's utility.
type FunctionFactor struct {
	factorBase
	Curve Curve

	child Factor
}

func (f *FunctionFactor) MaxOutputConnections() int { return 1 }

func (f *FunctionFactor) BuildConnections(parents, children []core.Node) error {
	f.child = nil
	if len(children) > 0 {
		f.child = children[0].(Factor)
	}
	return nil
}

func (f *FunctionFactor) Validate() error {
	if f.child == nil {
		return core.NodeError(f, core.ErrMissingChild)
	}
	if f.Curve == nil {
		return core.NodeError(f, fmt.Errorf("%w: no curve", core.ErrInvalidParameter))
	}
	if v, ok := f.Curve.(core.Validator); ok {
		if err := v.Validate(); err != nil {
			return core.NodeError(f, fmt.Errorf("%w: %v", core.ErrInvalidParameter, err))
		}
	}
	return nil
}

func (f *FunctionFactor) updateUtility() float64 {
	if f.child == nil || f.Curve == nil {
		return f.set(0)
	}
	return f.set(f.Curve.Eval(f.child.updateUtility()))
}
