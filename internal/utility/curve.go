package utility

import (
	"errors"
	"math"
	"slices"

	"github.com/AaronLay10/decisiongraph/internal/core"
)

// Curve reshapes a utility. Results are clamped to [0,1] by FunctionFactor.
type Curve interface {
	Eval(x float64) float64
}

// LinearCurve is Slope*x + Intercept.
type LinearCurve struct {
	Slope     float64
	Intercept float64
}

func (c LinearCurve) Eval(x float64) float64 { return c.Slope*x + c.Intercept }

// ExponentialCurve is (x - ShiftX)^Exponent + ShiftY. Undefined results map to zero.
type ExponentialCurve struct {
	Exponent float64
	ShiftX   float64
	ShiftY   float64
}

func (c ExponentialCurve) Eval(x float64) float64 {
	v := math.Pow(x-c.ShiftX, c.Exponent) + c.ShiftY
	if math.IsNaN(v) {
		return 0
	}
	return v
}

// SigmoidCurve is 1 / (1 + e^(-GrowthRate*(x - Midpoint))).
type SigmoidCurve struct {
	GrowthRate float64
	Midpoint   float64
}

func (c SigmoidCurve) Eval(x float64) float64 {
	return 1 / (1 + math.Exp(-c.GrowthRate*(x-c.Midpoint)))
}

type Point struct{ X, Y float64 }

// PointedCurve interpolates linearly between points sorted by X. Inputs outside
// the range take the nearest end value.
type PointedCurve struct {
	Points []Point
}

func (c PointedCurve) Eval(x float64) float64 {
	pts := c.Points
	if len(pts) == 0 {
		return 0
	}
	if x <= pts[0].X {
		return pts[0].Y
	}
	last := pts[len(pts)-1]
	if x >= last.X {
		return last.Y
	}
	i, _ := slices.BinarySearchFunc(pts, x, func(p Point, x float64) int {
		switch {
		case p.X < x:
			return -1
		case p.X > x:
			return 1
		}
		return 0
	})
	if pts[i].X == x {
		return pts[i].Y
	}
	a, b := pts[i-1], pts[i]
	return a.Y + (x-a.X)*(b.Y-a.Y)/(b.X-a.X)
}

func (c PointedCurve) Validate() error {
	if len(c.Points) == 0 {
		return errors.New("pointed curve has no points")
	}
	if !slices.IsSortedFunc(c.Points, func(a, b Point) int {
		switch {
		case a.X < b.X:
			return -1
		case a.X > b.X:
			return 1
		}
		return 0
	}) {
		return errors.New("pointed curve points are not sorted by x")
	}
	return nil
}

// CustomCurve adapts a plain function.
type CustomCurve func(float64) float64

func (f CustomCurve) Eval(x float64) float64 { return f(x) }

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

var _ core.Validator = PointedCurve{}
