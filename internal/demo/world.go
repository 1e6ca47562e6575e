// Package demo builds a small town of agents, one per decision paradigm, over
// a noise-driven world.
package demo

import (
	"math"
	"time"

	"github.com/ojrac/opensimplex-go"

	"github.com/AaronLay10/decisiongraph/internal/blackboard"
	"github.com/AaronLay10/decisiongraph/internal/core"
)

// World defaults.
const (
	DefaultTickLength = time.Minute
	DefaultDayLength  = 24
	worldOctaves      = 3
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

type resident struct {
	name  string
	board *blackboard.Blackboard
	home  float64
	needs map[string]float64
}

// World owns the simulated clock and writes what each resident perceives into
// its blackboard once per tick.
type World struct {
	// TickLength is how far the clock advances per tick.
	TickLength time.Duration
	// DayLength is the number of ticks in a day.
	DayLength int

	noise     opensimplex.Noise
	clock     *core.ManualClock
	town      *blackboard.Blackboard
	residents []*resident
	tick      int
}

// NewWorld creates a world whose noise fields derive from seed.
func NewWorld(seed int64) *World {
	return &World{
		TickLength: DefaultTickLength,
		DayLength:  DefaultDayLength,
		noise:      opensimplex.NewNormalized(seed),
		clock:      core.NewManualClock(epoch),
		town:       blackboard.New(),
	}
}

// Clock is the clock every graph in the world runs on.
func (w *World) Clock() core.Clock { return w.clock }

// Town is the blackboard shared by every resident.
func (w *World) Town() *blackboard.Blackboard { return w.town }

// CurrentTick returns the last tick passed to Step.
func (w *World) CurrentTick() int { return w.tick }

// Attach registers a resident living at x. Residents move by writing "x".
func (w *World) Attach(name string, board *blackboard.Blackboard, x float64) {
	if !board.Has("x") {
		board.Set("x", x)
	}
	w.residents = append(w.residents, &resident{name: name, board: board, home: x, needs: map[string]float64{}})
}

// Drift makes key on the named resident's board grow by rate every tick,
// saturating at 1.
func (w *World) Drift(name, key string, rate float64) {
	for _, r := range w.residents {
		if r.name == name {
			r.needs[key] = rate
		}
	}
}

// Sample returns octave noise in [0,1] at (x, y).
func (w *World) Sample(x, y float64) float64 {
	total, norm := 0.0, 0.0
	amp, freq := 1.0, 1.0
	for range worldOctaves {
		total += w.noise.Eval2(x*freq, y*freq) * amp
		norm += amp
		amp *= 0.5
		freq *= 2
	}
	return total / norm
}

// Daylight is 1 at noon and 0 at midnight.
func (w *World) Daylight(tick int) float64 {
	phase := float64(tick%w.DayLength) / float64(w.DayLength)
	return 0.5 - 0.5*math.Cos(2*math.Pi*phase)
}

// Step advances the clock and refreshes every resident's perceptions.
func (w *World) Step(tick int) {
	w.tick = tick
	w.clock.Advance(w.TickLength)
	day := float64(tick) / float64(w.DayLength)
	light := w.Daylight(tick)
	w.town.Set("day", day)
	w.town.Set("daylight", light)
	for _, r := range w.residents {
		x := r.board.FloatOr("x", r.home)
		t := float64(tick)
		r.board.Set("tick", t)
		r.board.Set("day", day)
		r.board.Set("daylight", light)
		r.board.Set("noise", w.Sample(x*0.3, t*0.2))
		r.board.Set("food", w.Sample(x*0.1+100, day))
		for key, rate := range r.needs {
			r.board.Set(key, math.Min(1, r.board.FloatOr(key, 0)+rate))
		}
	}
}
