package demo

import (
	"fmt"
	"time"

	"github.com/AaronLay10/decisiongraph/internal/blackboard"
	"github.com/AaronLay10/decisiongraph/internal/bt"
	"github.com/AaronLay10/decisiongraph/internal/core"
	"github.com/AaronLay10/decisiongraph/internal/perception"
)

// GuardConfig tunes the guard's behaviour tree.
type GuardConfig struct {
	// Shift is the number of duty rounds before the guard goes home.
	Shift int
	// Threshold is the noise level worth investigating.
	Threshold float64
	// Inspect is how long an investigation takes on the world clock.
	Inspect time.Duration
	// Beat is the far end of the guard's walk.
	Beat float64
}

func (c GuardConfig) withDefaults() GuardConfig {
	if c.Shift <= 0 {
		c.Shift = 40
	}
	if c.Threshold == 0 {
		c.Threshold = 0.62
	}
	if c.Inspect <= 0 {
		c.Inspect = 2 * DefaultTickLength
	}
	if c.Beat <= 0 {
		c.Beat = 6
	}
	return c
}

// NewGuard builds a tree that walks a beat and, when it hears something,
// investigates and raises the town alarm:
//
//	shift: LoopUntil(failure, Shift)
//	  duty: Selector
//	    heard: Condition(noise >= Threshold)
//	      respond: Sequencer
//	        inspect: Timer(Inspect) -> note
//	        alarm
//	    walk
func NewGuard(board, town *blackboard.Blackboard, cfg GuardConfig) (*bt.BehaviourTree, error) {
	cfg = cfg.withDefaults()
	heard, err := perception.Compile(fmt.Sprintf("noise >= %g", cfg.Threshold), board)
	if err != nil {
		return nil, err
	}

	tree := bt.New("guard")
	note, err := tree.CreateLeaf("note", core.UpdateFunc(func() core.Status {
		board.Add("investigations", 1)
		return core.StatusSuccess
	}))
	if err != nil {
		return nil, err
	}
	inspect, err := tree.CreateTimer("inspect", cfg.Inspect, note)
	if err != nil {
		return nil, err
	}
	alarm, err := tree.CreateLeaf("alarm", core.UpdateFunc(func() core.Status {
		town.Set("alarm", true)
		town.Set("alarm_x", board.FloatOr("x", 0))
		return core.StatusSuccess
	}))
	if err != nil {
		return nil, err
	}
	respond, err := tree.CreateSequencer("respond", false, inspect, alarm)
	if err != nil {
		return nil, err
	}
	investigate, err := tree.CreateCondition("heard", heard, respond)
	if err != nil {
		return nil, err
	}
	walk, err := tree.CreateLeaf("walk", &walker{board: board, far: cfg.Beat})
	if err != nil {
		return nil, err
	}
	duty, err := tree.CreateSelector("duty", false, investigate, walk)
	if err != nil {
		return nil, err
	}
	shift, err := tree.CreateLoopUntil("shift", core.StatusFailure, cfg.Shift, duty)
	if err != nil {
		return nil, err
	}
	tree.SetStartNode(shift)
	return tree, nil
}

// walker moves one unit per update between 0 and far. With leg set it keeps
// running until it reaches an end of the walk, otherwise every step succeeds.
type walker struct {
	board *blackboard.Blackboard
	far   float64
	leg   bool
	// cost is the stamina spent per step.
	cost float64
}

func (w *walker) Start() {}
func (w *walker) Stop()  {}

func (w *walker) Update() core.Status {
	x := w.board.FloatOr("x", 0)
	dir := w.board.FloatOr("heading", 1)
	x += dir
	if w.cost > 0 {
		w.board.Add("stamina", -w.cost)
	}
	switch {
	case x >= w.far:
		x, dir = w.far, -1
	case x <= 0:
		x, dir = 0, 1
	default:
		w.board.Set("x", x)
		if w.leg {
			return core.StatusRunning
		}
		return core.StatusSuccess
	}
	w.board.Set("x", x)
	w.board.Set("heading", dir)
	return core.StatusSuccess
}
