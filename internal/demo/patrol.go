package demo

import (
	"fmt"

	"github.com/AaronLay10/decisiongraph/internal/blackboard"
	"github.com/AaronLay10/decisiongraph/internal/bt"
	"github.com/AaronLay10/decisiongraph/internal/compose"
	"github.com/AaronLay10/decisiongraph/internal/core"
	"github.com/AaronLay10/decisiongraph/internal/fsm"
	"github.com/AaronLay10/decisiongraph/internal/perception"
)

// PatrolConfig tunes the patrol's state machine.
type PatrolConfig struct {
	// Route is the far end of the patrol route.
	Route float64
	// StepCost is the stamina spent per step walked.
	StepCost float64
	// Tired is the stamina at or below which the patrol rests.
	Tired float64
	// Recovery is the stamina regained per tick of rest.
	Recovery float64
	// Rests is the number of rests after which the patrol ends.
	Rests int
	// Respond is the number of ticks spent answering an alarm.
	Respond int
}

func (c PatrolConfig) withDefaults() PatrolConfig {
	if c.Route <= 0 {
		c.Route = 5
	}
	if c.StepCost <= 0 {
		c.StepCost = 0.1
	}
	if c.Tired <= 0 {
		c.Tired = 0.2
	}
	if c.Recovery <= 0 {
		c.Recovery = 0.25
	}
	if c.Rests <= 0 {
		c.Rests = 3
	}
	if c.Respond <= 0 {
		c.Respond = 3
	}
	return c
}

// Patrol is the patrol agent: a stack machine whose walk state loops an
// embedded behaviour tree.
type Patrol struct {
	*fsm.StackFSM
	Walk        *fsm.State
	Rest        *fsm.State
	Investigate *fsm.State
	Route       *bt.BehaviourTree
}

// NewPatrol builds the patrol machine. It walks the route until tired, rests,
// and answers the town alarm from the walk state, returning to the walk once
// the alarm is handled. It finishes after cfg.Rests rests.
func NewPatrol(board, town *blackboard.Blackboard, cfg PatrolConfig) (*Patrol, error) {
	cfg = cfg.withDefaults()
	if !board.Has("stamina") {
		board.Set("stamina", 1.0)
	}
	board.Set("rests", 0.0)
	board.Set("rests_needed", float64(cfg.Rests))

	route, err := newRoute(board, cfg)
	if err != nil {
		return nil, err
	}

	p := &Patrol{StackFSM: fsm.NewStack("patrol"), Route: route}
	if p.Walk, err = p.CreateState("walk", compose.Loop(route)); err != nil {
		return nil, err
	}
	if p.Rest, err = p.CreateState("rest", &rest{board: board, recovery: cfg.Recovery}); err != nil {
		return nil, err
	}
	if p.Investigate, err = p.CreateState("investigate", &respond{town: town, ticks: cfg.Respond}); err != nil {
		return nil, err
	}
	p.SetStartNode(p.Walk)

	if _, err := p.CreatePushTransition("answer-alarm", p.Walk, p.Investigate, perception.Key{Board: town, Name: "alarm"}); err != nil {
		return nil, err
	}
	tired, err := perception.Compile(fmt.Sprintf("stamina <= %g", cfg.Tired), board)
	if err != nil {
		return nil, err
	}
	if _, err := p.CreateTransition("tire", p.Walk, p.Rest, tired); err != nil {
		return nil, err
	}

	done, err := p.CreateExitTransition("off-duty", p.Rest, core.StatusSuccess, perception.MustCompile("rests >= rests_needed", board))
	if err != nil {
		return nil, err
	}
	done.Flags = core.FlagSuccess
	rested, err := p.CreateTransition("rested", p.Rest, p.Walk, nil)
	if err != nil {
		return nil, err
	}
	rested.Flags = core.FlagSuccess

	back, err := p.CreatePopTransition("resume", p.Investigate, nil)
	if err != nil {
		return nil, err
	}
	back.Flags = core.FlagSuccess
	return p, nil
}

// newRoute builds the tree run by the walk state: walk a leg, then look around.
func newRoute(board *blackboard.Blackboard, cfg PatrolConfig) (*bt.BehaviourTree, error) {
	tree := bt.New("patrol-route")
	leg, err := tree.CreateLeaf("leg", &walker{board: board, far: cfg.Route, leg: true, cost: cfg.StepCost})
	if err != nil {
		return nil, err
	}
	look, err := tree.CreateLeaf("look", core.UpdateFunc(func() core.Status {
		board.Add("looks", 1)
		return core.StatusSuccess
	}))
	if err != nil {
		return nil, err
	}
	if _, err := tree.CreateSequencer("round", false, leg, look); err != nil {
		return nil, err
	}
	return tree, nil
}

// rest recovers stamina until full, then counts the rest.
type rest struct {
	board    *blackboard.Blackboard
	recovery float64
}

func (r *rest) Start() {}
func (r *rest) Stop()  {}

func (r *rest) Update() core.Status {
	if r.board.Add("stamina", r.recovery) < 1 {
		return core.StatusRunning
	}
	r.board.Set("stamina", 1.0)
	r.board.Add("rests", 1)
	return core.StatusSuccess
}

// respond spends a fixed number of ticks on the alarm, then clears it.
type respond struct {
	town  *blackboard.Blackboard
	ticks int
	left  int
}

func (r *respond) Start() { r.left = r.ticks }
func (r *respond) Stop()  {}

func (r *respond) Update() core.Status {
	r.left--
	if r.left > 0 {
		return core.StatusRunning
	}
	r.town.Set("alarm", false)
	r.town.Add("alarms_answered", 1)
	return core.StatusSuccess
}
