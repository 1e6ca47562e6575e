package demo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AaronLay10/decisiongraph/internal/blackboard"
	"github.com/AaronLay10/decisiongraph/internal/core"
	"github.com/AaronLay10/decisiongraph/internal/events"
	"github.com/AaronLay10/decisiongraph/internal/runner"
)

// drive ticks g on clock until it finishes or limit ticks pass, and returns
// the number of ticks executed.
func drive(t *testing.T, g core.Executable, clock *core.ManualClock, limit int) int {
	t.Helper()
	n := 0
	for n < limit && g.Status() == core.StatusRunning {
		if clock != nil {
			clock.Advance(DefaultTickLength)
		}
		g.Execute()
		n++
	}
	return n
}

func TestWorldStep(t *testing.T) {
	w := NewWorld(42)
	board := blackboard.New()
	w.Attach("v", board, 3)
	w.Drift("v", "hunger", 0.6)
	start := w.Clock().Now()

	w.Step(1)
	w.Step(2)

	assert.Equal(t, 2*DefaultTickLength, w.Clock().Now().Sub(start))
	assert.Equal(t, 2, w.CurrentTick())
	assert.Equal(t, 3.0, board.FloatOr("x", 0))
	assert.Equal(t, 1.0, board.FloatOr("hunger", 0), "needs saturate at 1")
	assert.InDelta(t, 2.0/DefaultDayLength, board.FloatOr("day", 0), 1e-9)
	for _, key := range []string{"noise", "food", "daylight"} {
		v, ok := board.Float(key)
		require.True(t, ok, key)
		assert.GreaterOrEqual(t, v, 0.0, key)
		assert.LessOrEqual(t, v, 1.0, key)
	}
	assert.Equal(t, board.FloatOr("daylight", -1), w.Town().FloatOr("daylight", -2))
}

func TestDaylightCycle(t *testing.T) {
	w := NewWorld(1)
	assert.InDelta(t, 0, w.Daylight(0), 1e-9)
	assert.InDelta(t, 1, w.Daylight(DefaultDayLength/2), 1e-9)
	assert.InDelta(t, 0, w.Daylight(DefaultDayLength), 1e-9)
}

func TestSampleIsDeterministic(t *testing.T) {
	a, b := NewWorld(9), NewWorld(9)
	for i := range 20 {
		x := float64(i) * 0.37
		assert.Equal(t, a.Sample(x, -x), b.Sample(x, -x))
	}
}

func TestGuardInvestigatesNoise(t *testing.T) {
	board, town := blackboard.New(), blackboard.New()
	board.Set("noise", 0.9)
	board.Set("x", 4.0)
	tree, err := NewGuard(board, town, GuardConfig{Shift: 1})
	require.NoError(t, err)
	clock := core.NewManualClock(time.Unix(0, 0))
	tree.SetClock(clock)
	require.NoError(t, tree.Start())

	drive(t, tree, clock, 10)
	assert.Equal(t, core.StatusSuccess, tree.Status())
	assert.True(t, town.Bool("alarm"))
	assert.Equal(t, 4.0, town.FloatOr("alarm_x", 0))
	assert.Equal(t, 1.0, board.FloatOr("investigations", 0))
	assert.Equal(t, 4.0, board.FloatOr("x", 0), "an investigating guard does not walk")
}

func TestGuardInspectionWaitsOnClock(t *testing.T) {
	board, town := blackboard.New(), blackboard.New()
	board.Set("noise", 0.9)
	tree, err := NewGuard(board, town, GuardConfig{Shift: 1, Inspect: time.Hour})
	require.NoError(t, err)
	clock := core.NewManualClock(time.Unix(0, 0))
	tree.SetClock(clock)
	require.NoError(t, tree.Start())

	drive(t, tree, nil, 5)
	assert.Equal(t, core.StatusRunning, tree.Status())
	assert.False(t, board.Has("investigations"))

	clock.Advance(time.Hour)
	drive(t, tree, nil, 5)
	assert.Equal(t, core.StatusSuccess, tree.Status())
}

func TestGuardWalksQuietShift(t *testing.T) {
	board, town := blackboard.New(), blackboard.New()
	board.Set("noise", 0.1)
	tree, err := NewGuard(board, town, GuardConfig{Shift: 3})
	require.NoError(t, err)
	require.NoError(t, tree.Start())

	n := drive(t, tree, nil, 20)
	assert.Equal(t, core.StatusSuccess, tree.Status())
	assert.Equal(t, 6, n, "each quiet round checks then steps")
	assert.Equal(t, 3.0, board.FloatOr("x", 0))
	assert.False(t, town.Bool("alarm"))
}

func TestWalkerTurnsAtEnds(t *testing.T) {
	board := blackboard.New()
	w := &walker{board: board, far: 2, leg: true}
	assert.Equal(t, core.StatusRunning, w.Update())
	assert.Equal(t, core.StatusSuccess, w.Update())
	assert.Equal(t, -1.0, board.FloatOr("heading", 0))
	assert.Equal(t, core.StatusRunning, w.Update())
	assert.Equal(t, core.StatusSuccess, w.Update())
	assert.Equal(t, 0.0, board.FloatOr("x", -1))
	assert.Equal(t, 1.0, board.FloatOr("heading", 0))
}

func TestPatrolRestsWhenTired(t *testing.T) {
	board, town := blackboard.New(), blackboard.New()
	p, err := NewPatrol(board, town, PatrolConfig{Rests: 2})
	require.NoError(t, err)
	require.NoError(t, p.Start())

	seen := map[string]bool{}
	for i := 0; i < 200 && p.Status() == core.StatusRunning; i++ {
		seen[p.CurrentState().Base().Label()] = true
		p.Execute()
	}
	assert.Equal(t, core.StatusSuccess, p.Status())
	assert.True(t, seen["walk"])
	assert.True(t, seen["rest"])
	assert.False(t, seen["investigate"])
	assert.Equal(t, 2.0, board.FloatOr("rests", 0))
	assert.Equal(t, 1.0, board.FloatOr("stamina", 0))
	assert.Greater(t, board.FloatOr("looks", 0), 0.0)
}

func TestPatrolAnswersAlarm(t *testing.T) {
	board, town := blackboard.New(), blackboard.New()
	p, err := NewPatrol(board, town, PatrolConfig{Respond: 3})
	require.NoError(t, err)
	require.NoError(t, p.Start())
	p.Execute()
	assert.Same(t, p.Walk, p.CurrentState())

	town.Set("alarm", true)
	p.Execute()
	assert.Same(t, p.Investigate, p.CurrentState())
	assert.Equal(t, 1, p.Depth())

	p.Execute()
	p.Execute()
	assert.Same(t, p.Investigate, p.CurrentState())
	p.Execute()
	assert.Same(t, p.Walk, p.CurrentState(), "the alarm pops back to the walk")
	assert.Equal(t, 0, p.Depth())
	assert.False(t, town.Bool("alarm"))
	assert.Equal(t, 1.0, town.FloatOr("alarms_answered", 0))
	assert.Equal(t, core.StatusRunning, p.Route.Status(), "the route restarts on return")
}

func villager(t *testing.T, needs map[string]float64) (*Villager, *blackboard.Blackboard) {
	t.Helper()
	board := blackboard.New()
	for k, v := range needs {
		board.Set(k, v)
	}
	v, err := NewVillager(board, VillagerConfig{Days: 2})
	require.NoError(t, err)
	require.NoError(t, v.Start())
	return v, board
}

func TestVillagerEatsWhenHungry(t *testing.T) {
	v, board := villager(t, map[string]float64{"hunger": 0.9, "fatigue": 0.1, "food": 0.5})
	v.Execute()
	require.NotNil(t, v.Selected())
	assert.Equal(t, "eat", v.Selected().Base().Label())
	assert.InDelta(t, 0.6, board.FloatOr("hunger", 0), 1e-9)
	assert.Equal(t, core.StatusRunning, v.Status())
}

func TestVillagerDoesChores(t *testing.T) {
	v, board := villager(t, map[string]float64{"hunger": 0.1, "fatigue": 0.1, "food": 0.2})
	v.Execute()
	require.NotNil(t, v.Selected())
	assert.Equal(t, "chores", v.Selected().Base().Label())
	require.NotNil(t, v.Chores.Selected())
	assert.Equal(t, "work", v.Chores.Selected().Base().Label())
	assert.Equal(t, 1.0, board.FloatOr("coins", 0))

	v.Execute()
	assert.Equal(t, 2.0, board.FloatOr("coins", 0), "work restarts while it stays selected")
}

func TestVillagerSleepsWhenExhausted(t *testing.T) {
	v, _ := villager(t, map[string]float64{"hunger": 0.2, "fatigue": 0.95, "food": 0.1})
	v.Execute()
	require.NotNil(t, v.Selected())
	assert.Equal(t, "sleep", v.Selected().Base().Label())
}

func TestVillagerRetires(t *testing.T) {
	v, _ := villager(t, map[string]float64{"hunger": 0.9, "fatigue": 0.9, "day": 2})
	v.Execute()
	assert.Equal(t, core.StatusSuccess, v.Status())
}

func TestBuildRejectsBadAgents(t *testing.T) {
	_, err := Build(Options{Agents: []string{"dragon"}})
	assert.ErrorContains(t, err, "unknown agent kind")

	_, err = Build(Options{Agents: []string{KindGuard, KindGuard}})
	assert.ErrorContains(t, err, "listed twice")
}

func TestBuildSubset(t *testing.T) {
	sim, err := Build(Options{Agents: []string{KindVillager}})
	require.NoError(t, err)
	require.Len(t, sim.Agents, 1)
	assert.Equal(t, KindVillager, sim.Agents[0].Name)
	assert.Len(t, sim.Boards(), 2)
	assert.Contains(t, sim.Boards(), "town")
}

func quickOptions(seed uint64) Options {
	return Options{
		Seed:     seed,
		Guard:    GuardConfig{Shift: 5},
		Patrol:   PatrolConfig{Rests: 1},
		Villager: VillagerConfig{Days: 1},
	}
}

func TestSimRunsToCompletion(t *testing.T) {
	sim, err := Build(quickOptions(7))
	require.NoError(t, err)
	bus := events.NewBus(4096)
	r := runner.New(bus)
	require.NoError(t, sim.Register(r))
	assert.Equal(t, Kinds, r.Agents())

	for i := 0; i < 1000 && r.Tick() > 0; i++ {
	}
	assert.Equal(t, 0, r.Running())
	for _, s := range r.Snapshot() {
		assert.Equal(t, "success", s.Status, s.Name)
		assert.Empty(t, s.Error, s.Name)
	}
	assert.GreaterOrEqual(t, r.TickCount(), DefaultDayLength, "the villager works a full day")
	assert.NotZero(t, bus.Counts()["state.entered"])
	assert.NotZero(t, bus.Counts()["utility.selected"])
}

type step struct {
	Name   string
	Fields map[string]any
}

func trace(t *testing.T, seed uint64, ticks int) []step {
	t.Helper()
	sim, err := Build(quickOptions(seed))
	require.NoError(t, err)
	bus := events.NewBus(4096)
	r := runner.New(bus)
	require.NoError(t, sim.Register(r))
	for range ticks {
		r.Tick()
	}
	var out []step
	for _, e := range bus.Snapshot() {
		out = append(out, step{e.Name, e.Fields})
	}
	return out
}

func TestSimIsDeterministic(t *testing.T) {
	assert.Equal(t, trace(t, 3, 60), trace(t, 3, 60))
}
