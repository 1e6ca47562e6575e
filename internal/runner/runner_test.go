package runner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AaronLay10/decisiongraph/internal/bt"
	"github.com/AaronLay10/decisiongraph/internal/core"
	"github.com/AaronLay10/decisiongraph/internal/events"
)

// countdown builds a tree that runs for n ticks and then reports final.
func countdown(t *testing.T, name string, n int, final core.Status) *bt.BehaviourTree {
	t.Helper()
	tree := bt.New(name)
	left := n
	_, err := tree.CreateLeaf("count", &core.FunctionalAction{
		OnStart: func() { left = n },
		OnUpdate: func() core.Status {
			left--
			if left > 0 {
				return core.StatusRunning
			}
			return final
		},
	})
	require.NoError(t, err)
	return tree
}

func names(evts []events.Event, name string) []events.Event {
	var out []events.Event
	for _, e := range evts {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

func TestTickRunsAgentsIndependently(t *testing.T) {
	bus := events.NewBus(128)
	r := New(bus)
	require.NoError(t, r.Add("short", countdown(t, "short", 1, core.StatusSuccess)))
	require.NoError(t, r.Add("long", countdown(t, "long", 3, core.StatusFailure)))
	assert.Equal(t, []string{"short", "long"}, r.Agents())

	assert.Equal(t, 1, r.Tick())
	assert.Equal(t, 1, r.Tick())
	assert.Equal(t, 0, r.Tick())
	assert.Equal(t, 0, r.Tick(), "finished agents stay finished")
	assert.Equal(t, 4, r.TickCount())

	snap := r.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, AgentStatus{Name: "short", Status: "success", Ticks: 1, Runs: 1}, snap[0])
	assert.Equal(t, AgentStatus{Name: "long", Status: "failure", Ticks: 3, Runs: 1}, snap[1])

	finished := names(bus.Snapshot(), "agent.finished")
	require.Len(t, finished, 2, "agent.finished is emitted once per run")
	assert.Equal(t, "short", finished[0].Fields["agent"])
	assert.Len(t, names(bus.Snapshot(), "agent.started"), 2)
	assert.Len(t, names(bus.Snapshot(), "runner.tick"), 4)
}

func TestGraphEventsAreTaggedWithAgent(t *testing.T) {
	bus := events.NewBus(64)
	r := New(bus)
	require.NoError(t, r.Add("guard", countdown(t, "guard-tree", 1, core.StatusSuccess)))
	r.Tick()

	started := names(bus.Snapshot(), "graph.started")
	require.Len(t, started, 1)
	assert.Equal(t, "guard", started[0].Fields["agent"])
	assert.Equal(t, "guard-tree", started[0].Fields["graph"])
}

func TestDuplicateAndNilAgents(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.Add("a", countdown(t, "a", 1, core.StatusSuccess)))
	assert.ErrorIs(t, r.Add("a", countdown(t, "a2", 1, core.StatusSuccess)), ErrDuplicateAgent)
	assert.Error(t, r.Add("b", nil))
	assert.NotNil(t, r.Agent("a"))
	assert.Nil(t, r.Agent("missing"))
}

func TestStartFailureFinishesAgent(t *testing.T) {
	bus := events.NewBus(32)
	r := New(bus)
	require.NoError(t, r.Add("broken", bt.New("empty")))

	assert.Equal(t, 0, r.Tick())
	snap := r.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "error", snap[0].Status)
	assert.Contains(t, snap[0].Error, core.ErrNoStartNode.Error())

	finished := names(bus.Snapshot(), "agent.finished")
	require.Len(t, finished, 1)
	assert.Equal(t, "error", finished[0].Fields["status"])
}

func TestResetRestartsAgents(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.Add("a", countdown(t, "a", 2, core.StatusSuccess)))
	r.Tick()
	assert.Equal(t, 1, r.Running())

	r.Reset()
	assert.Equal(t, 0, r.Running())
	assert.Equal(t, 0, r.TickCount())
	assert.Equal(t, "none", r.Snapshot()[0].Status)

	assert.Equal(t, 1, r.Tick())
	assert.Equal(t, 0, r.Tick())
	assert.Equal(t, 2, r.Snapshot()[0].Runs)
}

func TestRunStopsWhenAgentsFinish(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.Add("a", countdown(t, "a", 3, core.StatusSuccess)))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Run(ctx, time.Millisecond, 0))
	assert.Equal(t, 3, r.TickCount())
	assert.Equal(t, 0, r.Running())
}

func TestRunStopsAtMaxTicks(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.Add("forever", countdown(t, "forever", 1000, core.StatusSuccess)))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Run(ctx, time.Millisecond, 5))
	assert.Equal(t, 5, r.TickCount())
	assert.Equal(t, 1, r.Running())
}

func TestRunHonoursContext(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.Add("forever", countdown(t, "forever", 1_000_000, core.StatusSuccess)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, r.Run(ctx, time.Millisecond, 0), context.Canceled)
}

func TestRunRejectsBadInput(t *testing.T) {
	assert.ErrorIs(t, New(nil).Run(context.Background(), time.Millisecond, 0), ErrNoAgents)

	r := New(nil)
	require.NoError(t, r.Add("a", countdown(t, "a", 1, core.StatusSuccess)))
	assert.Error(t, r.Run(context.Background(), 0, 0))
}

func TestOnTickRunsBeforeAgents(t *testing.T) {
	r := New(nil)
	var order []string
	tree := bt.New("t")
	_, err := tree.CreateLeaf("observe", core.UpdateFunc(func() core.Status {
		order = append(order, "agent")
		return core.StatusRunning
	}))
	require.NoError(t, err)
	require.NoError(t, r.Add("a", tree))
	r.OnTick(func(tick int) { order = append(order, "world") })

	r.Tick()
	r.Tick()
	assert.Equal(t, []string{"world", "agent", "world", "agent"}, order)
}
