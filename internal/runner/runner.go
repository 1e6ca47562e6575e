// Package runner drives many independent agents, one decision graph each, on
// a shared tick.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	bt "github.com/joeycumines/go-behaviortree"

	"github.com/AaronLay10/decisiongraph/internal/core"
	"github.com/AaronLay10/decisiongraph/internal/events"
)

var (
	ErrDuplicateAgent = errors.New("duplicate agent name")
	ErrNoAgents       = errors.New("no agents")
)

type phase int

const (
	idle phase = iota
	active
	done
)

type agent struct {
	name  string
	graph core.Executable

	phase    phase
	ticks    int
	runs     int
	last     core.Status
	startErr error
}

// AgentStatus is a point-in-time view of one agent.
type AgentStatus struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Running bool   `json:"running"`
	Ticks   int    `json:"ticks"`
	Runs    int    `json:"runs"`
	Error   string `json:"error,omitempty"`
}

// tracerSetter is implemented by every paradigm graph through core.Graph.
type tracerSetter interface {
	SetTracer(core.Tracer)
}

type errorSource interface {
	Err() error
}

// Runner owns a set of agents. All methods are safe for concurrent use;
// ticks are serialised.
type Runner struct {
	session uuid.UUID
	bus     *events.Bus
	logger  *slog.Logger

	mu     sync.Mutex
	agents []*agent
	byName map[string]*agent
	ticks  int
	before []func(tick int)
}

// New creates a runner. bus may be nil, in which case nothing is traced.
func New(bus *events.Bus) *Runner {
	return &Runner{
		session: uuid.New(),
		bus:     bus,
		logger:  slog.Default(),
		byName:  make(map[string]*agent),
	}
}

func (r *Runner) SetLogger(l *slog.Logger) {
	if l != nil {
		r.logger = l
	}
}

// Session identifies this runner in persisted traces.
func (r *Runner) Session() uuid.UUID { return r.session }

// Add registers an agent. Its graph is traced on the runner's bus with the
// agent name attached.
func (r *Runner) Add(name string, e core.Executable) error {
	if e == nil {
		return fmt.Errorf("agent %q: nil graph", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateAgent, name)
	}
	if ts, ok := e.(tracerSetter); ok && r.bus != nil {
		ts.SetTracer(r.bus.Tagged(map[string]any{"agent": name}))
	}
	a := &agent{name: name, graph: e}
	r.agents = append(r.agents, a)
	r.byName[name] = a
	return nil
}

// OnTick registers fn to run at the start of every tick, before any agent.
// Hosts use it to advance the world the agents perceive.
func (r *Runner) OnTick(fn func(tick int)) {
	r.mu.Lock()
	r.before = append(r.before, fn)
	r.mu.Unlock()
}

// Agents returns agent names in registration order.
func (r *Runner) Agents() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.agents))
	for i, a := range r.agents {
		out[i] = a.name
	}
	return out
}

// Agent returns the graph registered under name, or nil.
func (r *Runner) Agent(name string) core.Executable {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.byName[name]; ok {
		return a.graph
	}
	return nil
}

// Tick starts agents that have not started yet and executes the running ones
// once. It returns the number of agents still running.
func (r *Runner) Tick() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ticks++
	for _, fn := range r.before {
		fn(r.ticks)
	}
	running := 0
	for _, a := range r.agents {
		r.step(a)
		if a.phase == active {
			running++
		}
	}
	r.emit("debug", "runner.tick", map[string]any{"tick": r.ticks, "running": running})
	return running
}

func (r *Runner) step(a *agent) {
	switch a.phase {
	case idle:
		a.runs++
		if err := a.graph.Start(); err != nil {
			a.startErr = err
			r.logger.Warn("agent failed to start", "agent", a.name, "error", err)
			r.finish(a)
			return
		}
		a.phase = active
		r.emit("info", "agent.started", map[string]any{"agent": a.name, "run": a.runs})
		fallthrough
	case active:
		a.graph.Execute()
		a.ticks++
		if a.graph.Status() != core.StatusRunning {
			r.finish(a)
		}
	}
}

func (r *Runner) finish(a *agent) {
	a.phase = done
	a.last = a.graph.Status()
	fields := map[string]any{"agent": a.name, "status": a.last.String(), "ticks": a.ticks}
	if err := r.agentErr(a); err != nil {
		fields["error"] = err.Error()
	}
	r.emit("info", "agent.finished", fields)
}

func (r *Runner) agentErr(a *agent) error {
	if a.startErr != nil {
		return a.startErr
	}
	if es, ok := a.graph.(errorSource); ok {
		return es.Err()
	}
	return nil
}

func (r *Runner) emit(level, name string, fields map[string]any) {
	if r.bus == nil {
		return
	}
	if err := r.bus.Emit(level, name, "", fields); err != nil {
		r.logger.Debug("runner emit failed", "event", name, "error", err)
	}
}

// TickCount returns the number of ticks since creation or the last Reset.
func (r *Runner) TickCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ticks
}

// Running returns the number of agents currently running.
func (r *Runner) Running() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, a := range r.agents {
		if a.phase == active {
			n++
		}
	}
	return n
}

// Run ticks every interval until no agent is running, maxTicks is reached
// (when positive) or ctx is done, in which case ctx's error is returned.
func (r *Runner) Run(ctx context.Context, interval time.Duration, maxTicks int) error {
	if len(r.Agents()) == 0 {
		return ErrNoAgents
	}
	if interval <= 0 {
		return fmt.Errorf("tick interval must be positive: %s", interval)
	}
	node := bt.New(func([]bt.Node) (bt.Status, error) {
		running := r.Tick()
		if running == 0 || (maxTicks > 0 && r.TickCount() >= maxTicks) {
			return bt.Failure, nil
		}
		return bt.Running, nil
	})
	ticker := bt.NewTickerStopOnFailure(ctx, interval, node)
	<-ticker.Done()
	if err := ctx.Err(); err != nil {
		return err
	}
	return ticker.Err()
}

// Reset stops every agent, so the next Tick starts them again.
func (r *Runner) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.agents {
		a.graph.Stop()
		a.phase = idle
		a.ticks = 0
		a.startErr = nil
		a.last = core.StatusNone
	}
	r.ticks = 0
}

// Snapshot returns the status of every agent in registration order.
func (r *Runner) Snapshot() []AgentStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]AgentStatus, 0, len(r.agents))
	for _, a := range r.agents {
		s := AgentStatus{
			Name:    a.name,
			Status:  a.graph.Status().String(),
			Running: a.phase == active,
			Ticks:   a.ticks,
			Runs:    a.runs,
		}
		if a.phase == done {
			s.Status = a.last.String()
			if err := r.agentErr(a); err != nil {
				s.Error = err.Error()
			}
		}
		out = append(out, s)
	}
	return out
}
