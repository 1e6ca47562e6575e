package demo

import (
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/AaronLay10/decisiongraph/internal/blackboard"
	"github.com/AaronLay10/decisiongraph/internal/core"
	"github.com/AaronLay10/decisiongraph/internal/runner"
)

// Agent kinds understood by Build.
const (
	KindGuard    = "guard"
	KindPatrol   = "patrol"
	KindVillager = "villager"
)

// Kinds lists every agent kind in build order.
var Kinds = []string{KindGuard, KindPatrol, KindVillager}

// Options selects and tunes the demo agents.
type Options struct {
	Seed uint64
	// Agents names the kinds to build. Empty builds all of them.
	Agents []string

	Guard    GuardConfig
	Patrol   PatrolConfig
	Villager VillagerConfig
}

// Agent is one built agent with its private blackboard.
type Agent struct {
	Name  string
	Graph core.Executable
	Board *blackboard.Blackboard
}

// Sim is a world and the agents living in it.
type Sim struct {
	World  *World
	Agents []Agent
}

type graphHost interface {
	SetClock(core.Clock)
	SetRand(*rand.Rand)
}

// Build creates the world and the requested agents. Every graph runs on the
// world clock with its own generator derived from the seed.
func Build(opts Options) (*Sim, error) {
	kinds := opts.Agents
	if len(kinds) == 0 {
		kinds = Kinds
	}
	w := NewWorld(int64(opts.Seed))
	sim := &Sim{World: w}
	stream := uint64(0)
	host := func(g graphHost) {
		stream++
		g.SetClock(w.Clock())
		g.SetRand(rand.New(rand.NewPCG(opts.Seed, stream)))
	}

	for i, kind := range kinds {
		if slices.Contains(kinds[:i], kind) {
			return nil, fmt.Errorf("agent %q listed twice", kind)
		}
		board := blackboard.New()
		var g core.Executable
		switch kind {
		case KindGuard:
			tree, err := NewGuard(board, w.Town(), opts.Guard)
			if err != nil {
				return nil, fmt.Errorf("build guard: %w", err)
			}
			host(tree)
			g = tree
			w.Attach(kind, board, 0)
		case KindPatrol:
			p, err := NewPatrol(board, w.Town(), opts.Patrol)
			if err != nil {
				return nil, fmt.Errorf("build patrol: %w", err)
			}
			host(p)
			host(p.Route)
			g = p
			w.Attach(kind, board, 0)
		case KindVillager:
			cfg := opts.Villager.withDefaults()
			v, err := NewVillager(board, cfg)
			if err != nil {
				return nil, fmt.Errorf("build villager: %w", err)
			}
			host(v)
			g = v
			w.Attach(kind, board, 20)
			w.Drift(kind, "hunger", cfg.Hunger)
			w.Drift(kind, "fatigue", cfg.Fatigue)
		default:
			return nil, fmt.Errorf("unknown agent kind %q (want one of %v)", kind, Kinds)
		}
		sim.Agents = append(sim.Agents, Agent{Name: kind, Graph: g, Board: board})
	}
	return sim, nil
}

// Register adds every agent to r and advances the world at the start of each
// tick.
func (s *Sim) Register(r *runner.Runner) error {
	for _, a := range s.Agents {
		if err := r.Add(a.Name, a.Graph); err != nil {
			return err
		}
	}
	r.OnTick(s.World.Step)
	return nil
}

// Boards returns every agent's blackboard by name, plus the shared "town" board.
func (s *Sim) Boards() map[string]*blackboard.Blackboard {
	out := make(map[string]*blackboard.Blackboard, len(s.Agents)+1)
	for _, a := range s.Agents {
		out[a.Name] = a.Board
	}
	out["town"] = s.World.Town()
	return out
}
