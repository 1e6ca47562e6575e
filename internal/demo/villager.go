package demo

import (
	"github.com/AaronLay10/decisiongraph/internal/blackboard"
	"github.com/AaronLay10/decisiongraph/internal/core"
	"github.com/AaronLay10/decisiongraph/internal/utility"
)

// VillagerConfig tunes the villager's utility system.
type VillagerConfig struct {
	// Days is how many days the villager works before retiring.
	Days float64
	// Hunger and Fatigue are the per-tick need growth rates applied by the world.
	Hunger, Fatigue float64
}

func (c VillagerConfig) withDefaults() VillagerConfig {
	if c.Days <= 0 {
		c.Days = 2
	}
	if c.Hunger <= 0 {
		c.Hunger = 0.04
	}
	if c.Fatigue <= 0 {
		c.Fatigue = 0.03
	}
	return c
}

// Villager is the villager agent: a utility system choosing between eating,
// sleeping and a bucket of chores until it retires.
type Villager struct {
	*utility.System
	Chores *utility.UtilityBucket
}

// NewVillager builds the villager's system. Every candidate except "retire"
// is gated by the working factor, which falls to zero once day reaches
// cfg.Days, so retire wins and finishes the system.
func NewVillager(board *blackboard.Blackboard, cfg VillagerConfig) (*Villager, error) {
	cfg = cfg.withDefaults()
	for key, v := range map[string]float64{"hunger": 0.3, "fatigue": 0.2, "day": 0} {
		if !board.Has(key) {
			board.Set(key, v)
		}
	}
	read := func(key string) func() float64 {
		return func() float64 { return board.FloatOr(key, 0) }
	}

	s := utility.New("villager")
	v := &Villager{System: s}

	hunger, err := s.CreateVariableFactor("hunger", read("hunger"), 0, 1)
	if err != nil {
		return nil, err
	}
	fatigue, err := s.CreateVariableFactor("fatigue", read("fatigue"), 0, 1)
	if err != nil {
		return nil, err
	}
	food, err := s.CreateVariableFactor("food", read("food"), 0, 1)
	if err != nil {
		return nil, err
	}
	age, err := s.CreateVariableFactor("age", read("day"), 0, cfg.Days)
	if err != nil {
		return nil, err
	}
	working, err := s.CreateFunctionFactor("working", utility.PointedCurve{Points: []utility.Point{{X: 0, Y: 1}, {X: 0.999, Y: 1}, {X: 1, Y: 0}}}, age)
	if err != nil {
		return nil, err
	}
	gate := func(name string, f utility.Factor) (utility.Factor, error) {
		return s.CreateFusionFactor(name, utility.FusionMin, f, working)
	}

	appetite, err := s.CreateFunctionFactor("appetite", utility.SigmoidCurve{GrowthRate: 12, Midpoint: 0.6}, hunger)
	if err != nil {
		return nil, err
	}
	sleepiness, err := s.CreateFunctionFactor("sleepiness", utility.ExponentialCurve{Exponent: 2}, fatigue)
	if err != nil {
		return nil, err
	}
	fed, err := s.CreateFunctionFactor("fed", utility.LinearCurve{Slope: -1, Intercept: 1}, hunger)
	if err != nil {
		return nil, err
	}
	rested, err := s.CreateFunctionFactor("rested", utility.LinearCurve{Slope: -1, Intercept: 1}, fatigue)
	if err != nil {
		return nil, err
	}
	fit, err := s.CreateWeightedFactor("fit", []float64{0.5, 0.5}, fed, rested)
	if err != nil {
		return nil, err
	}
	forage, err := s.CreateFusionFactor("forage", utility.FusionCustom, fit, food)
	if err != nil {
		return nil, err
	}
	forage.Custom = func(u []float64) float64 { return u[0] * u[1] }

	eatU, err := gate("eat-utility", appetite)
	if err != nil {
		return nil, err
	}
	sleepU, err := gate("sleep-utility", sleepiness)
	if err != nil {
		return nil, err
	}
	workU, err := gate("work-utility", fit)
	if err != nil {
		return nil, err
	}
	gatherU, err := gate("gather-utility", forage)
	if err != nil {
		return nil, err
	}

	if _, err := s.CreateUtilityAction("eat", eatU, &relieve{board: board, key: "hunger", rate: 0.3, done: 0.1}, false); err != nil {
		return nil, err
	}
	sleep, err := s.CreateUtilityAction("sleep", sleepU, &relieve{board: board, key: "fatigue", rate: 0.2, done: 0.05}, false)
	if err != nil {
		return nil, err
	}
	work, err := s.CreateUtilityAction("work", workU, core.UpdateFunc(func() core.Status {
		board.Add("coins", 1)
		return core.StatusSuccess
	}), false)
	if err != nil {
		return nil, err
	}
	gather, err := s.CreateUtilityAction("gather", gatherU, core.UpdateFunc(func() core.Status {
		board.Add("stock", board.FloatOr("food", 0))
		return core.StatusSuccess
	}), false)
	if err != nil {
		return nil, err
	}
	if v.Chores, err = s.CreateBucket("chores", utility.DefaultBucketThreshold, work, gather); err != nil {
		return nil, err
	}
	if err := v.Chores.SetDefaultCandidate(work); err != nil {
		return nil, err
	}

	retirement, err := s.CreateFunctionFactor("retirement", utility.PointedCurve{Points: []utility.Point{{X: 0.999, Y: 0}, {X: 1, Y: 1}}}, age)
	if err != nil {
		return nil, err
	}
	if _, err := s.CreateUtilityExitNode("retire", retirement, core.StatusSuccess); err != nil {
		return nil, err
	}
	if err := s.SetDefaultCandidate(sleep); err != nil {
		return nil, err
	}
	return v, nil
}

// relieve lowers a need every tick until it drops to done.
type relieve struct {
	board *blackboard.Blackboard
	key   string
	rate  float64
	done  float64
}

func (r *relieve) Start() {}
func (r *relieve) Stop()  {}

func (r *relieve) Update() core.Status {
	v := r.board.Add(r.key, -r.rate)
	if v > r.done {
		return core.StatusRunning
	}
	r.board.Set(r.key, 0.0)
	return core.StatusSuccess
}
