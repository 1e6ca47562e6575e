package fsm

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/AaronLay10/decisiongraph/internal/core"
)

type countingPerception struct {
	result bool
	checks int
}

func (p *countingPerception) Start()      {}
func (p *countingPerception) Check() bool { p.checks++; return p.result }
func (p *countingPerception) Stop()       {}

type countingAction struct {
	status                 core.Status
	starts, updates, stops int
}

func (a *countingAction) Start()              { a.starts++ }
func (a *countingAction) Update() core.Status { a.updates++; return a.status }
func (a *countingAction) Stop()               { a.stops++ }

func must[T any](t *testing.T) func(T, error) T {
	return func(v T, err error) T {
		t.Helper()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return v
	}
}

func startMachine(t *testing.T, g interface{ Start() error }) {
	t.Helper()
	if err := g.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
}

func TestFirstMatchingTransitionWins(t *testing.T) {
	m := New("first-match")
	idle := must[*State](t)(m.CreateState("idle", nil))
	a := must[*State](t)(m.CreateState("a", nil))
	b := must[*State](t)(m.CreateState("b", nil))
	c := must[*State](t)(m.CreateState("c", nil))

	g1 := &countingPerception{result: false}
	g2 := &countingPerception{result: true}
	g3 := &countingPerception{result: true}
	act2, act3 := &countingAction{}, &countingAction{}

	must[*Transition](t)(m.CreateTransition("t1", idle, a, g1))
	t2 := must[*Transition](t)(m.CreateTransition("t2", idle, b, g2))
	t3 := must[*Transition](t)(m.CreateTransition("t3", idle, c, g3))
	t2.Action, t3.Action = act2, act3

	startMachine(t, m)
	if m.CurrentState() != StateNode(idle) {
		t.Fatal("expected first state to be the entry state")
	}
	m.Execute()

	if g1.checks != 1 || g2.checks != 1 || g3.checks != 0 {
		t.Errorf("checks = %d, %d, %d; want 1, 1, 0", g1.checks, g2.checks, g3.checks)
	}
	if act2.updates != 1 || act3.updates != 0 {
		t.Errorf("actions = %d, %d; want 1, 0", act2.updates, act3.updates)
	}
	if m.CurrentState() != StateNode(b) {
		t.Errorf("expected b, got %s", m.CurrentState().Base().Label())
	}
}

func TestStateActionLifecycle(t *testing.T) {
	m := New("lifecycle")
	act := &countingAction{status: core.StatusSuccess}
	s := must[*State](t)(m.CreateState("work", act))
	next := must[*State](t)(m.CreateState("next", nil))
	tr := must[*Transition](t)(m.CreateTransition("done", s, next, nil))
	tr.Flags = core.FlagSuccess

	startMachine(t, m)
	if s.Status() != core.StatusRunning || act.starts != 1 {
		t.Fatalf("expected state entered, status=%s starts=%d", s.Status(), act.starts)
	}
	m.Execute()
	if m.CurrentState() != StateNode(next) {
		t.Fatal("expected success-gated transition to fire")
	}
	if act.updates != 1 || act.stops != 1 {
		t.Errorf("expected one update and a stop, got %+v", act)
	}
	if s.Status() != core.StatusNone {
		t.Errorf("expected exited state to reset, got %s", s.Status())
	}
}

func TestStatusFlagsGateTransitions(t *testing.T) {
	m := New("gated")
	busy := must[*State](t)(m.CreateState("busy", &countingAction{status: core.StatusRunning}))
	other := must[*State](t)(m.CreateState("other", nil))
	tr := must[*Transition](t)(m.CreateTransition("t", busy, other, nil))
	tr.Flags = core.FlagFinished

	startMachine(t, m)
	for i := 0; i < 3; i++ {
		m.Execute()
	}
	if m.CurrentState() != StateNode(busy) {
		t.Error("expected transition blocked while the action runs")
	}
}

func TestExitTransition(t *testing.T) {
	m := New("exit")
	a := must[*State](t)(m.CreateState("a", nil))
	b := must[*State](t)(m.CreateState("b", nil))
	exitAct := &countingAction{}
	exit := must[*ExitTransition](t)(m.CreateExitTransition("quit", b, core.StatusFailure, core.ConstantPerception(false)))
	exit.Action = exitAct
	must[*Transition](t)(m.CreateTransition("go", a, b, nil))

	startMachine(t, m)
	if exit.Perform() {
		t.Fatal("expected exit from a non-current state to be ignored")
	}
	if !m.IsRunning() || exitAct.updates != 0 {
		t.Fatal("expected stale exit to have no effect")
	}

	m.Execute()
	if m.CurrentState() != StateNode(b) {
		t.Fatal("expected b")
	}
	if !exit.Perform() {
		t.Fatal("expected external exit to fire")
	}
	if m.IsRunning() || m.Status() != core.StatusFailure {
		t.Errorf("expected finished with failure, got %s", m.Status())
	}
	if m.CurrentState() != nil {
		t.Error("expected no current state after finishing")
	}
	if exitAct.updates != 1 {
		t.Errorf("expected transition action to run once, got %d", exitAct.updates)
	}
}

func TestUnpulledTransitionOnlyFiresExternally(t *testing.T) {
	m := New("push-only")
	a := must[*State](t)(m.CreateState("a", nil))
	b := must[*State](t)(m.CreateState("b", nil))
	tr := must[*Transition](t)(m.CreateTransition("manual", a, b, nil))
	tr.Pulled = false

	startMachine(t, m)
	m.Execute()
	if m.CurrentState() != StateNode(a) {
		t.Fatal("expected unpulled transition to be ignored by the state")
	}
	if !tr.Perform() {
		t.Fatal("expected Perform to fire")
	}
	if m.CurrentState() != StateNode(b) {
		t.Error("expected b after Perform")
	}
}

func TestProbabilisticDistribution(t *testing.T) {
	m := New("dice")
	m.SetRand(rand.New(rand.NewPCG(7, 11)))
	roll := must[*ProbabilisticState](t)(m.CreateProbabilisticState("roll", nil))
	low := must[*State](t)(m.CreateState("low", nil))
	high := must[*State](t)(m.CreateState("high", nil))
	lowAct, highAct := &countingAction{}, &countingAction{}
	toLow := must[*Transition](t)(m.CreateTransition("to-low", roll, low, nil))
	toHigh := must[*Transition](t)(m.CreateTransition("to-high", roll, high, nil))
	toLow.Action, toHigh.Action = lowAct, highAct
	must[*Transition](t)(m.CreateTransition("back-low", low, roll, nil))
	must[*Transition](t)(m.CreateTransition("back-high", high, roll, nil))

	if err := roll.SetProbability(toLow, 0.2); err != nil {
		t.Fatal(err)
	}
	if err := roll.SetProbability(toHigh, 0.8); err != nil {
		t.Fatal(err)
	}

	const draws = 100000
	startMachine(t, m)
	for i := 0; i < 2*draws; i++ {
		m.Execute()
	}
	total := float64(lowAct.updates + highAct.updates)
	if total != draws {
		t.Fatalf("expected %d draws, got %v", draws, total)
	}
	if f := float64(lowAct.updates) / total; math.Abs(f-0.2) > 0.01 {
		t.Errorf("low frequency %.4f outside 0.2±0.01", f)
	}
	if f := float64(highAct.updates) / total; math.Abs(f-0.8) > 0.01 {
		t.Errorf("high frequency %.4f outside 0.8±0.01", f)
	}
}

func TestProbabilisticResidual(t *testing.T) {
	m := New("residual")
	m.SetRand(rand.New(rand.NewPCG(3, 5)))
	roll := must[*ProbabilisticState](t)(m.CreateProbabilisticState("roll", nil))
	out := must[*State](t)(m.CreateState("out", nil))
	act := &countingAction{}
	tr := must[*Transition](t)(m.CreateTransition("rare", roll, out, nil))
	tr.Action = act
	must[*Transition](t)(m.CreateTransition("back", out, roll, nil))
	if err := roll.SetProbability(tr, 0.25); err != nil {
		t.Fatal(err)
	}

	startMachine(t, m)
	misses := 0
	for act.updates < 10000 {
		rolling := m.CurrentState() == StateNode(roll)
		m.Execute()
		if rolling && m.CurrentState() == StateNode(roll) {
			misses++
		}
	}
	if f := 10000 / float64(misses+10000); math.Abs(f-0.25) > 0.02 {
		t.Errorf("expected about a quarter of rolls to fire, got %.3f", f)
	}

	m.Stop()
	if err := roll.SetProbability(must[*Transition](t)(m.CreateTransition("stray", out, roll, nil)), 0.5); !errors.Is(err, core.ErrInvalidParameter) {
		t.Errorf("expected foreign transition rejected, got %v", err)
	}
}

func TestStackPushAndComeback(t *testing.T) {
	s := NewStack("stack")
	patrol := must[*State](t)(s.CreateState("patrol", nil))
	alarm := must[*State](t)(s.CreateState("alarm", nil))
	back := must[*State](t)(s.CreateComebackState("back"))

	raise := &countingPerception{result: true}
	must[*PushTransition](t)(s.CreatePushTransition("raise", patrol, alarm, raise))
	must[*Transition](t)(s.CreateTransition("calm", alarm, back, nil))

	startMachine(t, s)
	s.Execute()
	if s.CurrentState() != StateNode(alarm) || s.Depth() != 1 {
		t.Fatalf("expected alarm with one pushed state, depth=%d", s.Depth())
	}
	raise.result = false
	s.Execute()
	if s.CurrentState() != StateNode(back) {
		t.Fatal("expected comeback state")
	}
	s.Execute()
	if s.CurrentState() != StateNode(patrol) || s.Depth() != 0 {
		t.Errorf("expected return to patrol, depth=%d", s.Depth())
	}
}

func TestStackPopTransition(t *testing.T) {
	s := NewStack("pop")
	home := must[*State](t)(s.CreateState("home", nil))
	away := must[*State](t)(s.CreateState("away", nil))
	push := must[*PushTransition](t)(s.CreatePushTransition("leave", home, away, nil))
	push.Pulled = false
	pop := must[*PopTransition](t)(s.CreatePopTransition("return", away, nil))
	pop.Pulled = false

	startMachine(t, s)
	if pop.Perform() {
		t.Fatal("expected pop from a non-current state to be ignored")
	}
	if !push.Perform() {
		t.Fatal("expected push to fire")
	}
	if !pop.Perform() {
		t.Fatal("expected pop to fire")
	}
	if s.CurrentState() != StateNode(home) {
		t.Errorf("expected home, got %s", s.CurrentState().Base().Label())
	}
	if pop.Perform() {
		t.Error("expected pop with an empty history to be ignored")
	}
}

func TestRefusedTransitionFallsThrough(t *testing.T) {
	s := NewStack("fallthrough")
	home := must[*State](t)(s.CreateState("home", nil))
	other := must[*State](t)(s.CreateState("other", nil))
	must[*PopTransition](t)(s.CreatePopTransition("return", home, nil))
	must[*Transition](t)(s.CreateTransition("fallback", home, other, nil))

	startMachine(t, s)
	s.Execute()
	if s.CurrentState() != StateNode(other) {
		t.Errorf("expected fallback after refused pop, got %s", s.CurrentState().Base().Label())
	}
}

func TestProbabilisticSkipsUnpulledWeighted(t *testing.T) {
	m := New("unpulled-weight")
	m.SetRand(rand.New(rand.NewPCG(1, 2)))
	roll := must[*ProbabilisticState](t)(m.CreateProbabilisticState("roll", nil))
	out := must[*State](t)(m.CreateState("out", nil))
	tr := must[*Transition](t)(m.CreateTransition("manual", roll, out, nil))
	tr.Pulled = false
	if err := roll.SetProbability(tr, 1); err != nil {
		t.Fatal(err)
	}

	startMachine(t, m)
	for i := 0; i < 50; i++ {
		m.Execute()
	}
	if m.CurrentState() != StateNode(roll) {
		t.Fatal("expected unpulled weighted transition to be ignored by the draw")
	}
	if !tr.Perform() || m.CurrentState() != StateNode(out) {
		t.Error("expected Perform to fire the unpulled transition")
	}
}

func TestComebackWithEmptyHistoryFails(t *testing.T) {
	s := NewStack("empty")
	back := must[*State](t)(s.CreateComebackState("back"))
	startMachine(t, s)
	s.Execute()
	if back.Status() != core.StatusFailure || s.CurrentState() != StateNode(back) {
		t.Errorf("expected comeback to fail in place, status=%s", back.Status())
	}
}

func TestRestartReturnsToEntry(t *testing.T) {
	m := New("restart")
	a := must[*State](t)(m.CreateState("a", nil))
	b := must[*State](t)(m.CreateState("b", nil))
	must[*Transition](t)(m.CreateTransition("ab", a, b, nil))

	startMachine(t, m)
	m.Execute()
	if m.CurrentState() != StateNode(b) {
		t.Fatal("expected b")
	}
	m.Stop()
	startMachine(t, m)
	if m.Status() != core.StatusRunning || m.CurrentState() != StateNode(a) {
		t.Error("expected restart to re-enter a")
	}
}

func TestConfigurationErrors(t *testing.T) {
	m := New("empty")
	if err := m.Start(); !errors.Is(err, core.ErrNoStartNode) {
		t.Errorf("expected ErrNoStartNode, got %v", err)
	}

	m = New("dangling")
	a := must[*State](t)(m.CreateState("a", nil))
	must[*Transition](t)(m.CreateTransition("nowhere", a, nil, nil))
	if err := m.Start(); !errors.Is(err, core.ErrMissingChild) {
		t.Errorf("expected ErrMissingChild, got %v", err)
	}

	m = New("wrong-child")
	x := must[*State](t)(m.CreateState("x", nil))
	y := must[*State](t)(m.CreateState("y", nil))
	if _, err := m.Connect(x, y); !errors.Is(err, core.ErrChildType) {
		t.Errorf("expected ErrChildType, got %v", err)
	}
}

func TestExplicitEntryState(t *testing.T) {
	m := New("explicit")
	must[*State](t)(m.CreateState("a", nil))
	b := must[*State](t)(m.CreateState("b", nil))
	m.SetStartNode(b)
	startMachine(t, m)
	if m.CurrentState() != StateNode(b) {
		t.Error("expected explicit entry state")
	}
}
