package core

// Action is the leaf behaviour supplied by game logic. Start is called once when the
// owning element is entered, Update once per tick while it runs, Stop when it is left.
type Action interface {
	Start()
	Update() Status
	Stop()
}

// Perception is a boolean query supplied by game logic.
type Perception interface {
	Start()
	Check() bool
	Stop()
}

// Phase tags the lifecycle call delivered to a phase-tagged callable.
type Phase int

const (
	PhaseStart Phase = iota
	PhaseUpdate
	PhaseStop
)

func (p Phase) String() string {
	switch p {
	case PhaseStart:
		return "start"
	case PhaseUpdate:
		return "update"
	case PhaseStop:
		return "stop"
	default:
		return "unknown"
	}
}

// FunctionalAction builds an Action from optional callbacks. A nil OnUpdate
// reports Success on the first tick.
type FunctionalAction struct {
	OnStart  func()
	OnUpdate func() Status
	OnStop   func()
}

func (a *FunctionalAction) Start() {
	if a.OnStart != nil {
		a.OnStart()
	}
}

func (a *FunctionalAction) Update() Status {
	if a.OnUpdate == nil {
		return StatusSuccess
	}
	return a.OnUpdate()
}

func (a *FunctionalAction) Stop() {
	if a.OnStop != nil {
		a.OnStop()
	}
}

// UpdateFunc wraps a plain update function as an Action.
func UpdateFunc(fn func() Status) Action {
	return &FunctionalAction{OnUpdate: fn}
}

// PhaseAction is the single-function form of an Action. The Status returned for
// PhaseStart and PhaseStop is ignored.
type PhaseAction func(Phase) Status

func (f PhaseAction) Start()         { f(PhaseStart) }
func (f PhaseAction) Update() Status { return f(PhaseUpdate) }
func (f PhaseAction) Stop()          { f(PhaseStop) }

// FunctionalPerception builds a Perception from optional callbacks. A nil OnCheck
// always reports false.
type FunctionalPerception struct {
	OnStart func()
	OnCheck func() bool
	OnStop  func()
}

func (p *FunctionalPerception) Start() {
	if p.OnStart != nil {
		p.OnStart()
	}
}

func (p *FunctionalPerception) Check() bool {
	if p.OnCheck == nil {
		return false
	}
	return p.OnCheck()
}

func (p *FunctionalPerception) Stop() {
	if p.OnStop != nil {
		p.OnStop()
	}
}

// CheckFunc wraps a plain predicate as a Perception.
func CheckFunc(fn func() bool) Perception {
	return &FunctionalPerception{OnCheck: fn}
}

// PhasePerception is the single-function form of a Perception.
type PhasePerception func(Phase) bool

func (f PhasePerception) Start()      { f(PhaseStart) }
func (f PhasePerception) Check() bool { return f(PhaseUpdate) }
func (f PhasePerception) Stop()       { f(PhaseStop) }

// ConstantPerception always reports its own value.
type ConstantPerception bool

func (ConstantPerception) Start()        {}
func (c ConstantPerception) Check() bool { return bool(c) }
func (ConstantPerception) Stop()         {}

// AndPerception is true when every sub-perception is true. Checking stops at the
// first false.
type AndPerception []Perception

func And(ps ...Perception) AndPerception { return AndPerception(ps) }

func (a AndPerception) Start() {
	for _, p := range a {
		p.Start()
	}
}

func (a AndPerception) Check() bool {
	for _, p := range a {
		if !p.Check() {
			return false
		}
	}
	return true
}

func (a AndPerception) Stop() {
	for _, p := range a {
		p.Stop()
	}
}

// OrPerception is true when any sub-perception is true. Checking stops at the
// first true.
type OrPerception []Perception

func Or(ps ...Perception) OrPerception { return OrPerception(ps) }

func (o OrPerception) Start() {
	for _, p := range o {
		p.Start()
	}
}

func (o OrPerception) Check() bool {
	for _, p := range o {
		if p.Check() {
			return true
		}
	}
	return false
}

func (o OrPerception) Stop() {
	for _, p := range o {
		p.Stop()
	}
}

// NotPerception negates another perception.
type NotPerception struct {
	Perception Perception
}

func Not(p Perception) *NotPerception { return &NotPerception{Perception: p} }

func (n *NotPerception) Start()      { n.Perception.Start() }
func (n *NotPerception) Check() bool { return !n.Perception.Check() }
func (n *NotPerception) Stop()       { n.Perception.Stop() }
