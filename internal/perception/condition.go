// Package perception provides perceptions backed by blackboard expressions
// and the graph clock.
package perception

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/AaronLay10/decisiongraph/internal/blackboard"
	"github.com/AaronLay10/decisiongraph/internal/core"
)

// Condition evaluates a boolean expression against a blackboard snapshot.
// Blackboard keys are the expression's variables; unknown keys are nil.
//
// Supported expressions include anything expr-lang accepts, e.g.:
//   - "" (always true)
//   - "hp < 30"
//   - "alert && distance <= 5"
//   - "target != nil and target in visible"
type Condition struct {
	source  string
	program *vm.Program
	board   *blackboard.Blackboard
	lastErr error
}

// Compile parses source once. Evaluation errors at Check time report false.
func Compile(source string, board *blackboard.Blackboard) (*Condition, error) {
	source = strings.TrimSpace(source)
	c := &Condition{source: source, board: board}
	if source == "" {
		return c, nil
	}
	program, err := expr.Compile(source, expr.AsBool(), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("compile condition %q: %w", source, err)
	}
	c.program = program
	return c, nil
}

// MustCompile is Compile for fixed expressions known to be valid.
func MustCompile(source string, board *blackboard.Blackboard) *Condition {
	c, err := Compile(source, board)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Condition) String() string { return c.source }

func (c *Condition) Start() {}
func (c *Condition) Stop()  {}

func (c *Condition) Check() bool {
	c.lastErr = nil
	if c.program == nil {
		return true
	}
	env := map[string]any{}
	if c.board != nil {
		env = c.board.Snapshot()
	}
	out, err := expr.Run(c.program, env)
	if err != nil {
		c.lastErr = err
		slog.Debug("condition evaluation failed", "expression", c.source, "error", err)
		return false
	}
	b, _ := out.(bool)
	return b
}

// LastError returns the evaluation error of the last Check, if any.
func (c *Condition) LastError() error { return c.lastErr }

// Timer becomes true once Duration has elapsed on Clock since Start. It must
// be restarted to fire again.
type Timer struct {
	Duration time.Duration
	Clock    core.Clock

	startedAt time.Time
	running   bool
}

// NewTimer returns a timer reading clock, or the system clock when nil.
func NewTimer(d time.Duration, clock core.Clock) *Timer {
	if clock == nil {
		clock = core.SystemClock{}
	}
	return &Timer{Duration: d, Clock: clock}
}

func (t *Timer) Start() {
	t.startedAt = t.Clock.Now()
	t.running = true
}

func (t *Timer) Check() bool {
	return t.running && t.Clock.Now().Sub(t.startedAt) >= t.Duration
}

func (t *Timer) Stop() { t.running = false }

// Elapsed returns the time since Start, or zero when stopped.
func (t *Timer) Elapsed() time.Duration {
	if !t.running {
		return 0
	}
	return t.Clock.Now().Sub(t.startedAt)
}

// Key is true while the blackboard holds true under key.
type Key struct {
	Board *blackboard.Blackboard
	Name  string
}

func (k Key) Start()      {}
func (k Key) Check() bool { return k.Board.Bool(k.Name) }
func (k Key) Stop()       {}

var (
	_ core.Perception = (*Condition)(nil)
	_ core.Perception = (*Timer)(nil)
	_ core.Perception = Key{}
)
