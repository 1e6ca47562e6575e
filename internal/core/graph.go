package core

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"

	"github.com/google/uuid"
)

// Executable is anything that can be driven once per tick by an owner.
// Graphs implement it; EnterGraphAction and the runner consume it.
type Executable interface {
	Start() error
	Execute()
	Stop()
	Status() Status
}

// Tracer receives lifecycle trace events. events.Bus implements it.
type Tracer interface {
	Emit(level, name, msg string, fields map[string]any) error
}

// Policy holds the graph-shape rules of a paradigm.
type Policy struct {
	CanRepeatConnection bool
	CanCreateLoops      bool
}

// Hooks are the paradigm-specific parts of the graph lifecycle.
type Hooks struct {
	// Start enters the paradigm (root, entry state, candidate set).
	Start func() error
	// Execute runs one tick. It may call Graph.Finish.
	Execute func()
	// Stop propagates Stop to the active sub-elements.
	Stop func()
}

type lifecycle int

const (
	unstarted lifecycle = iota
	running
	finished
)

// Graph is the aggregate root that owns every node and connection. Paradigms
// (behaviour tree, state machine, utility system) embed it and supply Hooks.
type Graph struct {
	id     uuid.UUID
	name   string
	owner  any
	policy Policy
	hooks  Hooks

	nodes       []Node
	names       map[string]Node
	connections []*Connection
	startNode   Node
	dirty       bool

	state  lifecycle
	status Status
	err    error

	clock  Clock
	rng    *rand.Rand
	tracer Tracer
	logger *slog.Logger
}

// NewGraph creates an empty graph. owner is the paradigm value embedding the graph
// and is what nodes reach through Owner.
func NewGraph(name string, owner any, policy Policy, hooks Hooks) *Graph {
	id := uuid.New()
	return &Graph{
		id:     id,
		name:   name,
		owner:  owner,
		policy: policy,
		hooks:  hooks,
		names:  make(map[string]Node),
		clock:  SystemClock{},
		rng:    rand.New(rand.NewPCG(binary.LittleEndian.Uint64(id[:8]), binary.LittleEndian.Uint64(id[8:]))),
	}
}

func (g *Graph) ID() uuid.UUID  { return g.id }
func (g *Graph) Name() string   { return g.name }
func (g *Graph) Owner() any     { return g.owner }
func (g *Graph) Policy() Policy { return g.policy }

// Status returns the result of the last lifecycle call.
func (g *Graph) Status() Status { return g.status }

// IsRunning reports whether the graph has been started and not finished or stopped.
func (g *Graph) IsRunning() bool { return g.state == running }

// Err returns the configuration or runtime fault that put the graph in Error, if any.
func (g *Graph) Err() error { return g.err }

func (g *Graph) Clock() Clock { return g.clock }

// SetClock replaces the time source used by timer nodes and perceptions.
func (g *Graph) SetClock(c Clock) {
	if c == nil {
		c = SystemClock{}
	}
	g.clock = c
}

func (g *Graph) Rand() *rand.Rand { return g.rng }

// SetRand replaces the random source used for shuffling and probabilistic choices.
func (g *Graph) SetRand(r *rand.Rand) {
	if r != nil {
		g.rng = r
	}
}

func (g *Graph) SetTracer(t Tracer) { g.tracer = t }

// Tracing reports whether a tracer is attached, so callers can skip building
// event fields otherwise.
func (g *Graph) Tracing() bool { return g.tracer != nil }

func (g *Graph) SetLogger(l *slog.Logger) { g.logger = l }

func (g *Graph) Logger() *slog.Logger {
	if g.logger == nil {
		return slog.Default()
	}
	return g.logger
}

// Trace emits a lifecycle event when a tracer is attached. The graph name is
// added to fields.
func (g *Graph) Trace(name string, fields map[string]any) {
	if g.tracer == nil {
		return
	}
	if fields == nil {
		fields = make(map[string]any, 1)
	}
	fields["graph"] = g.name
	if err := g.tracer.Emit("info", name, "", fields); err != nil {
		g.Logger().Debug("trace emit failed", "graph", g.name, "event", name, "error", err)
	}
}

// Nodes returns the nodes in insertion order.
func (g *Graph) Nodes() []Node { return g.nodes }

// Connections returns the connections in creation order.
func (g *Graph) Connections() []*Connection { return g.connections }

// FindNode returns the node registered under name, or nil.
func (g *Graph) FindNode(name string) Node { return g.names[name] }

// Contains reports whether n belongs to this graph.
func (g *Graph) Contains(n Node) bool {
	return n != nil && n.Base().graph == g
}

// AddNode registers n under name. Names must be unique when not empty.
func (g *Graph) AddNode(n Node, name string) error {
	if g.state == running {
		return ErrGraphRunning
	}
	b := n.Base()
	if b.graph != nil {
		return fmt.Errorf("%w: %s", ErrNodeAttached, b.Label())
	}
	if name != "" {
		if _, ok := g.names[name]; ok {
			return &ConfigError{Graph: g.name, Node: name, Err: ErrDuplicateName}
		}
		g.names[name] = n
	}
	b.id = uuid.New()
	b.name = name
	b.graph = g
	g.nodes = append(g.nodes, n)
	g.dirty = true
	return nil
}

// Defaulter is implemented by nodes whose zero value needs initialising.
type Defaulter interface {
	SetDefaults()
}

// CreateNode allocates a node of type T, applies its defaults and adds it to g.
func CreateNode[T any, P interface {
	*T
	Node
}](g *Graph, name string) (P, error) {
	n := P(new(T))
	if d, ok := any(n).(Defaulter); ok {
		d.SetDefaults()
	}
	if err := g.AddNode(n, name); err != nil {
		return nil, err
	}
	return n, nil
}

// Connect creates a connection from parent to child after checking ownership,
// arity, child type and the graph's shape policy.
func (g *Graph) Connect(parent, child Node) (*Connection, error) {
	if g.state == running {
		return nil, ErrGraphRunning
	}
	if !g.Contains(parent) || !g.Contains(child) {
		return nil, ErrForeignNode
	}
	pb, cb := parent.Base(), child.Base()
	if limit := parent.MaxOutputConnections(); limit != Unbounded && len(pb.outputs) >= limit {
		return nil, NodeError(parent, ErrMaxOutputs)
	}
	if limit := child.MaxInputConnections(); limit != Unbounded && len(cb.inputs) >= limit {
		return nil, NodeError(child, ErrMaxInputs)
	}
	if !parent.AcceptsChild(child) {
		return nil, &ConfigError{Graph: g.name, Node: pb.Label(), Err: fmt.Errorf("%w: %T", ErrChildType, child)}
	}
	if !g.policy.CanRepeatConnection && pb.IsParentOf(child) {
		return nil, NodeError(parent, ErrRepeatedConnection)
	}
	if !g.policy.CanCreateLoops && (parent == child || g.reaches(child, parent)) {
		return nil, NodeError(parent, ErrLoop)
	}

	c := &Connection{source: parent, target: child}
	pb.attachOutput(c)
	cb.attachInput(c)
	g.connections = append(g.connections, c)
	g.dirty = true
	refresh(parent, child)
	return c, nil
}

// refresh rebuilds the typed neighbour views of the given nodes so accessors
// reflect a connection change before the next Build. Errors are left for
// Build to report at Start, which still runs because the graph stays dirty.
func refresh(nodes ...Node) {
	for _, n := range nodes {
		b := n.Base()
		_ = n.BuildConnections(b.parents, b.children)
	}
}

// reaches reports whether to is reachable from from by following outputs.
func (g *Graph) reaches(from, to Node) bool {
	visited := make(map[Node]bool)
	stack := []Node{from}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == to {
			return true
		}
		if visited[n] {
			continue
		}
		visited[n] = true
		stack = append(stack, n.Base().children...)
	}
	return false
}

// RemoveConnection detaches c from both endpoints and forgets it.
func (g *Graph) RemoveConnection(c *Connection) error {
	if g.state == running {
		return ErrGraphRunning
	}
	i := slices.Index(g.connections, c)
	if i < 0 {
		return ErrForeignNode
	}
	c.source.Base().detachOutput(c)
	c.target.Base().detachInput(c)
	g.connections = slices.Delete(g.connections, i, i+1)
	g.dirty = true
	refresh(c.source, c.target)
	return nil
}

// RemoveNode disconnects every connection attached to n and removes it.
func (g *Graph) RemoveNode(n Node) error {
	if g.state == running {
		return ErrGraphRunning
	}
	if !g.Contains(n) {
		return ErrForeignNode
	}
	b := n.Base()
	for _, c := range slices.Clone(b.inputs) {
		if err := g.RemoveConnection(c); err != nil {
			return err
		}
	}
	for _, c := range slices.Clone(b.outputs) {
		if err := g.RemoveConnection(c); err != nil {
			return err
		}
	}
	if i := slices.Index(g.nodes, n); i >= 0 {
		g.nodes = slices.Delete(g.nodes, i, i+1)
	}
	if b.name != "" {
		delete(g.names, b.name)
	}
	if g.startNode == n {
		g.startNode = nil
	}
	b.graph = nil
	g.dirty = true
	return nil
}

// SetStartNode designates the entry node. It fails if n is not part of the graph.
func (g *Graph) SetStartNode(n Node) bool {
	if !g.Contains(n) {
		return false
	}
	g.startNode = n
	return true
}

// StartNode returns the designated start node, or the first node added when none
// was designated.
func (g *Graph) StartNode() Node {
	if g.startNode != nil {
		return g.startNode
	}
	if len(g.nodes) > 0 {
		return g.nodes[0]
	}
	return nil
}

// ExplicitStartNode returns only a start node set through SetStartNode.
func (g *Graph) ExplicitStartNode() Node { return g.startNode }

// Build resolves every node's typed neighbour views. Start calls it automatically
// after structural changes.
func (g *Graph) Build() error {
	var errs []error
	for _, n := range g.nodes {
		b := n.Base()
		if err := n.BuildConnections(b.parents, b.children); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	g.dirty = false
	return nil
}

func (g *Graph) validate() error {
	var errs []error
	for _, n := range g.nodes {
		if v, ok := n.(Validator); ok {
			if err := v.Validate(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Start enters the graph. Starting a running graph does nothing; starting a
// finished graph restarts it. Configuration faults are returned and leave the
// graph finished with StatusError.
func (g *Graph) Start() error {
	switch g.state {
	case running:
		return nil
	case finished:
		g.state = unstarted
	}
	g.err = nil

	if g.dirty {
		if err := g.Build(); err != nil {
			return g.failStart(err)
		}
	}
	if err := g.validate(); err != nil {
		return g.failStart(err)
	}

	g.state = running
	g.status = StatusRunning
	if g.hooks.Start != nil {
		if err := g.hooks.Start(); err != nil {
			if g.hooks.Stop != nil {
				g.hooks.Stop()
			}
			return g.failStart(err)
		}
	}
	g.Trace("graph.started", nil)
	return nil
}

func (g *Graph) failStart(err error) error {
	var ce *ConfigError
	if !errors.As(err, &ce) {
		err = &ConfigError{Graph: g.name, Err: err}
	}
	g.state = finished
	g.status = StatusError
	g.err = err
	g.Logger().Warn("graph failed to start", "graph", g.name, "error", err)
	g.Trace("graph.error", map[string]any{"error": err.Error()})
	return err
}

// Execute runs one tick. It is a no-op unless the graph is running.
func (g *Graph) Execute() {
	if g.state != running || g.hooks.Execute == nil {
		return
	}
	g.hooks.Execute()
}

// Update runs one tick and returns the resulting status.
func (g *Graph) Update() Status {
	g.Execute()
	return g.status
}

// Finish ends a running graph with status s and stops its active elements.
func (g *Graph) Finish(s Status) {
	if g.state != running {
		return
	}
	g.state = finished
	g.status = s
	if g.hooks.Stop != nil {
		g.hooks.Stop()
	}
	g.Logger().Debug("graph finished", "graph", g.name, "status", s.String())
	g.Trace("graph.finished", map[string]any{"status": s.String()})
}

// Stop forces termination from any state and leaves the graph ready to Start again.
func (g *Graph) Stop() {
	switch g.state {
	case running:
		g.state = unstarted
		if g.hooks.Stop != nil {
			g.hooks.Stop()
		}
		g.Trace("graph.stopped", nil)
	case finished:
		g.state = unstarted
	}
	g.status = StatusNone
}

// ReportError records a fault found while ticking. The first fault is kept.
func (g *Graph) ReportError(err error) {
	if err == nil {
		return
	}
	if g.err == nil {
		g.err = err
	}
	g.Logger().Warn("graph runtime error", "graph", g.name, "error", err)
}
