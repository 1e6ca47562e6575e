package core

import (
	"slices"

	"github.com/google/uuid"
)

// Unbounded marks a connection limit with no maximum.
const Unbounded = -1

// Node is a graph vertex. Concrete node types embed NodeBase and declare their
// arity and which children they accept.
type Node interface {
	Base() *NodeBase
	MaxInputConnections() int
	MaxOutputConnections() int
	// AcceptsChild reports whether child may be connected below this node.
	AcceptsChild(child Node) bool
	// BuildConnections lets the node cache typed views of its neighbours. It is
	// called by Graph.Build after every structural change.
	BuildConnections(parents, children []Node) error
}

// Validator is implemented by nodes that can detect configuration faults before
// the graph runs.
type Validator interface {
	Validate() error
}

// NodeBase holds the identity and connections shared by every node.
type NodeBase struct {
	id      uuid.UUID
	name    string
	graph   *Graph
	inputs  []*Connection
	outputs []*Connection

	parents  []Node
	children []Node
}

// Base returns the receiver so that any type embedding NodeBase satisfies part of Node.
func (n *NodeBase) Base() *NodeBase { return n }

// ID returns the node's unique identifier, assigned when the node is added to a graph.
func (n *NodeBase) ID() uuid.UUID { return n.id }

// Name returns the node's name, which may be empty.
func (n *NodeBase) Name() string { return n.name }

// Label returns the name, or the ID when the node is unnamed.
func (n *NodeBase) Label() string {
	if n.name != "" {
		return n.name
	}
	return n.id.String()
}

// Graph returns the owning graph, or nil if the node is detached.
func (n *NodeBase) Graph() *Graph { return n.graph }

// InputConnections returns the incoming connections in creation order.
func (n *NodeBase) InputConnections() []*Connection { return n.inputs }

// OutputConnections returns the outgoing connections in creation order.
func (n *NodeBase) OutputConnections() []*Connection { return n.outputs }

// Parents returns the source of each input connection, in order.
func (n *NodeBase) Parents() []Node { return n.parents }

// Children returns the target of each output connection, in order.
func (n *NodeBase) Children() []Node { return n.children }

// IsParentOf reports whether a connection from this node to child exists.
func (n *NodeBase) IsParentOf(child Node) bool {
	return slices.Contains(n.children, child)
}

// Connection is a directed edge owned by the graph. Neither endpoint owns it.
type Connection struct {
	source Node
	target Node
}

func (c *Connection) Source() Node { return c.source }
func (c *Connection) Target() Node { return c.target }

func (n *NodeBase) attachOutput(c *Connection) {
	n.outputs = append(n.outputs, c)
	n.children = append(n.children, c.target)
}

func (n *NodeBase) attachInput(c *Connection) {
	n.inputs = append(n.inputs, c)
	n.parents = append(n.parents, c.source)
}

func (n *NodeBase) detachOutput(c *Connection) {
	if i := slices.Index(n.outputs, c); i >= 0 {
		n.outputs = slices.Delete(n.outputs, i, i+1)
		n.children = slices.Delete(n.children, i, i+1)
	}
}

func (n *NodeBase) detachInput(c *Connection) {
	if i := slices.Index(n.inputs, c); i >= 0 {
		n.inputs = slices.Delete(n.inputs, i, i+1)
		n.parents = slices.Delete(n.parents, i, i+1)
	}
}
