package core

import (
	"errors"
	"fmt"
)

// Construction errors, returned by the call that tried to build the graph.
var (
	ErrDuplicateName      = errors.New("duplicate node name")
	ErrForeignNode        = errors.New("node does not belong to this graph")
	ErrNodeAttached       = errors.New("node already belongs to a graph")
	ErrMaxInputs          = errors.New("child has reached its maximum input connections")
	ErrMaxOutputs         = errors.New("parent has reached its maximum output connections")
	ErrChildType          = errors.New("child type not accepted by parent")
	ErrRepeatedConnection = errors.New("connection already exists")
	ErrLoop               = errors.New("connection would create a loop")
	ErrGraphRunning       = errors.New("graph cannot be modified while running")
)

// Configuration errors, reported when a graph starts.
var (
	ErrNoStartNode       = errors.New("no start node")
	ErrMissingChild      = errors.New("missing required child")
	ErrMissingAction     = errors.New("missing action")
	ErrMissingPerception = errors.New("missing perception")
	ErrEmptyCandidates   = errors.New("empty candidate list")
	ErrInvalidParameter  = errors.New("invalid parameter")
)

// ConfigError identifies the graph and node a configuration fault belongs to.
type ConfigError struct {
	Graph string
	Node  string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Node == "" {
		return fmt.Sprintf("graph %q: %v", e.Graph, e.Err)
	}
	return fmt.Sprintf("graph %q: node %q: %v", e.Graph, e.Node, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// NodeError builds a ConfigError for n. The graph name is filled in when n is attached.
func NodeError(n Node, err error) *ConfigError {
	ce := &ConfigError{Err: err}
	if n != nil {
		b := n.Base()
		ce.Node = b.Label()
		if b.graph != nil {
			ce.Graph = b.graph.name
		}
	}
	return ce
}
