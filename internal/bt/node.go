// Package bt implements behaviour trees on top of the core graph model.
package bt

import (
	"github.com/AaronLay10/decisiongraph/internal/core"
)

// Node is a behaviour tree vertex. All tree nodes embed nodeBase, which keeps
// the cached status and tree-shape rules; concrete types supply the hooks.
type Node interface {
	core.Node
	Status() core.Status
	state() *nodeBase
	onStart()
	onUpdate() core.Status
	onStop()
}

type nodeBase struct {
	core.NodeBase
	status core.Status
}

func (n *nodeBase) state() *nodeBase { return n }

// Status returns the result of the node's last lifecycle call.
func (n *nodeBase) Status() core.Status { return n.status }

// Every node but the root has exactly one parent.
func (n *nodeBase) MaxInputConnections() int { return 1 }

func (n *nodeBase) AcceptsChild(child core.Node) bool {
	_, ok := child.(Node)
	return ok
}

func (n *nodeBase) BuildConnections(parents, children []core.Node) error { return nil }

func startNode(n Node) {
	b := n.state()
	b.status = core.StatusRunning
	n.onStart()
}

// updateNode ticks n. Finished nodes keep reporting their result until restarted.
func updateNode(n Node) core.Status {
	b := n.state()
	if b.status != core.StatusRunning {
		return b.status
	}
	b.status = n.onUpdate()
	return b.status
}

func stopNode(n Node) {
	b := n.state()
	if b.status == core.StatusNone {
		return
	}
	n.onStop()
	b.status = core.StatusNone
}

func restartNode(n Node) {
	stopNode(n)
	startNode(n)
}

func asNodes(children []core.Node) []Node {
	out := make([]Node, 0, len(children))
	for _, c := range children {
		out = append(out, c.(Node))
	}
	return out
}
