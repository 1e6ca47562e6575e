package bt

import "github.com/AaronLay10/decisiongraph/internal/core"

// LeafNode runs one external Action.
type LeafNode struct {
	nodeBase
	Action core.Action
}

func (n *LeafNode) MaxOutputConnections() int { return 0 }

func (n *LeafNode) Validate() error {
	if n.Action == nil {
		return core.NodeError(n, core.ErrMissingAction)
	}
	return nil
}

func (n *LeafNode) onStart() {
	if n.Action != nil {
		n.Action.Start()
	}
}

func (n *LeafNode) onUpdate() core.Status {
	if n.Action == nil {
		return core.StatusError
	}
	return n.Action.Update()
}

func (n *LeafNode) onStop() {
	if n.Action != nil {
		n.Action.Stop()
	}
}
