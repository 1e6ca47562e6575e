package bt

import "github.com/AaronLay10/decisiongraph/internal/core"

// ParallelNode advances every child each tick. It reports TriggerStatus as
// soon as one child reaches it and the opposite once all children finish
// without doing so. Any child error is reported first.
type ParallelNode struct {
	composite
	TriggerStatus core.Status
}

func (n *ParallelNode) SetDefaults() { n.TriggerStatus = core.StatusFailure }

func (n *ParallelNode) Validate() error {
	if err := n.composite.Validate(); err != nil {
		return err
	}
	if n.TriggerStatus != core.StatusSuccess && n.TriggerStatus != core.StatusFailure {
		return core.NodeError(n, core.ErrInvalidParameter)
	}
	return nil
}

func (n *ParallelNode) onStart() {
	for _, c := range n.children {
		startNode(c)
	}
}

func (n *ParallelNode) onUpdate() core.Status {
	if len(n.children) == 0 {
		return core.StatusError
	}
	var failed, triggered, running bool
	for _, c := range n.children {
		switch updateNode(c) {
		case core.StatusError:
			failed = true
		case n.TriggerStatus:
			triggered = true
		case core.StatusRunning:
			running = true
		}
	}
	switch {
	case failed:
		return core.StatusError
	case triggered:
		return n.TriggerStatus
	case !running:
		return n.TriggerStatus.Inverted()
	default:
		return core.StatusRunning
	}
}

func (n *ParallelNode) onStop() {
	for _, c := range n.children {
		stopNode(c)
	}
}
