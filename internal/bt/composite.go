package bt

import "github.com/AaronLay10/decisiongraph/internal/core"

type composite struct {
	nodeBase
	children []Node
}

func (c *composite) MaxOutputConnections() int { return core.Unbounded }

func (c *composite) BuildConnections(parents, children []core.Node) error {
	c.children = asNodes(children)
	return nil
}

// ChildNodes returns the children in connection order.
func (c *composite) ChildNodes() []Node { return c.children }

func (c *composite) Validate() error {
	if len(c.children) == 0 {
		return core.NodeError(c, core.ErrMissingChild)
	}
	return nil
}

// serialComposite runs its children one at a time. It moves to the next child
// while the current one finishes with keepExecuting.
type serialComposite struct {
	composite
	// Randomized shuffles the child order every time the node starts.
	Randomized bool

	keepExecuting core.Status
	order         []int
	idx           int
}

func (c *serialComposite) current() Node { return c.children[c.order[c.idx]] }

func (c *serialComposite) onStart() {
	if len(c.children) == 0 {
		return
	}
	c.idx = 0
	c.order = c.order[:0]
	for i := range c.children {
		c.order = append(c.order, i)
	}
	if c.Randomized {
		c.Graph().Rand().Shuffle(len(c.order), func(i, j int) {
			c.order[i], c.order[j] = c.order[j], c.order[i]
		})
	}
	startNode(c.current())
}

func (c *serialComposite) onUpdate() core.Status {
	if len(c.children) == 0 {
		return core.StatusError
	}
	child := c.current()
	s := updateNode(child)
	if s == c.keepExecuting && c.idx+1 < len(c.order) {
		stopNode(child)
		c.idx++
		startNode(c.current())
		return core.StatusRunning
	}
	return s
}

func (c *serialComposite) onStop() {
	if len(c.order) > 0 {
		stopNode(c.current())
	}
}

// SelectorNode succeeds with the first child that does not fail.
type SelectorNode struct{ serialComposite }

func (n *SelectorNode) SetDefaults() { n.keepExecuting = core.StatusFailure }

// SequencerNode fails with the first child that does not succeed.
type SequencerNode struct{ serialComposite }

func (n *SequencerNode) SetDefaults() { n.keepExecuting = core.StatusSuccess }
