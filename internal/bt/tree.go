package bt

import (
	"time"

	"github.com/AaronLay10/decisiongraph/internal/core"
)

// BehaviourTree evaluates its start node as the root once per tick and
// finishes with the root's result.
type BehaviourTree struct {
	*core.Graph
	root Node
}

// New creates an empty tree. Trees reject loops and repeated connections.
func New(name string) *BehaviourTree {
	t := &BehaviourTree{}
	t.Graph = core.NewGraph(name, t, core.Policy{}, core.Hooks{
		Start:   t.enter,
		Execute: t.tick,
		Stop:    t.exit,
	})
	return t
}

// Root returns the node entered by the last Start.
func (t *BehaviourTree) Root() Node { return t.root }

// rootNode picks the explicit start node, or else the first node without a
// parent, so trees built bottom-up with the Create helpers need no SetStartNode.
func (t *BehaviourTree) rootNode() (Node, bool) {
	if n := t.ExplicitStartNode(); n != nil {
		root, ok := n.(Node)
		return root, ok
	}
	for _, n := range t.Nodes() {
		if len(n.Base().Parents()) == 0 {
			root, ok := n.(Node)
			return root, ok
		}
	}
	return nil, false
}

func (t *BehaviourTree) enter() error {
	root, ok := t.rootNode()
	if !ok {
		return core.ErrNoStartNode
	}
	t.root = root
	startNode(root)
	return nil
}

func (t *BehaviourTree) tick() {
	if s := updateNode(t.root); s != core.StatusRunning {
		t.Finish(s)
	}
}

func (t *BehaviourTree) exit() {
	if t.root != nil {
		stopNode(t.root)
	}
}

func create[T any, P interface {
	*T
	Node
}](t *BehaviourTree, name string, children ...Node) (P, error) {
	n, err := core.CreateNode[T, P](t.Graph, name)
	if err != nil {
		return nil, err
	}
	for _, c := range children {
		if c == nil {
			continue
		}
		if _, err := t.Connect(n, c); err != nil {
			return nil, err
		}
	}
	return n, nil
}

// CreateLeaf adds a leaf running action.
func (t *BehaviourTree) CreateLeaf(name string, action core.Action) (*LeafNode, error) {
	n, err := create[LeafNode](t, name)
	if err != nil {
		return nil, err
	}
	n.Action = action
	return n, nil
}

// CreateSelector adds a selector over children, in order.
func (t *BehaviourTree) CreateSelector(name string, randomized bool, children ...Node) (*SelectorNode, error) {
	n, err := create[SelectorNode](t, name, children...)
	if err != nil {
		return nil, err
	}
	n.Randomized = randomized
	return n, nil
}

// CreateSequencer adds a sequencer over children, in order.
func (t *BehaviourTree) CreateSequencer(name string, randomized bool, children ...Node) (*SequencerNode, error) {
	n, err := create[SequencerNode](t, name, children...)
	if err != nil {
		return nil, err
	}
	n.Randomized = randomized
	return n, nil
}

func (t *BehaviourTree) CreateParallel(name string, trigger core.Status, children ...Node) (*ParallelNode, error) {
	n, err := create[ParallelNode](t, name, children...)
	if err != nil {
		return nil, err
	}
	n.TriggerStatus = trigger
	return n, nil
}

func (t *BehaviourTree) CreateInverter(name string, child Node) (*InverterNode, error) {
	return create[InverterNode](t, name, child)
}

func (t *BehaviourTree) CreateSucceeder(name string, child Node) (*SucceederNode, error) {
	return create[SucceederNode](t, name, child)
}

func (t *BehaviourTree) CreateFailer(name string, child Node) (*FailerNode, error) {
	return create[FailerNode](t, name, child)
}

func (t *BehaviourTree) CreateLoopUntil(name string, target core.Status, maxIterations int, child Node) (*LoopUntilNode, error) {
	n, err := create[LoopUntilNode](t, name, child)
	if err != nil {
		return nil, err
	}
	n.TargetStatus = target
	n.MaxIterations = maxIterations
	return n, nil
}

func (t *BehaviourTree) CreateIterator(name string, iterations int, child Node) (*IteratorNode, error) {
	n, err := create[IteratorNode](t, name, child)
	if err != nil {
		return nil, err
	}
	n.Iterations = iterations
	return n, nil
}

func (t *BehaviourTree) CreateTimer(name string, d time.Duration, child Node) (*TimerNode, error) {
	n, err := create[TimerNode](t, name, child)
	if err != nil {
		return nil, err
	}
	n.Duration = d
	return n, nil
}

func (t *BehaviourTree) CreateCondition(name string, p core.Perception, child Node) (*ConditionNode, error) {
	n, err := create[ConditionNode](t, name, child)
	if err != nil {
		return nil, err
	}
	n.Perception = p
	return n, nil
}

func (t *BehaviourTree) CreateSwitch(name string, p core.Perception, child Node) (*SwitchNode, error) {
	n, err := create[SwitchNode](t, name, child)
	if err != nil {
		return nil, err
	}
	n.Perception = p
	return n, nil
}
