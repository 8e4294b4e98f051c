package tree

// NodeVals is the cached basis block of a terminal node: the design column
// for the node's window and its cross-product with the fixed-effects design.
// Filled by the exposure provider; nil until then.
type NodeVals struct {
	X   []float64
	ZtX []float64
}

// Move is a structural proposal type.
type Move int

const (
	MoveGrow Move = iota
	MovePrune
	MoveChange
	MoveSwitch // whole-tree exposure switch, not a local structural move
)

func (m Move) String() string {
	switch m {
	case MoveGrow:
		return "grow"
	case MovePrune:
		return "prune"
	case MoveChange:
		return "change"
	case MoveSwitch:
		return "switch"
	}
	return "unknown"
}

// Node is one vertex of a partition tree. A node is terminal when C1 is nil.
// During a proposal a node may carry a staged shadow subtree (propC1/propC2,
// propSplit) which becomes authoritative only on Accept.
type Node struct {
	Depth int
	Rule  *SplitRule
	Split Split // the committed split; meaningful only for internal nodes
	C1    *Node
	C2    *Node
	Vals  *NodeVals

	propKind  Move
	propC1    *Node
	propC2    *Node
	propSplit Split
	staged    bool
}

func (n *Node) Terminal() bool { return n.C1 == nil }

// terminals appends the node's terminal descendants in order. When useStaged
// is set, the staged shadow structure overrides the committed one at the node
// where a proposal is pending.
func (n *Node) terminals(useStaged bool, out []*Node) []*Node {
	if useStaged && n.staged {
		switch n.propKind {
		case MoveGrow:
			return append(out, n.propC1, n.propC2)
		case MovePrune:
			return append(out, n)
		case MoveChange:
			out = n.propC1.terminals(false, out)
			return n.propC2.terminals(false, out)
		}
	}
	if n.Terminal() {
		return append(out, n)
	}
	out = n.C1.terminals(useStaged, out)
	return n.C2.terminals(useStaged, out)
}

// internals appends internal nodes; when prunableOnly is set, only those
// whose both children are terminal.
func (n *Node) internals(prunableOnly bool, out []*Node) []*Node {
	if n.Terminal() {
		return out
	}
	if !prunableOnly || (n.C1.Terminal() && n.C2.Terminal()) {
		out = append(out, n)
	}
	out = n.C1.internals(prunableOnly, out)
	return n.C2.internals(prunableOnly, out)
}

// countStaged walks the staged view and returns terminal and prunable counts.
func (n *Node) countStaged() (nTerm, nPrunable int) {
	if n.staged {
		switch n.propKind {
		case MoveGrow:
			return 2, 1
		case MovePrune:
			return 1, 0
		case MoveChange:
			t1, p1 := n.propC1.countCommitted()
			t2, p2 := n.propC2.countCommitted()
			return t1 + t2, p1 + p2 + boolToInt(t1 == 1 && t2 == 1)
		}
	}
	if n.Terminal() {
		return 1, 0
	}
	t1, p1 := n.C1.countStaged()
	t2, p2 := n.C2.countStaged()
	return t1 + t2, p1 + p2 + boolToInt(t1 == 1 && t2 == 1)
}

func (n *Node) countCommitted() (nTerm, nPrunable int) {
	if n.Terminal() {
		return 1, 0
	}
	t1, p1 := n.C1.countCommitted()
	t2, p2 := n.C2.countCommitted()
	return t1 + t2, p1 + p2 + boolToInt(t1 == 1 && t2 == 1)
}

// clone deep-copies the committed structure. Basis values are not copied;
// the caller reassigns them through an exposure provider.
func (n *Node) clone() *Node {
	c := &Node{
		Depth: n.Depth,
		Rule:  n.Rule.Clone(),
		Split: n.Split,
	}
	if !n.Terminal() {
		c.C1 = n.C1.clone()
		c.C2 = n.C2.clone()
	}
	return c
}

// rebuildWith copies the committed subtree under a replacement rule,
// re-deriving every descendant window. Returns false when a committed split
// falls outside its new window, which makes the proposal infeasible.
func (n *Node) rebuildWith(rule *SplitRule) (*Node, bool) {
	c := &Node{Depth: n.Depth, Rule: rule}
	if n.Terminal() {
		return c, true
	}
	if !rule.Contains(n.Split) {
		return nil, false
	}
	c.Split = n.Split
	left, right := rule.ChildRules(n.Split)
	var ok bool
	if c.C1, ok = n.C1.rebuildWith(left); !ok {
		return nil, false
	}
	if c.C2, ok = n.C2.rebuildWith(right); !ok {
		return nil, false
	}
	return c, true
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
