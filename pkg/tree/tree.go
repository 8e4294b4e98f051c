package tree

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/lagmix/lagmix/pkg/dist"
)

// Prior is the tree-depth split prior p_split(d) = Alpha * (1+d)^-Beta.
type Prior struct {
	Alpha float64
	Beta  float64
}

// Tree is one partition tree of a tree pair. Prec caches the posterior
// precision matrix of the last evaluation; it is valid only until the next
// accepted structural change and is cleared on every commit.
type Tree struct {
	Root *Node
	Prec *mat.SymDense

	staged *Node // node carrying the pending proposal, nil when none
}

// NewTree builds a single-root tree covering the rule's whole domain.
func NewTree(rule *SplitRule) *Tree {
	return &Tree{Root: &Node{Depth: 0, Rule: rule.Clone()}}
}

// Terminals lists terminal nodes in deterministic (in-order) walk order.
// With staged set, the pending proposal's shadow structure is used.
func (t *Tree) Terminals(staged bool) []*Node {
	return t.Root.terminals(staged && t.staged != nil, nil)
}

func (t *Tree) NTerminals() int {
	nt, _ := t.Root.countCommitted()
	return nt
}

// Proposed reports whether a structural proposal is currently staged.
func (t *Tree) Proposed() bool { return t.staged != nil }

// Clone deep-copies the committed structure. Node basis values and the
// precision cache are not carried over.
func (t *Tree) Clone() *Tree {
	return &Tree{Root: t.Root.clone()}
}

// ReplaceWith swaps in another tree's structure and values wholesale, used
// when a switch-exposure proposal is accepted. Invalidates the cache.
func (t *Tree) ReplaceWith(o *Tree) {
	t.Root = o.Root
	t.Prec = nil
	t.staged = nil
}

// Propose stages a grow, prune or change move and returns the structural
// Metropolis-Hastings correction. ok is false when the drawn move is
// infeasible (no valid split, or a change that breaks a descendant window);
// nothing is staged in that case.
func (t *Tree) Propose(kind Move, prior Prior, rng *dist.RNG) (stepMhr float64, ok bool) {
	switch kind {
	case MoveGrow:
		return t.proposeGrow(prior, rng)
	case MovePrune:
		return t.proposePrune(prior, rng)
	case MoveChange:
		return t.proposeChange(rng)
	}
	return 0, false
}

func (t *Tree) proposeGrow(prior Prior, rng *dist.RNG) (float64, bool) {
	terms := t.Terminals(false)
	n := terms[rng.Intn(len(terms))]
	if !n.Rule.CanSplit() {
		return 0, false
	}
	s, ok := n.Rule.DrawSplit(rng.SampleWeighted)
	if !ok {
		return 0, false
	}

	left, right := n.Rule.ChildRules(s)
	n.propKind = MoveGrow
	n.propSplit = s
	n.propC1 = &Node{Depth: n.Depth + 1, Rule: left}
	n.propC2 = &Node{Depth: n.Depth + 1, Rule: right}
	n.staged = true
	t.staged = n

	_, prunableAfter := t.Root.countStaged()
	d := n.Depth
	mhr := dist.LogPSplit(prior.Alpha, prior.Beta, d, false) +
		2*dist.LogPSplit(prior.Alpha, prior.Beta, d+1, true) -
		dist.LogPSplit(prior.Alpha, prior.Beta, d, true) +
		math.Log(float64(len(terms))) - math.Log(float64(prunableAfter))
	return mhr, true
}

func (t *Tree) proposePrune(prior Prior, rng *dist.RNG) (float64, bool) {
	prunable := t.Root.internals(true, nil)
	if len(prunable) == 0 {
		return 0, false
	}
	n := prunable[rng.Intn(len(prunable))]
	n.propKind = MovePrune
	n.staged = true
	t.staged = n

	termAfter, _ := t.Root.countStaged()
	d := n.Depth
	mhr := dist.LogPSplit(prior.Alpha, prior.Beta, d, true) -
		dist.LogPSplit(prior.Alpha, prior.Beta, d, false) -
		2*dist.LogPSplit(prior.Alpha, prior.Beta, d+1, true) +
		math.Log(float64(len(prunable))) - math.Log(float64(termAfter))
	return mhr, true
}

// proposeChange redraws an internal node's split within its own weighted
// range and rebuilds the subtree windows. The kernel is symmetric, so the
// correction is zero.
func (t *Tree) proposeChange(rng *dist.RNG) (float64, bool) {
	internals := t.Root.internals(false, nil)
	if len(internals) == 0 {
		return 0, false
	}
	n := internals[rng.Intn(len(internals))]
	s, ok := n.Rule.DrawSplit(rng.SampleWeighted)
	if !ok {
		return 0, false
	}

	left, right := n.Rule.ChildRules(s)
	c1, ok1 := n.C1.rebuildWith(left)
	c2, ok2 := n.C2.rebuildWith(right)
	if !ok1 || !ok2 {
		return 0, false
	}
	n.propKind = MoveChange
	n.propSplit = s
	n.propC1 = c1
	n.propC2 = c2
	n.staged = true
	t.staged = n
	return 0, true
}

// Accept commits the staged proposal and invalidates the precision cache.
func (t *Tree) Accept() {
	n := t.staged
	if n == nil {
		return
	}
	switch n.propKind {
	case MoveGrow:
		n.Split = n.propSplit
		n.C1, n.C2 = n.propC1, n.propC2
		n.Vals = nil
	case MovePrune:
		n.C1, n.C2 = nil, nil
	case MoveChange:
		n.Split = n.propSplit
		n.C1, n.C2 = n.propC1, n.propC2
	}
	n.propC1, n.propC2 = nil, nil
	n.staged = false
	t.staged = nil
	t.Prec = nil
}

// Reject discards the staged proposal, leaving the committed structure
// and the precision cache untouched.
func (t *Tree) Reject() {
	n := t.staged
	if n == nil {
		return
	}
	n.propC1, n.propC2 = nil, nil
	n.staged = false
	t.staged = nil
}
