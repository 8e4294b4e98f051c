package tree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lagmix/lagmix/pkg/dist"
)

func uniformProbs(n int) []float64 {
	p := make([]float64, n)
	for i := range p {
		p[i] = 1.0 / float64(n)
	}
	return p
}

func testRule(nSplits, nLags int) *SplitRule {
	return NewRootRule(0, nSplits+1, uniformProbs(nSplits), uniformProbs(nLags))
}

// coverage marks every (exposure position, time) cell covered by the
// terminal windows and fails on overlap.
func coverage(t *testing.T, tr *Tree, staged bool, xmax, tmax int) map[[2]int]int {
	t.Helper()
	cells := map[[2]int]int{}
	for _, n := range tr.Terminals(staged) {
		r := n.Rule
		for x := r.XMin + 1; x <= r.XMax; x++ {
			for tt := r.TMin; tt <= r.TMax; tt++ {
				cells[[2]int{x, tt}]++
			}
		}
	}
	for cell, c := range cells {
		require.Equal(t, 1, c, "cell %v covered %d times", cell, c)
	}
	require.Len(t, cells, xmax*tmax)
	return cells
}

func TestPartitionInvariant(t *testing.T) {
	rng := dist.New(99)
	prior := Prior{Alpha: 0.95, Beta: 2}
	tr := NewTree(testRule(0, 12))

	moves := []Move{MoveGrow, MovePrune, MoveChange}
	for i := 0; i < 500; i++ {
		kind := moves[rng.Intn(3)]
		if tr.NTerminals() == 1 {
			kind = MoveGrow
		}
		_, ok := tr.Propose(kind, prior, rng)
		if !ok {
			continue
		}
		// staged view partitions the domain too
		coverage(t, tr, true, 1, 12)
		if rng.Uniform() < 0.5 {
			tr.Accept()
		} else {
			tr.Reject()
		}
		coverage(t, tr, false, 1, 12)
	}
}

func TestGrowAcceptReject(t *testing.T) {
	rng := dist.New(1)
	prior := Prior{Alpha: 0.95, Beta: 2}
	tr := NewTree(testRule(0, 8))

	mhr, ok := tr.Propose(MoveGrow, prior, rng)
	require.True(t, ok)
	assert.True(t, tr.Proposed())
	assert.False(t, mhr == 0)

	// staged view has two terminals, committed view still one
	assert.Len(t, tr.Terminals(true), 2)
	assert.Len(t, tr.Terminals(false), 1)

	tr.Reject()
	assert.False(t, tr.Proposed())
	assert.Equal(t, 1, tr.NTerminals())

	_, ok = tr.Propose(MoveGrow, prior, rng)
	require.True(t, ok)
	tr.Accept()
	assert.Equal(t, 2, tr.NTerminals())

	// children windows partition the parent window
	terms := tr.Terminals(false)
	require.Len(t, terms, 2)
	assert.Equal(t, 1, terms[0].Rule.TimeMin())
	assert.Equal(t, 8, terms[1].Rule.TimeMax())
	assert.Equal(t, terms[0].Rule.TimeMax()+1, terms[1].Rule.TimeMin())
}

func TestPruneInvertsGrow(t *testing.T) {
	rng := dist.New(3)
	prior := Prior{Alpha: 0.95, Beta: 2}
	tr := NewTree(testRule(0, 10))

	_, ok := tr.Propose(MoveGrow, prior, rng)
	require.True(t, ok)
	tr.Accept()
	require.Equal(t, 2, tr.NTerminals())

	_, ok = tr.Propose(MovePrune, prior, rng)
	require.True(t, ok)
	assert.Len(t, tr.Terminals(true), 1)
	tr.Accept()
	assert.Equal(t, 1, tr.NTerminals())
	assert.Equal(t, 1, tr.Root.Rule.TimeMin())
	assert.Equal(t, 10, tr.Root.Rule.TimeMax())
}

func TestGrowExhaustedWindow(t *testing.T) {
	rng := dist.New(5)
	prior := Prior{Alpha: 0.95, Beta: 2}
	// a single lag admits no time split at all
	tr := NewTree(testRule(0, 1))

	_, ok := tr.Propose(MoveGrow, prior, rng)
	assert.False(t, ok)
	assert.False(t, tr.Proposed())
}

func TestPruneOnStumpInfeasible(t *testing.T) {
	rng := dist.New(5)
	tr := NewTree(testRule(0, 6))
	_, ok := tr.Propose(MovePrune, Prior{Alpha: 0.95, Beta: 2}, rng)
	assert.False(t, ok)
	_, ok = tr.Propose(MoveChange, Prior{Alpha: 0.95, Beta: 2}, rng)
	assert.False(t, ok)
}

func TestCloneIndependence(t *testing.T) {
	rng := dist.New(11)
	prior := Prior{Alpha: 0.95, Beta: 2}
	tr := NewTree(testRule(0, 9))
	for i := 0; i < 4; i++ {
		if _, ok := tr.Propose(MoveGrow, prior, rng); ok {
			tr.Accept()
		}
	}

	c := tr.Clone()
	require.Equal(t, tr.NTerminals(), c.NTerminals())

	// mutating the clone must not disturb the original
	before := tr.NTerminals()
	if _, ok := c.Propose(MoveGrow, prior, rng); ok {
		c.Accept()
	}
	assert.Equal(t, before, tr.NTerminals())

	// cloned rules are value copies
	ct := c.Terminals(false)
	ot := tr.Terminals(false)
	ct[0].Rule.TMax = 999
	assert.NotEqual(t, 999, ot[0].Rule.TMax)
}

func TestStagedCounts(t *testing.T) {
	rng := dist.New(21)
	prior := Prior{Alpha: 0.95, Beta: 2}
	tr := NewTree(testRule(0, 16))
	for i := 0; i < 3; i++ {
		if _, ok := tr.Propose(MoveGrow, prior, rng); ok {
			tr.Accept()
		}
	}

	nTerm := tr.NTerminals()
	if _, ok := tr.Propose(MoveGrow, prior, rng); ok {
		st, _ := tr.Root.countStaged()
		assert.Equal(t, nTerm+1, st)
		tr.Reject()
	}
}
