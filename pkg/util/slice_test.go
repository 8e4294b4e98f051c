package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func TestIntersectAndDiff(t *testing.T) {
	tests := []struct {
		name      string
		orig      []int
		other     []int
		wantInter []int
		wantDiff  []int
	}{
		{
			name:      "basic",
			orig:      []int{1, 2, 3, 4, 5},
			other:     []int{2, 4, 6},
			wantInter: []int{2, 4},
			wantDiff:  []int{1, 3, 5},
		},
		{
			name:      "disjoint",
			orig:      []int{1, 3, 5},
			other:     []int{2, 4},
			wantInter: []int{},
			wantDiff:  []int{1, 3, 5},
		},
		{
			name:      "identical",
			orig:      []int{1, 2, 3},
			other:     []int{1, 2, 3},
			wantInter: []int{1, 2, 3},
			wantDiff:  []int{},
		},
		{
			name:      "empty orig",
			orig:      nil,
			other:     []int{1, 2},
			wantInter: nil,
			wantDiff:  nil,
		},
		{
			name:      "empty other",
			orig:      []int{7, 8},
			other:     nil,
			wantInter: nil,
			wantDiff:  []int{7, 8},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inter, diff := IntersectAndDiff(tt.orig, tt.other)
			assert.ElementsMatch(t, tt.wantInter, inter)
			assert.ElementsMatch(t, tt.wantDiff, diff)

			// inter ++ diff must reproduce orig as a multiset
			merged := append(append([]int{}, inter...), diff...)
			assert.ElementsMatch(t, tt.orig, merged)
		})
	}
}

func TestIntersectSorted(t *testing.T) {
	assert.Equal(t, []int{2, 4}, IntersectSorted([]int{1, 2, 3, 4, 5}, []int{2, 4, 6}))
	assert.Empty(t, IntersectSorted([]int{1}, []int{2}))
}

func TestSelectInd(t *testing.T) {
	v := mat.NewVecDense(5, []float64{10, 11, 12, 13, 14})
	got := SelectInd(v, []int{0, 2, 4})
	assert.Equal(t, []float64{10, 12, 14}, got.RawVector().Data)
}

func TestSelectRows(t *testing.T) {
	m := mat.NewDense(3, 2, []float64{1, 2, 3, 4, 5, 6})
	got := SelectRows(m, []int{2, 0})
	assert.Equal(t, 5.0, got.At(0, 0))
	assert.Equal(t, 6.0, got.At(0, 1))
	assert.Equal(t, 1.0, got.At(1, 0))
	assert.Equal(t, 2.0, got.At(1, 1))
}
