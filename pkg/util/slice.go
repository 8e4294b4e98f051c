package util

import "gonum.org/v1/gonum/mat"

// IntersectAndDiff splits orig into the elements shared with other and the
// elements unique to orig, in one pass. Both inputs must be sorted ascending.
// The two results, merged, always reproduce orig.
func IntersectAndDiff(orig, other []int) (inter, diff []int) {
	if len(orig) == 0 {
		return nil, nil
	}
	if len(other) == 0 {
		return nil, append([]int(nil), orig...)
	}

	inter = make([]int, 0, len(other))
	diff = make([]int, 0, len(orig))

	i, j := 0, 0
	for i < len(orig) {
		switch {
		case orig[i] < other[j]:
			diff = append(diff, orig[i])
			i++
			continue
		case orig[i] == other[j]:
			inter = append(inter, orig[i])
			i++
			j++
		default:
			j++
		}
		if j == len(other) {
			diff = append(diff, orig[i:]...)
			break
		}
	}
	return inter, diff
}

// IntersectSorted returns the intersection of two sorted int slices.
func IntersectSorted(a, b []int) []int {
	out := make([]int, 0, min(len(a), len(b)))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			i++
		case a[i] > b[j]:
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	return out
}

// SelectInd returns the subvector of v at the given indices.
func SelectInd(v *mat.VecDense, idx []int) *mat.VecDense {
	out := mat.NewVecDense(len(idx), nil)
	for i, j := range idx {
		out.SetVec(i, v.AtVec(j))
	}
	return out
}

// SelectRows returns the submatrix of m containing the given rows.
func SelectRows(m *mat.Dense, idx []int) *mat.Dense {
	_, c := m.Dims()
	out := mat.NewDense(len(idx), c, nil)
	for i, j := range idx {
		for k := 0; k < c; k++ {
			out.Set(i, k, m.At(j, k))
		}
	}
	return out
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
