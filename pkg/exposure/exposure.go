package exposure

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/lagmix/lagmix/pkg/tree"
)

// Provider supplies a terminal node's basis column for its time window.
// Implementations must be deterministic: the same window always yields the
// same column.
type Provider interface {
	// UpdateNodeVals fills n.Vals from the node's split-rule window.
	// Nodes that already carry values are left untouched.
	UpdateNodeVals(n *tree.Node)
	// Lags returns the number of time points of the exposure history.
	Lags() int
	// N returns the number of observations.
	N() int
}

// Data is a precomputed exposure basis: cumulative window sums of one
// exposure's lag history, so any window [tmin, tmax] column is a difference
// of two cumulative columns. The Gaussian path additionally precomputes the
// cross-product of every cumulative column with the fixed-effects design.
type Data struct {
	n    int
	lags int

	cum    *mat.Dense // n x lags, col t = rowwise sum of lags 1..t+1
	ztCum  *mat.Dense // pZ x lags, Z^T * cum; nil outside the Gaussian path
	pZ     int
}

// New precomputes cumulative basis columns from the n x lags exposure
// history. Use this for outcome families with latent-weight designs, where
// fixed-effects cross-products change every sweep.
func New(x *mat.Dense) *Data {
	n, lags := x.Dims()
	cum := mat.NewDense(n, lags, nil)
	for i := 0; i < n; i++ {
		sum := 0.0
		for t := 0; t < lags; t++ {
			sum += x.At(i, t)
			cum.Set(i, t, sum)
		}
	}
	return &Data{n: n, lags: lags, cum: cum}
}

// NewGaussian additionally precomputes Z^T cross-products, reusable across
// sweeps because the Gaussian design weights are constant.
func NewGaussian(x, z *mat.Dense) (*Data, error) {
	n, _ := x.Dims()
	zn, pZ := z.Dims()
	if zn != n {
		return nil, errors.Errorf("exposure: %d exposure rows, %d fixed-effect rows", n, zn)
	}

	d := New(x)
	d.pZ = pZ
	d.ztCum = mat.NewDense(pZ, d.lags, nil)
	d.ztCum.Mul(z.T(), d.cum)
	return d, nil
}

func (d *Data) Lags() int { return d.lags }
func (d *Data) N() int    { return d.n }

// Column returns the design column for the window [tmin, tmax] (1-based,
// inclusive).
func (d *Data) Column(tmin, tmax int) []float64 {
	out := make([]float64, d.n)
	for i := 0; i < d.n; i++ {
		v := d.cum.At(i, tmax-1)
		if tmin > 1 {
			v -= d.cum.At(i, tmin-2)
		}
		out[i] = v
	}
	return out
}

func (d *Data) UpdateNodeVals(n *tree.Node) {
	if n.Vals != nil {
		return
	}
	tmin, tmax := n.Rule.TimeMin(), n.Rule.TimeMax()
	vals := &tree.NodeVals{X: d.Column(tmin, tmax)}
	if d.ztCum != nil {
		ztx := make([]float64, d.pZ)
		for j := 0; j < d.pZ; j++ {
			v := d.ztCum.At(j, tmax-1)
			if tmin > 1 {
				v -= d.ztCum.At(j, tmin-2)
			}
			ztx[j] = v
		}
		vals.ZtX = ztx
	}
	n.Vals = vals
}
