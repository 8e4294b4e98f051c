package sampler

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/lagmix/lagmix/pkg/dist"
	"github.com/lagmix/lagmix/pkg/tree"
	"github.com/lagmix/lagmix/pkg/util"
)

// MHR is the result of one marginal-likelihood/coefficient evaluation for a
// tree pair: the assembled local design, the drawn coefficient blocks, their
// sufficient statistics, and the terms entering the acceptance ratio. It
// lives for one proposal evaluation; only Prec outlives it, as the pair's
// precision cache under the Gaussian family.
type MHR struct {
	Xd   *mat.Dense
	Prec *mat.SymDense // weighted cross-product block, before the diagonal prior

	DrawAll *mat.VecDense
	Draw1   []float64
	Draw2   []float64
	DrawMix []float64

	Term1T2 float64
	Term2T2 float64
	MixT2   float64
	NTerm1  float64
	NTerm2  float64

	// LogVThetaChol is the log product of the sampling Cholesky factor's
	// diagonal: the volume-change term of the acceptance ratio.
	LogVThetaChol float64
	// Beta is the scalar sufficient statistic thetaHat · XtVzInvR.
	Beta float64

	PXd int
}

// mixMHR builds the local design for the terminal nodes of a tree pair,
// computes the coefficient posterior and draws from it. An interaction block
// is appended when mixVar is nonzero. cache, when non-nil, is the pair's
// previously committed cross-product block (valid only under the Gaussian
// family while the pair's structure is unchanged).
func (s *State) mixMHR(
	term1, term2 []*tree.Node,
	ztr *mat.VecDense,
	treeVar, m1Var, m2Var, mixVar float64,
	cache *mat.SymDense,
	rng *dist.RNG,
) (*MHR, error) {
	pX1 := len(term1)
	pX2 := len(term2)
	pXd := pX1 + pX2
	interaction := mixVar != 0
	if interaction {
		pXd += pX1 * pX2
	}

	out := &MHR{PXd: pXd, NTerm1: float64(pX1), NTerm2: float64(pX2)}
	out.Xd = mat.NewDense(s.N, pXd, nil)
	ztx := mat.NewDense(s.PZ, pXd, nil)
	diagVar := make([]float64, pXd)

	for i, n := range term1 {
		out.Xd.SetCol(i, n.Vals.X)
		diagVar[i] = 1.0 / (m1Var * treeVar)
	}
	for j, n := range term2 {
		out.Xd.SetCol(pX1+j, n.Vals.X)
		diagVar[pX1+j] = 1.0 / (m2Var * treeVar)
	}
	if interaction {
		col := make([]float64, s.N)
		for i, n1 := range term1 {
			for j, n2 := range term2 {
				k := pX1 + pX2 + i*pX2 + j
				floats.MulTo(col, n1.Vals.X, n2.Vals.X)
				out.Xd.SetCol(k, col)
				diagVar[k] = 1.0 / (mixVar * treeVar)
			}
		}
	}

	// Cross-product with the fixed effects. Under Gaussian the main-effect
	// columns are precomputed on the nodes; everything else goes through
	// the weighted design.
	if s.Family == Gaussian {
		for i, n := range term1 {
			ztx.SetCol(i, n.Vals.ZtX)
		}
		for j, n := range term2 {
			ztx.SetCol(pX1+j, n.Vals.ZtX)
		}
		if interaction {
			var mixZtX mat.Dense
			mixZtX.Mul(s.Zw.T(), out.Xd.Slice(0, s.N, pX1+pX2, pXd))
			for k := pX1 + pX2; k < pXd; k++ {
				for j := 0; j < s.PZ; j++ {
					ztx.Set(j, k, mixZtX.At(j, k-pX1-pX2))
				}
			}
		}
	} else {
		ztx.Mul(s.Zw.T(), out.Xd)
	}

	var vgZtX mat.Dense
	vgZtX.Mul(s.Vg, ztx)

	// Family-specific weighted cross-products.
	var crossProd *mat.SymDense
	xtr := mat.NewVecDense(pXd, nil)
	switch s.Family {
	case Gaussian:
		if cache != nil {
			crossProd = cache
		} else {
			var xtx, corr mat.Dense
			xtx.Mul(out.Xd.T(), out.Xd)
			corr.Mul(ztx.T(), &vgZtX)
			crossProd = symDiff(&xtx, &corr)
		}
		xtr.MulVec(out.Xd.T(), s.R)

	case Binomial:
		xdw := rowScaled(out.Xd, s.Omega)
		var xwx, corr mat.Dense
		xwx.Mul(xdw.T(), out.Xd)
		corr.Mul(ztx.T(), &vgZtX)
		crossProd = symDiff(&xwx, &corr)
		xtr.MulVec(xdw.T(), s.R)

	case ZINB:
		xs := util.SelectRows(out.Xd, s.NBIdx)
		xsw := rowScaled(xs, util.SelectInd(s.Omega2, s.NBIdx))
		var xwx, corr mat.Dense
		xwx.Mul(xsw.T(), xs)
		corr.Mul(ztx.T(), &vgZtX)
		crossProd = symDiff(&xwx, &corr)
		xtr.MulVec(xsw.T(), util.SelectInd(s.R, s.NBIdx))
	}
	if out.Prec == nil && s.Family == Gaussian {
		out.Prec = crossProd
	}

	var fixedCorr mat.VecDense
	fixedCorr.MulVec(vgZtX.T(), ztr)
	xtr.SubVec(xtr, &fixedCorr)

	// Posterior precision = cross-product + diagonal prior precision.
	prec := mat.NewSymDense(pXd, nil)
	prec.CopySym(crossProd)
	for i := 0; i < pXd; i++ {
		prec.SetSym(i, i, prec.At(i, i)+diagVar[i])
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(prec); !ok {
		return nil, errors.Wrapf(ErrNotPositiveDefinite, "local design %dx%d", s.N, pXd)
	}

	var vTheta mat.SymDense
	if err := chol.InverseTo(&vTheta); err != nil {
		return nil, errors.Wrap(err, "invert posterior precision")
	}
	var cholV mat.Cholesky
	if ok := cholV.Factorize(&vTheta); !ok {
		return nil, errors.Wrapf(ErrNotPositiveDefinite, "posterior covariance %dx%d", pXd, pXd)
	}

	thetaHat := mat.NewVecDense(pXd, nil)
	thetaHat.MulVec(&vTheta, xtr)

	// theta = thetaHat + L * z, z ~ N(0, sigma2 I)
	sd := math.Sqrt(s.Sigma2)
	z := mat.NewVecDense(pXd, nil)
	for i := 0; i < pXd; i++ {
		z.SetVec(i, rng.Norm()*sd)
	}
	var vL mat.TriDense
	cholV.LTo(&vL)
	draw := mat.NewVecDense(pXd, nil)
	draw.MulVec(&vL, z)
	draw.AddVec(thetaHat, draw)

	out.DrawAll = draw
	raw := draw.RawVector().Data
	out.Draw1 = append([]float64(nil), raw[:pX1]...)
	out.Term1T2 = floats.Dot(out.Draw1, out.Draw1)
	out.Draw2 = append([]float64(nil), raw[pX1:pX1+pX2]...)
	out.Term2T2 = floats.Dot(out.Draw2, out.Draw2)
	if interaction {
		out.DrawMix = append([]float64(nil), raw[pX1+pX2:]...)
		out.MixT2 = floats.Dot(out.DrawMix, out.DrawMix)
	}

	out.Beta = mat.Dot(thetaHat, xtr)
	out.LogVThetaChol = 0.5 * cholV.LogDet()
	return out, nil
}

// symDiff returns the symmetric part of a - b. The inputs are symmetric up
// to floating roundoff; averaging the two triangles keeps the factorization
// honest.
func symDiff(a, b *mat.Dense) *mat.SymDense {
	n, _ := a.Dims()
	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			vij := a.At(i, j) - b.At(i, j)
			vji := a.At(j, i) - b.At(j, i)
			out.SetSym(i, j, 0.5*(vij+vji))
		}
	}
	return out
}

// rowScaled returns m with row i multiplied by w_i.
func rowScaled(m *mat.Dense, w *mat.VecDense) *mat.Dense {
	r, c := m.Dims()
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		wi := w.AtVec(i)
		for j := 0; j < c; j++ {
			out.Set(i, j, wi*m.At(i, j))
		}
	}
	return out
}
