package sampler

import "gonum.org/v1/gonum/mat"

// State is the sweep-scoped model control state. It is owned by the sweep
// driver and handed by reference to the tree-pair step; nothing here is safe
// for concurrent use, and nothing needs to be — the sampler is strictly
// sequential because every tree pair reads and mutates the shared residual.
type State struct {
	N  int
	PZ int

	Family Family

	Z   *mat.Dense    // fixed-effects design
	Zw  *mat.Dense    // weighted design; identical to Z under Gaussian
	Vg  *mat.SymDense // fixed-effects posterior covariance
	VgL *mat.TriDense // lower Cholesky factor of Vg

	Y0    *mat.VecDense // raw outcome
	Ystar *mat.VecDense // working outcome (latent-transformed for non-Gaussian)
	R     *mat.VecDense // running partial residual
	Fhat  *mat.VecDense // total tree-pair fit
	Rmat  *mat.Dense    // per-pair fit contributions, one column per pair

	Gamma  *mat.VecDense
	Sigma2 float64
	Nu     float64

	// XiInv is the latent inverse-gamma auxiliary of the half-Cauchy prior
	// on sigma; it enters the Gaussian acceptance ratio as the prior
	// pseudo-count of the Student-t kernel. Maintained by the refitter.
	XiInv float64

	Tau   []float64  // per-tree-pair variance scale
	MuExp []float64  // per-exposure variance scale
	MuMix *mat.Dense // per-exposure-pair interaction scale, lower triangle (i >= j)

	ExpProb []float64

	// Accumulators, reset once per sweep and filled by the tree-pair steps.
	ExpCount     []float64
	ExpInf       []float64
	MixCount     *mat.Dense
	MixInf       *mat.Dense
	TotTerm      float64
	SumTermT2    float64
	TotTermExp   []float64
	SumTermT2Exp []float64
	TotTermMix   *mat.Dense
	SumTermT2Mix *mat.Dense

	NTerm1   []float64
	NTerm2   []float64
	Tree1Exp []int
	Tree2Exp []int

	// Binomial latent state, maintained by the external refitter.
	Omega        *mat.VecDense
	BinomialSize *mat.VecDense
	Kappa        *mat.VecDense

	// Zero-inflated count latent state, maintained by the external refitter.
	Omega2 *mat.VecDense
	NBIdx  []int

	Iter   int // current MCMC iteration, 1-based
	Record int // record slot for this iteration; 0 when not recording
}

// ResetSweep zeroes every per-sweep accumulator.
func (s *State) ResetSweep() {
	s.Fhat.Zero()
	s.TotTerm = 0
	s.SumTermT2 = 0
	zero(s.TotTermExp)
	zero(s.SumTermT2Exp)
	zero(s.ExpCount)
	zero(s.ExpInf)
	if s.MixCount != nil {
		s.MixCount.Zero()
		s.MixInf.Zero()
		s.TotTermMix.Zero()
		s.SumTermT2Mix.Zero()
	}
}

func zero(v []float64) {
	for i := range v {
		v[i] = 0
	}
}
