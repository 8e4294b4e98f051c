package sampler

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/lagmix/lagmix/pkg/dist"
)

// Refitter redraws the nuisance parameters once per sweep: fixed-effects
// coefficients, outcome variance, and any family-specific latent state. The
// Binomial and ZINB refits (Polya-Gamma augmentation) are external
// collaborators implementing this interface.
type Refitter interface {
	Refit(s *State, rng *dist.RNG) error
}

// GaussianRefitter is the built-in conjugate refit for continuous outcomes.
// The fixed effects stay marginalized out of the tree updates, so the gamma
// draw here only feeds the recorded trace; sigma2 follows its inverse-gamma
// full conditional with a half-Cauchy prior via the XiInv auxiliary.
type GaussianRefitter struct{}

func (GaussianRefitter) Refit(s *State, rng *dist.RNG) error {
	ztr := mat.NewVecDense(s.PZ, nil)
	ztr.MulVec(s.Z.T(), s.R)

	mean := mat.NewVecDense(s.PZ, nil)
	mean.MulVec(s.Vg, ztr)

	sd := math.Sqrt(s.Sigma2)
	z := mat.NewVecDense(s.PZ, nil)
	for i := 0; i < s.PZ; i++ {
		z.SetVec(i, rng.Norm()*sd)
	}
	s.Gamma.MulVec(s.VgL, z)
	s.Gamma.AddVec(mean, s.Gamma)

	rtr := mat.Dot(s.R, s.R)
	corr := mat.Inner(ztr, s.Vg, ztr)
	rate := 0.5*(rtr-corr+s.SumTermT2/s.Nu) + s.XiInv
	s.Sigma2 = 1.0 / rng.Gamma(0.5*(float64(s.N)+s.TotTerm), rate)
	if !finite(s.Sigma2) || s.Sigma2 <= 0 {
		return errors.Errorf("sampler: degenerate outcome variance draw (rate=%g)", rate)
	}

	s.XiInv = rng.Gamma(1, (s.Sigma2+1)/s.Sigma2)
	return nil
}
