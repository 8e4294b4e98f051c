package sampler

import (
	"context"
	"math"

	"github.com/cheggaaa/pb/v3"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"github.com/lagmix/lagmix/pkg/config"
	"github.com/lagmix/lagmix/pkg/dist"
	"github.com/lagmix/lagmix/pkg/exposure"
	"github.com/lagmix/lagmix/pkg/metrics"
	"github.com/lagmix/lagmix/pkg/tree"
)

var log = logrus.WithField("component", "sampler")

// Params bundles the data and collaborators of one sampler run.
type Params struct {
	Config config.Config

	// Y is the outcome vector, Z the fixed-effects design (include an
	// intercept column explicitly).
	Y []float64
	Z *mat.Dense

	// Exposures are the candidate predictor streams, all with the same
	// number of lags and observations.
	Exposures []exposure.Provider

	// ExpProb is the initial exposure-selection distribution; uniform
	// when nil.
	ExpProb []float64

	// SplitProb weights exposure-index split positions; leave nil for
	// lag-only trees. TimeProb weights time split positions; uniform over
	// lags when nil.
	SplitProb []float64
	TimeProb  []float64

	// Refitter redraws nuisance parameters each sweep. Defaults to the
	// built-in GaussianRefitter for the Gaussian family; required
	// otherwise.
	Refitter Refitter

	// BinomialSize holds per-observation trial counts for the Binomial
	// family.
	BinomialSize []float64
}

// Sampler runs the treed distributed-lag mixture MCMC. One instance is one
// chain; it is not safe for concurrent use.
type Sampler struct {
	cfg      config.Config
	prior    tree.Prior
	stepProb []float64

	state *State
	rng   *dist.RNG
	diag  *Log

	trees1 []*tree.Tree
	trees2 []*tree.Tree
	exps   []exposure.Provider

	refit Refitter

	kappa       float64
	updateKappa bool
}

// New validates params, builds the model control state and the initial
// single-node trees, and performs the initial nuisance and shrinkage draws.
func New(p Params) (*Sampler, error) {
	cfg := p.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	family, err := ParseFamily(cfg.Family)
	if err != nil {
		return nil, err
	}

	n := len(p.Y)
	if n == 0 {
		return nil, errors.New("sampler: empty outcome")
	}
	if p.Z == nil {
		return nil, errors.New("sampler: fixed-effects design is required")
	}
	zn, pZ := p.Z.Dims()
	if zn != n {
		return nil, errors.Errorf("sampler: %d outcomes, %d design rows", n, zn)
	}
	if len(p.Exposures) == 0 {
		return nil, errors.New("sampler: at least one exposure is required")
	}
	lags := p.Exposures[0].Lags()
	for i, e := range p.Exposures {
		if e.Lags() != lags {
			return nil, errors.Errorf("sampler: exposure %d has %d lags, want %d", i, e.Lags(), lags)
		}
		if e.N() != n {
			return nil, errors.Errorf("sampler: exposure %d has %d observations, want %d", i, e.N(), n)
		}
	}

	refit := p.Refitter
	if refit == nil {
		if family != Gaussian {
			return nil, errors.Wrapf(ErrRefitterRequired, "family %s", family)
		}
		refit = GaussianRefitter{}
	}

	rng := dist.New(cfg.Seed)
	nExp := len(p.Exposures)

	s := &State{
		N:      n,
		PZ:     pZ,
		Family: family,
		Z:      p.Z,
		Zw:     p.Z,
		Y0:     mat.NewVecDense(n, append([]float64(nil), p.Y...)),
		Gamma:  mat.NewVecDense(pZ, nil),
		Sigma2: 1,
		Nu:     1,
		XiInv:  1,
	}

	// Fixed-effects posterior covariance under a vague normal prior.
	vgInv := mat.NewSymDense(pZ, nil)
	var ztz mat.Dense
	ztz.Mul(p.Z.T(), p.Z)
	for i := 0; i < pZ; i++ {
		for j := i; j < pZ; j++ {
			vgInv.SetSym(i, j, 0.5*(ztz.At(i, j)+ztz.At(j, i)))
		}
		vgInv.SetSym(i, i, vgInv.At(i, i)+1.0/100.0)
	}
	var chol mat.Cholesky
	if ok := chol.Factorize(vgInv); !ok {
		return nil, errors.Wrap(ErrNotPositiveDefinite, "fixed-effects precision")
	}
	s.Vg = &mat.SymDense{}
	if err := chol.InverseTo(s.Vg); err != nil {
		return nil, errors.Wrap(err, "invert fixed-effects precision")
	}
	var cholVg mat.Cholesky
	if ok := cholVg.Factorize(s.Vg); !ok {
		return nil, errors.Wrap(ErrNotPositiveDefinite, "fixed-effects covariance")
	}
	s.VgL = &mat.TriDense{}
	cholVg.LTo(s.VgL)

	// Family-specific working outcome.
	s.Ystar = mat.NewVecDense(n, append([]float64(nil), p.Y...))
	switch family {
	case Binomial:
		if len(p.BinomialSize) != n {
			return nil, errors.Errorf("sampler: binomial size has %d entries, want %d", len(p.BinomialSize), n)
		}
		s.BinomialSize = mat.NewVecDense(n, append([]float64(nil), p.BinomialSize...))
		s.Kappa = mat.NewVecDense(n, nil)
		s.Omega = ones(n)
		for i := 0; i < n; i++ {
			s.Kappa.SetVec(i, p.Y[i]-0.5*p.BinomialSize[i])
			s.Ystar.SetVec(i, s.Kappa.AtVec(i))
		}
	case ZINB:
		// initial dispersion; the external refitter owns it from the
		// first sweep on
		const r = 5.0
		s.Omega2 = ones(n)
		for i := 0; i < n; i++ {
			s.Ystar.SetVec(i, 0.5*(p.Y[i]-r))
			if p.Y[i] != 0 {
				s.NBIdx = append(s.NBIdx, i)
			}
		}
	}

	s.R = mat.NewVecDense(n, nil)
	s.R.CopyVec(s.Ystar)
	s.Fhat = mat.NewVecDense(n, nil)
	s.Rmat = mat.NewDense(n, cfg.Trees, nil)

	s.Tau = ones1(cfg.Trees)
	s.MuExp = ones1(nExp)
	s.NTerm1 = ones1(cfg.Trees)
	s.NTerm2 = ones1(cfg.Trees)
	s.Tree1Exp = make([]int, cfg.Trees)
	s.Tree2Exp = make([]int, cfg.Trees)
	s.TotTermExp = make([]float64, nExp)
	s.SumTermT2Exp = make([]float64, nExp)
	s.ExpCount = make([]float64, nExp)
	s.ExpInf = make([]float64, nExp)
	if cfg.Interaction > 0 {
		s.MuMix = onesDense(nExp)
		s.MixCount = mat.NewDense(nExp, nExp, nil)
		s.MixInf = mat.NewDense(nExp, nExp, nil)
		s.TotTermMix = mat.NewDense(nExp, nExp, nil)
		s.SumTermT2Mix = mat.NewDense(nExp, nExp, nil)
	}

	s.ExpProb = p.ExpProb
	if s.ExpProb == nil {
		s.ExpProb = make([]float64, nExp)
		for i := range s.ExpProb {
			s.ExpProb[i] = 1.0 / float64(nExp)
		}
	}

	timeProb := p.TimeProb
	if timeProb == nil {
		timeProb = make([]float64, lags)
		for i := range timeProb {
			timeProb[i] = 1.0 / float64(lags)
		}
	}
	rootRule := tree.NewRootRule(0, len(p.SplitProb)+1, p.SplitProb, timeProb)

	smp := &Sampler{
		cfg:         cfg,
		prior:       tree.Prior{Alpha: cfg.TreePrior.Alpha, Beta: cfg.TreePrior.Beta},
		stepProb:    normalized(cfg.StepProb[:]),
		state:       s,
		rng:         rng,
		diag:        &Log{},
		exps:        p.Exposures,
		refit:       refit,
		kappa:       cfg.MixKappa,
		updateKappa: cfg.MixKappa < 0,
	}
	if smp.updateKappa {
		smp.kappa = 1
	}

	// Initial trees: one root node per tree, exposure assignment drawn
	// from the selection distribution.
	for t := 0; t < cfg.Trees; t++ {
		s.Tree1Exp[t] = rng.SampleWeighted(s.ExpProb, sum(s.ExpProb))
		s.Tree2Exp[t] = rng.SampleWeighted(s.ExpProb, sum(s.ExpProb))
		t1 := tree.NewTree(rootRule)
		t2 := tree.NewTree(rootRule)
		p.Exposures[s.Tree1Exp[t]].UpdateNodeVals(t1.Root)
		p.Exposures[s.Tree2Exp[t]].UpdateNodeVals(t2.Root)
		smp.trees1 = append(smp.trees1, t1)
		smp.trees2 = append(smp.trees2, t2)
	}

	// Initialization draws: nuisance refit first, then the horseshoe
	// scales.
	if err := refit.Refit(s, rng); err != nil {
		return nil, errors.Wrap(err, "initial refit")
	}
	s.Nu, _ = rng.HalfCauchyFC(s.Nu, float64(cfg.Trees), 0)
	if cfg.Shrinkage > 1 {
		for t := 0; t < cfg.Trees; t++ {
			s.Tau[t], _ = rng.HalfCauchyFC(s.Tau[t], 0, 0)
		}
	}
	return smp, nil
}

// State exposes the model control state, read-only by convention; tests and
// external refitters use it.
func (smp *Sampler) State() *State { return smp.state }

// Run executes the full MCMC and returns the recorded posterior. The only
// interruption point is the context check at the top of each sweep; an
// aborted run has no partial result.
func (smp *Sampler) Run(ctx context.Context) (*Results, error) {
	s := smp.state
	cfg := smp.cfg
	total := cfg.Iterations + cfg.Burn

	log.WithFields(logrus.Fields{
		"iterations": cfg.Iterations,
		"burn":       cfg.Burn,
		"thin":       cfg.Thin,
		"treePairs":  cfg.Trees,
		"family":     cfg.Family,
	}).Info("starting MCMC run")

	var bar *pb.ProgressBar
	if cfg.Verbose {
		bar = pb.StartNew(total)
		defer bar.Finish()
	}

	for b := 1; b <= total; b++ {
		select {
		case <-ctx.Done():
			return nil, errors.Wrapf(ctx.Err(), "run aborted at iteration %d", b)
		default:
		}

		s.Iter = b
		if b > cfg.Burn && (b-cfg.Burn)%cfg.Thin == 0 {
			s.Record = (b - cfg.Burn) / cfg.Thin
		} else {
			s.Record = 0
		}

		if err := smp.sweep(); err != nil {
			return nil, errors.Wrapf(err, "iteration %d", b)
		}

		metrics.SweepsTotalMetrics.Inc()
		if bar != nil {
			bar.Increment()
		}
	}

	log.WithField("records", len(smp.diag.Sigma2)).Info("MCMC run complete")
	return newResults(smp.diag, s.N), nil
}

// sweep runs one full iteration: all tree pairs against the backfitting
// residual, then the nuisance refit and the shrinkage draws.
func (smp *Sampler) sweep() error {
	s := smp.state
	cfg := smp.cfg

	s.ResetSweep()

	// Remove the first pair's previous contribution so pair 0 is evaluated
	// against a residual excluding its own fit.
	addCol(s.R, s.Rmat, 0, 1)

	for t := 0; t < cfg.Trees; t++ {
		if err := smp.treePairStep(t); err != nil {
			return errors.Wrapf(err, "tree pair %d", t)
		}
		addCol(s.Fhat, s.Rmat, t, 1)
		if t < cfg.Trees-1 {
			addCol(s.R, s.Rmat, t+1, 1)
			addCol(s.R, s.Rmat, t, -1)
		}
	}

	s.R.SubVec(s.Ystar, s.Fhat)
	s.SumTermT2 = sum(s.SumTermT2Exp)
	s.TotTerm = sum(s.TotTermExp)
	if cfg.Interaction > 0 {
		s.SumTermT2 += denseSum(s.SumTermT2Mix)
		s.TotTerm += denseSum(s.TotTermMix)
	}

	if err := smp.refit.Refit(s, smp.rng); err != nil {
		return errors.Wrap(err, "refit")
	}

	// Global shrinkage scale.
	s.Nu, _ = smp.rng.HalfCauchyFC(s.Nu, s.TotTerm, s.SumTermT2/s.Sigma2)
	if !finite(s.Nu) {
		return errors.Wrap(ErrShrinkageDegenerate, "nu")
	}
	sigmaNu := s.Sigma2 * s.Nu

	// Local shrinkage scales.
	if cfg.Shrinkage == config.ShrinkageExposure || cfg.Shrinkage == config.ShrinkageAll {
		for i := range s.MuExp {
			s.MuExp[i], _ = smp.rng.HalfCauchyFC(s.MuExp[i], s.TotTermExp[i], s.SumTermT2Exp[i]/sigmaNu)
			if !finite(s.MuExp[i]) {
				return errors.Wrapf(ErrShrinkageDegenerate, "muExp %d", i)
			}
			if cfg.Interaction == 0 {
				continue
			}
			for j := i; j < len(s.MuExp); j++ {
				if j == i && cfg.Interaction != config.InteractionAll {
					continue
				}
				v, _ := smp.rng.HalfCauchyFC(s.MuMix.At(j, i), s.TotTermMix.At(j, i), s.SumTermT2Mix.At(j, i)/sigmaNu)
				if !finite(v) {
					return errors.Wrapf(ErrShrinkageDegenerate, "muMix %d,%d", j, i)
				}
				s.MuMix.Set(j, i, v)
			}
		}
	}

	// Exposure-selection adaptation after warm-up. With a short burn-in
	// the half-burn term of the gate is the one that bites.
	if s.Iter > 1000 || s.Iter > cfg.Burn/2 {
		alpha := make([]float64, len(s.ExpCount))
		for i, c := range s.ExpCount {
			alpha[i] = c + smp.kappa
		}
		s.ExpProb = smp.rng.Dirichlet(alpha)
		if smp.updateKappa {
			smp.updateConcentration(alpha)
		}
	}

	if s.Record > 0 {
		smp.diag.record(s, smp.kappa, cfg.Interaction)
		metrics.SamplesRecordedMetrics.Inc()
	}
	return nil
}

// updateConcentration takes a Metropolis step on the Dirichlet concentration
// with a log-scale random-walk proposal.
func (smp *Sampler) updateConcentration(curAlpha []float64) {
	s := smp.state
	prop := math.Exp(math.Log(smp.kappa) + smp.rng.Norm()*0.3)

	propAlpha := make([]float64, len(s.ExpCount))
	for i, c := range s.ExpCount {
		propAlpha[i] = c + prop
	}
	lp, err1 := dist.LogDirichletDensity(s.ExpProb, propAlpha)
	lc, err2 := dist.LogDirichletDensity(s.ExpProb, curAlpha)
	if err1 != nil || err2 != nil {
		return
	}

	// log proposal correction for the log-scale walk
	ratio := lp - lc + math.Log(prop) - math.Log(smp.kappa)
	if math.Log(smp.rng.Uniform()) < ratio {
		smp.kappa = prop
	}
}

func addCol(dst *mat.VecDense, m *mat.Dense, col int, scale float64) {
	n, _ := m.Dims()
	for i := 0; i < n; i++ {
		dst.SetVec(i, dst.AtVec(i)+scale*m.At(i, col))
	}
}

func denseSum(m *mat.Dense) float64 {
	r, c := m.Dims()
	total := 0.0
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			total += m.At(i, j)
		}
	}
	return total
}

func ones(n int) *mat.VecDense {
	v := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		v.SetVec(i, 1)
	}
	return v
}

func ones1(n int) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = 1
	}
	return v
}

func onesDense(n int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			m.Set(i, j, 1)
		}
	}
	return m
}

func normalized(p []float64) []float64 {
	total := sum(p)
	out := make([]float64, len(p))
	for i, v := range p {
		out[i] = v / total
	}
	return out
}
