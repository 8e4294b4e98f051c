package sampler

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/lagmix/lagmix/pkg/metrics"
	"github.com/lagmix/lagmix/pkg/tree"
)

// pairCtx is the scratch state of one tree-pair step. The second tree's
// update reuses the first tree's result (mhr0, term1, m1Var) so the pair is
// always evaluated jointly, and the residual quadratic forms are computed
// lazily at most once per step.
type pairCtx struct {
	t            int
	tree1, tree2 *tree.Tree
	term1, term2 []*tree.Node
	m1, m2       int
	m1Var, m2Var float64
	mixVar       float64
	treeVar      float64
	ztr          *mat.VecDense
	mhr0         *MHR
	rtr          float64
	rtzvgztr     float64
	rtrValid     bool
}

// treePairStep runs one MCMC update of tree pair t: a structural or
// exposure-switch proposal for each tree in turn, then the shrinkage and
// accumulator bookkeeping for the pair.
func (smp *Sampler) treePairStep(t int) error {
	s := smp.state
	pc := &pairCtx{
		t:     t,
		tree1: smp.trees1[t],
		tree2: smp.trees2[t],
		m1:    s.Tree1Exp[t],
		m2:    s.Tree2Exp[t],
	}
	pc.term1 = pc.tree1.Terminals(false)
	pc.term2 = pc.tree2.Terminals(false)
	pc.treeVar = s.Nu * s.Tau[t]
	pc.m1Var = s.MuExp[pc.m1]
	pc.m2Var = s.MuExp[pc.m2]
	pc.mixVar = smp.pairScale(pc.m1, pc.m2)

	pc.ztr = mat.NewVecDense(s.PZ, nil)
	pc.ztr.MulVec(s.Zw.T(), s.R)

	if err := smp.updateTree(pc, 1); err != nil {
		return err
	}
	if err := smp.updateTree(pc, 2); err != nil {
		return err
	}

	// Shrinkage accumulators for the pair.
	mhr0 := pc.mhr0
	tauT2 := mhr0.Term1T2/pc.m1Var + mhr0.Term2T2/pc.m2Var
	totTerm := mhr0.NTerm1 + mhr0.NTerm2
	if pc.mixVar != 0 {
		tauT2 += mhr0.MixT2 / pc.mixVar
		totTerm += mhr0.NTerm1 * mhr0.NTerm2
	}

	if smp.cfg.Shrinkage > 1 {
		s.Tau[t], _ = smp.rng.HalfCauchyFC(s.Tau[t], totTerm, tauT2/(s.Sigma2*s.Nu))
		if !finite(s.Tau[t]) {
			return errors.Wrapf(ErrShrinkageDegenerate, "tau, tree pair %d", t)
		}
	}

	s.NTerm1[t] = mhr0.NTerm1
	s.NTerm2[t] = mhr0.NTerm2
	s.Tree1Exp[t] = pc.m1
	s.Tree2Exp[t] = pc.m2
	s.ExpCount[pc.m1]++
	s.ExpCount[pc.m2]++
	s.ExpInf[pc.m1] += s.Tau[t]
	s.ExpInf[pc.m2] += s.Tau[t]
	s.TotTermExp[pc.m1] += mhr0.NTerm1
	s.TotTermExp[pc.m2] += mhr0.NTerm2
	s.SumTermT2Exp[pc.m1] += mhr0.Term1T2 / s.Tau[t]
	s.SumTermT2Exp[pc.m2] += mhr0.Term2T2 / s.Tau[t]
	if pc.mixVar != 0 {
		hi, lo := pc.m1, pc.m2
		if hi < lo {
			hi, lo = lo, hi
		}
		s.MixCount.Set(hi, lo, s.MixCount.At(hi, lo)+1)
		s.TotTermMix.Set(hi, lo, s.TotTermMix.At(hi, lo)+mhr0.NTerm1*mhr0.NTerm2)
		s.SumTermT2Mix.Set(hi, lo, s.SumTermT2Mix.At(hi, lo)+mhr0.MixT2/s.Tau[t])
		s.MixInf.Set(hi, lo, s.MixInf.At(hi, lo)+s.Tau[t])
	}

	// This pair's contribution to the running fit.
	fit := mat.NewVecDense(s.N, nil)
	fit.MulVec(mhr0.Xd, mhr0.DrawAll)
	s.Rmat.SetCol(t, fit.RawVector().Data)

	if s.Record > 0 {
		smp.recordPairEffects(pc)
	}
	return nil
}

// updateTree proposes and resolves one move for one side of the pair.
func (smp *Sampler) updateTree(pc *pairCtx, side int) error {
	s := smp.state

	self := pc.tree1
	mSelf, mOther := pc.m1, pc.m2
	selfVar := pc.m1Var
	if side == 2 {
		self = pc.tree2
		mSelf, mOther = pc.m2, pc.m1
		selfVar = pc.m2Var
	}

	newExp := mSelf
	newExpVar := selfVar
	newMixVar := pc.mixVar
	stepMhr := 0.0
	success := 0

	step := smp.rng.SampleWeighted(smp.stepProb, 1)
	termSelf := pc.term1
	if side == 2 {
		termSelf = pc.term2
	}
	if len(termSelf) == 1 && step < 3 {
		step = 0
	}
	move := tree.Move(step)

	var newTerm []*tree.Node
	var newTree *tree.Tree

	if step < 3 {
		var ok bool
		stepMhr, ok = self.Propose(move, smp.prior, smp.rng)
		if ok {
			success = 1
			newTerm = self.Terminals(true)
			smp.fillVals(newTerm, mSelf)
		}
	} else {
		newExp = smp.rng.SampleWeighted(s.ExpProb, sum(s.ExpProb))
		if newExp != mSelf {
			success = 1
			newExpVar = s.MuExp[newExp]
			newTree = self.Clone()
			newTerm = newTree.Terminals(false)
			smp.fillVals(newTerm, newExp)
			newMixVar = smp.pairScale(newExp, mOther)
		}
	}

	// Baseline evaluation for the pair, cached across both sides. The
	// precision cache is keyed on tree 1 and valid only for Gaussian
	// outcomes with unchanged structure.
	if pc.mhr0 == nil {
		var cache *mat.SymDense
		if s.Family == Gaussian {
			cache = pc.tree1.Prec
		}
		mhr0, err := s.mixMHR(pc.term1, pc.term2, pc.ztr, pc.treeVar,
			pc.m1Var, pc.m2Var, pc.mixVar, cache, smp.rng)
		if err != nil {
			return err
		}
		pc.mhr0 = mhr0
	}

	ratio := 0.0
	if success > 0 {
		var mhr *MHR
		var err error
		if side == 1 {
			mhr, err = s.mixMHR(newTerm, pc.term2, pc.ztr, pc.treeVar,
				newExpVar, pc.m2Var, newMixVar, nil, smp.rng)
		} else {
			mhr, err = s.mixMHR(pc.term1, newTerm, pc.ztr, pc.treeVar,
				pc.m1Var, newExpVar, newMixVar, nil, smp.rng)
		}
		if err != nil {
			return err
		}

		nSelf, nSelf0 := mhr.NTerm1, pc.mhr0.NTerm1
		if side == 2 {
			nSelf, nSelf0 = mhr.NTerm2, pc.mhr0.NTerm2
		}

		ratio = stepMhr + mhr.LogVThetaChol - pc.mhr0.LogVThetaChol
		switch s.Family {
		case Binomial, ZINB:
			ratio += 0.5 * (mhr.Beta - pc.mhr0.Beta)
		default:
			if !pc.rtrValid {
				pc.rtr = mat.Dot(s.R, s.R)
				pc.rtzvgztr = mat.Inner(pc.ztr, s.Vg, pc.ztr)
				pc.rtrValid = true
			}
			base := pc.rtr - pc.rtzvgztr
			ratio -= 0.5 * (float64(s.N) + 1.0) *
				(math.Log(0.5*(base-mhr.Beta)+s.XiInv) -
					math.Log(0.5*(base-pc.mhr0.Beta)+s.XiInv))
		}
		ratio -= 0.5 * (math.Log(pc.treeVar*newExpVar)*nSelf -
			math.Log(pc.treeVar*selfVar)*nSelf0)

		if newMixVar != 0 {
			if side == 1 {
				ratio -= 0.5 * math.Log(pc.treeVar*newMixVar) * mhr.NTerm1 * pc.mhr0.NTerm2
			} else {
				ratio -= 0.5 * math.Log(pc.treeVar*newMixVar) * pc.mhr0.NTerm1 * mhr.NTerm2
			}
		}
		if pc.mixVar != 0 {
			ratio += 0.5 * math.Log(pc.treeVar*pc.mixVar) * pc.mhr0.NTerm1 * pc.mhr0.NTerm2
		}

		if math.Log(smp.rng.Uniform()) < ratio {
			pc.mhr0 = mhr
			success = 2

			if step == 3 {
				if side == 1 {
					pc.m1 = newExp
					pc.m1Var = newExpVar
				} else {
					pc.m2 = newExp
					pc.m2Var = newExpVar
				}
				pc.mixVar = newMixVar
				self.ReplaceWith(newTree)
			} else {
				self.Accept()
			}
			if s.Family == Gaussian {
				pc.tree1.Prec = pc.mhr0.Prec
			}
			if side == 1 {
				pc.term1 = self.Terminals(false)
			} else {
				pc.term2 = self.Terminals(false)
			}
		} else {
			self.Reject()
		}
	} else if step < 3 {
		self.Reject()
	}

	metrics.TreeProposalsMetrics.WithLabelValues(move.String(), outcome(success)).Inc()

	if smp.cfg.Diagnostics {
		nTerm := len(pc.term1)
		exp := pc.m1
		if side == 2 {
			nTerm = len(pc.term2)
			exp = pc.m2
		}
		smp.diag.Accepts = append(smp.diag.Accepts, AcceptRecord{
			Iter:    s.Iter,
			Pair:    pc.t,
			Tree:    side,
			Step:    step,
			Success: success,
			Exp:     exp,
			NTerm:   nTerm,
			StepMhr: stepMhr,
			Ratio:   ratio,
		})
	}
	return nil
}

// fillVals assigns basis values from exposure m to candidate terminals that
// do not carry any yet.
func (smp *Sampler) fillVals(terms []*tree.Node, m int) {
	for _, n := range terms {
		smp.exps[m].UpdateNodeVals(n)
	}
}

// pairScale returns the interaction scale for an exposure pair under the
// configured pairing policy, 0 when the pair carries no interaction block.
func (smp *Sampler) pairScale(m1, m2 int) float64 {
	if smp.cfg.Interaction == 0 {
		return 0
	}
	if smp.cfg.Interaction == 1 && m1 == m2 {
		return 0
	}
	if m1 <= m2 {
		return smp.state.MuMix.At(m2, m1)
	}
	return smp.state.MuMix.At(m1, m2)
}

func (smp *Sampler) recordPairEffects(pc *pairCtx) {
	s := smp.state
	mhr0 := pc.mhr0

	for i, n1 := range pc.term1 {
		smp.diag.Effects = append(smp.diag.Effects, EffectRecord{
			Record: s.Record,
			Pair:   pc.t,
			Which:  0,
			Exp:    pc.m1,
			TMin:   n1.Rule.TimeMin(),
			TMax:   n1.Rule.TimeMax(),
			Est:    mhr0.Draw1[i],
			Var:    s.Tau[pc.t] * pc.m1Var,
		})
	}
	for j, n2 := range pc.term2 {
		smp.diag.Effects = append(smp.diag.Effects, EffectRecord{
			Record: s.Record,
			Pair:   pc.t,
			Which:  1,
			Exp:    pc.m2,
			TMin:   n2.Rule.TimeMin(),
			TMax:   n2.Rule.TimeMax(),
			Est:    mhr0.Draw2[j],
			Var:    s.Tau[pc.t] * pc.m2Var,
		})
	}
	if pc.mixVar == 0 {
		return
	}
	k := 0
	for _, n1 := range pc.term1 {
		for _, n2 := range pc.term2 {
			rec := MixRecord{Record: s.Record, Pair: pc.t, Est: mhr0.DrawMix[k]}
			if pc.m1 <= pc.m2 {
				rec.Exp1, rec.TMin1, rec.TMax1 = pc.m1, n1.Rule.TimeMin(), n1.Rule.TimeMax()
				rec.Exp2, rec.TMin2, rec.TMax2 = pc.m2, n2.Rule.TimeMin(), n2.Rule.TimeMax()
			} else {
				rec.Exp1, rec.TMin1, rec.TMax1 = pc.m2, n2.Rule.TimeMin(), n2.Rule.TimeMax()
				rec.Exp2, rec.TMin2, rec.TMax2 = pc.m1, n1.Rule.TimeMin(), n1.Rule.TimeMax()
			}
			smp.diag.MixEffects = append(smp.diag.MixEffects, rec)
			k++
		}
	}
}

func outcome(success int) string {
	switch success {
	case 2:
		return "accept"
	case 1:
		return "reject"
	}
	return "infeasible"
}

func sum(v []float64) float64 {
	total := 0.0
	for _, x := range v {
		total += x
	}
	return total
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
