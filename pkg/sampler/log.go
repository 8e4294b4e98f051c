package sampler

import "gonum.org/v1/gonum/floats"

// AcceptRecord is one line of the proposal trace.
type AcceptRecord struct {
	Iter    int
	Pair    int
	Tree    int // 1 or 2
	Step    int
	Success int // 0 infeasible, 1 rejected, 2 accepted
	Exp     int
	NTerm   int
	StepMhr float64
	Ratio   float64
}

// EffectRecord is one terminal node's drawn effect at one recorded sweep.
type EffectRecord struct {
	Record int
	Pair   int
	Which  int // 0 = first tree of the pair, 1 = second
	Exp    int
	TMin   int
	TMax   int
	Est    float64
	Var    float64
}

// MixRecord is one interaction cell's drawn effect. The lower-indexed
// exposure always comes first.
type MixRecord struct {
	Record int
	Pair   int
	Exp1   int
	TMin1  int
	TMax1  int
	Exp2   int
	TMin2  int
	TMax2  int
	Est    float64
}

// Log is the append-only diagnostics sink. It is written during the run and
// consumed only after the run completes.
type Log struct {
	Gamma    [][]float64
	Sigma2   []float64
	Nu       []float64
	Kappa    []float64
	Tau      [][]float64
	MuExp    [][]float64
	ExpProb  [][]float64
	ExpCount [][]float64
	ExpInf   [][]float64
	MuMix    [][]float64
	MixInf   [][]float64
	MixCount [][]float64
	NTerm1   [][]float64
	NTerm2   [][]float64
	Tree1Exp [][]int
	Tree2Exp [][]int

	FhatSum []float64 // running sum of fits over recorded sweeps

	Accepts    []AcceptRecord
	Effects    []EffectRecord
	MixEffects []MixRecord
}

// record snapshots the full parameter state for one thinned sample.
func (l *Log) record(s *State, kappa float64, interaction int) {
	l.Gamma = append(l.Gamma, append([]float64(nil), s.Gamma.RawVector().Data...))
	l.Sigma2 = append(l.Sigma2, s.Sigma2)
	l.Nu = append(l.Nu, s.Nu)
	l.Kappa = append(l.Kappa, kappa)
	l.Tau = append(l.Tau, append([]float64(nil), s.Tau...))
	l.MuExp = append(l.MuExp, append([]float64(nil), s.MuExp...))
	l.ExpProb = append(l.ExpProb, append([]float64(nil), s.ExpProb...))
	l.ExpCount = append(l.ExpCount, append([]float64(nil), s.ExpCount...))
	l.ExpInf = append(l.ExpInf, append([]float64(nil), s.ExpInf...))
	l.NTerm1 = append(l.NTerm1, append([]float64(nil), s.NTerm1...))
	l.NTerm2 = append(l.NTerm2, append([]float64(nil), s.NTerm2...))
	l.Tree1Exp = append(l.Tree1Exp, append([]int(nil), s.Tree1Exp...))
	l.Tree2Exp = append(l.Tree2Exp, append([]int(nil), s.Tree2Exp...))

	if l.FhatSum == nil {
		l.FhatSum = make([]float64, s.N)
	}
	floats.Add(l.FhatSum, s.Fhat.RawVector().Data)

	if interaction > 0 {
		nExp := len(s.MuExp)
		var mu, inf, count []float64
		for i := 0; i < nExp; i++ {
			for j := i; j < nExp; j++ {
				if j > i || interaction == 2 {
					mu = append(mu, s.MuMix.At(j, i))
					inf = append(inf, s.MixInf.At(j, i))
					count = append(count, s.MixCount.At(j, i))
				}
			}
		}
		l.MuMix = append(l.MuMix, mu)
		l.MixInf = append(l.MixInf, inf)
		l.MixCount = append(l.MixCount, count)
	}
}

// Results summarizes a completed run.
type Results struct {
	Log      *Log
	NRecords int

	// FhatMean is the posterior mean fitted tree contribution per
	// observation.
	FhatMean []float64
}

func newResults(l *Log, n int) *Results {
	r := &Results{Log: l, NRecords: len(l.Sigma2)}
	r.FhatMean = make([]float64, n)
	if r.NRecords > 0 && l.FhatSum != nil {
		copy(r.FhatMean, l.FhatSum)
		floats.Scale(1.0/float64(r.NRecords), r.FhatMean)
	}
	return r
}

// PosteriorMean averages a recorded scalar trace.
func PosteriorMean(trace []float64) float64 {
	if len(trace) == 0 {
		return 0
	}
	return floats.Sum(trace) / float64(len(trace))
}
