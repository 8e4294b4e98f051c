package tree

// SplitAxis identifies which axis of the (exposure position, time) domain a
// split cuts.
type SplitAxis int

const (
	AxisExposure SplitAxis = iota
	AxisTime
)

type Split struct {
	Axis SplitAxis
	At   int
}

// SplitRule describes the region of the exposure/time domain a node covers
// and which splits remain available inside it. Exposure splits are available
// at positions strictly between XMin and XMax, time splits at t in
// [TMin, TMax-1]. SplitProb and TimeProb are the externally supplied selection
// weights; they are shared read-only across the whole tree.
type SplitRule struct {
	XMin, XMax int
	TMin, TMax int

	SplitProb []float64
	TimeProb  []float64
}

// NewRootRule covers the full domain: exposure range (xmin, xmax), time
// window [1, T] where T = len(timeProb).
func NewRootRule(xmin, xmax int, splitProb, timeProb []float64) *SplitRule {
	return &SplitRule{
		XMin:      xmin,
		XMax:      xmax,
		TMin:      1,
		TMax:      len(timeProb),
		SplitProb: splitProb,
		TimeProb:  timeProb,
	}
}

// Clone returns an independent copy. The weight vectors are shared; they are
// configuration, never mutated.
func (r *SplitRule) Clone() *SplitRule {
	c := *r
	return &c
}

func (r *SplitRule) TimeMin() int { return r.TMin }
func (r *SplitRule) TimeMax() int { return r.TMax }

// totalWeight sums the selection weights of every available split.
func (r *SplitRule) totalWeight() float64 {
	tot := 0.0
	for x := r.XMin + 1; x < r.XMax; x++ {
		tot += r.SplitProb[x-1]
	}
	for t := r.TMin; t < r.TMax; t++ {
		tot += r.TimeProb[t-1]
	}
	return tot
}

// CanSplit reports whether the rule has any selectable split.
func (r *SplitRule) CanSplit() bool {
	return r.totalWeight() > 0
}

// Contains reports whether a split is valid inside this rule's region.
func (r *SplitRule) Contains(s Split) bool {
	if s.Axis == AxisExposure {
		return s.At > r.XMin && s.At < r.XMax
	}
	return s.At >= r.TMin && s.At < r.TMax
}

// DrawSplit selects a split with probability proportional to its weight.
// sample receives the available weights and their total and must return the
// chosen offset; the sampler passes RNG.SampleWeighted here.
func (r *SplitRule) DrawSplit(sample func(probs []float64, totP float64) int) (Split, bool) {
	nx := r.XMax - r.XMin - 1
	if nx < 0 {
		nx = 0
	}
	nt := r.TMax - r.TMin
	weights := make([]float64, 0, nx+nt)
	tot := 0.0
	for x := r.XMin + 1; x < r.XMax; x++ {
		weights = append(weights, r.SplitProb[x-1])
		tot += r.SplitProb[x-1]
	}
	for t := r.TMin; t < r.TMax; t++ {
		weights = append(weights, r.TimeProb[t-1])
		tot += r.TimeProb[t-1]
	}
	if tot <= 0 {
		return Split{}, false
	}

	k := sample(weights, tot)
	if k < nx {
		return Split{Axis: AxisExposure, At: r.XMin + 1 + k}, true
	}
	return Split{Axis: AxisTime, At: r.TMin + (k - nx)}, true
}

// ChildRules partitions the rule's region at the given split.
func (r *SplitRule) ChildRules(s Split) (left, right *SplitRule) {
	left, right = r.Clone(), r.Clone()
	if s.Axis == AxisExposure {
		left.XMax = s.At
		right.XMin = s.At
	} else {
		left.TMax = s.At
		right.TMin = s.At + 1
	}
	return left, right
}
