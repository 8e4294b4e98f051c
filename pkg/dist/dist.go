package dist

import (
	"math"

	"github.com/pkg/errors"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

var ErrDimensionMismatch = errors.New("dist: dimension mismatch")

// RNG is the single random stream for one sampler run. Every draw the sampler
// makes goes through one RNG so a seed fully determines the chain.
type RNG struct {
	src *rand.Rand
}

func New(seed uint64) *RNG {
	return &RNG{src: rand.New(rand.NewSource(seed))}
}

// Uniform returns a draw from U[0, 1).
func (r *RNG) Uniform() float64 {
	return r.src.Float64()
}

// Intn returns a uniform draw from {0, ..., n-1}.
func (r *RNG) Intn(n int) int {
	return r.src.Intn(n)
}

// Norm returns a standard normal draw.
func (r *RNG) Norm() float64 {
	return distuv.Normal{Mu: 0, Sigma: 1, Src: r.src}.Rand()
}

// Gamma returns a draw from Gamma(shape, rate).
func (r *RNG) Gamma(shape, rate float64) float64 {
	return distuv.Gamma{Alpha: shape, Beta: rate, Src: r.src}.Rand()
}

// SampleWeighted draws an index from the categorical distribution with the
// given weights, whose total mass is totP. Pass the exact sum when the weights
// are unnormalized.
func (r *RNG) SampleWeighted(probs []float64, totP float64) int {
	return PickWeighted(probs, distuv.Uniform{Min: 0, Max: totP, Src: r.src}.Rand())
}

// Dirichlet draws from Dirichlet(alpha) via normalized Gamma variates.
func (r *RNG) Dirichlet(alpha []float64) []float64 {
	out := make([]float64, len(alpha))
	norm := 0.0
	for i, a := range alpha {
		out[i] = r.Gamma(a, 1)
		norm += out[i]
	}
	for i := range out {
		out[i] /= norm
	}
	return out
}

// HalfCauchyFC draws the full conditional of a C+(0,1)-scaled variance x2,
// using the inverse-gamma mixture representation:
//
//	y | x2 ~ Gamma(1, (x2+1)/x2)   (rate form)
//	x2 | y ~ InvGamma((a+1)/2, b/2 + y)
//
// a is the term count and b the scaled sum of squares of the shrinkage
// target. Returns the new x2 and the latent y.
func (r *RNG) HalfCauchyFC(x2, a, b float64) (float64, float64) {
	y := r.Gamma(1, (x2+1)/x2)
	return 1.0 / r.Gamma(0.5*(a+1), 0.5*b+y), y
}

// PickWeighted scans cumulative weights for the index selected by the uniform
// variate u in [0, sum(probs)). A u past the cumulative total by floating
// roundoff clamps to the last index. Split out from SampleWeighted so draws
// can be forced in tests.
func PickWeighted(probs []float64, u float64) int {
	sum := probs[0]
	i := 0
	for sum < u && i < len(probs)-1 {
		i++
		sum += probs[i]
	}
	return i
}

// LogPSplit is the log of the tree-depth split prior
// p_split(depth) = alpha * (1+depth)^-beta, or log(1-p) for a terminal node.
func LogPSplit(alpha, beta float64, depth int, terminal bool) float64 {
	p := alpha * math.Pow(1.0+float64(depth), -beta)
	if terminal {
		return math.Log1p(-p)
	}
	return math.Log(p)
}

// LogDirichletDensity evaluates the log density of Dirichlet(alpha) at x.
func LogDirichletDensity(x, alpha []float64) (float64, error) {
	if len(x) != len(alpha) {
		return 0, errors.Wrapf(ErrDimensionMismatch, "dirichlet density: len(x)=%d len(alpha)=%d", len(x), len(alpha))
	}

	sum := 0.0
	for _, a := range alpha {
		sum += a
	}
	out, _ := math.Lgamma(sum)
	for i, a := range alpha {
		lg, _ := math.Lgamma(a)
		out += (a-1)*math.Log(x[i]) - lg
	}
	return out, nil
}
