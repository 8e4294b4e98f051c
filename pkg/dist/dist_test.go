package dist

import (
	"math"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPickWeighted(t *testing.T) {
	probs := []float64{0.2, 0.3, 0.5}

	tests := []struct {
		name string
		u    float64
		want int
	}{
		{name: "first bucket", u: 0.1, want: 0},
		{name: "second bucket", u: 0.25, want: 1},
		{name: "boundary stays in first", u: 0.2, want: 0},
		{name: "last bucket", u: 0.9, want: 2},
		{name: "roundoff past total clamps to last", u: math.Nextafter(1, 2), want: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PickWeighted(probs, tt.u))
		})
	}
}

func TestSampleWeightedRange(t *testing.T) {
	rng := New(7)
	probs := []float64{1, 2, 3}
	counts := make([]int, 3)
	for i := 0; i < 6000; i++ {
		k := rng.SampleWeighted(probs, 6)
		counts[k]++
	}
	// expected proportions 1/6, 2/6, 3/6
	assert.InDelta(t, 1000, counts[0], 150)
	assert.InDelta(t, 2000, counts[1], 200)
	assert.InDelta(t, 3000, counts[2], 250)
}

func TestLogPSplit(t *testing.T) {
	assert.InDelta(t, math.Log(0.95), LogPSplit(0.95, 2, 0, false), 1e-12)
	assert.InDelta(t, math.Log(0.2375), LogPSplit(0.95, 2, 1, false), 1e-12)
	assert.InDelta(t, math.Log1p(-0.95), LogPSplit(0.95, 2, 0, true), 1e-12)
	assert.InDelta(t, math.Log1p(-0.2375), LogPSplit(0.95, 2, 1, true), 1e-12)
}

func TestDirichlet(t *testing.T) {
	rng := New(42)
	alpha := []float64{1, 2, 3}

	mean := make([]float64, 3)
	const draws = 20000
	for i := 0; i < draws; i++ {
		x := rng.Dirichlet(alpha)
		sum := 0.0
		for j, v := range x {
			require.GreaterOrEqual(t, v, 0.0)
			sum += v
			mean[j] += v / draws
		}
		require.InDelta(t, 1.0, sum, 1e-9)
	}

	assert.InDelta(t, 1.0/6.0, mean[0], 0.01)
	assert.InDelta(t, 2.0/6.0, mean[1], 0.01)
	assert.InDelta(t, 3.0/6.0, mean[2], 0.01)
}

// With a=b=0 the two-step update is a Gibbs sampler whose stationary law for
// sqrt(x2) is a standard half-Cauchy. Check the median and upper quartile
// against the known quantiles 1 and tan(3*pi/8).
func TestHalfCauchyFCStationary(t *testing.T) {
	rng := New(1234)

	const (
		burn  = 1000
		draws = 60000
	)
	x2 := 5.0 // arbitrary positive start
	samples := make([]float64, 0, draws)
	for i := 0; i < burn+draws; i++ {
		x2, _ = rng.HalfCauchyFC(x2, 0, 0)
		if i >= burn {
			samples = append(samples, math.Sqrt(x2))
		}
	}
	sort.Float64s(samples)

	median := samples[len(samples)/2]
	q75 := samples[len(samples)*3/4]
	assert.InDelta(t, 1.0, median, 0.08)
	assert.InDelta(t, math.Tan(3*math.Pi/8), q75, 0.25)
}

func TestLogDirichletDensity(t *testing.T) {
	// Dirichlet(1,1,1) is uniform on the simplex with density 2 = Gamma(3).
	got, err := LogDirichletDensity([]float64{0.2, 0.3, 0.5}, []float64{1, 1, 1})
	require.NoError(t, err)
	assert.InDelta(t, math.Log(2), got, 1e-12)

	_, err = LogDirichletDensity([]float64{0.5, 0.5}, []float64{1, 1, 1})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}
