package sampler

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/lagmix/lagmix/pkg/config"
	"github.com/lagmix/lagmix/pkg/exposure"
)

// testParams builds a small two-exposure gaussian problem with a
// deterministic outcome, so runs are reproducible without a data RNG.
func testParams(t *testing.T) Params {
	t.Helper()
	const (
		n    = 60
		lags = 8
	)

	z := mat.NewDense(n, 2, nil)
	x1 := mat.NewDense(n, lags, nil)
	x2 := mat.NewDense(n, lags, nil)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		z.Set(i, 0, 1)
		z.Set(i, 1, float64(i%5))
		for l := 0; l < lags; l++ {
			x1.Set(i, l, math.Sin(float64(i*lags+l)*0.37))
			x2.Set(i, l, math.Cos(float64(i*lags+l)*0.53))
		}
		// linear fixed effect plus an early-lag exposure effect and a
		// deterministic pseudo-noise term
		y[i] = 0.5 + 0.3*z.At(i, 1) +
			0.8*(x1.At(i, 0)+x1.At(i, 1)) +
			0.2*math.Sin(float64(i)*2.1)
	}

	e1, err := exposure.NewGaussian(x1, z)
	require.NoError(t, err)
	e2, err := exposure.NewGaussian(x2, z)
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Iterations = 20
	cfg.Burn = 10
	cfg.Thin = 2
	cfg.Trees = 3
	cfg.Interaction = config.InteractionDistinct
	cfg.Shrinkage = config.ShrinkageAll
	cfg.Diagnostics = true
	cfg.Seed = 42

	return Params{
		Config:    cfg,
		Y:         y,
		Z:         z,
		Exposures: []exposure.Provider{e1, e2},
	}
}

func TestNewValidation(t *testing.T) {
	t.Run("empty outcome", func(t *testing.T) {
		p := testParams(t)
		p.Y = nil
		_, err := New(p)
		assert.Error(t, err)
	})

	t.Run("lag mismatch", func(t *testing.T) {
		p := testParams(t)
		short := mat.NewDense(60, 4, nil)
		bad, err := exposure.NewGaussian(short, p.Z)
		require.NoError(t, err)
		p.Exposures = append(p.Exposures, bad)
		_, err = New(p)
		assert.Error(t, err)
	})

	t.Run("observation mismatch", func(t *testing.T) {
		p := testParams(t)
		short := exposure.New(mat.NewDense(30, 8, nil))
		p.Exposures = append(p.Exposures, short)
		_, err := New(p)
		assert.Error(t, err)
	})

	t.Run("non-gaussian needs a refitter", func(t *testing.T) {
		p := testParams(t)
		p.Config.Family = "binomial"
		p.BinomialSize = make([]float64, len(p.Y))
		_, err := New(p)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrRefitterRequired)
	})
}

func TestGaussianRun(t *testing.T) {
	smp, err := New(testParams(t))
	require.NoError(t, err)

	res, err := smp.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 10, res.NRecords)
	require.Len(t, res.Log.Sigma2, 10)
	for _, v := range res.Log.Sigma2 {
		assert.True(t, v > 0 && !math.IsInf(v, 0), "sigma2 trace must stay positive and finite, got %v", v)
	}
	for _, v := range res.Log.Nu {
		assert.True(t, v > 0 && !math.IsInf(v, 0))
	}
	require.Len(t, res.Log.MuExp, 10)
	for _, row := range res.Log.MuExp {
		require.Len(t, row, 2)
		for _, v := range row {
			assert.True(t, v > 0 && !math.IsInf(v, 0), "recorded exposure scale must stay positive and finite, got %v", v)
		}
	}
	require.Len(t, res.Log.Tau, 10)
	for _, row := range res.Log.Tau {
		require.Len(t, row, 3)
		for _, v := range row {
			assert.True(t, v > 0 && !math.IsInf(v, 0), "recorded tree-pair scale must stay positive and finite, got %v", v)
		}
	}
	require.Len(t, res.Log.MuMix, 10)
	for _, row := range res.Log.MuMix {
		for _, v := range row {
			assert.True(t, v > 0 && !math.IsInf(v, 0))
		}
	}

	require.Len(t, res.FhatMean, 60)
	for _, v := range res.FhatMean {
		assert.False(t, math.IsNaN(v))
		assert.False(t, math.IsInf(v, 0))
	}

	for _, probs := range res.Log.ExpProb {
		total := 0.0
		for _, p := range probs {
			assert.GreaterOrEqual(t, p, 0.0)
			total += p
		}
		assert.InDelta(t, 1.0, total, 1e-9)
	}

	// every pair contributes two main-effect snapshots per record
	require.NotEmpty(t, res.Log.Effects)
	for _, e := range res.Log.Effects {
		assert.True(t, e.Pair >= 0 && e.Pair < 3)
		assert.True(t, e.Exp == 0 || e.Exp == 1)
		assert.True(t, e.TMin >= 1 && e.TMax <= 8 && e.TMin <= e.TMax)
		assert.Greater(t, e.Var, 0.0)
	}

	// diagnostics mode traces every proposal
	require.NotEmpty(t, res.Log.Accepts)
	for _, a := range res.Log.Accepts {
		assert.True(t, a.Success >= 0 && a.Success <= 2)
		assert.True(t, a.NTerm >= 1)
	}
}

func TestRunReproducible(t *testing.T) {
	run := func() *Results {
		smp, err := New(testParams(t))
		require.NoError(t, err)
		res, err := smp.Run(context.Background())
		require.NoError(t, err)
		return res
	}

	a := run()
	b := run()
	assert.Equal(t, a.Log.Sigma2, b.Log.Sigma2)
	assert.Equal(t, a.Log.Nu, b.Log.Nu)
	assert.Equal(t, a.Log.Tree1Exp, b.Log.Tree1Exp)
	assert.Equal(t, a.FhatMean, b.FhatMean)
}

func TestRunCancelled(t *testing.T) {
	smp, err := New(testParams(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = smp.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
