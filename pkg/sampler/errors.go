package sampler

import "github.com/pkg/errors"

var (
	// ErrNotPositiveDefinite reports a posterior precision matrix that
	// failed its Cholesky factorization. Fatal for the run: the model is
	// numerically degenerate, there is nothing to retry.
	ErrNotPositiveDefinite = errors.New("sampler: posterior precision matrix is not positive definite")

	// ErrShrinkageDegenerate reports a non-finite shrinkage scale draw,
	// which happens when a scale's term count and sum of squares both
	// collapse to zero. The sweep fails rather than let the NaN poison
	// the chain.
	ErrShrinkageDegenerate = errors.New("sampler: non-finite shrinkage draw")

	// ErrRefitterRequired is returned for outcome families whose
	// nuisance-parameter refit is an external collaborator.
	ErrRefitterRequired = errors.New("sampler: outcome family requires an explicit refitter")
)
