package sampler

import "github.com/pkg/errors"

// Family is the outcome family. It is a closed set: every family carries its
// own design-weighting strategy inside the marginal-likelihood engine.
type Family int

const (
	// Gaussian continuous outcomes; unweighted cross-products, reusable
	// across sweeps while the tree structure is unchanged.
	Gaussian Family = iota
	// Binomial outcomes; diagonal latent-augmentation weights.
	Binomial
	// ZINB zero-inflated negative binomial counts; latent weights
	// restricted to the count-model observation subset.
	ZINB
)

func ParseFamily(s string) (Family, error) {
	switch s {
	case "gaussian":
		return Gaussian, nil
	case "binomial":
		return Binomial, nil
	case "zinb":
		return ZINB, nil
	}
	return 0, errors.Errorf("sampler: unknown outcome family %q", s)
}

func (f Family) String() string {
	switch f {
	case Gaussian:
		return "gaussian"
	case Binomial:
		return "binomial"
	case ZINB:
		return "zinb"
	}
	return "unknown"
}
