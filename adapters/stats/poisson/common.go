// Package poisson implements inference on Poisson rates: confidence
// intervals and tests for one rate, tests and intervals comparing two
// independent rates, the E-test, equivalence tests, and power.
package poisson

import (
	"fmt"
	"math"

	"gorates/domain/core"
	"gorates/domain/rates"
	"gorates/internal/dist"
)

var sd = dist.NewDistributions()

func validateCount(param string, count int) error {
	if count < 0 {
		return core.NewInvalidArgumentError(param, fmt.Sprintf("must be non-negative, got %d", count))
	}
	return nil
}

func validatePositive(param string, v float64) error {
	if !(v > 0) || math.IsInf(v, 0) {
		return core.NewInvalidArgumentError(param, fmt.Sprintf("must be positive and finite, got %g", v))
	}
	return nil
}

func validateAlpha(alpha float64) error {
	if !(alpha > 0 && alpha < 1) {
		return core.NewInvalidArgumentError("alpha", fmt.Sprintf("must be in (0, 1), got %g", alpha))
	}
	return nil
}

func clip01(p float64) float64 {
	return math.Min(math.Max(p, 0), 1)
}

// zPValue converts a standard normal statistic into a p-value.
func zPValue(z float64, alt rates.Alternative) float64 {
	switch alt {
	case rates.Larger:
		return sd.NormalSF(z)
	case rates.Smaller:
		return sd.NormalCDF(z)
	default:
		return 2 * sd.NormalSF(math.Abs(z))
	}
}

// tailPValue combines the lower tail P(X <= x) and the upper tail P(X >= x)
// of a discrete statistic.
func tailPValue(lower, upper float64, alt rates.Alternative) float64 {
	switch alt {
	case rates.Larger:
		return clip01(upper)
	case rates.Smaller:
		return clip01(lower)
	default:
		return clip01(2 * math.Min(lower, upper))
	}
}
