package profiling

import "gorates/domain/rates"

// DispersionMarkers summarizes how far interval-level counts stray from the
// Poisson assumption that the variance equals the mean.
type DispersionMarkers struct {
	N      int
	Mean   float64
	Median float64
	Min    float64
	Max    float64

	// Variance is the sample variance (n-1 denominator).
	Variance float64

	// DispersionIndex is Variance / Mean. It estimates the dispersion
	// factor used by the normal-approximation rate tests.
	DispersionIndex float64

	// ChiSquare is the Pearson statistic (n-1) * Variance / Mean with
	// n-1 degrees of freedom under the Poisson model.
	ChiSquare        float64
	DegreesOfFreedom int
	PValue           float64
	Overdispersed    bool

	// Pooled is the total count over the total exposure.
	Pooled rates.Observation
}
