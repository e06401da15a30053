package rates

import (
	"fmt"
	"math"
	"strings"

	"gorates/domain/core"
)

// ============================================================================
// HYPOTHESIS PRIMITIVES
// ============================================================================

// Alternative selects the tail(s) of a test.
type Alternative string

const (
	TwoSided Alternative = "two-sided"
	Larger   Alternative = "larger"
	Smaller  Alternative = "smaller"
)

// ParseAlternative normalizes an alternative. The empty string selects the
// two-sided test; the short forms "2s", "l" and "s" are accepted.
func ParseAlternative(s string) (Alternative, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "two-sided", "2-sided", "2s":
		return TwoSided, nil
	case "larger", "l":
		return Larger, nil
	case "smaller", "s":
		return Smaller, nil
	}
	return "", fmt.Errorf("%w %q: should be \"two-sided\", \"larger\" or \"smaller\"", core.ErrInvalidAlternative, s)
}

// Compare selects the effect measure of a two-sample comparison.
type Compare string

const (
	CompareRatio Compare = "ratio"
	CompareDiff  Compare = "diff"
)

// ParseCompare normalizes a comparison; the empty string selects the ratio.
func ParseCompare(s string) (Compare, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "ratio":
		return CompareRatio, nil
	case "diff":
		return CompareDiff, nil
	}
	return "", core.NewInvalidArgumentError("compare", fmt.Sprintf("%q should be \"ratio\" or \"diff\"", s))
}

// Method names a numeric procedure. Which names are valid depends on the
// entry point; each one keeps its own table.
type Method string

const (
	MethodWald       Method = "wald"
	MethodWaldCCV    Method = "waldccv"
	MethodScore      Method = "score"
	MethodExactC     Method = "exact-c"
	MethodMidpC      Method = "midp-c"
	MethodJeffreys   Method = "jeff"
	MethodSqrt       Method = "sqrt"
	MethodSqrtA      Method = "sqrt-a"
	MethodSqrtV      Method = "sqrt-v"
	MethodWaldLog    Method = "wald-log"
	MethodScoreLog   Method = "score-log"
	MethodExactCond  Method = "exact-cond"
	MethodCondMidp   Method = "cond-midp"
	MethodETest      Method = "etest"
	MethodETestScore Method = "etest-score"
	MethodETestWald  Method = "etest-wald"
)

// VarianceMethod selects the variance used under the null in power
// computations.
type VarianceMethod string

const (
	VarianceAlt   VarianceMethod = "alt"
	VarianceScore VarianceMethod = "score"
)

// Distribution names the reference distribution of a p-value.
type Distribution string

const (
	DistNormal   Distribution = "normal"
	DistPoisson  Distribution = "poisson"
	DistBinomial Distribution = "binomial"
)

// Observation is an event count over an exposure (time, person-years,
// sample size).
type Observation struct {
	Count    int
	Exposure float64
}

// Rate returns the rate estimate count / exposure.
func (o Observation) Rate() float64 {
	return float64(o.Count) / o.Exposure
}

// Validate checks the count and exposure preconditions.
func (o Observation) Validate() error {
	if o.Count < 0 {
		return core.NewInvalidArgumentError("count", fmt.Sprintf("must be non-negative, got %d", o.Count))
	}
	if !(o.Exposure > 0) || math.IsInf(o.Exposure, 0) {
		return core.NewInvalidArgumentError("exposure", fmt.Sprintf("must be positive and finite, got %g", o.Exposure))
	}
	return nil
}

// ============================================================================
// RESULTS
// ============================================================================

// Interval is a two-sided confidence interval.
type Interval struct {
	Lower  float64
	Upper  float64
	Method Method
	Alpha  float64
}

// TestResult is the outcome of a one-sample rate test. Statistic is NaN for
// the exact methods.
type TestResult struct {
	Statistic    float64
	PValue       float64
	Distribution Distribution
	Method       Method
	Alternative  Alternative
	Rate         float64
	Exposure     float64
}

// TwoSampleResult is the outcome of a test comparing two rates.
type TwoSampleResult struct {
	Statistic    float64
	PValue       float64
	Distribution Distribution
	Method       Method
	Compare      Compare
	Alternative  Alternative

	Rates [2]float64
	Ratio float64
	Diff  float64

	// Value is the null value of the compared measure. For ratio
	// comparisons RatioNull repeats it; for differences RatioNull is NaN.
	Value     float64
	RatioNull float64

	// RatesCMLE holds the rates estimated under the null constraint, when
	// the method computes them.
	RatesCMLE *[2]float64

	Warnings []error
}

// ETestResult is the outcome of an E-test.
type ETestResult struct {
	Statistic   float64
	PValue      float64
	Method      Method
	Compare     Compare
	Alternative Alternative
	Value       float64
	RatesCMLE   [2]float64
	GridSize    int
	Warnings    []error
}

// TOSTResult is the outcome of an equivalence test built from two one-sided
// tests.
type TOSTResult struct {
	Statistic float64
	PValue    float64
	Method    Method
	Compare   Compare
	Low, Upp  float64

	// Larger tests against Low, Smaller against Upp.
	Larger  TwoSampleResult
	Smaller TwoSampleResult

	// Warnings apply to the pair as a whole; the one-sided results carry none.
	Warnings []error
}

// PowerResult carries a power value together with the quantities it was
// computed from.
type PowerResult struct {
	Power      float64
	EffectSize float64
	StdNull    float64
	StdAlt     float64
	Crit       float64
	Nobs1      float64
	Nobs2      float64
	NobsRatio  float64
	Alpha      float64
	RatesAlt   [2]float64

	// PowerLow and PowerUpp are the one-sided components of an
	// equivalence power computation.
	PowerLow, PowerUpp float64
}
