package poisson

import (
	"fmt"
	"math"

	"gorates/domain/core"
	"gorates/domain/rates"
	"gorates/internal/rootfind"
)

// DefaultMaxGrid caps the number of grid points per sample in the E-test.
const DefaultMaxGrid = 5000

// Option configures a rate procedure.
type Option func(*settings)

type settings struct {
	alternative rates.Alternative
	dispersion  float64
	alpha       float64

	value     float64
	valueSet  bool
	ratioNull float64
	ratioSet  bool

	compare rates.Compare
	method  rates.Method

	yGrid          []int
	yGridSet       bool
	legacyYGrid    []int
	legacyYGridSet bool
	maxGrid        int

	nobsRatio float64
	methodVar rates.VarianceMethod

	root rootfind.Options
}

func newSettings(opts []Option) (*settings, error) {
	s := &settings{
		alternative: rates.TwoSided,
		dispersion:  1,
		alpha:       0.05,
		compare:     rates.CompareRatio,
		maxGrid:     DefaultMaxGrid,
		nobsRatio:   1,
		methodVar:   rates.VarianceAlt,
		root:        rootfind.DefaultOptions(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, s.validate()
}

func (s *settings) validate() error {
	alt, err := rates.ParseAlternative(string(s.alternative))
	if err != nil {
		return err
	}
	s.alternative = alt

	cmp, err := rates.ParseCompare(string(s.compare))
	if err != nil {
		return err
	}
	s.compare = cmp

	if !(s.dispersion > 0) || math.IsInf(s.dispersion, 0) {
		return core.NewInvalidArgumentError("dispersion", fmt.Sprintf("must be positive and finite, got %g", s.dispersion))
	}
	if !(s.alpha > 0 && s.alpha < 1) {
		return core.NewInvalidArgumentError("alpha", fmt.Sprintf("must be in (0, 1), got %g", s.alpha))
	}
	if !(s.nobsRatio > 0) || math.IsInf(s.nobsRatio, 0) {
		return core.NewInvalidArgumentError("nobs_ratio", fmt.Sprintf("must be positive and finite, got %g", s.nobsRatio))
	}
	switch s.methodVar {
	case rates.VarianceAlt, rates.VarianceScore:
	default:
		return core.NewInvalidArgumentError("method_var", fmt.Sprintf("%q should be \"alt\" or \"score\"", s.methodVar))
	}
	if s.valueSet && s.ratioSet {
		return core.NewInvalidArgumentError("ratio_null", "cannot be combined with value")
	}
	if s.maxGrid <= 0 {
		s.maxGrid = DefaultMaxGrid
	}
	return nil
}

// nullValue returns the null value, falling back to def when neither the
// value nor the ratio_null option was given.
func (s *settings) nullValue(def float64) float64 {
	switch {
	case s.valueSet:
		return s.value
	case s.ratioSet:
		return s.ratioNull
	}
	return def
}

// WithAlternative selects the tail(s) of the test.
func WithAlternative(alt rates.Alternative) Option {
	return func(s *settings) { s.alternative = alt }
}

// WithDispersion scales the variance of the normal-approximation tests.
func WithDispersion(d float64) Option {
	return func(s *settings) { s.dispersion = d }
}

// WithAlpha sets the significance level.
func WithAlpha(alpha float64) Option {
	return func(s *settings) { s.alpha = alpha }
}

// WithValue sets the null value of the compared measure.
func WithValue(v float64) Option {
	return func(s *settings) { s.value, s.valueSet = v, true }
}

// WithRatioNull sets the null rate ratio. It is an alternative spelling of
// WithValue for ratio comparisons; the two cannot be combined.
func WithRatioNull(r float64) Option {
	return func(s *settings) { s.ratioNull, s.ratioSet = r, true }
}

// WithCompare selects a ratio or difference comparison.
func WithCompare(c rates.Compare) Option {
	return func(s *settings) { s.compare = c }
}

// WithMethod selects the method for entry points that take it as an option.
func WithMethod(m rates.Method) Option {
	return func(s *settings) { s.method = m }
}

// WithYGrid sets the outcome grid enumerated by the E-test.
func WithYGrid(grid []int) Option {
	return func(s *settings) { s.yGrid, s.yGridSet = grid, true }
}

// WithYgrid is the old spelling of WithYGrid.
//
// Deprecated: use WithYGrid. Results computed with it carry a
// core.DeprecationWarning.
func WithYgrid(grid []int) Option {
	return func(s *settings) { s.legacyYGrid, s.legacyYGridSet = grid, true }
}

// WithMaxGrid bounds the default and explicit E-test grids.
func WithMaxGrid(n int) Option {
	return func(s *settings) { s.maxGrid = n }
}

// WithRootOptions sets the tolerances of interval root searches.
func WithRootOptions(opts rootfind.Options) Option {
	return func(s *settings) { s.root = opts }
}

// WithNobsRatio sets nobs1 / nobs2 for PowerPoissonDiff2Indep; a ratio of
// 0.75 with nobs1 = 6 means 8 units in the second sample. The ratio power
// functions take both sample sizes directly and ignore it.
func WithNobsRatio(k float64) Option {
	return func(s *settings) { s.nobsRatio = k }
}

// WithMethodVar selects the null variance used in power computations.
func WithMethodVar(m rates.VarianceMethod) Option {
	return func(s *settings) { s.methodVar = m }
}
