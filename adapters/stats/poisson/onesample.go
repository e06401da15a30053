package poisson

import (
	"fmt"
	"math"

	"gorates/domain/core"
	"gorates/domain/rates"
	"gorates/internal/rootfind"
)

type confintFunc func(count int, exposure, alpha float64, s *settings) (lo, hi float64, err error)

var confintMethods = map[rates.Method]confintFunc{
	rates.MethodWald:     confintWald,
	rates.MethodWaldCCV:  confintWaldCCV,
	rates.MethodScore:    confintScore,
	rates.MethodExactC:   confintExact,
	rates.MethodJeffreys: confintJeffreys,
	rates.MethodSqrtA:    confintSqrtA,
	rates.MethodSqrtV:    confintSqrtV,
	rates.MethodMidpC:    confintMidp,
}

// ConfintPoisson returns a two-sided 1-alpha confidence interval for the rate
// of a Poisson count observed over exposure.
//
// The wald and waldccv lower bounds are not clipped at zero.
func ConfintPoisson(count int, exposure, alpha float64, method rates.Method, opts ...Option) (rates.Interval, error) {
	if err := validateCount("count", count); err != nil {
		return rates.Interval{}, err
	}
	if err := validatePositive("exposure", exposure); err != nil {
		return rates.Interval{}, err
	}
	if err := validateAlpha(alpha); err != nil {
		return rates.Interval{}, err
	}
	fn, ok := confintMethods[method]
	if !ok {
		return rates.Interval{}, core.NewUnsupportedMethodError("confint_poisson", string(method))
	}
	s, err := newSettings(opts)
	if err != nil {
		return rates.Interval{}, err
	}

	lo, hi, err := fn(count, exposure, alpha, s)
	if err != nil {
		return rates.Interval{}, fmt.Errorf("confint_poisson %s: %w", method, err)
	}
	return rates.Interval{Lower: lo, Upper: hi, Method: method, Alpha: alpha}, nil
}

func confintWald(count int, exposure, alpha float64, _ *settings) (float64, float64, error) {
	rate := float64(count) / exposure
	whalf := sd.NormalISF(alpha/2) * math.Sqrt(rate/exposure)
	return rate - whalf, rate + whalf, nil
}

func confintWaldCCV(count int, exposure, alpha float64, _ *settings) (float64, float64, error) {
	rate := float64(count) / exposure
	whalf := sd.NormalISF(alpha/2) * math.Sqrt((rate+0.5/exposure)/exposure)
	return rate - whalf, rate + whalf, nil
}

func confintScore(count int, exposure, alpha float64, _ *settings) (float64, float64, error) {
	c := float64(count)
	crit := sd.NormalISF(alpha / 2)
	center := c + crit*crit/2
	whalf := crit * math.Sqrt(c+crit*crit/4)
	return (center - whalf) / exposure, (center + whalf) / exposure, nil
}

func confintExact(count int, exposure, alpha float64, _ *settings) (float64, float64, error) {
	lo, hi := exactBounds(count, alpha)
	return lo / exposure, hi / exposure, nil
}

// exactBounds returns the Garwood interval for the Poisson mean.
func exactBounds(count int, alpha float64) (float64, float64) {
	c := float64(count)
	lo := 0.0
	if count > 0 {
		lo = sd.GammaQuantile(alpha/2, c)
	}
	return lo, sd.GammaISF(alpha/2, c+1)
}

func confintJeffreys(count int, exposure, alpha float64, _ *settings) (float64, float64, error) {
	shape := float64(count) + 0.5
	return sd.GammaQuantile(alpha/2, shape) / exposure, sd.GammaISF(alpha/2, shape) / exposure, nil
}

func confintSqrtA(count int, exposure, alpha float64, _ *settings) (float64, float64, error) {
	const shift = 3.0 / 8
	center := math.Sqrt(float64(count) + shift)
	whalf := sd.NormalISF(alpha/2) / 2
	lo := math.Max(center-whalf, 0)
	lo = math.Max(lo*lo-shift, 0)
	hi := (center + whalf) * (center + whalf)
	return lo / exposure, (hi - shift) / exposure, nil
}

func confintSqrtV(count int, exposure, alpha float64, _ *settings) (float64, float64, error) {
	crit := sd.NormalISF(alpha / 2)
	center := math.Sqrt(float64(count) + (crit*crit+2)/12)
	whalf := crit / 2
	lo := math.Max(center-whalf, 0)
	hi := center + whalf
	return lo * lo / exposure, hi * hi / exposure, nil
}

// confintMidp inverts the one-sided mid-p tests. The exact interval brackets
// both roots.
func confintMidp(count int, exposure, alpha float64, s *settings) (float64, float64, error) {
	exactLo, exactHi := exactBounds(count, alpha)
	target := alpha / 2

	lo := 0.0
	if count > 0 {
		upperTail := func(mu float64) float64 {
			_, upper := midpTails(count, mu)
			return upper - target
		}
		root, err := rootfind.Solve(upperTail, exactLo, exactHi, s.root)
		if err != nil {
			return 0, 0, err
		}
		lo = root
	}

	lowerTail := func(mu float64) float64 {
		lower, _ := midpTails(count, mu)
		return lower - target
	}
	hi, err := rootfind.Solve(lowerTail, exactLo, exactHi, s.root)
	if err != nil {
		return 0, 0, err
	}
	return lo / exposure, hi / exposure, nil
}

// exactTails returns P(X <= count) and P(X >= count) for X ~ Poisson(mu).
func exactTails(count int, mu float64) (lower, upper float64) {
	return sd.PoissonCDF(count, mu), sd.PoissonSF(count-1, mu)
}

// midpTails is exactTails with half the probability of the observed count
// removed from both tails.
func midpTails(count int, mu float64) (lower, upper float64) {
	lower, upper = exactTails(count, mu)
	half := 0.5 * sd.PoissonPMF(count, mu)
	return lower - half, upper - half
}

// ============================================================================
// ONE-SAMPLE TEST
// ============================================================================

type oneSampleStat func(count int, exposure, value float64) float64

var oneSampleNormal = map[rates.Method]oneSampleStat{
	rates.MethodWald: func(count int, n, value float64) float64 {
		rate := float64(count) / n
		return (rate - value) / math.Sqrt(rate/n)
	},
	rates.MethodWaldCCV: func(count int, n, value float64) float64 {
		rate := float64(count) / n
		return (rate - value) / math.Sqrt((rate+0.5/n)/n)
	},
	rates.MethodScore: func(count int, n, value float64) float64 {
		rate := float64(count) / n
		return (rate - value) / math.Sqrt(value/n)
	},
	rates.MethodSqrt: func(count int, n, value float64) float64 {
		return (math.Sqrt(float64(count)) - math.Sqrt(n*value)) / 0.5
	},
	rates.MethodSqrtA: func(count int, n, value float64) float64 {
		const shift = 3.0 / 8
		return (math.Sqrt(float64(count)+shift) - math.Sqrt(n*value+shift)) / 0.5
	},
	rates.MethodSqrtV: func(count int, n, value float64) float64 {
		// The variance-stabilizing shift is fixed at the 5% critical value.
		crit := sd.NormalISF(0.025)
		return (math.Sqrt(float64(count)+(crit*crit+2)/12) - math.Sqrt(n*value)) / 0.5
	},
}

var oneSampleExact = map[rates.Method]func(count int, mu float64) (float64, float64){
	rates.MethodExactC: exactTails,
	rates.MethodMidpC:  midpTails,
}

// methods whose variance can be scaled by a dispersion factor
var dispersionMethods = map[rates.Method]bool{
	rates.MethodWald:    true,
	rates.MethodWaldCCV: true,
	rates.MethodScore:   true,
}

// TestPoisson tests whether the rate of count over exposure equals value.
func TestPoisson(count int, exposure, value float64, method rates.Method, opts ...Option) (rates.TestResult, error) {
	if err := validateCount("count", count); err != nil {
		return rates.TestResult{}, err
	}
	if err := validatePositive("exposure", exposure); err != nil {
		return rates.TestResult{}, err
	}
	if err := validatePositive("value", value); err != nil {
		return rates.TestResult{}, err
	}
	s, err := newSettings(opts)
	if err != nil {
		return rates.TestResult{}, err
	}
	statFn, normal := oneSampleNormal[method]
	tails, exact := oneSampleExact[method]
	if !normal && !exact {
		return rates.TestResult{}, core.NewUnsupportedMethodError("test_poisson", string(method))
	}
	if s.dispersion != 1 && !dispersionMethods[method] {
		return rates.TestResult{}, core.NewInvalidArgumentError("dispersion", fmt.Sprintf("is only supported by wald, waldccv and score, not %q", method))
	}

	res := rates.TestResult{
		Method:      method,
		Alternative: s.alternative,
		Rate:        float64(count) / exposure,
		Exposure:    exposure,
	}

	if exact {
		lower, upper := tails(count, exposure*value)
		res.Statistic = math.NaN()
		res.PValue = tailPValue(lower, upper, s.alternative)
		res.Distribution = rates.DistPoisson
		return res, nil
	}

	stat := statFn(count, exposure, value) / math.Sqrt(s.dispersion)
	if math.IsNaN(stat) {
		return rates.TestResult{}, core.NewInvalidArgumentError("count", fmt.Sprintf("%s statistic is undefined for count %d", method, count))
	}
	res.Statistic = stat
	res.PValue = zPValue(stat, s.alternative)
	res.Distribution = rates.DistNormal
	return res, nil
}
