package poisson

import (
	"errors"
	"fmt"
	"math"

	"gorates/domain/core"
	"gorates/domain/rates"
	"gorates/internal/rootfind"
)

var confint2RatioMethods = map[rates.Method]bool{
	rates.MethodWaldLog:   true,
	rates.MethodScore:     true,
	rates.MethodScoreLog:  true,
	rates.MethodSqrt:      true,
	rates.MethodExactCond: true,
	rates.MethodCondMidp:  true,
}

var confint2DiffMethods = map[rates.Method]bool{
	rates.MethodWald:    true,
	rates.MethodWaldCCV: true,
	rates.MethodScore:   true,
}

// ConfintPoisson2Indep returns a central 1-alpha confidence interval for the
// ratio (default) or difference of two rates. Each bound excludes alpha/2,
// so the matching one-sided test has p-value alpha/2 there.
//
// The method comes from WithMethod and defaults to score. WithDispersion
// widens the normal-based intervals; the conditional methods reject it.
// A zero count1 gives a ratio lower bound of 0 and a zero count2 an infinite
// upper bound.
func ConfintPoisson2Indep(count1 int, exposure1 float64, count2 int, exposure2 float64, alpha float64, opts ...Option) (rates.Interval, error) {
	p, err := newPair(count1, exposure1, count2, exposure2)
	if err != nil {
		return rates.Interval{}, err
	}
	if err := validateAlpha(alpha); err != nil {
		return rates.Interval{}, err
	}
	s, err := newSettings(opts)
	if err != nil {
		return rates.Interval{}, err
	}
	method := s.method
	if method == "" {
		method = rates.MethodScore
	}
	if s.dispersion != 1 && (method == rates.MethodExactCond || method == rates.MethodCondMidp) {
		return rates.Interval{}, core.NewInvalidArgumentError("dispersion", fmt.Sprintf("is not supported by %q", method))
	}

	var lo, hi float64
	if s.compare == rates.CompareDiff {
		if !confint2DiffMethods[method] {
			return rates.Interval{}, core.NewUnsupportedMethodError("confint_poisson_2indep (compare=diff)", string(method))
		}
		lo, hi, err = confintDiff(p, alpha, method, s)
	} else {
		if !confint2RatioMethods[method] {
			return rates.Interval{}, core.NewUnsupportedMethodError("confint_poisson_2indep (compare=ratio)", string(method))
		}
		lo, hi, err = confintRatio(p, alpha, method, s)
	}
	if err != nil {
		return rates.Interval{}, fmt.Errorf("confint_poisson_2indep %s: %w", method, err)
	}
	return rates.Interval{Lower: lo, Upper: hi, Method: method, Alpha: alpha}, nil
}

func confintRatio(p pair, alpha float64, method rates.Method, s *settings) (float64, float64, error) {
	if p.count1 == 0 && p.count2 == 0 {
		return 0, math.Inf(1), nil
	}
	scale := p.exposure2 / p.exposure1

	switch method {
	case rates.MethodWaldLog:
		if p.count1 == 0 || p.count2 == 0 {
			return 0, 0, core.NewInvalidArgumentError("counts", "wald-log requires positive counts")
		}
		est := math.Log(p.rate1() / p.rate2())
		whalf := sd.NormalISF(alpha/2) * math.Sqrt(s.dispersion*(1/p.y1()+1/p.y2()))
		return math.Exp(est - whalf), math.Exp(est + whalf), nil
	case rates.MethodExactCond:
		n := float64(p.count1 + p.count2)
		lo, hi := 0.0, math.Inf(1)
		if p.count1 > 0 {
			q := sd.BetaQuantile(alpha/2, p.y1(), n-p.y1()+1)
			lo = q / (1 - q) * scale
		}
		if p.count2 > 0 {
			q := sd.BetaQuantile(1-alpha/2, p.y1()+1, n-p.y1())
			hi = q / (1 - q) * scale
		}
		return lo, hi, nil
	}

	// Numerical inversion on the log scale, starting at the estimate.
	oneSided := func(alt rates.Alternative) func(float64) float64 {
		return func(logRatio float64) float64 {
			ts := *s
			ts.value, ts.valueSet, ts.ratioSet = math.Exp(logRatio), true, false
			ts.alternative = alt
			res, err := testPair(p, method, &ts)
			if err != nil {
				return math.NaN()
			}
			return res.PValue - alpha/2
		}
	}

	lo, hi := 0.0, math.Inf(1)
	var err error
	if p.count1 > 0 {
		start := math.Log((p.y1() / math.Max(p.y2(), 0.5)) * scale)
		if lo, err = invertLog(oneSided(rates.Larger), start, -1, 0, s.root); err != nil {
			return 0, 0, err
		}
	}
	if p.count2 > 0 {
		start := math.Log((math.Max(p.y1(), 0.5) / p.y2()) * scale)
		if hi, err = invertLog(oneSided(rates.Smaller), start, 1, math.Inf(1), s.root); err != nil {
			return 0, 0, err
		}
	}
	return lo, hi, nil
}

// invertLog solves f(log r) = 0 walking away from start. If f never changes
// sign on that side there is no finite bound and unbounded is returned.
func invertLog(f func(float64) float64, start, step, unbounded float64, opts rootfind.Options) (float64, error) {
	a, b, err := rootfind.Bracket(f, start, step, 10)
	if errors.Is(err, core.ErrNotBracketed) {
		return unbounded, nil
	}
	if err != nil {
		return 0, err
	}
	if a == b {
		return math.Exp(a), nil
	}
	root, err := rootfind.Solve(f, a, b, opts)
	if err != nil {
		return 0, err
	}
	return math.Exp(root), nil
}

func confintDiff(p pair, alpha float64, method rates.Method, s *settings) (float64, float64, error) {
	n1, n2 := p.exposure1, p.exposure2
	est := p.rate1() - p.rate2()
	crit := sd.NormalISF(alpha / 2)

	switch method {
	case rates.MethodWald:
		whalf := crit * math.Sqrt(s.dispersion*(p.rate1()/n1+p.rate2()/n2))
		return est - whalf, est + whalf, nil
	case rates.MethodWaldCCV:
		whalf := crit * math.Sqrt(s.dispersion*((p.y1()+0.5)/(n1*n1)+(p.y2()+0.5)/(n2*n2)))
		return est - whalf, est + whalf, nil
	}

	// score: invert the one-sided tests around the estimate, stepping in
	// units of the continuity-corrected standard error.
	step := math.Sqrt(s.dispersion * ((p.y1()+0.5)/(n1*n1) + (p.y2()+0.5)/(n2*n2)))
	oneSided := func(alt rates.Alternative) func(float64) float64 {
		return func(value float64) float64 {
			stat, _, _ := scoreDiff(p.y1(), n1, p.y2(), n2, value)
			return zPValue(stat/math.Sqrt(s.dispersion), alt) - alpha/2
		}
	}

	var roots [2]float64
	for i, side := range []struct {
		alt  rates.Alternative
		sign float64
	}{{rates.Larger, -1}, {rates.Smaller, 1}} {
		f := oneSided(side.alt)
		a, b, err := rootfind.Bracket(f, est, side.sign*step, 60)
		if err != nil {
			return 0, 0, err
		}
		if a == b {
			roots[i] = a
			continue
		}
		if roots[i], err = rootfind.Solve(f, a, b, s.root); err != nil {
			return 0, 0, err
		}
	}
	return roots[0], roots[1], nil
}
