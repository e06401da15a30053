package poisson

import (
	"fmt"
	"math"

	"gorates/domain/core"
	"gorates/domain/rates"
)

// pair holds the two observed samples of a comparison.
type pair struct {
	count1    int
	exposure1 float64
	count2    int
	exposure2 float64
}

func newPair(count1 int, exposure1 float64, count2 int, exposure2 float64) (pair, error) {
	p := pair{count1: count1, exposure1: exposure1, count2: count2, exposure2: exposure2}
	if err := validateCount("count1", count1); err != nil {
		return p, err
	}
	if err := validatePositive("exposure1", exposure1); err != nil {
		return p, err
	}
	if err := validateCount("count2", count2); err != nil {
		return p, err
	}
	if err := validatePositive("exposure2", exposure2); err != nil {
		return p, err
	}
	return p, nil
}

func (p pair) y1() float64    { return float64(p.count1) }
func (p pair) y2() float64    { return float64(p.count2) }
func (p pair) rate1() float64 { return p.y1() / p.exposure1 }
func (p pair) rate2() float64 { return p.y2() / p.exposure2 }

// ratioD converts a null rate ratio into the ratio of expected counts,
// r * n1 / n2.
func (p pair) ratioD(value float64) float64 {
	return value / (p.exposure2 / p.exposure1)
}

type pairStat func(p pair, value float64) float64

var ratioNormal = map[rates.Method]pairStat{
	rates.MethodScore: func(p pair, value float64) float64 {
		rd := p.ratioD(value)
		return (p.y1() - p.y2()*rd) / math.Sqrt((p.y1()+p.y2())*rd)
	},
	rates.MethodWald: func(p pair, value float64) float64 {
		rd := p.ratioD(value)
		return (p.y1() - p.y2()*rd) / math.Sqrt(p.y1()+p.y2()*rd*rd)
	},
	rates.MethodScoreLog: func(p pair, value float64) float64 {
		rd := p.ratioD(value)
		return (math.Log(p.y1()/p.y2()) - math.Log(rd)) / math.Sqrt((2+1/rd+rd)/(p.y1()+p.y2()))
	},
	rates.MethodWaldLog: func(p pair, value float64) float64 {
		rd := p.ratioD(value)
		return (math.Log(p.y1()/p.y2()) - math.Log(rd)) / math.Sqrt(1/p.y1()+1/p.y2())
	},
	rates.MethodSqrt: func(p pair, value float64) float64 {
		const shift = 3.0 / 8
		rd := p.ratioD(value)
		return 2 * (math.Sqrt(p.y1()+shift) - math.Sqrt((p.y2()+shift)*rd)) / math.Sqrt(1+rd)
	},
}

var diffNormal = map[rates.Method]pairStat{
	rates.MethodWald: func(p pair, value float64) float64 {
		r1, r2 := p.rate1(), p.rate2()
		return (r1 - r2 - value) / math.Sqrt(r1/p.exposure1+r2/p.exposure2)
	},
	rates.MethodWaldCCV: func(p pair, value float64) float64 {
		n1, n2 := p.exposure1, p.exposure2
		return (p.rate1() - p.rate2() - value) / math.Sqrt((p.y1()+0.5)/(n1*n1)+(p.y2()+0.5)/(n2*n2))
	},
	rates.MethodScore: func(p pair, value float64) float64 {
		stat, _, _ := scoreDiff(p.y1(), p.exposure1, p.y2(), p.exposure2, value)
		return stat
	},
}

var conditionalMethods = map[rates.Method]bool{
	rates.MethodExactCond: true,
	rates.MethodCondMidp:  true,
}

var etestMethods = map[rates.Method]rates.Method{
	rates.MethodETest:      rates.MethodScore,
	rates.MethodETestScore: rates.MethodScore,
	rates.MethodETestWald:  rates.MethodWald,
}

// scoreDiff is the score statistic for rate1 - rate2 = value together with
// the rates estimated under that constraint.
func scoreDiff(y1, n1, y2, n2, value float64) (stat, r1c, r2c float64) {
	total := n1 + n2
	pooled := (y1 + y2) / total
	dt := pooled - value
	r2c = 0.5 * (dt + math.Sqrt(math.Max(dt*dt+4*value*y2/total, 0)))
	r1c = r2c + value
	stat = (y1/n1 - y2/n2 - value) / math.Sqrt(r1c/n1+r2c/n2+1e-20)
	return stat, r1c, r2c
}

// TestPoisson2Indep tests the ratio or difference of two independent Poisson
// rates. The empty method selects score.
//
// Options: WithCompare, WithValue or WithRatioNull, WithAlternative,
// WithDispersion, and for the E-test methods WithYGrid.
func TestPoisson2Indep(count1 int, exposure1 float64, count2 int, exposure2 float64, method rates.Method, opts ...Option) (rates.TwoSampleResult, error) {
	p, err := newPair(count1, exposure1, count2, exposure2)
	if err != nil {
		return rates.TwoSampleResult{}, err
	}
	s, err := newSettings(opts)
	if err != nil {
		return rates.TwoSampleResult{}, err
	}
	return testPair(p, method, s)
}

func testPair(p pair, method rates.Method, s *settings) (rates.TwoSampleResult, error) {
	if method == "" {
		method = rates.MethodScore
	}

	res := rates.TwoSampleResult{
		Method:      method,
		Compare:     s.compare,
		Alternative: s.alternative,
		Rates:       [2]float64{p.rate1(), p.rate2()},
		Ratio:       p.rate1() / p.rate2(),
		Diff:        p.rate1() - p.rate2(),
		RatioNull:   math.NaN(),
	}

	normal := ratioNormal
	if s.compare == rates.CompareDiff {
		res.Value = s.nullValue(0)
		if !isFinite(res.Value) {
			return rates.TwoSampleResult{}, core.NewInvalidArgumentError("value", fmt.Sprintf("must be finite, got %g", res.Value))
		}
		normal = diffNormal
	} else {
		res.Value = s.nullValue(1)
		if err := validatePositive("value", res.Value); err != nil {
			return rates.TwoSampleResult{}, err
		}
		res.RatioNull = res.Value
	}

	statFn, isNormal := normal[method]
	base, isETest := etestMethods[method]
	isCond := conditionalMethods[method] && s.compare == rates.CompareRatio
	if !isNormal && !isETest && !isCond {
		return rates.TwoSampleResult{}, core.NewUnsupportedMethodError(fmt.Sprintf("test_poisson_2indep (compare=%s)", s.compare), string(method))
	}
	if s.dispersion != 1 && !isNormal {
		return rates.TwoSampleResult{}, core.NewInvalidArgumentError("dispersion", fmt.Sprintf("is not supported by %q", method))
	}

	switch {
	case isETest:
		et, err := etestPair(p, base, s)
		if err != nil {
			return rates.TwoSampleResult{}, err
		}
		res.Statistic, res.PValue = et.Statistic, et.PValue
		res.Distribution = rates.DistPoisson
		cmle := et.RatesCMLE
		res.RatesCMLE = &cmle
		res.Warnings = et.Warnings
	case isCond:
		res.Statistic = math.NaN()
		res.PValue = conditionalPValue(p, res.Value, method == rates.MethodCondMidp, s.alternative)
		res.Distribution = rates.DistBinomial
	default:
		stat := statFn(p, res.Value) / math.Sqrt(s.dispersion)
		if math.IsNaN(stat) {
			return rates.TwoSampleResult{}, core.NewInvalidArgumentError("counts", fmt.Sprintf("%s statistic is undefined for counts (%d, %d)", method, p.count1, p.count2))
		}
		res.Statistic = stat
		res.PValue = zPValue(stat, s.alternative)
		res.Distribution = rates.DistNormal
		if s.compare == rates.CompareDiff && method == rates.MethodScore {
			_, r1c, r2c := scoreDiff(p.y1(), p.exposure1, p.y2(), p.exposure2, res.Value)
			res.RatesCMLE = &[2]float64{r1c, r2c}
		}
	}
	return res, nil
}

// conditionalPValue tests the ratio conditional on the total count: count1
// given count1 + count2 is binomial with success probability rd / (1 + rd).
// The two-sided p-value sums all outcomes no more likely than the observed
// one. The mid-p variant removes half the observed probability.
func conditionalPValue(p pair, value float64, midp bool, alt rates.Alternative) float64 {
	rd := p.ratioD(value)
	prob := rd / (1 + rd)
	k, n := p.count1, p.count1+p.count2

	var pv float64
	switch alt {
	case rates.Larger:
		pv = sd.BinomialSF(k-1, n, prob)
	case rates.Smaller:
		pv = sd.BinomialCDF(k, n, prob)
	default:
		pv = binomTwoSidedMinLike(k, n, prob)
	}
	if midp {
		pv -= 0.5 * sd.BinomialPMF(k, n, prob)
	}
	return clip01(pv)
}

// binomTwoSidedMinLike is the two-sided binomial test p-value using the
// minimum likelihood rule.
func binomTwoSidedMinLike(k, n int, prob float64) float64 {
	const rerr = 1 + 1e-7
	if n == 0 {
		return 1
	}
	mode := prob * float64(n)
	if float64(k) == mode {
		return 1
	}
	d := sd.BinomialPMF(k, n, prob)

	var pv float64
	if float64(k) < mode {
		ix := int(math.Ceil(mode))
		for ix <= n && sd.BinomialPMF(ix, n, prob) > d*rerr {
			ix++
		}
		pv = sd.BinomialCDF(k, n, prob) + sd.BinomialSF(ix-1, n, prob)
	} else {
		ix := int(math.Floor(mode))
		for ix >= 0 && sd.BinomialPMF(ix, n, prob) > d*rerr {
			ix--
		}
		pv = sd.BinomialCDF(ix, n, prob) + sd.BinomialSF(k-1, n, prob)
	}
	return math.Min(pv, 1)
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
