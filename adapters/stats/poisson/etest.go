package poisson

import (
	"fmt"
	"math"

	"gorates/domain/core"
	"gorates/domain/rates"
)

const (
	etestEps       = 1e-20
	etestTieMargin = 1e-15
	etestTailProb  = 1e-13
	etestMinGrid   = 100
)

// EtestPoisson2Indep runs the E-test of Krishnamoorthy and Thomson: the
// p-value is the probability, under Poisson distributions with the rates
// estimated subject to the null, of all grid outcomes whose statistic is at
// least as extreme as the observed one.
//
// method is score (the default) or wald. The grid defaults to
// 0..max(q, 100) where q is the 1-1e-13 quantile of the larger expected
// count.
func EtestPoisson2Indep(count1 int, exposure1 float64, count2 int, exposure2 float64, method rates.Method, opts ...Option) (rates.ETestResult, error) {
	p, err := newPair(count1, exposure1, count2, exposure2)
	if err != nil {
		return rates.ETestResult{}, err
	}
	s, err := newSettings(opts)
	if err != nil {
		return rates.ETestResult{}, err
	}
	switch method {
	case "":
		method = rates.MethodScore
	case rates.MethodScore, rates.MethodWald:
	default:
		return rates.ETestResult{}, core.NewUnsupportedMethodError("etest_poisson_2indep", string(method))
	}
	if s.dispersion != 1 {
		return rates.ETestResult{}, core.NewInvalidArgumentError("dispersion", "is not supported by the E-test")
	}
	return etestPair(p, method, s)
}

func etestPair(p pair, method rates.Method, s *settings) (rates.ETestResult, error) {
	grid, warnings, err := resolveGrid(s)
	if err != nil {
		return rates.ETestResult{}, err
	}

	n1, n2 := p.exposure1, p.exposure2
	var (
		value    float64
		r1, r2   float64
		statFunc func(x1, x2 float64) float64
	)

	if s.compare == rates.CompareDiff {
		value = s.nullValue(0)
		if !isFinite(value) {
			return rates.ETestResult{}, core.NewInvalidArgumentError("value", fmt.Sprintf("must be finite, got %g", value))
		}
		_, r1, r2 = scoreDiff(p.y1(), n1, p.y2(), n2, value)
		if method == rates.MethodScore {
			statFunc = func(x1, x2 float64) float64 {
				stat, _, _ := scoreDiff(x1, n1, x2, n2, value)
				return stat
			}
		} else {
			statFunc = func(x1, x2 float64) float64 {
				q1, q2 := x1/n1, x2/n2
				return (q1 - q2 - value) / math.Sqrt(q1/n1+q2/n2+etestEps)
			}
		}
	} else {
		value = s.nullValue(1)
		if err := validatePositive("value", value); err != nil {
			return rates.ETestResult{}, err
		}
		rd := p.ratioD(value)
		r2 = (p.y1() + p.y2()) / n2 / (1 + rd)
		r1 = value * r2
		if method == rates.MethodScore {
			statFunc = func(x1, x2 float64) float64 {
				return (x1 - x2*rd) / math.Sqrt((x1+x2)*rd+etestEps)
			}
		} else {
			statFunc = func(x1, x2 float64) float64 {
				return (x1 - x2*rd) / math.Sqrt(x1+x2*rd*rd+etestEps)
			}
		}
	}

	mean1, mean2 := n1*r1, n2*r2
	if grid == nil {
		upper := sd.PoissonISF(etestTailProb, math.Max(mean1, mean2))
		if upper < etestMinGrid {
			upper = etestMinGrid
		}
		if upper+1 > s.maxGrid {
			return rates.ETestResult{}, core.NewInvalidArgumentError("counts", fmt.Sprintf("require a grid of %d points, above the limit of %d", upper+1, s.maxGrid))
		}
		grid = make([]int, upper+1)
		for i := range grid {
			grid[i] = i
		}
	}

	observed := statFunc(p.y1(), p.y2())
	pvalue := etestSum(grid, mean1, mean2, statFunc, observed, s.alternative)

	return rates.ETestResult{
		Statistic:   observed,
		PValue:      pvalue,
		Method:      method,
		Compare:     s.compare,
		Alternative: s.alternative,
		Value:       value,
		RatesCMLE:   [2]float64{r1, r2},
		GridSize:    len(grid),
		Warnings:    warnings,
	}, nil
}

func etestSum(grid []int, mean1, mean2 float64, statFunc func(x1, x2 float64) float64, observed float64, alt rates.Alternative) float64 {
	pmf1 := make([]float64, len(grid))
	pmf2 := make([]float64, len(grid))
	for i, x := range grid {
		pmf1[i] = sd.PoissonPMF(x, mean1)
		pmf2[i] = sd.PoissonPMF(x, mean2)
	}

	extreme := func(stat float64) bool {
		switch alt {
		case rates.Larger:
			return stat >= observed-etestTieMargin
		case rates.Smaller:
			return stat <= observed+etestTieMargin
		default:
			return math.Abs(stat) >= math.Abs(observed)-etestTieMargin
		}
	}

	var pvalue float64
	for i, x1 := range grid {
		if pmf1[i] == 0 {
			continue
		}
		for j, x2 := range grid {
			if extreme(statFunc(float64(x1), float64(x2))) {
				pvalue += pmf1[i] * pmf2[j]
			}
		}
	}
	return clip01(pvalue)
}

// foldLegacyGrid moves a deprecated ygrid into y_grid so that callers running
// several tests on the same settings report the deprecation once. When both
// names are set the settings are left alone for resolveGrid to reject.
func foldLegacyGrid(s *settings) []error {
	if !s.legacyYGridSet || s.yGridSet {
		return nil
	}
	s.yGrid, s.yGridSet = s.legacyYGrid, true
	s.legacyYGrid, s.legacyYGridSet = nil, false
	return []error{core.DeprecationWarning{Param: "ygrid", Replacement: "y_grid"}}
}

// resolveGrid validates an explicit grid and folds the deprecated ygrid
// spelling into it. A nil grid means the default grid.
func resolveGrid(s *settings) ([]int, []error, error) {
	var warnings []error
	grid, set := s.yGrid, s.yGridSet
	if s.legacyYGridSet {
		if set {
			return nil, nil, core.NewInvalidArgumentError("y_grid", "cannot be combined with the deprecated ygrid")
		}
		warnings = append(warnings, core.DeprecationWarning{Param: "ygrid", Replacement: "y_grid"})
		grid, set = s.legacyYGrid, true
	}
	if !set {
		return nil, warnings, nil
	}
	if len(grid) == 0 {
		return nil, nil, core.NewInvalidArgumentError("y_grid", "must contain at least one count")
	}
	if len(grid) > s.maxGrid {
		return nil, nil, core.NewInvalidArgumentError("y_grid", fmt.Sprintf("has %d points, above the limit of %d", len(grid), s.maxGrid))
	}
	for i, y := range grid {
		if y < 0 {
			return nil, nil, core.NewInvalidArgumentError("y_grid", fmt.Sprintf("element %d (%d) is negative", i, y))
		}
	}
	return grid, warnings, nil
}
