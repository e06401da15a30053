package poisson

import (
	"math"

	"gorates/domain/core"
	"gorates/domain/rates"
)

// normalPowerHet is the power of a z-test whose statistic has standard
// deviation stdNull under the null and stdAlt under the alternative.
func normalPowerHet(diff, nobs, alpha, stdNull, stdAlt float64, alt rates.Alternative) (power, crit float64) {
	alphaTail := alpha
	if alt == rates.TwoSided {
		alphaTail = alpha / 2
	}
	crit = sd.NormalISF(alphaTail)
	shift := diff * math.Sqrt(nobs) / stdAlt
	ratio := stdNull / stdAlt

	if alt == rates.TwoSided || alt == rates.Larger {
		power += sd.NormalSF(crit*ratio - shift)
	}
	if alt == rates.TwoSided || alt == rates.Smaller {
		power += sd.NormalCDF(-crit*ratio - shift)
	}
	return power, crit
}

func validatePowerInputs(rate1, nobs1, rate2, nobs2, exposure float64) error {
	for _, arg := range []struct {
		name string
		v    float64
	}{
		{"rate1", rate1}, {"nobs1", nobs1}, {"rate2", rate2}, {"nobs2", nobs2}, {"exposure", exposure},
	} {
		if err := validatePositive(arg.name, arg.v); err != nil {
			return err
		}
	}
	return nil
}

// ratioStd returns the null and alternative standard deviations of the log
// rate ratio statistic per unit of nobs1.
func ratioStd(rate1, rate2, k, exposure, value float64, s *settings) (stdNull, stdAlt float64) {
	v1 := s.dispersion / exposure * (1/rate1 + 1/(k*rate2))
	v0 := v1
	if s.methodVar == rates.VarianceScore {
		v0 = s.dispersion / exposure * (value + k) * (value + k) / (value * k * (rate1 + k*rate2))
	}
	return math.Sqrt(v0), math.Sqrt(v1)
}

// PowerPoisson2Indep returns the power of the test of H0: rate1/rate2 = value
// (default 1) based on the log rate ratio, for samples of nobs1 and nobs2
// units each observed over exposure.
//
// Options: WithValue, WithAlpha, WithAlternative, WithDispersion,
// WithMethodVar.
func PowerPoisson2Indep(rate1, nobs1, rate2, nobs2, exposure float64, opts ...Option) (float64, error) {
	res, err := PowerPoisson2IndepResults(rate1, nobs1, rate2, nobs2, exposure, opts...)
	return res.Power, err
}

// PowerPoisson2IndepResults is PowerPoisson2Indep with the intermediate
// quantities.
func PowerPoisson2IndepResults(rate1, nobs1, rate2, nobs2, exposure float64, opts ...Option) (rates.PowerResult, error) {
	if err := validatePowerInputs(rate1, nobs1, rate2, nobs2, exposure); err != nil {
		return rates.PowerResult{}, err
	}
	s, err := newSettings(opts)
	if err != nil {
		return rates.PowerResult{}, err
	}
	value := s.nullValue(1)
	if err := validatePositive("value", value); err != nil {
		return rates.PowerResult{}, err
	}

	k := nobs2 / nobs1
	es := math.Log(rate1/rate2) - math.Log(value)
	stdNull, stdAlt := ratioStd(rate1, rate2, k, exposure, value, s)
	power, crit := normalPowerHet(es, nobs1, s.alpha, stdNull, stdAlt, s.alternative)

	return rates.PowerResult{
		Power:      power,
		EffectSize: es,
		StdNull:    stdNull,
		StdAlt:     stdAlt,
		Crit:       crit,
		Nobs1:      nobs1,
		Nobs2:      nobs2,
		NobsRatio:  k,
		Alpha:      s.alpha,
		RatesAlt:   [2]float64{rate1, rate2},
	}, nil
}

// PowerEquivalencePoisson2Indep returns the power of the equivalence test
// of low < rate1/rate2 < upp: the larger-alternative test at low and the
// smaller-alternative test at upp both reject. Negative values of the
// approximation are reported as 0.
func PowerEquivalencePoisson2Indep(rate1, nobs1, rate2, nobs2, exposure, low, upp float64, opts ...Option) (float64, error) {
	res, err := PowerEquivalencePoisson2IndepResults(rate1, nobs1, rate2, nobs2, exposure, low, upp, opts...)
	return res.Power, err
}

// PowerEquivalencePoisson2IndepResults is PowerEquivalencePoisson2Indep with
// the one-sided components.
func PowerEquivalencePoisson2IndepResults(rate1, nobs1, rate2, nobs2, exposure, low, upp float64, opts ...Option) (rates.PowerResult, error) {
	if err := validatePowerInputs(rate1, nobs1, rate2, nobs2, exposure); err != nil {
		return rates.PowerResult{}, err
	}
	if err := validateMargins(low, upp, rates.CompareRatio); err != nil {
		return rates.PowerResult{}, err
	}
	s, err := newSettings(opts)
	if err != nil {
		return rates.PowerResult{}, err
	}

	k := nobs2 / nobs1
	logRatio := math.Log(rate1 / rate2)

	s0Low, stdAlt := ratioStd(rate1, rate2, k, exposure, low, s)
	powLow, crit := normalPowerHet(logRatio-math.Log(low), nobs1, s.alpha, s0Low, stdAlt, rates.Larger)
	s0Upp, _ := ratioStd(rate1, rate2, k, exposure, upp, s)
	powUpp, _ := normalPowerHet(logRatio-math.Log(upp), nobs1, s.alpha, s0Upp, stdAlt, rates.Smaller)

	return rates.PowerResult{
		Power:      math.Max(powLow+powUpp-1, 0),
		PowerLow:   powLow,
		PowerUpp:   powUpp,
		EffectSize: logRatio,
		StdNull:    s0Low,
		StdAlt:     stdAlt,
		Crit:       crit,
		Nobs1:      nobs1,
		Nobs2:      nobs2,
		NobsRatio:  k,
		Alpha:      s.alpha,
		RatesAlt:   [2]float64{rate1, rate2},
	}, nil
}

// PowerPoissonDiff2Indep returns the power of the test of
// H0: rate1 - rate2 = value (default 0) when the true difference is diff.
// rate1 is rate2 + diff. WithNobsRatio gives nobs1 / nobs2, so the second
// sample has nobs1 / NobsRatio units.
//
// Options: WithNobsRatio, WithValue, WithAlpha, WithAlternative,
// WithMethodVar.
func PowerPoissonDiff2Indep(diff, rate2, nobs1 float64, opts ...Option) (float64, error) {
	res, err := PowerPoissonDiff2IndepResults(diff, rate2, nobs1, opts...)
	return res.Power, err
}

// PowerPoissonDiff2IndepResults is PowerPoissonDiff2Indep with the
// intermediate quantities.
func PowerPoissonDiff2IndepResults(diff, rate2, nobs1 float64, opts ...Option) (rates.PowerResult, error) {
	if err := validatePositive("rate2", rate2); err != nil {
		return rates.PowerResult{}, err
	}
	if err := validatePositive("nobs1", nobs1); err != nil {
		return rates.PowerResult{}, err
	}
	rate1 := rate2 + diff
	if err := validatePositive("rate1", rate1); err != nil {
		return rates.PowerResult{}, core.NewInvalidArgumentError("diff", "must leave rate2 + diff positive")
	}
	s, err := newSettings(opts)
	if err != nil {
		return rates.PowerResult{}, err
	}
	value := s.nullValue(0)
	if !isFinite(value) {
		return rates.PowerResult{}, core.NewInvalidArgumentError("value", "must be finite")
	}

	// k is nobs2 per unit of nobs1
	k := 1 / s.nobsRatio
	v1 := rate1 + rate2/k
	v0 := v1
	if s.methodVar == rates.VarianceScore {
		_, r1c, r2c := scoreDiff(rate1, 1, rate2*k, k, value)
		v0 = r1c + r2c/k
	}
	stdNull, stdAlt := math.Sqrt(v0), math.Sqrt(v1)
	power, crit := normalPowerHet(diff-value, nobs1, s.alpha, stdNull, stdAlt, s.alternative)

	return rates.PowerResult{
		Power:      power,
		EffectSize: diff - value,
		StdNull:    stdNull,
		StdAlt:     stdAlt,
		Crit:       crit,
		Nobs1:      nobs1,
		Nobs2:      nobs1 * k,
		NobsRatio:  s.nobsRatio,
		Alpha:      s.alpha,
		RatesAlt:   [2]float64{rate1, rate2},
	}, nil
}
