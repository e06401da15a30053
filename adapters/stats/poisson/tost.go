package poisson

import (
	"fmt"

	"gorates/domain/core"
	"gorates/domain/rates"
)

// TostPoisson2Indep tests equivalence of two rates: the null of
// non-equivalence is rejected when the comparison is shown to lie in
// (low, upp). It runs the "larger" test at low and the "smaller" test at upp
// and reports the larger of the two p-values.
//
// The empty method selects score. Value, ratio_null and alternative options
// are ignored; the margins take their place.
func TostPoisson2Indep(count1 int, exposure1 float64, count2 int, exposure2 float64, low, upp float64, method rates.Method, opts ...Option) (rates.TOSTResult, error) {
	p, err := newPair(count1, exposure1, count2, exposure2)
	if err != nil {
		return rates.TOSTResult{}, err
	}
	s, err := newSettings(opts)
	if err != nil {
		return rates.TOSTResult{}, err
	}
	if err := validateMargins(low, upp, s.compare); err != nil {
		return rates.TOSTResult{}, err
	}
	if method == "" {
		method = rates.MethodScore
	}
	var warnings []error
	if _, isETest := etestMethods[method]; isETest {
		warnings = foldLegacyGrid(s)
	}

	sLow := *s
	sLow.value, sLow.valueSet, sLow.ratioSet = low, true, false
	sLow.alternative = rates.Larger
	resLow, err := testPair(p, method, &sLow)
	if err != nil {
		return rates.TOSTResult{}, err
	}

	sUpp := *s
	sUpp.value, sUpp.valueSet, sUpp.ratioSet = upp, true, false
	sUpp.alternative = rates.Smaller
	resUpp, err := testPair(p, method, &sUpp)
	if err != nil {
		return rates.TOSTResult{}, err
	}

	res := rates.TOSTResult{
		Method:   method,
		Compare:  s.compare,
		Low:      low,
		Upp:      upp,
		Larger:   resLow,
		Smaller:  resUpp,
		Warnings: warnings,
	}
	if resLow.PValue >= resUpp.PValue {
		res.Statistic, res.PValue = resLow.Statistic, resLow.PValue
	} else {
		res.Statistic, res.PValue = resUpp.Statistic, resUpp.PValue
	}
	return res, nil
}

func validateMargins(low, upp float64, compare rates.Compare) error {
	if compare == rates.CompareRatio {
		if err := validatePositive("low", low); err != nil {
			return err
		}
		if err := validatePositive("upp", upp); err != nil {
			return err
		}
	} else if !isFinite(low) || !isFinite(upp) {
		return core.NewInvalidArgumentError("low", fmt.Sprintf("margins must be finite, got (%g, %g)", low, upp))
	}
	if !(low < upp) {
		return core.NewInvalidArgumentError("low", fmt.Sprintf("must be below upp, got (%g, %g)", low, upp))
	}
	return nil
}
