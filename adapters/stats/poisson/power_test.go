package poisson

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"gorates/domain/core"
	"gorates/domain/rates"
)

// Reference powers from the PASS documentation.
func TestPowerEquivalencePASS(t *testing.T) {
	const rate2, exposure, low, upp = 2.2, 2.5, 0.8, 1.25
	cases := []struct {
		rate1 float64
		nobs  float64
		want  float64
	}{
		{1.9, 704, 0.90012},
		{2.0, 246, 0.90057},
		{2.2, 95, 0.90039},
		{2.5, 396, 0.90045},
	}
	for _, tc := range cases {
		pow, err := PowerEquivalencePoisson2Indep(tc.rate1, tc.nobs, rate2, tc.nobs, exposure, low, upp, WithAlpha(0.025), WithDispersion(1))
		require.NoError(t, err)
		assertClose(t, tc.want, pow, 0, 5e-5, tc.rate1)
	}
}

func TestPowerRatioPASS(t *testing.T) {
	const exposure = 2.5
	cases := []struct {
		rate float64
		nobs float64
		want float64
	}{
		{1.8, 29, 0.90056},
		{1.9, 39, 0.90649},
		{2.2, 115, 0.90014},
		{2.4, 404, 0.90064},
	}

	// non-inferiority: H1 rate1 / rate2 < 1.2
	for _, tc := range cases {
		pow, err := PowerPoisson2Indep(tc.rate, tc.nobs, 2.2, tc.nobs, exposure, WithValue(1.2), WithAlpha(0.025), WithAlternative(rates.Smaller))
		require.NoError(t, err)
		assertClose(t, tc.want, pow, 0, 5e-5, tc.rate)

		pow, err = PowerPoisson2Indep(tc.rate, tc.nobs, 2.2, tc.nobs, exposure, WithValue(1.2), WithAlpha(0.05))
		require.NoError(t, err)
		assertClose(t, tc.want, pow, 0, 5e-5, tc.rate)
	}

	// superiority, the mirrored case: H1 rate1 / rate2 > 1 / 1.2
	for _, tc := range cases {
		pow, err := PowerPoisson2Indep(2.2, tc.nobs, tc.rate, tc.nobs, exposure, WithValue(1/1.2), WithAlpha(0.025), WithAlternative(rates.Larger))
		require.NoError(t, err)
		assertClose(t, tc.want, pow, 0, 5e-5, tc.rate)

		pow, err = PowerPoisson2Indep(2.2, tc.nobs, tc.rate, tc.nobs, exposure, WithValue(1/1.2), WithAlpha(0.05))
		require.NoError(t, err)
		assertClose(t, tc.want, pow, 0, 5e-5, tc.rate)
	}
}

func TestPowerAtNullIsSize(t *testing.T) {
	for _, mv := range []rates.VarianceMethod{rates.VarianceAlt, rates.VarianceScore} {
		pow, err := PowerPoisson2Indep(2.4, 404, 2.2, 404, 2.5, WithValue(2.4/2.2), WithMethodVar(mv))
		require.NoError(t, err)
		assertClose(t, 0.05, pow, 0, 5e-5, mv)
	}

	pow, err := PowerPoissonDiff2Indep(3, 10, 20, WithValue(3), WithMethodVar(rates.VarianceScore))
	require.NoError(t, err)
	assertClose(t, 0.05, pow, 0, 5e-5)
}

// PASS chapter 436: rates 15 and 10 with 6 and 8 units.
func TestPowerDiffPASS(t *testing.T) {
	res, err := PowerPoissonDiff2IndepResults(5, 10, 6, WithNobsRatio(0.75), WithAlpha(0.05), WithValue(0), WithAlternative(rates.Larger))
	require.NoError(t, err)
	assertClose(t, 0.82566, res.Power, 0, 5e-5)
	assert.Equal(t, [2]float64{15, 10}, res.RatesAlt)
	assertClose(t, 8, res.Nobs2, 1e-12, 0)
	assert.Equal(t, 0.75, res.NobsRatio)
	assert.Equal(t, res.StdNull, res.StdAlt)

	pow, err := PowerPoissonDiff2Indep(5, 10, 6, WithNobsRatio(0.75), WithAlternative(rates.Larger))
	require.NoError(t, err)
	assert.Equal(t, res.Power, pow)
}

func TestPowerMonotoneInNobs(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		rate1 := rapid.Float64Range(0.5, 5).Draw(rt, "rate1")
		rate2 := rapid.Float64Range(0.5, 5).Draw(rt, "rate2")
		nobs := rapid.Float64Range(2, 500).Draw(rt, "nobs")
		mv := rapid.SampledFrom([]rates.VarianceMethod{rates.VarianceAlt, rates.VarianceScore}).Draw(rt, "method_var")
		if abs(rate1-rate2) < 0.05 {
			rt.Skip("effect too small")
		}

		small, err := PowerPoisson2Indep(rate1, nobs, rate2, nobs, 1, WithMethodVar(mv))
		require.NoError(rt, err)
		big, err := PowerPoisson2Indep(rate1, 2*nobs, rate2, 2*nobs, 1, WithMethodVar(mv))
		require.NoError(rt, err)

		require.GreaterOrEqual(rt, small, 0.0)
		require.LessOrEqual(rt, big, 1.0)
		if small < 0.999 {
			require.Greater(rt, big, small)
		} else {
			require.GreaterOrEqual(rt, big, small)
		}
	})
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

func TestPowerErrors(t *testing.T) {
	_, err := PowerPoisson2Indep(0, 10, 1, 10, 1)
	assert.True(t, core.IsInvalidArgument(err))
	_, err = PowerPoisson2Indep(1, 10, 1, 10, 1, WithMethodVar("exact"))
	assert.True(t, core.IsInvalidArgument(err))
	_, err = PowerPoisson2Indep(1, 10, 1, 10, 1, WithAlpha(0))
	assert.True(t, core.IsInvalidArgument(err))
	_, err = PowerPoisson2Indep(1, 10, 1, 10, 1, WithAlternative("up"))
	assert.ErrorIs(t, err, core.ErrInvalidAlternative)
	_, err = PowerEquivalencePoisson2Indep(1, 10, 1, 10, 1, 1.25, 0.8)
	assert.True(t, core.IsInvalidArgument(err))
	_, err = PowerPoissonDiff2Indep(-10, 5, 10)
	assert.True(t, core.IsInvalidArgument(err))
}
