package poisson

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"gorates/domain/core"
	"gorates/domain/rates"
)

// Gu, Ng, Tang and Schucany (2008), examples 1 and 2.
func TestTwoSampleGuExamples(t *testing.T) {
	t.Run("example 1 two-sided", func(t *testing.T) {
		cases := []struct {
			method rates.Method
			stat   float64
			pvalue float64
		}{
			{rates.MethodWald, 3.384913, 0.000356},
			{rates.MethodScore, 3.417402, 0.000316},
			{rates.MethodSqrt, 3.445485, 0.000285},
		}
		for _, tc := range cases {
			res, err := TestPoisson2Indep(60, 51477.5, 30, 54308.7, tc.method)
			require.NoError(t, err, tc.method)
			assertClose(t, tc.stat, res.Statistic, 5e-6, 0, tc.method)
			assertClose(t, 2*tc.pvalue, res.PValue, 0, 5e-6, tc.method)

			larger, err := TestPoisson2Indep(60, 51477.5, 30, 54308.7, tc.method, WithAlternative(rates.Larger))
			require.NoError(t, err, tc.method)
			assertClose(t, tc.pvalue, larger.PValue, 0, 5e-6, tc.method)
		}
	})

	t.Run("example 1 conditional", func(t *testing.T) {
		res, err := TestPoisson2Indep(60, 51477.5, 30, 54308.7, rates.MethodExactCond, WithRatioNull(1), WithAlternative(rates.Larger))
		require.NoError(t, err)
		assertClose(t, 0.000428, res.PValue, 0, 5e-4)
		assert.True(t, math.IsNaN(res.Statistic))
		assert.Equal(t, rates.DistBinomial, res.Distribution)

		res, err = TestPoisson2Indep(60, 51477.5, 30, 54308.7, rates.MethodCondMidp, WithRatioNull(1), WithAlternative(rates.Larger))
		require.NoError(t, err)
		assertClose(t, 0.000310, res.PValue, 0, 5e-4)
	})

	t.Run("example 2", func(t *testing.T) {
		cases := []struct {
			method rates.Method
			stat   float64
			pvalue float64
		}{
			{rates.MethodWald, 0.735447, 0.2309},
			{rates.MethodScore, 0.706631, 0.2398},
			{rates.MethodSqrt, 0.674401, 0.2499},
		}
		for _, tc := range cases {
			res, err := TestPoisson2Indep(41, 28010, 15, 19017, tc.method, WithRatioNull(1.5))
			require.NoError(t, err, tc.method)
			assertClose(t, tc.stat, res.Statistic, 5e-6, 0, tc.method)
			assertClose(t, 2*tc.pvalue, res.PValue, 0, 5e-3, tc.method)
			assert.Equal(t, 1.5, res.RatioNull)

			larger, err := TestPoisson2Indep(41, 28010, 15, 19017, tc.method, WithRatioNull(1.5), WithAlternative(rates.Larger))
			require.NoError(t, err, tc.method)
			assertClose(t, tc.pvalue, larger.PValue, 0, 5e-4, tc.method)
		}

		for method, want := range map[rates.Method]float64{
			rates.MethodExactCond: 0.2913,
			rates.MethodCondMidp:  0.2450,
		} {
			res, err := TestPoisson2Indep(41, 28010, 15, 19017, method, WithRatioNull(1.5), WithAlternative(rates.Larger))
			require.NoError(t, err, method)
			assertClose(t, want, res.PValue, 0, 5e-4, method)
		}
	})
}

// Values from R exactci::poisson.exact with tsmethod="minlike".
func TestConditionalAgainstExactci(t *testing.T) {
	cases := []struct {
		method rates.Method
		alt    rates.Alternative
		want   float64
	}{
		{rates.MethodCondMidp, rates.Smaller, 0.9949053964701466},
		{rates.MethodCondMidp, rates.Larger, 0.005094603529853279},
		{rates.MethodExactCond, rates.Larger, 0.006651774552714537},
		{rates.MethodExactCond, rates.Smaller, 0.9964625674930079},
	}
	for _, tc := range cases {
		res, err := TestPoisson2Indep(60, 51477.5, 30, 54308.7, tc.method, WithRatioNull(1.2), WithAlternative(tc.alt))
		require.NoError(t, err)
		assertClose(t, tc.want, res.PValue, 1e-12, 0, tc.method, tc.alt)
	}

	res, err := TestPoisson2Indep(60, 51477.5, 30, 54308.7, rates.MethodExactCond)
	require.NoError(t, err)
	assertClose(t, 60/51477.5/(30/54308.7), res.Ratio, 1e-13, 0)
	assert.Equal(t, 1.0, res.RatioNull)
}

var alternativeCases = map[rates.Alternative]map[rates.Method]float64{
	rates.TwoSided: {
		rates.MethodWald:      0.07136366497984171,
		rates.MethodScore:     0.0840167525117227,
		rates.MethodSqrt:      0.0804675114297235,
		rates.MethodExactCond: 0.1301269270479679,
		rates.MethodCondMidp:  0.09324590196774807,
		rates.MethodETest:     0.09054824785458056,
		rates.MethodETestWald: 0.06895289560607239,
	},
	rates.Larger: {
		rates.MethodWald:      0.03568183248992086,
		rates.MethodScore:     0.04200837625586135,
		rates.MethodSqrt:      0.04023375571486175,
		rates.MethodExactCond: 0.08570447732927276,
		rates.MethodCondMidp:  0.04882345224905293,
		rates.MethodETest:     0.043751060642682936,
		rates.MethodETestWald: 0.043751050280207024,
	},
	rates.Smaller: {
		rates.MethodWald:      0.9643181675100791,
		rates.MethodScore:     0.9579916237441386,
		rates.MethodSqrt:      0.9597662442851382,
		rates.MethodExactCond: 0.9880575728311669,
		rates.MethodCondMidp:  0.9511765477509471,
		rates.MethodETest:     0.9672396898656999,
		rates.MethodETestWald: 0.9672397002281757,
	},
}

func TestTwoSampleAlternatives(t *testing.T) {
	for alt, methods := range alternativeCases {
		for method, want := range methods {
			t.Run(fmt.Sprintf("%s/%s", alt, method), func(t *testing.T) {
				res, err := TestPoisson2Indep(6, 51, 1, 54, method, WithRatioNull(1.2), WithAlternative(alt))
				require.NoError(t, err)
				assertClose(t, want, res.PValue, 1e-13, 0)
				assert.Equal(t, alt, res.Alternative)
			})
		}
	}
}

func TestTwoSampleDiff(t *testing.T) {
	const y1, n1, y2, n2 = 60, 51477.5, 30, 54308.7
	r1, r2 := y1/n1, y2/n2

	res, err := TestPoisson2Indep(y1, n1, y2, n2, rates.MethodWald, WithCompare(rates.CompareDiff))
	require.NoError(t, err)
	assertClose(t, (r1-r2)/math.Sqrt(r1/n1+r2/n2), res.Statistic, 1e-12, 0)
	assert.Equal(t, rates.CompareDiff, res.Compare)
	assert.True(t, math.IsNaN(res.RatioNull))
	assert.Nil(t, res.RatesCMLE)

	res, err = TestPoisson2Indep(y1, n1, y2, n2, rates.MethodWaldCCV, WithCompare(rates.CompareDiff))
	require.NoError(t, err)
	assertClose(t, (r1-r2)/math.Sqrt((y1+0.5)/(n1*n1)+(y2+0.5)/(n2*n2)), res.Statistic, 1e-12, 0)

	// Under value 0 the constrained rates are the pooled rate.
	res, err = TestPoisson2Indep(y1, n1, y2, n2, rates.MethodScore, WithCompare(rates.CompareDiff))
	require.NoError(t, err)
	require.NotNil(t, res.RatesCMLE)
	pooled := (y1 + y2) / (n1 + n2)
	assertClose(t, pooled, res.RatesCMLE[0], 1e-12, 0)
	assertClose(t, pooled, res.RatesCMLE[1], 1e-12, 0)
	assertClose(t, (r1-r2)/math.Sqrt(pooled/n1+pooled/n2), res.Statistic, 1e-9, 0)

	_, err = TestPoisson2Indep(y1, n1, y2, n2, rates.MethodExactCond, WithCompare(rates.CompareDiff))
	assert.True(t, core.IsUnsupportedMethod(err))
	_, err = TestPoisson2Indep(y1, n1, y2, n2, rates.MethodWaldLog, WithCompare(rates.CompareDiff))
	assert.True(t, core.IsUnsupportedMethod(err))
}

// The constrained rates satisfy the null and the score equation.
func TestScoreDiffConstraintProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		y1 := float64(rapid.IntRange(0, 500).Draw(rt, "y1"))
		y2 := float64(rapid.IntRange(1, 500).Draw(rt, "y2"))
		n1 := rapid.Float64Range(1, 1000).Draw(rt, "n1")
		n2 := rapid.Float64Range(1, 1000).Draw(rt, "n2")
		value := rapid.Float64Range(0, 0.5).Draw(rt, "value")

		_, r1c, r2c := scoreDiff(y1, n1, y2, n2, value)
		assertClose(rt, value, r1c-r2c, 1e-9, 1e-12)
		assertClose(rt, n1+n2, y1/r1c+y2/r2c, 1e-7, 0)
	})
}

func TestTwoSampleDispersion(t *testing.T) {
	base, err := TestPoisson2Indep(60, 51477.5, 30, 54308.7, rates.MethodScore)
	require.NoError(t, err)
	scaled, err := TestPoisson2Indep(60, 51477.5, 30, 54308.7, rates.MethodScore, WithDispersion(2))
	require.NoError(t, err)
	assertClose(t, base.Statistic/math.Sqrt2, scaled.Statistic, 1e-13, 0)

	for _, method := range []rates.Method{rates.MethodExactCond, rates.MethodCondMidp, rates.MethodETest} {
		_, err := TestPoisson2Indep(60, 51477.5, 30, 54308.7, method, WithDispersion(2))
		assert.True(t, core.IsInvalidArgument(err), method)
	}
}

func TestTwoSampleErrors(t *testing.T) {
	_, err := TestPoisson2Indep(6, 51, 1, 54, "binom")
	require.Error(t, err)
	assert.True(t, core.IsUnsupportedMethod(err))
	assert.Contains(t, err.Error(), "binom")

	_, err = TestPoisson2Indep(6, 51, 1, 54, rates.MethodScore, WithValue(1), WithRatioNull(1))
	assert.True(t, core.IsInvalidArgument(err))

	_, err = TestPoisson2Indep(6, 51, 1, 54, rates.MethodScore, WithRatioNull(-1))
	assert.True(t, core.IsInvalidArgument(err))

	_, err = TestPoisson2Indep(6, 51, 1, 54, rates.MethodScore, WithAlternative("both"))
	assert.ErrorIs(t, err, core.ErrInvalidAlternative)

	_, err = TestPoisson2Indep(0, 51, 0, 54, rates.MethodScore)
	assert.True(t, core.IsInvalidArgument(err))

	res, err := TestPoisson2Indep(0, 51, 0, 54, rates.MethodExactCond)
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.PValue)
}

func TestBinomTwoSidedMinLike(t *testing.T) {
	// symmetric case: the two-sided p-value doubles the tail
	pv := binomTwoSidedMinLike(2, 10, 0.5)
	assertClose(t, 2*sd.BinomialCDF(2, 10, 0.5), pv, 1e-12, 0)

	assert.Equal(t, 1.0, binomTwoSidedMinLike(5, 10, 0.5))
	assert.Equal(t, 1.0, binomTwoSidedMinLike(0, 0, 0.3))
	assert.LessOrEqual(t, binomTwoSidedMinLike(10, 10, 0.9), 1.0)
}
