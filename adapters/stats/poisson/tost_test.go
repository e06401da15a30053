package poisson

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gorates/domain/core"
	"gorates/domain/rates"
)

// Margins are the central 95% exact conditional interval from R exactci.
const tostLow, tostUpp = 1.339735721772650, 3.388365573616252

func TestTostPoisson2Indep(t *testing.T) {
	res, err := TostPoisson2Indep(60, 51477.5, 30, 54308.7, tostLow, tostUpp, rates.MethodExactCond)
	require.NoError(t, err)
	assertClose(t, 0.025, res.PValue, 1e-12, 0)
	assert.Equal(t, rates.Larger, res.Larger.Alternative)
	assert.Equal(t, rates.Smaller, res.Smaller.Alternative)
	assert.Equal(t, tostLow, res.Larger.Value)
	assert.Equal(t, tostUpp, res.Smaller.Value)

	for _, method := range []rates.Method{rates.MethodWald, rates.MethodScore, rates.MethodSqrt, rates.MethodExactCond, rates.MethodCondMidp} {
		res, err := TostPoisson2Indep(60, 51477.5, 30, 54308.7, tostLow, tostUpp, method)
		require.NoError(t, err, method)
		assertClose(t, 0.025, res.PValue, 0, 0.01, method)
		assert.Equal(t, math.Max(res.Larger.PValue, res.Smaller.PValue), res.PValue, method)
	}
}

func TestTostStatisticFollowsPValue(t *testing.T) {
	res, err := TostPoisson2Indep(60, 51477.5, 30, 54308.7, 0.5, 2.5, rates.MethodScore)
	require.NoError(t, err)
	if res.Larger.PValue >= res.Smaller.PValue {
		assert.Equal(t, res.Larger.Statistic, res.Statistic)
	} else {
		assert.Equal(t, res.Smaller.Statistic, res.Statistic)
	}
}

func TestTostDiffAndErrors(t *testing.T) {
	res, err := TostPoisson2Indep(60, 51477.5, 30, 54308.7, -0.001, 0.001, rates.MethodWald, WithCompare(rates.CompareDiff))
	require.NoError(t, err)
	assert.Equal(t, rates.CompareDiff, res.Compare)
	assert.Greater(t, res.PValue, 0.0)

	_, err = TostPoisson2Indep(60, 51477.5, 30, 54308.7, 2, 1, rates.MethodScore)
	assert.True(t, core.IsInvalidArgument(err))
	_, err = TostPoisson2Indep(60, 51477.5, 30, 54308.7, 0, 1, rates.MethodScore)
	assert.True(t, core.IsInvalidArgument(err))
	_, err = TostPoisson2Indep(60, 51477.5, 30, 54308.7, 0.8, 1.25, "binom")
	assert.True(t, core.IsUnsupportedMethod(err))
}

func TestTostDeprecatedGridWarnsOnce(t *testing.T) {
	grid := arange(200)
	res, err := TostPoisson2Indep(60, 51477.5, 30, 54308.7, 0.8, 1.25, rates.MethodETest, WithYgrid(grid))
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)

	var dw core.DeprecationWarning
	require.ErrorAs(t, res.Warnings[0], &dw)
	assert.Equal(t, "ygrid", dw.Param)
	assert.Empty(t, res.Larger.Warnings)
	assert.Empty(t, res.Smaller.Warnings)

	direct, err := TostPoisson2Indep(60, 51477.5, 30, 54308.7, 0.8, 1.25, rates.MethodETest, WithYGrid(grid))
	require.NoError(t, err)
	assert.Empty(t, direct.Warnings)
	assert.Equal(t, direct.PValue, res.PValue)

	_, err = TostPoisson2Indep(60, 51477.5, 30, 54308.7, 0.8, 1.25, rates.MethodETest, WithYGrid(grid), WithYgrid(grid))
	assert.True(t, core.IsInvalidArgument(err))
}
