package profiling

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat/distuv"

	"gorates/domain/core"
)

func TestEstimateDispersion(t *testing.T) {
	markers, err := EstimateDispersion([]float64{2, 4, 6, 8}, 0.5)
	require.NoError(t, err)

	assert.Equal(t, 4, markers.N)
	assert.InDelta(t, 5, markers.Mean, 1e-12)
	assert.InDelta(t, 20.0/3, markers.Variance, 1e-12)
	assert.InDelta(t, 4.0/3, markers.DispersionIndex, 1e-12)
	assert.InDelta(t, 4, markers.ChiSquare, 1e-12)
	assert.Equal(t, 3, markers.DegreesOfFreedom)
	assert.InDelta(t, distuv.ChiSquared{K: 3}.Survival(4), markers.PValue, 1e-12)
	assert.False(t, markers.Overdispersed)

	assert.Equal(t, 20, markers.Pooled.Count)
	assert.InDelta(t, 2, markers.Pooled.Exposure, 1e-12)
	assert.InDelta(t, 2, markers.Min, 0)
	assert.InDelta(t, 8, markers.Max, 0)
	assert.InDelta(t, 5, markers.Median, 1e-12)
}

func TestDispersionFlagsOverdispersion(t *testing.T) {
	counts := []float64{0, 0, 1, 0, 25, 0, 2, 30, 0, 1, 0, 28}
	markers, err := NewDispersionAnalyzer(0.01).Analyze(counts, 1)
	require.NoError(t, err)
	assert.Greater(t, markers.DispersionIndex, 1.0)
	assert.True(t, markers.Overdispersed)
	assert.Less(t, markers.PValue, 0.01)
}

func TestDispersionUnderdispersedCounts(t *testing.T) {
	markers, err := EstimateDispersion([]float64{3, 5, 4, 6, 2}, 1)
	require.NoError(t, err)
	assert.InDelta(t, 0.625, markers.DispersionIndex, 1e-12)
	assert.Greater(t, markers.PValue, 0.5)
	assert.False(t, markers.Overdispersed)
}

func TestDispersionInvalidInput(t *testing.T) {
	cases := map[string]struct {
		counts   []float64
		exposure float64
	}{
		"too few":      {[]float64{3}, 1},
		"negative":     {[]float64{3, -1}, 1},
		"fractional":   {[]float64{3, 1.5}, 1},
		"all zero":     {[]float64{0, 0, 0}, 1},
		"bad exposure": {[]float64{3, 4}, 0},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := EstimateDispersion(tc.counts, tc.exposure)
			require.Error(t, err)
			assert.True(t, core.IsInvalidArgument(err))
		})
	}
}
