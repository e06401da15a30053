package profiling

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"

	"gorates/domain/core"
	"gorates/domain/rates"
	"gorates/internal/dist"
)

// DefaultOverdispersionAlpha is the level at which the Pearson test flags
// overdispersion.
const DefaultOverdispersionAlpha = 0.05

// DispersionAnalyzer estimates the dispersion of counts recorded over equal
// exposure units.
type DispersionAnalyzer struct {
	alpha float64
}

// NewDispersionAnalyzer creates a dispersion analyzer flagging at alpha.
// A non-positive alpha selects DefaultOverdispersionAlpha.
func NewDispersionAnalyzer(alpha float64) *DispersionAnalyzer {
	if !(alpha > 0 && alpha < 1) {
		alpha = DefaultOverdispersionAlpha
	}
	return &DispersionAnalyzer{alpha: alpha}
}

// EstimateDispersion profiles counts with the default analyzer.
func EstimateDispersion(counts []float64, unitExposure float64) (DispersionMarkers, error) {
	return NewDispersionAnalyzer(DefaultOverdispersionAlpha).Analyze(counts, unitExposure)
}

// Analyze profiles counts, each observed over unitExposure.
func (da *DispersionAnalyzer) Analyze(counts []float64, unitExposure float64) (DispersionMarkers, error) {
	markers := DispersionMarkers{N: len(counts)}

	if len(counts) < 2 {
		return markers, core.NewInvalidArgumentError("counts", fmt.Sprintf("needs at least 2 values, got %d", len(counts)))
	}
	if !(unitExposure > 0) || math.IsInf(unitExposure, 0) {
		return markers, core.NewInvalidArgumentError("unit_exposure", fmt.Sprintf("must be positive and finite, got %g", unitExposure))
	}
	for i, c := range counts {
		if c < 0 || c != math.Trunc(c) || math.IsInf(c, 0) {
			return markers, core.NewInvalidArgumentError("counts", fmt.Sprintf("element %d (%g) is not a non-negative integer", i, c))
		}
	}

	data := stats.Float64Data(counts)

	mean, err := stats.Mean(data)
	if err != nil {
		return markers, err
	}
	if mean == 0 {
		return markers, core.NewInvalidArgumentError("counts", "are all zero, dispersion is undefined")
	}

	variance, err := stats.SampleVariance(data)
	if err != nil {
		return markers, err
	}

	median, err := stats.Median(data)
	if err != nil {
		return markers, err
	}

	min, err := stats.Min(data)
	if err != nil {
		return markers, err
	}

	max, err := stats.Max(data)
	if err != nil {
		return markers, err
	}

	total, err := stats.Sum(data)
	if err != nil {
		return markers, err
	}

	df := len(counts) - 1
	chi2 := float64(df) * variance / mean
	pValue := dist.NewDistributions().ChiSquareSF(chi2, float64(df))

	markers.Mean = mean
	markers.Median = median
	markers.Min = min
	markers.Max = max
	markers.Variance = variance
	markers.DispersionIndex = variance / mean
	markers.ChiSquare = chi2
	markers.DegreesOfFreedom = df
	markers.PValue = pValue
	markers.Overdispersed = pValue < da.alpha && markers.DispersionIndex > 1
	markers.Pooled = rates.Observation{
		Count:    int(total),
		Exposure: float64(len(counts)) * unitExposure,
	}

	return markers, nil
}
