package ports

import (
	"context"
	"encoding/json"
	"math"
	"strconv"

	"gorates/domain/core"
)

// RateAnalyzer runs the Poisson rate procedures on JSON-shaped requests
type RateAnalyzer interface {
	// Single rate
	ConfintPoisson(ctx context.Context, req ConfintRequest) (*IntervalResponse, error)
	TestPoisson(ctx context.Context, req TestRequest) (*TestResponse, error)

	// Two independent rates
	TestPoisson2Indep(ctx context.Context, req TwoSampleRequest) (*TwoSampleResponse, error)
	EtestPoisson2Indep(ctx context.Context, req TwoSampleRequest) (*ETestResponse, error)
	TostPoisson2Indep(ctx context.Context, req TOSTRequest) (*TOSTResponse, error)
	ConfintPoisson2Indep(ctx context.Context, req TwoSampleRequest) (*IntervalResponse, error)

	// Study design
	PowerRatio(ctx context.Context, req PowerRatioRequest) (*PowerResponse, error)
	PowerEquivalence(ctx context.Context, req PowerEquivalenceRequest) (*PowerResponse, error)
	PowerDiff(ctx context.Context, req PowerDiffRequest) (*PowerResponse, error)

	// Data checks
	EstimateDispersion(ctx context.Context, req DispersionRequest) (*DispersionResponse, error)

	// Batch evaluates independent requests concurrently
	Batch(ctx context.Context, req BatchRequest) (*BatchResponse, error)
}

// Number is a float64 that encodes NaN and infinities as JSON null
type Number float64

func (n Number) MarshalJSON() ([]byte, error) {
	f := float64(n)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(f, 'g', -1, 64)), nil
}

// ============================================================================
// REQUESTS
// ============================================================================

// ConfintRequest asks for a confidence interval for one rate
type ConfintRequest struct {
	Count    int     `json:"count"`
	Exposure float64 `json:"exposure"`
	Alpha    float64 `json:"alpha,omitempty"` // default 0.05
	Method   string  `json:"method"`
}

// TestRequest asks for a test of one rate against a hypothesized value
type TestRequest struct {
	Count       int     `json:"count"`
	Exposure    float64 `json:"exposure"`
	Value       float64 `json:"value"`
	Method      string  `json:"method"`
	Alternative string  `json:"alternative,omitempty"`
	Dispersion  float64 `json:"dispersion,omitempty"` // default 1
}

// TwoSampleRequest describes a comparison of two independent rates. It
// serves the two-sample test, the E-test and the two-sample interval.
type TwoSampleRequest struct {
	Count1    int     `json:"count1"`
	Exposure1 float64 `json:"exposure1"`
	Count2    int     `json:"count2"`
	Exposure2 float64 `json:"exposure2"`

	Method      string   `json:"method,omitempty"`
	Compare     string   `json:"compare,omitempty"`
	Alternative string   `json:"alternative,omitempty"`
	Value       *float64 `json:"value,omitempty"`
	RatioNull   *float64 `json:"ratio_null,omitempty"`
	Dispersion  float64  `json:"dispersion,omitempty"`
	Alpha       float64  `json:"alpha,omitempty"`

	// YGrid is decoded by rates.ParseGrid so that a scalar is reported as
	// an invalid y_grid instead of a generic decode failure.
	YGrid json.RawMessage `json:"y_grid,omitempty"`

	// LegacyYGrid is the deprecated spelling of YGrid.
	LegacyYGrid json.RawMessage `json:"ygrid,omitempty"`
}

// TOSTRequest asks for an equivalence test with margins (low, upp)
type TOSTRequest struct {
	TwoSampleRequest
	Low float64 `json:"low"`
	Upp float64 `json:"upp"`
}

// PowerRatioRequest asks for the power of a rate ratio test
type PowerRatioRequest struct {
	Rate1       float64  `json:"rate1"`
	Nobs1       float64  `json:"nobs1"`
	Rate2       float64  `json:"rate2"`
	Nobs2       float64  `json:"nobs2"`
	Exposure    float64  `json:"exposure"`
	Value       *float64 `json:"value,omitempty"`
	Alpha       float64  `json:"alpha,omitempty"`
	Alternative string   `json:"alternative,omitempty"`
	Dispersion  float64  `json:"dispersion,omitempty"`
	MethodVar   string   `json:"method_var,omitempty"`
}

// PowerEquivalenceRequest asks for the power of an equivalence test
type PowerEquivalenceRequest struct {
	Rate1      float64 `json:"rate1"`
	Nobs1      float64 `json:"nobs1"`
	Rate2      float64 `json:"rate2"`
	Nobs2      float64 `json:"nobs2"`
	Exposure   float64 `json:"exposure"`
	Low        float64 `json:"low"`
	Upp        float64 `json:"upp"`
	Alpha      float64 `json:"alpha,omitempty"`
	Dispersion float64 `json:"dispersion,omitempty"`
	MethodVar  string  `json:"method_var,omitempty"`
}

// PowerDiffRequest asks for the power of a rate difference test
type PowerDiffRequest struct {
	Diff        float64 `json:"diff"`
	Rate2       float64 `json:"rate2"`
	Nobs1       float64 `json:"nobs1"`
	NobsRatio   float64 `json:"nobs_ratio,omitempty"` // nobs1 / nobs2, default 1
	Value       float64 `json:"value,omitempty"`
	Alpha       float64 `json:"alpha,omitempty"`
	Alternative string  `json:"alternative,omitempty"`
	MethodVar   string  `json:"method_var,omitempty"`
}

// DispersionRequest carries counts observed over equal exposure units
type DispersionRequest struct {
	Counts       []float64 `json:"counts"`
	UnitExposure float64   `json:"unit_exposure,omitempty"` // default 1
}

// BatchItem is one request of a batch; Kind selects the procedure
type BatchItem struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// BatchRequest holds independent requests evaluated concurrently
type BatchRequest struct {
	Items []BatchItem `json:"items"`
}

// ============================================================================
// RESPONSES
// ============================================================================

// ErrorBody is the JSON form of a failed request
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// IntervalResponse is a confidence interval
type IntervalResponse struct {
	AnalysisID core.AnalysisID `json:"analysis_id"`
	Method     string          `json:"method"`
	Alpha      float64         `json:"alpha"`
	Lower      Number          `json:"lower"`
	Upper      Number          `json:"upper"`
}

// TestResponse is a one-sample test result
type TestResponse struct {
	AnalysisID   core.AnalysisID `json:"analysis_id"`
	Method       string          `json:"method"`
	Alternative  string          `json:"alternative"`
	Distribution string          `json:"distribution"`
	Statistic    Number          `json:"statistic"`
	PValue       Number          `json:"pvalue"`
	Rate         Number          `json:"rate"`
}

// TwoSampleResponse is a two-sample test result
type TwoSampleResponse struct {
	AnalysisID   core.AnalysisID `json:"analysis_id"`
	Method       string          `json:"method"`
	Compare      string          `json:"compare"`
	Alternative  string          `json:"alternative"`
	Distribution string          `json:"distribution"`
	Statistic    Number          `json:"statistic"`
	PValue       Number          `json:"pvalue"`
	Rate1        Number          `json:"rate1"`
	Rate2        Number          `json:"rate2"`
	Ratio        Number          `json:"ratio"`
	Diff         Number          `json:"diff"`
	Value        Number          `json:"value"`
	RatioNull    Number          `json:"ratio_null"`
	RatesCMLE    []Number        `json:"rates_cmle,omitempty"`
	Warnings     []string        `json:"warnings,omitempty"`
}

// ETestResponse is an E-test result
type ETestResponse struct {
	AnalysisID  core.AnalysisID `json:"analysis_id"`
	Method      string          `json:"method"`
	Compare     string          `json:"compare"`
	Alternative string          `json:"alternative"`
	Statistic   Number          `json:"statistic"`
	PValue      Number          `json:"pvalue"`
	Value       Number          `json:"value"`
	RatesCMLE   []Number        `json:"rates_cmle"`
	GridSize    int             `json:"grid_size"`
	Warnings    []string        `json:"warnings,omitempty"`
}

// TOSTResponse is an equivalence test result with both one-sided tests
type TOSTResponse struct {
	AnalysisID core.AnalysisID   `json:"analysis_id"`
	Method     string            `json:"method"`
	Compare    string            `json:"compare"`
	Low        float64           `json:"low"`
	Upp        float64           `json:"upp"`
	Statistic  Number            `json:"statistic"`
	PValue     Number            `json:"pvalue"`
	Larger     TwoSampleResponse `json:"larger"`
	Smaller    TwoSampleResponse `json:"smaller"`
	Warnings   []string          `json:"warnings,omitempty"`
}

// PowerResponse is a power computation with its intermediate quantities
type PowerResponse struct {
	AnalysisID core.AnalysisID `json:"analysis_id"`
	Power      Number          `json:"power"`
	PowerLow   *Number         `json:"power_low,omitempty"`
	PowerUpp   *Number         `json:"power_upp,omitempty"`
	EffectSize Number          `json:"effect_size"`
	StdNull    Number          `json:"std_null"`
	StdAlt     Number          `json:"std_alt"`
	Crit       Number          `json:"crit"`
	Nobs1      Number          `json:"nobs1"`
	Nobs2      Number          `json:"nobs2"`
	NobsRatio  Number          `json:"nobs_ratio"`
	Alpha      float64         `json:"alpha"`
}

// DispersionResponse profiles count data for overdispersion
type DispersionResponse struct {
	AnalysisID       core.AnalysisID `json:"analysis_id"`
	N                int             `json:"n"`
	Mean             Number          `json:"mean"`
	Variance         Number          `json:"variance"`
	DispersionIndex  Number          `json:"dispersion_index"`
	ChiSquare        Number          `json:"chi_square"`
	DegreesOfFreedom int             `json:"df"`
	PValue           Number          `json:"pvalue"`
	Overdispersed    bool            `json:"overdispersed"`
	PooledCount      int             `json:"pooled_count"`
	PooledExposure   Number          `json:"pooled_exposure"`
}

// BatchResult is the outcome of one batch item, in request order
type BatchResult struct {
	Index  int         `json:"index"`
	Kind   string      `json:"kind"`
	Result interface{} `json:"result,omitempty"`
	Error  *ErrorBody  `json:"error,omitempty"`
}

// BatchResponse holds the results of a batch
type BatchResponse struct {
	Results []BatchResult `json:"results"`
}
