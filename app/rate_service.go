package app

import (
	"context"

	"gorates/adapters/stats/poisson"
	"gorates/domain/core"
	"gorates/domain/rates"
	"gorates/internal"
	"gorates/internal/config"
	"gorates/internal/errors"
	"gorates/internal/profiling"
	"gorates/internal/rootfind"
	"gorates/ports"
)

const defaultAlpha = 0.05

// RateService implements ports.RateAnalyzer on top of the poisson package
type RateService struct {
	config *config.Config
	logger *internal.Logger
}

var _ ports.RateAnalyzer = (*RateService)(nil)

// NewRateService creates a rate service bounded by the numeric limits in cfg
func NewRateService(cfg *config.Config, logger *internal.Logger) *RateService {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &RateService{
		config: cfg,
		logger: logger.With("RateService"),
	}
}

// baseOptions carries the configured numeric limits into every call
func (s *RateService) baseOptions() []poisson.Option {
	n := s.config.Numerics
	return []poisson.Option{
		poisson.WithRootOptions(rootfind.Options{XTol: n.RootXTol, RTol: n.RootRTol, MaxIter: n.RootMaxIter}),
		poisson.WithMaxGrid(n.MaxGrid),
	}
}

func (s *RateService) twoSampleOptions(req ports.TwoSampleRequest) ([]poisson.Option, error) {
	opts := s.baseOptions()
	if req.Compare != "" {
		opts = append(opts, poisson.WithCompare(rates.Compare(req.Compare)))
	}
	if req.Alternative != "" {
		opts = append(opts, poisson.WithAlternative(rates.Alternative(req.Alternative)))
	}
	if req.Value != nil {
		opts = append(opts, poisson.WithValue(*req.Value))
	}
	if req.RatioNull != nil {
		opts = append(opts, poisson.WithRatioNull(*req.RatioNull))
	}
	if req.Dispersion != 0 {
		opts = append(opts, poisson.WithDispersion(req.Dispersion))
	}

	grid, err := rates.ParseGrid(req.YGrid, "y_grid")
	if err != nil {
		return nil, err
	}
	if grid != nil {
		opts = append(opts, poisson.WithYGrid(grid))
	}
	legacy, err := rates.ParseGrid(req.LegacyYGrid, "ygrid")
	if err != nil {
		return nil, err
	}
	if legacy != nil {
		opts = append(opts, poisson.WithYgrid(legacy)) //nolint:staticcheck // accepted for old clients
	}
	return opts, nil
}

func (s *RateService) logWarnings(id core.AnalysisID, warnings []error) {
	for _, w := range warnings {
		s.logger.Warn("analysis %s: %v", id, w)
	}
}

// ConfintPoisson computes a confidence interval for one rate
func (s *RateService) ConfintPoisson(ctx context.Context, req ports.ConfintRequest) (*ports.IntervalResponse, error) {
	alpha := req.Alpha
	if alpha == 0 {
		alpha = defaultAlpha
	}
	s.logger.Debug("confint_poisson count=%d exposure=%g method=%s", req.Count, req.Exposure, req.Method)

	ci, err := poisson.ConfintPoisson(req.Count, req.Exposure, alpha, rates.Method(req.Method), s.baseOptions()...)
	if err != nil {
		return nil, errors.Wrap(err, "confint_poisson failed")
	}
	return intervalResponse(core.NewAnalysisID(), ci), nil
}

// TestPoisson tests one rate against a hypothesized value
func (s *RateService) TestPoisson(ctx context.Context, req ports.TestRequest) (*ports.TestResponse, error) {
	opts := s.baseOptions()
	if req.Alternative != "" {
		opts = append(opts, poisson.WithAlternative(rates.Alternative(req.Alternative)))
	}
	if req.Dispersion != 0 {
		opts = append(opts, poisson.WithDispersion(req.Dispersion))
	}
	s.logger.Debug("test_poisson count=%d exposure=%g value=%g method=%s", req.Count, req.Exposure, req.Value, req.Method)

	res, err := poisson.TestPoisson(req.Count, req.Exposure, req.Value, rates.Method(req.Method), opts...)
	if err != nil {
		return nil, errors.Wrap(err, "test_poisson failed")
	}
	return &ports.TestResponse{
		AnalysisID:   core.NewAnalysisID(),
		Method:       string(res.Method),
		Alternative:  string(res.Alternative),
		Distribution: string(res.Distribution),
		Statistic:    ports.Number(res.Statistic),
		PValue:       ports.Number(res.PValue),
		Rate:         ports.Number(res.Rate),
	}, nil
}

// TestPoisson2Indep compares two independent rates
func (s *RateService) TestPoisson2Indep(ctx context.Context, req ports.TwoSampleRequest) (*ports.TwoSampleResponse, error) {
	opts, err := s.twoSampleOptions(req)
	if err != nil {
		return nil, errors.Wrap(err, "test_poisson_2indep failed")
	}
	s.logger.Debug("test_poisson_2indep counts=(%d, %d) method=%s compare=%s", req.Count1, req.Count2, req.Method, req.Compare)

	res, err := poisson.TestPoisson2Indep(req.Count1, req.Exposure1, req.Count2, req.Exposure2, rates.Method(req.Method), opts...)
	if err != nil {
		return nil, errors.Wrap(err, "test_poisson_2indep failed")
	}
	id := core.NewAnalysisID()
	s.logWarnings(id, res.Warnings)
	resp := twoSampleResponse(id, res)
	return &resp, nil
}

// EtestPoisson2Indep runs the E-test on two independent rates
func (s *RateService) EtestPoisson2Indep(ctx context.Context, req ports.TwoSampleRequest) (*ports.ETestResponse, error) {
	opts, err := s.twoSampleOptions(req)
	if err != nil {
		return nil, errors.Wrap(err, "etest_poisson_2indep failed")
	}
	s.logger.Debug("etest_poisson_2indep counts=(%d, %d) method=%s", req.Count1, req.Count2, req.Method)

	res, err := poisson.EtestPoisson2Indep(req.Count1, req.Exposure1, req.Count2, req.Exposure2, rates.Method(req.Method), opts...)
	if err != nil {
		return nil, errors.Wrap(err, "etest_poisson_2indep failed")
	}
	id := core.NewAnalysisID()
	s.logWarnings(id, res.Warnings)
	return &ports.ETestResponse{
		AnalysisID:  id,
		Method:      string(res.Method),
		Compare:     string(res.Compare),
		Alternative: string(res.Alternative),
		Statistic:   ports.Number(res.Statistic),
		PValue:      ports.Number(res.PValue),
		Value:       ports.Number(res.Value),
		RatesCMLE:   []ports.Number{ports.Number(res.RatesCMLE[0]), ports.Number(res.RatesCMLE[1])},
		GridSize:    res.GridSize,
		Warnings:    warningStrings(res.Warnings),
	}, nil
}

// TostPoisson2Indep runs the equivalence test on two independent rates
func (s *RateService) TostPoisson2Indep(ctx context.Context, req ports.TOSTRequest) (*ports.TOSTResponse, error) {
	opts, err := s.twoSampleOptions(req.TwoSampleRequest)
	if err != nil {
		return nil, errors.Wrap(err, "tost_poisson_2indep failed")
	}
	s.logger.Debug("tost_poisson_2indep counts=(%d, %d) margins=(%g, %g) method=%s", req.Count1, req.Count2, req.Low, req.Upp, req.Method)

	res, err := poisson.TostPoisson2Indep(req.Count1, req.Exposure1, req.Count2, req.Exposure2, req.Low, req.Upp, rates.Method(req.Method), opts...)
	if err != nil {
		return nil, errors.Wrap(err, "tost_poisson_2indep failed")
	}
	id := core.NewAnalysisID()
	s.logWarnings(id, res.Warnings)
	return &ports.TOSTResponse{
		AnalysisID: id,
		Method:     string(res.Method),
		Compare:    string(res.Compare),
		Low:        res.Low,
		Upp:        res.Upp,
		Statistic:  ports.Number(res.Statistic),
		PValue:     ports.Number(res.PValue),
		Larger:     twoSampleResponse(id, res.Larger),
		Smaller:    twoSampleResponse(id, res.Smaller),
		Warnings:   warningStrings(res.Warnings),
	}, nil
}

// ConfintPoisson2Indep computes a confidence interval for a ratio or
// difference of two rates
func (s *RateService) ConfintPoisson2Indep(ctx context.Context, req ports.TwoSampleRequest) (*ports.IntervalResponse, error) {
	opts, err := s.twoSampleOptions(req)
	if err != nil {
		return nil, errors.Wrap(err, "confint_poisson_2indep failed")
	}
	if req.Method != "" {
		opts = append(opts, poisson.WithMethod(rates.Method(req.Method)))
	}
	alpha := req.Alpha
	if alpha == 0 {
		alpha = defaultAlpha
	}

	ci, err := poisson.ConfintPoisson2Indep(req.Count1, req.Exposure1, req.Count2, req.Exposure2, alpha, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "confint_poisson_2indep failed")
	}
	return intervalResponse(core.NewAnalysisID(), ci), nil
}

// PowerRatio computes the power of a rate ratio test
func (s *RateService) PowerRatio(ctx context.Context, req ports.PowerRatioRequest) (*ports.PowerResponse, error) {
	opts := powerOptions(req.Alpha, req.Alternative, req.Dispersion, req.MethodVar)
	if req.Value != nil {
		opts = append(opts, poisson.WithValue(*req.Value))
	}

	res, err := poisson.PowerPoisson2IndepResults(req.Rate1, req.Nobs1, req.Rate2, req.Nobs2, req.Exposure, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "power_poisson_2indep failed")
	}
	return powerResponse(core.NewAnalysisID(), res, false), nil
}

// PowerEquivalence computes the power of an equivalence test
func (s *RateService) PowerEquivalence(ctx context.Context, req ports.PowerEquivalenceRequest) (*ports.PowerResponse, error) {
	opts := powerOptions(req.Alpha, "", req.Dispersion, req.MethodVar)

	res, err := poisson.PowerEquivalencePoisson2IndepResults(req.Rate1, req.Nobs1, req.Rate2, req.Nobs2, req.Exposure, req.Low, req.Upp, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "power_equivalence_poisson_2indep failed")
	}
	return powerResponse(core.NewAnalysisID(), res, true), nil
}

// PowerDiff computes the power of a rate difference test
func (s *RateService) PowerDiff(ctx context.Context, req ports.PowerDiffRequest) (*ports.PowerResponse, error) {
	opts := powerOptions(req.Alpha, req.Alternative, 0, req.MethodVar)
	opts = append(opts, poisson.WithValue(req.Value))
	if req.NobsRatio != 0 {
		opts = append(opts, poisson.WithNobsRatio(req.NobsRatio))
	}

	res, err := poisson.PowerPoissonDiff2IndepResults(req.Diff, req.Rate2, req.Nobs1, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "power_poisson_diff_2indep failed")
	}
	return powerResponse(core.NewAnalysisID(), res, false), nil
}

func powerOptions(alpha float64, alternative string, dispersion float64, methodVar string) []poisson.Option {
	var opts []poisson.Option
	if alpha != 0 {
		opts = append(opts, poisson.WithAlpha(alpha))
	}
	if alternative != "" {
		opts = append(opts, poisson.WithAlternative(rates.Alternative(alternative)))
	}
	if dispersion != 0 {
		opts = append(opts, poisson.WithDispersion(dispersion))
	}
	if methodVar != "" {
		opts = append(opts, poisson.WithMethodVar(rates.VarianceMethod(methodVar)))
	}
	return opts
}

// EstimateDispersion profiles counts for overdispersion
func (s *RateService) EstimateDispersion(ctx context.Context, req ports.DispersionRequest) (*ports.DispersionResponse, error) {
	unit := req.UnitExposure
	if unit == 0 {
		unit = 1
	}
	markers, err := profiling.EstimateDispersion(req.Counts, unit)
	if err != nil {
		return nil, errors.Wrap(err, "dispersion estimate failed")
	}
	if markers.Overdispersed {
		s.logger.Info("counts are overdispersed: index %.3f, p=%.3g", markers.DispersionIndex, markers.PValue)
	}
	return &ports.DispersionResponse{
		AnalysisID:       core.NewAnalysisID(),
		N:                markers.N,
		Mean:             ports.Number(markers.Mean),
		Variance:         ports.Number(markers.Variance),
		DispersionIndex:  ports.Number(markers.DispersionIndex),
		ChiSquare:        ports.Number(markers.ChiSquare),
		DegreesOfFreedom: markers.DegreesOfFreedom,
		PValue:           ports.Number(markers.PValue),
		Overdispersed:    markers.Overdispersed,
		PooledCount:      markers.Pooled.Count,
		PooledExposure:   ports.Number(markers.Pooled.Exposure),
	}, nil
}

// ============================================================================
// RESPONSE MAPPING
// ============================================================================

func intervalResponse(id core.AnalysisID, ci rates.Interval) *ports.IntervalResponse {
	return &ports.IntervalResponse{
		AnalysisID: id,
		Method:     string(ci.Method),
		Alpha:      ci.Alpha,
		Lower:      ports.Number(ci.Lower),
		Upper:      ports.Number(ci.Upper),
	}
}

func twoSampleResponse(id core.AnalysisID, res rates.TwoSampleResult) ports.TwoSampleResponse {
	resp := ports.TwoSampleResponse{
		AnalysisID:   id,
		Method:       string(res.Method),
		Compare:      string(res.Compare),
		Alternative:  string(res.Alternative),
		Distribution: string(res.Distribution),
		Statistic:    ports.Number(res.Statistic),
		PValue:       ports.Number(res.PValue),
		Rate1:        ports.Number(res.Rates[0]),
		Rate2:        ports.Number(res.Rates[1]),
		Ratio:        ports.Number(res.Ratio),
		Diff:         ports.Number(res.Diff),
		Value:        ports.Number(res.Value),
		RatioNull:    ports.Number(res.RatioNull),
		Warnings:     warningStrings(res.Warnings),
	}
	if res.RatesCMLE != nil {
		resp.RatesCMLE = []ports.Number{ports.Number(res.RatesCMLE[0]), ports.Number(res.RatesCMLE[1])}
	}
	return resp
}

func powerResponse(id core.AnalysisID, res rates.PowerResult, equivalence bool) *ports.PowerResponse {
	resp := &ports.PowerResponse{
		AnalysisID: id,
		Power:      ports.Number(res.Power),
		EffectSize: ports.Number(res.EffectSize),
		StdNull:    ports.Number(res.StdNull),
		StdAlt:     ports.Number(res.StdAlt),
		Crit:       ports.Number(res.Crit),
		Nobs1:      ports.Number(res.Nobs1),
		Nobs2:      ports.Number(res.Nobs2),
		NobsRatio:  ports.Number(res.NobsRatio),
		Alpha:      res.Alpha,
	}
	if equivalence {
		low, upp := ports.Number(res.PowerLow), ports.Number(res.PowerUpp)
		resp.PowerLow, resp.PowerUpp = &low, &upp
	}
	return resp
}

func warningStrings(warnings []error) []string {
	if len(warnings) == 0 {
		return nil
	}
	out := make([]string, len(warnings))
	for i, w := range warnings {
		out[i] = w.Error()
	}
	return out
}

func errorBody(err error) *ports.ErrorBody {
	appErr := errors.FromDomain(err)
	return &ports.ErrorBody{Code: appErr.Code, Message: appErr.Error()}
}
