package api

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"gorates/app"
	"gorates/domain/core"
	"gorates/internal"
	"gorates/internal/config"
	"gorates/internal/errors"
	"gorates/ports"
)

// MockRateAnalyzer records calls made by the server
type MockRateAnalyzer struct {
	mock.Mock
}

func (m *MockRateAnalyzer) ConfintPoisson(ctx context.Context, req ports.ConfintRequest) (*ports.IntervalResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*ports.IntervalResponse)
	return resp, args.Error(1)
}

func (m *MockRateAnalyzer) TestPoisson(ctx context.Context, req ports.TestRequest) (*ports.TestResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*ports.TestResponse)
	return resp, args.Error(1)
}

func (m *MockRateAnalyzer) TestPoisson2Indep(ctx context.Context, req ports.TwoSampleRequest) (*ports.TwoSampleResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*ports.TwoSampleResponse)
	return resp, args.Error(1)
}

func (m *MockRateAnalyzer) EtestPoisson2Indep(ctx context.Context, req ports.TwoSampleRequest) (*ports.ETestResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*ports.ETestResponse)
	return resp, args.Error(1)
}

func (m *MockRateAnalyzer) TostPoisson2Indep(ctx context.Context, req ports.TOSTRequest) (*ports.TOSTResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*ports.TOSTResponse)
	return resp, args.Error(1)
}

func (m *MockRateAnalyzer) ConfintPoisson2Indep(ctx context.Context, req ports.TwoSampleRequest) (*ports.IntervalResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*ports.IntervalResponse)
	return resp, args.Error(1)
}

func (m *MockRateAnalyzer) PowerRatio(ctx context.Context, req ports.PowerRatioRequest) (*ports.PowerResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*ports.PowerResponse)
	return resp, args.Error(1)
}

func (m *MockRateAnalyzer) PowerEquivalence(ctx context.Context, req ports.PowerEquivalenceRequest) (*ports.PowerResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*ports.PowerResponse)
	return resp, args.Error(1)
}

func (m *MockRateAnalyzer) PowerDiff(ctx context.Context, req ports.PowerDiffRequest) (*ports.PowerResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*ports.PowerResponse)
	return resp, args.Error(1)
}

func (m *MockRateAnalyzer) EstimateDispersion(ctx context.Context, req ports.DispersionRequest) (*ports.DispersionResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*ports.DispersionResponse)
	return resp, args.Error(1)
}

func (m *MockRateAnalyzer) Batch(ctx context.Context, req ports.BatchRequest) (*ports.BatchResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*ports.BatchResponse)
	return resp, args.Error(1)
}

var quietLogger = internal.NewLogger(internal.LogLevelError)

func post(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ports.ErrorBody {
	t.Helper()
	var body ports.ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealth(t *testing.T) {
	srv := NewServer(&MockRateAnalyzer{}, quietLogger)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status": "ok"}`, rec.Body.String())
}

func TestConfintRoute(t *testing.T) {
	analyzer := &MockRateAnalyzer{}
	want := ports.ConfintRequest{Count: 15, Exposure: 400, Method: "exact-c"}
	analyzer.On("ConfintPoisson", mock.Anything, want).Return(&ports.IntervalResponse{
		AnalysisID: "a1", Method: "exact-c", Alpha: 0.05, Lower: 0.02, Upper: ports.Number(math.Inf(1)),
	}, nil)

	srv := NewServer(analyzer, quietLogger)
	rec := post(t, srv, "/v1/poisson/confint", `{"count": 15, "exposure": 400, "method": "exact-c"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"analysis_id": "a1", "method": "exact-c", "alpha": 0.05, "lower": 0.02, "upper": null}`, rec.Body.String())
	analyzer.AssertExpectations(t)
}

func TestErrorStatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"unsupported method", core.NewUnsupportedMethodError("test_poisson", "byar"), http.StatusBadRequest, errors.CodeUnsupportedMethod},
		{"invalid argument", core.NewInvalidArgumentError("exposure", "must be positive"), http.StatusBadRequest, errors.CodeInvalidArgument},
		{"no convergence", core.NewNoConvergenceError("brent", 200), http.StatusUnprocessableEntity, errors.CodeNoConvergence},
		{"wrapped", errors.Wrap(core.ErrInvalidAlternative, "test_poisson failed"), http.StatusBadRequest, errors.CodeInvalidArgument},
		{"internal", stderrors.New("boom"), http.StatusInternalServerError, errors.CodeInternalError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			analyzer := &MockRateAnalyzer{}
			analyzer.On("TestPoisson", mock.Anything, mock.Anything).Return(nil, tc.err)

			rec := post(t, NewServer(analyzer, quietLogger), "/v1/poisson/test", `{"count": 1, "exposure": 1, "value": 1, "method": "score"}`)

			assert.Equal(t, tc.status, rec.Code)
			body := decodeError(t, rec)
			assert.Equal(t, tc.code, body.Code)
			assert.NotEmpty(t, body.Message)
		})
	}
}

func TestMalformedBody(t *testing.T) {
	analyzer := &MockRateAnalyzer{}
	srv := NewServer(analyzer, quietLogger)

	rec := post(t, srv, "/v1/poisson2/test", `{"count1": "six"`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, errors.CodeInvalidInput, decodeError(t, rec).Code)
	analyzer.AssertNotCalled(t, "TestPoisson2Indep", mock.Anything, mock.Anything)
}

func TestMethodNotAllowed(t *testing.T) {
	srv := NewServer(&MockRateAnalyzer{}, quietLogger)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/power/ratio", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func newServiceServer() *Server {
	return NewServer(app.NewRateService(config.Default(), quietLogger), quietLogger)
}

func TestServiceScalarGridRejected(t *testing.T) {
	rec := post(t, newServiceServer(), "/v1/poisson2/etest", `{"count1": 1, "exposure1": 1, "count2": 1, "exposure2": 1, "y_grid": 1}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, errors.CodeInvalidArgument, body.Code)
	assert.Contains(t, body.Message, "y_grid")
}

func TestServiceExactTestEncodesNaNStatistic(t *testing.T) {
	rec := post(t, newServiceServer(), "/v1/poisson/test", `{"count": 15, "exposure": 400, "value": 0.05, "method": "exact-c"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Nil(t, body["statistic"])
	assert.InDelta(t, 0.313026269279486, body["pvalue"], 1e-10)
	assert.Equal(t, "poisson", body["distribution"])
}

func TestServiceBatch(t *testing.T) {
	payload := `{"items": [
		{"kind": "poisson.confint", "payload": {"count": 15, "exposure": 400, "method": "exact-c"}},
		{"kind": "power.diff", "payload": {"diff": 5, "rate2": 10, "nobs1": 6, "nobs_ratio": 0.75, "alternative": "larger"}},
		{"kind": "poisson2.etest", "payload": {"count1": 1, "exposure1": 1, "count2": 1, "exposure2": 1, "method": "wald", "compare": "ratio", "dispersion": 2}}
	]}`
	rec := post(t, newServiceServer(), "/v1/batch", payload)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Results []struct {
			Index  int                    `json:"index"`
			Result map[string]interface{} `json:"result"`
			Error  *ports.ErrorBody       `json:"error"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Results, 3)

	assert.InDelta(t, 0.0209884653319583, body.Results[0].Result["lower"], 1e-10)
	assert.InDelta(t, 0.82566, body.Results[1].Result["power"], 5e-5)
	require.NotNil(t, body.Results[2].Error)
	assert.Equal(t, errors.CodeInvalidArgument, body.Results[2].Error.Code)
}
