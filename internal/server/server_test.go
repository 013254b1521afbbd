package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	redis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/airtax/internal/behavior"
	"github.com/smallbiznis/airtax/internal/config"
	evaluationdomain "github.com/smallbiznis/airtax/internal/evaluation/domain"
	"github.com/smallbiznis/airtax/internal/itinerary"
	"github.com/smallbiznis/airtax/internal/observability"
	"github.com/smallbiznis/airtax/internal/ratelimit"
	taxruledomain "github.com/smallbiznis/airtax/internal/taxrule/domain"
	"github.com/smallbiznis/airtax/internal/taxrule/snapshot"
	"github.com/smallbiznis/airtax/pkg/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeDispatcher struct {
	calls int
	got   []*itinerary.Itinerary
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, itineraries []*itinerary.Itinerary) []*evaluationdomain.ComputedTaxSet {
	f.calls++
	f.got = itineraries
	out := make([]*evaluationdomain.ComputedTaxSet, len(itineraries))
	for i := range itineraries {
		set := evaluationdomain.NewComputedTaxSet(i)
		set.Record(evaluationdomain.TraceRecord{Code: "US1", Passed: true})
		if i == 1 {
			set.Fail(evaluationdomain.Failure{Code: "XA", Reason: evaluationdomain.ReasonConversion})
		}
		set.Freeze([]evaluationdomain.TaxLineItem{
			{Code: "US1", Nation: "US", Amount: decimal.RequireFromString("15.00"), Currency: "USD"},
			{Code: "ZP", Nation: "US", Amount: decimal.RequireFromString("5.00"), Currency: "USD"},
		}, nil)
		out[i] = set
	}
	return out
}

type fakeRuleService struct {
	rules map[string]taxruledomain.TaxRuleRecord
	last  taxruledomain.ListRequest
}

func (f *fakeRuleService) Create(ctx context.Context, rule taxruledomain.TaxRuleRecord) (*taxruledomain.TaxRuleRecord, error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	return &rule, nil
}

func (f *fakeRuleService) Get(ctx context.Context, id string) (*taxruledomain.TaxRuleRecord, error) {
	if _, err := taxruledomain.ParseID(id); err != nil {
		return nil, err
	}
	rule, ok := f.rules[id]
	if !ok {
		return nil, taxruledomain.ErrRuleNotFound
	}
	return &rule, nil
}

func (f *fakeRuleService) List(ctx context.Context, req taxruledomain.ListRequest) (taxruledomain.ListResponse, error) {
	f.last = req
	resp := taxruledomain.ListResponse{}
	for _, rule := range f.rules {
		resp.Rules = append(resp.Rules, rule)
	}
	return resp, nil
}

type testServer struct {
	srv        *Server
	dispatcher *fakeDispatcher
	rules      *fakeRuleService
	metrics    *telemetry.Metrics
}

type serverOption func(*ServerParams)

func withLimiter(l *ratelimit.EvaluateLimiter) serverOption {
	return func(p *ServerParams) { p.Limiter = l }
}

func newTestServer(t *testing.T, opts ...serverOption) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	metrics := telemetry.NewMetrics(prometheus.NewRegistry())
	engine := NewEngine(observability.Config{LogLevel: "info", Environment: "test"}, metrics)
	dispatcher := &fakeDispatcher{}
	rules := &fakeRuleService{rules: map[string]taxruledomain.TaxRuleRecord{
		"42": {ID: 42, Code: "US1", Nation: "US", SeqNo: 100},
	}}

	params := ServerParams{
		Gin:        engine,
		Cfg:        config.Config{MaxBatchItineraries: 3},
		Log:        zap.NewNop(),
		Dispatcher: dispatcher,
		RuleSvc:    rules,
		Registry:   behavior.NewRegistry(),
		Snapshots:  snapshot.NewStatic([]taxruledomain.TaxRuleRecord{{ID: 1, Code: "US1", Nation: "US"}}),
	}
	for _, opt := range opts {
		opt(&params)
	}
	return &testServer{srv: NewServer(params), dispatcher: dispatcher, rules: rules, metrics: metrics}
}

func (ts *testServer) do(method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.srv.Engine().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func sampleItinerary() map[string]any {
	return map[string]any{
		"segments": []map[string]any{{
			"origin":      map[string]any{"code": "DFW", "nation": "US"},
			"destination": map[string]any{"code": "MIA", "nation": "US"},
		}},
		"one_way":          true,
		"ticketing_date":   "2025-06-01T00:00:00Z",
		"payment_currency": "USD",
		"fare":             map[string]any{"base_fare": "100", "base_currency": "USD"},
	}
}

func TestEvaluateTaxes_ReturnsSetPerItinerary(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/v1/taxes/evaluate", map[string]any{
		"itineraries": []any{sampleItinerary(), sampleItinerary()},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, 1, ts.dispatcher.calls)
	require.Len(t, ts.dispatcher.got, 2)
	assert.Equal(t, "DFW", ts.dispatcher.got[0].Segments[0].Origin.Code)

	var resp struct {
		Data []evaluateResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 2)

	first := resp.Data[0]
	assert.Equal(t, 0, first.ItineraryIndex)
	assert.True(t, first.Total.Equal(decimal.RequireFromString("20.00")))
	assert.False(t, first.Incomplete)
	assert.Empty(t, first.Trace, "trace is opt-in")
	assert.NotNil(t, first.Ancillary)

	second := resp.Data[1]
	assert.Equal(t, 1, second.ItineraryIndex)
	assert.True(t, second.Incomplete)
	require.Len(t, second.Failures, 1)
	assert.Equal(t, evaluationdomain.ReasonConversion, second.Failures[0].Reason)
}

func TestEvaluateTaxes_IncludeTrace(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/v1/taxes/evaluate", map[string]any{
		"itineraries":   []any{sampleItinerary()},
		"include_trace": true,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data []evaluateResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	require.Len(t, resp.Data[0].Trace, 1)
	assert.Equal(t, "US1", resp.Data[0].Trace[0].Code)
}

func TestEvaluateTaxes_Validation(t *testing.T) {
	ts := newTestServer(t)

	cases := []struct {
		name string
		body any
		code string
	}{
		{name: "empty batch", body: map[string]any{"itineraries": []any{}}, code: "required"},
		{name: "too many", body: map[string]any{"itineraries": []any{
			sampleItinerary(), sampleItinerary(), sampleItinerary(), sampleItinerary(),
		}}, code: "too_many"},
		{name: "null itinerary", body: map[string]any{"itineraries": []any{nil}}, code: "invalid_itinerary"},
		{name: "malformed", body: "not an object", code: "invalid_request"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := ts.do(http.MethodPost, "/v1/taxes/evaluate", tc.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			payload := decodeError(t, rec)
			assert.Equal(t, "validation_error", payload.Type)
			require.Len(t, payload.Errors, 1)
			assert.Equal(t, tc.code, payload.Errors[0].Code)
		})
	}
	assert.Zero(t, ts.dispatcher.calls)
}

func TestEvaluateTaxes_RateLimited(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := config.Config{RateLimit: config.RateLimitConfig{Enabled: true, EvaluateRate: 0.01, EvaluateBurst: 1}}
	limiter := ratelimit.NewEvaluateLimiter(cfg, client, zap.NewNop())
	require.NotNil(t, limiter)

	ts := newTestServer(t, withLimiter(limiter))
	body := map[string]any{"itineraries": []any{sampleItinerary()}}

	rec := ts.do(http.MethodPost, "/v1/taxes/evaluate", body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Limit"))

	rec = ts.do(http.MethodPost, "/v1/taxes/evaluate", body)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, rateLimitReasonClientRate, rec.Header().Get("X-Rate-Limited-Reason"))
	assert.Equal(t, "rate_limited", decodeError(t, rec).Type)
	assert.Equal(t, 1, ts.dispatcher.calls)
}

func TestRules(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/v1/rules/42", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got struct {
		Data taxruledomain.TaxRuleRecord `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "US1", got.Data.Code)

	rec = ts.do(http.MethodGet, "/v1/rules/43", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeError(t, rec).Type)

	rec = ts.do(http.MethodGet, "/v1/rules/abc", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	payload := decodeError(t, rec)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "invalid_id", payload.Errors[0].Code)
	assert.Equal(t, "id", payload.Errors[0].Field)

	rec = ts.do(http.MethodGet, "/v1/rules?nation=us&code=%20us1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "US", ts.rules.last.Nation)
	assert.Equal(t, "US1", ts.rules.last.Code)

	rec = ts.do(http.MethodPost, "/v1/rules", map[string]any{"nation": "US"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	payload = decodeError(t, rec)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "invalid_tax_code", payload.Errors[0].Code)
	assert.Equal(t, "tax_code", payload.Errors[0].Field)
}

func TestBehaviorsAndHealth(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/v1/behaviors", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var behaviors struct {
		Data []behavior.Bundle `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &behaviors))
	require.NotEmpty(t, behaviors.Data)
	assert.Equal(t, "generic", behaviors.Data[0].Name)

	rec = ts.do(http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var health struct {
		Status string `json:"status"`
		Rules  struct {
			Count    int    `json:"count"`
			LoadedAt string `json:"loaded_at"`
		} `json:"rules"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 1, health.Rules.Count)
	assert.NotEmpty(t, health.Rules.LoadedAt)

	rec = ts.do(http.MethodGet, "/v1/nope", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeError(t, rec).Type)
}

func TestHealth_DegradedBeforeFirstLoad(t *testing.T) {
	ts := newTestServer(t, func(p *ServerParams) {
		p.Snapshots = snapshot.NewStore(snapshot.Params{Log: zap.NewNop()})
	})

	rec := ts.do(http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"degraded"`)
}

func TestClassifyErrorForLog(t *testing.T) {
	typ, code := classifyErrorForLog(taxruledomain.ErrInvalidNation)
	assert.Equal(t, "validation_error", typ)
	assert.Equal(t, "invalid_nation", code)

	typ, code = classifyErrorForLog(ErrRateLimited)
	assert.Equal(t, "rate_limited", typ)
	assert.Equal(t, "rate_limited", code)

	status, payload := mapError(fmt.Errorf("%w: %w", evaluationdomain.ErrInvalidItinerary, itinerary.ErrMissingTicketingDate))
	assert.Equal(t, http.StatusBadRequest, status)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "invalid_itinerary", payload.Errors[0].Code)

	status, payload = mapError(itinerary.ErrMissingTicketingDate)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "missing_ticketing_date", payload.Errors[0].Code)

	typ, code = classifyErrorForLog(context.DeadlineExceeded)
	assert.Equal(t, "internal_error", typ)
	assert.Equal(t, context.DeadlineExceeded.Error(), code)
}
