package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/rawblock/ethergraph-engine/internal/addresses"
	"github.com/rawblock/ethergraph-engine/internal/graph"
	"github.com/rawblock/ethergraph-engine/pkg/models"
)

const testAddr = "0x742d35cc6634c0532925a3b844bc454e4438f44e"

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeTracer struct {
	result *models.TraceResult
	err    error
}

func (f *fakeTracer) Trace(ctx context.Context, source, target string, maxHops int) (*models.TraceResult, error) {
	return f.result, f.err
}

type fakeClusters struct {
	assigned int
	profile  *models.AddressProfile
	err      error
}

func (f *fakeClusters) AssignClusters(ctx context.Context, batchSize int) (int, error) {
	return f.assigned, f.err
}

func (f *fakeClusters) Profile(ctx context.Context, address string) (*models.AddressProfile, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.profile, nil
}

type fakeScoring struct {
	scores []models.AddressScore
	alerts []models.Alert
	limit  int
	err    error
}

func (f *fakeScoring) RunScoring(ctx context.Context, contamination float64) ([]models.AddressScore, error) {
	return f.scores, f.err
}

func (f *fakeScoring) FetchAlerts(ctx context.Context, limit int) ([]models.Alert, error) {
	f.limit = limit
	return f.alerts, f.err
}

type fakeCompliance struct {
	matched int
	updated int
	err     error
}

func (f *fakeCompliance) MarkSanctioned(ctx context.Context, list []string) (int, error) {
	return f.matched, f.err
}

func (f *fakeCompliance) EvaluateSeverity(ctx context.Context) (int, error) {
	return f.updated, f.err
}

func (f *fakeCompliance) ApplyBlacklistCSV(ctx context.Context, r io.Reader) (int, error) {
	return f.matched, f.err
}

type fakeAPIIngestor struct {
	summary *models.IngestSummary
	err     error
}

func (f *fakeAPIIngestor) IngestAddress(ctx context.Context, address string) (*models.IngestSummary, error) {
	return f.summary, f.err
}

type fakeSampleStore struct{ count int }

func (f *fakeSampleStore) IngestTransactions(ctx context.Context, txs []models.TransactionRecord) error {
	f.count += len(txs)
	return nil
}

func testRouter(deps Deps) *gin.Engine {
	if deps.Tracer == nil {
		deps.Tracer = &fakeTracer{}
	}
	if deps.Clusters == nil {
		deps.Clusters = &fakeClusters{}
	}
	if deps.Scoring == nil {
		deps.Scoring = &fakeScoring{}
	}
	if deps.Compliance == nil {
		deps.Compliance = &fakeCompliance{}
	}
	if deps.SampleStore == nil {
		deps.SampleStore = &fakeSampleStore{}
	}
	deps.RateLimitRPM = 10000
	return SetupRouter(deps)
}

func doJSON(t *testing.T, router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandleTrace(t *testing.T) {
	router := testRouter(Deps{Tracer: &fakeTracer{result: &models.TraceResult{
		Nodes:    []models.TraceNode{{Address: testAddr}},
		Metadata: models.TraceMetadata{Source: testAddr, MaxHops: 4, NodeCount: 1},
	}}})

	w := doJSON(t, router, http.MethodPost, "/api/v1/trace",
		`{"source":"`+testAddr+`","maxHops":4}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var resp models.TraceResult
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Metadata.NodeCount != 1 {
		t.Fatalf("nodeCount = %d, want 1", resp.Metadata.NodeCount)
	}
}

func TestHandleTraceErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"invalid address", addresses.ErrInvalidAddress, http.StatusBadRequest},
		{"no path", graph.ErrNotFound, http.StatusNotFound},
		{"store failure", &graph.StoreError{Op: "shortest_path", Err: io.EOF}, http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := testRouter(Deps{Tracer: &fakeTracer{err: tc.err}})
			w := doJSON(t, router, http.MethodPost, "/api/v1/trace",
				`{"source":"`+testAddr+`"}`)
			if w.Code != tc.want {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tc.want, w.Body.String())
			}
		})
	}
}

func TestHandleTraceBadBody(t *testing.T) {
	router := testRouter(Deps{})
	w := doJSON(t, router, http.MethodPost, "/api/v1/trace", `{"maxHops":"four"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestHandleAddressProfile(t *testing.T) {
	router := testRouter(Deps{Clusters: &fakeClusters{profile: &models.AddressProfile{Address: testAddr}}})
	w := doJSON(t, router, http.MethodGet, "/api/v1/address/"+testAddr, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	router = testRouter(Deps{Clusters: &fakeClusters{err: graph.ErrNotFound}})
	w = doJSON(t, router, http.MethodGet, "/api/v1/address/"+testAddr, "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestHandleAssignClusters(t *testing.T) {
	router := testRouter(Deps{Clusters: &fakeClusters{assigned: 42}})
	w := doJSON(t, router, http.MethodPost, "/api/v1/cluster/assign", `{"batchSize":100}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"assigned":42`) {
		t.Fatalf("body = %s", w.Body.String())
	}
}

func TestHandleRefreshAlerts(t *testing.T) {
	scoring := &fakeScoring{scores: []models.AddressScore{
		{Address: testAddr, RiskScore: 0.9, IsAnomaly: true},
		{Address: "0xb", RiskScore: 0.1},
	}}
	router := testRouter(Deps{Scoring: scoring, Compliance: &fakeCompliance{updated: 2}})

	w := doJSON(t, router, http.MethodPost, "/api/v1/alerts/refresh", `{"contamination":0.1}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"scored":2`) || !strings.Contains(w.Body.String(), `"anomalies":1`) {
		t.Fatalf("body = %s", w.Body.String())
	}
}

func TestHandleGetAlertsPassesLimit(t *testing.T) {
	scoring := &fakeScoring{alerts: []models.Alert{{Address: testAddr, Severity: models.SeverityHigh}}}
	router := testRouter(Deps{Scoring: scoring})

	w := doJSON(t, router, http.MethodGet, "/api/v1/alerts?limit=7", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if scoring.limit != 7 {
		t.Fatalf("limit = %d, want 7", scoring.limit)
	}
}

func TestHandleMarkSanctions(t *testing.T) {
	router := testRouter(Deps{Compliance: &fakeCompliance{matched: 1}})
	w := doJSON(t, router, http.MethodPost, "/api/v1/compliance/sanctions",
		`{"addresses":["`+testAddr+`"]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"matched":1`) {
		t.Fatalf("body = %s", w.Body.String())
	}

	w = doJSON(t, router, http.MethodPost, "/api/v1/compliance/sanctions", `{"addresses":[]}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("empty list status = %d, want 400", w.Code)
	}
}

func TestHandleBlacklistUpload(t *testing.T) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "blacklist.csv")
	if err != nil {
		t.Fatal(err)
	}
	part.Write([]byte("address\n" + testAddr + "\n"))
	mw.Close()

	router := testRouter(Deps{Compliance: &fakeCompliance{matched: 1}})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/compliance/blacklist", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
}

func TestHandleIngestUnconfigured(t *testing.T) {
	router := testRouter(Deps{})
	w := doJSON(t, router, http.MethodGet, "/api/v1/ingest/"+testAddr, "")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
}

func TestHandleIngestAddress(t *testing.T) {
	router := testRouter(Deps{Ingestor: &fakeAPIIngestor{summary: &models.IngestSummary{
		Address: testAddr, FetchedCount: 3, IngestedCount: 3, TotalValueETH: 1.5,
	}}})
	w := doJSON(t, router, http.MethodGet, "/api/v1/ingest/"+testAddr, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"fetchedCount":3`) {
		t.Fatalf("body = %s", w.Body.String())
	}
}

func TestHandleLoadSample(t *testing.T) {
	store := &fakeSampleStore{}
	router := testRouter(Deps{SampleStore: store})
	w := doJSON(t, router, http.MethodPost, "/api/v1/ingest/sample", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if store.count == 0 {
		t.Fatal("sample transactions were not ingested")
	}
}

func TestHandleRunsUnconfigured(t *testing.T) {
	router := testRouter(Deps{})
	w := doJSON(t, router, http.MethodGet, "/api/v1/runs", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
}

func TestHandleHealth(t *testing.T) {
	router := testRouter(Deps{})
	w := doJSON(t, router, http.MethodGet, "/api/v1/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"status":"operational"`) {
		t.Fatalf("body = %s", w.Body.String())
	}
}

func TestAuthMiddleware(t *testing.T) {
	router := testRouter(Deps{AuthToken: "secret"})

	w := doJSON(t, router, http.MethodGet, "/api/v1/alerts", "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("no header status = %d, want 401", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/alerts", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w2 := httptest.NewRecorder()
	router.ServeHTTP(w2, req)
	if w2.Code != http.StatusForbidden {
		t.Fatalf("bad token status = %d, want 403", w2.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/alerts", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w3 := httptest.NewRecorder()
	router.ServeHTTP(w3, req)
	if w3.Code != http.StatusOK {
		t.Fatalf("good token status = %d, want 200", w3.Code)
	}

	// Health stays public.
	w4 := doJSON(t, router, http.MethodGet, "/api/v1/health", "")
	if w4.Code != http.StatusOK {
		t.Fatalf("health status = %d, want 200", w4.Code)
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(60, 2)
	if ok, _ := rl.allow("10.0.0.1"); !ok {
		t.Fatal("first request denied")
	}
	if ok, _ := rl.allow("10.0.0.1"); !ok {
		t.Fatal("second request denied within burst")
	}
	ok, retryAfter := rl.allow("10.0.0.1")
	if ok {
		t.Fatal("third request allowed past burst")
	}
	if retryAfter <= 0 {
		t.Fatalf("retryAfter = %v, want positive", retryAfter)
	}
	// A different IP has its own bucket.
	if ok, _ := rl.allow("10.0.0.2"); !ok {
		t.Fatal("fresh IP denied")
	}
}
