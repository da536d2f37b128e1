package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/ruralpay/kite/internal/adaptive"
	"github.com/ruralpay/kite/internal/assess"
	"github.com/ruralpay/kite/internal/behavior"
	"github.com/ruralpay/kite/internal/bus"
	"github.com/ruralpay/kite/internal/cache"
	"github.com/ruralpay/kite/internal/domain"
	"github.com/ruralpay/kite/internal/profile"
	"github.com/ruralpay/kite/internal/repository"
	"github.com/ruralpay/kite/internal/rules"
)

type stubModel struct{}

func (stubModel) Score(ctx context.Context, tx *domain.Transaction, p *domain.UserProfile) (float64, float64) {
	return 0.1, 0.4
}

func newTestServer(t *testing.T) *Server {
	t.Helper()

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "api_test.db"),
	})
	if err != nil {
		t.Fatalf("failed to open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	lru := cache.NewLRUCache(100)
	eventBus := bus.NewChannelBus(100)
	t.Cleanup(func() { eventBus.Close() })

	store := profile.NewMemoryStore()
	customEngine, err := rules.NewCustomEngine()
	if err != nil {
		t.Fatalf("failed to create custom engine: %v", err)
	}
	engine := rules.NewEngine(domain.DefaultRuleThresholds(), nil, customEngine)

	assessor := assess.NewAssessor(store, engine, behavior.NewScorer(), stubModel{},
		assess.WithRepository(repo),
		assess.WithCache(lru),
		assess.WithBus(eventBus),
	)
	selector := adaptive.NewSelector(nil)

	return NewServer(domain.ServerConfig{}, assessor, selector, store, repo, lru, eventBus, customEngine, "test")
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestAssessEndpoint(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/assess", &domain.TransactionRequest{
		UserID:   "u1",
		Amount:   1500,
		DeviceID: "d1",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp AssessResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if resp.Decision == nil {
		t.Fatal("expected a decision")
	}
	if resp.Decision.UserID != "u1" {
		t.Errorf("unexpected user: %s", resp.Decision.UserID)
	}
	if resp.Decision.ID == "" || resp.Decision.TxID == "" {
		t.Errorf("expected generated IDs, got %+v", resp.Decision)
	}
	if resp.Metadata.Version != "test" {
		t.Errorf("unexpected version: %s", resp.Metadata.Version)
	}
}

func TestAssessRejectsInvalidInput(t *testing.T) {
	srv := newTestServer(t)

	cases := []*domain.TransactionRequest{
		{UserID: "", Amount: 100},
		{UserID: "u1", Amount: 0},
		{UserID: "u1", Amount: -50},
	}
	for _, req := range cases {
		rec := doJSON(t, srv, http.MethodPost, "/assess", req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("req %+v: expected 400, got %d", req, rec.Code)
		}
	}
}

func TestAssessRejectsBadJSON(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/assess", bytes.NewBufferString("{broken"))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed JSON, got %d", rec.Code)
	}
}

func TestDecisionLookupAfterAssess(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/assess", &domain.TransactionRequest{
		UserID: "u1",
		Amount: 1500,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("assess failed: %d", rec.Code)
	}
	var resp AssessResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)

	rec = doJSON(t, srv, http.MethodGet, "/decisions/"+resp.Decision.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var got domain.FraudDecision
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if got.ID != resp.Decision.ID || got.UserID != "u1" {
		t.Errorf("lookup mismatch: %+v", got)
	}
}

func TestDecisionNotFound(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/decisions/absent", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestListDecisionsRequiresUserID(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/decisions", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without userId, got %d", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodGet, "/decisions?userId=u1&since=yesterday", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad since, got %d", rec.Code)
	}
}

func TestListDecisions(t *testing.T) {
	srv := newTestServer(t)

	for i := 0; i < 3; i++ {
		rec := doJSON(t, srv, http.MethodPost, "/assess", &domain.TransactionRequest{
			UserID: "u1",
			Amount: 1000,
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("assess %d failed: %d", i, rec.Code)
		}
	}

	rec := doJSON(t, srv, http.MethodGet, "/decisions?userId=u1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Count int `json:"count"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Count != 3 {
		t.Errorf("expected 3 decisions, got %d", resp.Count)
	}
}

func TestSubmitAsyncQueues(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/transactions", &domain.TransactionRequest{
		UserID: "u1",
		Amount: 500,
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, srv, http.MethodPost, "/transactions", &domain.TransactionRequest{
		UserID: "",
		Amount: 500,
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without userId, got %d", rec.Code)
	}
}

func TestAuthLevelEndpoint(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/auth/level", &AuthLevelRequest{
		UserID:   "u1",
		DeviceID: "d1",
		Amount:   5000,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		RiskScore   int     `json:"riskScore"`
		RiskLevel   string  `json:"riskLevel"`
		AuthLevel   string  `json:"authLevel"`
		DeviceTrust float64 `json:"deviceTrust"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	// Unknown device: 15 points, LOW, PIN only
	if resp.RiskScore != 15 || resp.RiskLevel != "LOW" || resp.AuthLevel != "PIN_ONLY" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if resp.DeviceTrust != 0.5 {
		t.Errorf("expected default trust 0.5, got %.2f", resp.DeviceTrust)
	}
}

func TestAuthLevelRequiresUserID(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/auth/level", &AuthLevelRequest{DeviceID: "d1"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestRecordAuthAttempt(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/auth/attempts", &AuthAttemptRequest{
		UserID:   "u1",
		DeviceID: "d1",
		Success:  true,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		DeviceTrust float64 `json:"deviceTrust"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.DeviceTrust != 0.6 {
		t.Errorf("expected trust 0.6 after one success, got %.2f", resp.DeviceTrust)
	}
}

func TestProfileEndpoint(t *testing.T) {
	srv := newTestServer(t)

	doJSON(t, srv, http.MethodPost, "/assess", &domain.TransactionRequest{
		UserID: "u1",
		Amount: 1200,
	})

	rec := doJSON(t, srv, http.MethodGet, "/profiles/u1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var p domain.UserProfile
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if p.TotalCount != 1 || p.AvgAmount != 1200 {
		t.Errorf("unexpected profile: %+v", p)
	}
}

func TestRuleLifecycle(t *testing.T) {
	srv := newTestServer(t)

	// Invalid expressions never reach the database
	rec := doJSON(t, srv, http.MethodPost, "/rules", &CreateRuleRequest{
		ID: "bad", Name: "Bad", Expression: "!!! not cel", Weight: 0.2, Enabled: true,
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for broken expression, got %d", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodPost, "/rules", &CreateRuleRequest{
		ID: "r1", Name: "Offshore", Expression: `location == "offshore"`, Weight: 0.25, Enabled: true,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, srv, http.MethodGet, "/rules", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var listResp struct {
		Count int `json:"count"`
	}
	json.Unmarshal(rec.Body.Bytes(), &listResp)
	if listResp.Count != 1 {
		t.Errorf("expected 1 rule, got %d", listResp.Count)
	}

	rec = doJSON(t, srv, http.MethodPost, "/rules/reload", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 on reload, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRuleWeightValidation(t *testing.T) {
	srv := newTestServer(t)

	for _, weight := range []float64{0, -0.1, 1.5} {
		rec := doJSON(t, srv, http.MethodPost, "/rules", &CreateRuleRequest{
			ID: "w", Name: "W", Expression: "amount > 1.0", Weight: weight, Enabled: true,
		})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("weight %.1f: expected 400, got %d", weight, rec.Code)
		}
	}
}

func TestHealthAndReady(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var health struct {
		Status  string `json:"status"`
		Version string `json:"version"`
	}
	json.Unmarshal(rec.Body.Bytes(), &health)
	if health.Status != "healthy" || health.Version != "test" {
		t.Errorf("unexpected health: %+v", health)
	}

	rec = doJSON(t, srv, http.MethodGet, "/ready", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 from ready, got %d", rec.Code)
	}
}

func TestStatsEndpoint(t *testing.T) {
	srv := newTestServer(t)

	doJSON(t, srv, http.MethodPost, "/assess", &domain.TransactionRequest{
		UserID: "u1",
		Amount: 1000,
	})

	rec := doJSON(t, srv, http.MethodGet, "/stats", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var stats domain.FraudStats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if stats.TotalDecisions != 1 {
		t.Errorf("expected 1 decision, got %d", stats.TotalDecisions)
	}
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/assess", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Error("expected CORS headers on preflight")
	}
}

func TestGetTransactionNotFound(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/transactions/absent", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}
