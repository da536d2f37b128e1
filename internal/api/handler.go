package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ruralpay/kite/internal/adaptive"
	"github.com/ruralpay/kite/internal/assess"
	"github.com/ruralpay/kite/internal/domain"
	"github.com/ruralpay/kite/internal/rules"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	assessor     *assess.Assessor
	selector     *adaptive.Selector
	profiles     domain.ProfileStore
	repo         domain.Repository
	cache        domain.Cache
	bus          domain.EventBus
	customEngine *rules.CustomEngine
	version      string
}

// NewHandler creates a new API handler.
func NewHandler(assessor *assess.Assessor, selector *adaptive.Selector, profiles domain.ProfileStore, repo domain.Repository, cache domain.Cache, bus domain.EventBus, customEngine *rules.CustomEngine, version string) *Handler {
	return &Handler{
		assessor:     assessor,
		selector:     selector,
		profiles:     profiles,
		repo:         repo,
		cache:        cache,
		bus:          bus,
		customEngine: customEngine,
		version:      version,
	}
}

// AssessResponse is the response for POST /assess.
type AssessResponse struct {
	Decision *domain.FraudDecision `json:"decision"`
	Metadata struct {
		TraceID string `json:"traceId"`
		TotalMs int64  `json:"totalMs"`
		Version string `json:"version"`
	} `json:"metadata"`
}

// Assess handles POST /assess requests: synchronous risk assessment.
func (h *Handler) Assess(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	traceID := GetTraceID(ctx)

	var req domain.TransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	tx := req.ToTransaction()
	tx.ID = uuid.New().String()

	decision, err := h.assessor.Assess(ctx, tx)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTransaction) {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": err.Error(),
			})
			return
		}
		slog.Error("assessment failed", "tx_id", tx.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "assessment failed",
		})
		return
	}

	resp := AssessResponse{Decision: decision}
	resp.Metadata.TraceID = traceID
	resp.Metadata.TotalMs = time.Since(start).Milliseconds()
	resp.Metadata.Version = h.version

	writeJSON(w, http.StatusOK, resp)
}

// SubmitAsync handles POST /transactions: publish for async assessment.
func (h *Handler) SubmitAsync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.bus == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "event bus not available",
		})
		return
	}

	var req domain.TransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if req.UserID == "" || req.Amount <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "userId and a positive amount are required",
		})
		return
	}

	payload, err := json.Marshal(req)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to encode transaction",
		})
		return
	}

	if err := h.bus.Publish(ctx, domain.TopicTransactionIngested, payload); err != nil {
		slog.Error("failed to publish transaction", "user_id", req.UserID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to enqueue transaction",
		})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "queued",
	})
}

// AuthLevelRequest is the request body for POST /auth/level.
type AuthLevelRequest struct {
	UserID   string  `json:"userId"`
	DeviceID string  `json:"deviceId"`
	Amount   float64 `json:"amount"`
}

// AuthLevelResponse is the response for POST /auth/level.
type AuthLevelResponse struct {
	RiskScore   int              `json:"riskScore"`
	RiskLevel   domain.RiskLevel `json:"riskLevel"`
	AuthLevel   domain.AuthLevel `json:"authLevel"`
	DeviceTrust float64          `json:"deviceTrust"`
}

// AuthLevel handles POST /auth/level: contextual auth level selection.
func (h *Handler) AuthLevel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req AuthLevelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if req.UserID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "userId is required",
		})
		return
	}

	profile, err := h.profiles.Get(ctx, req.UserID)
	if err != nil {
		slog.Error("profile lookup failed", "user_id", req.UserID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "profile lookup failed",
		})
		return
	}

	tx := &domain.Transaction{
		UserID:    req.UserID,
		DeviceID:  req.DeviceID,
		Amount:    req.Amount,
		Timestamp: time.Now().UTC(),
	}

	authLevel, riskLevel, score := h.selector.Select(tx, profile)

	writeJSON(w, http.StatusOK, AuthLevelResponse{
		RiskScore:   score,
		RiskLevel:   riskLevel,
		AuthLevel:   authLevel,
		DeviceTrust: h.selector.DeviceTrust(req.DeviceID),
	})
}

// AuthAttemptRequest is the request body for POST /auth/attempts.
type AuthAttemptRequest struct {
	UserID   string `json:"userId"`
	DeviceID string `json:"deviceId"`
	Success  bool   `json:"success"`
}

// RecordAuthAttempt handles POST /auth/attempts: report an auth outcome.
func (h *Handler) RecordAuthAttempt(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req AuthAttemptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if req.UserID == "" || req.DeviceID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "userId and deviceId are required",
		})
		return
	}

	h.selector.RecordAttempt(ctx, req.UserID, req.DeviceID, req.Success)

	writeJSON(w, http.StatusOK, map[string]any{
		"deviceTrust": h.selector.DeviceTrust(req.DeviceID),
	})
}

// GetDecision retrieves a decision by ID, cache first.
func (h *Handler) GetDecision(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	decisionID := chi.URLParam(r, "id")

	if decisionID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "decision id is required",
		})
		return
	}

	if h.cache != nil {
		if decision, err := h.cache.GetDecision(ctx, decisionID); err == nil && decision != nil {
			writeJSON(w, http.StatusOK, decision)
			return
		}
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	decision, err := h.repo.GetDecision(ctx, decisionID)
	if err != nil {
		slog.Error("failed to get decision", "id", decisionID, "error", err)
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "decision not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, decision)
}

// ListDecisions retrieves a user's recent decisions.
func (h *Handler) ListDecisions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := r.URL.Query().Get("userId")

	if userID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "userId query parameter is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	since := time.Now().UTC().Add(-24 * time.Hour)
	if s := r.URL.Query().Get("since"); s != "" {
		parsed, err := time.Parse(time.RFC3339, s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "since must be RFC3339",
			})
			return
		}
		since = parsed
	}

	decisions, err := h.repo.ListDecisionsByUser(ctx, userID, since)
	if err != nil {
		slog.Error("failed to list decisions", "user_id", userID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list decisions",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"decisions": decisions,
		"count":     len(decisions),
	})
}

// GetTransaction retrieves a transaction by ID.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	txID := chi.URLParam(r, "id")

	if txID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "transaction id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	tx, err := h.repo.GetTransaction(ctx, txID)
	if err != nil {
		slog.Error("failed to get transaction", "id", txID, "error", err)
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "transaction not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, tx)
}

// GetProfile retrieves the current in-memory profile for a user.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := chi.URLParam(r, "id")

	if userID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "user id is required",
		})
		return
	}

	profile, err := h.profiles.Get(ctx, userID)
	if err != nil {
		slog.Error("profile lookup failed", "user_id", userID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "profile lookup failed",
		})
		return
	}

	writeJSON(w, http.StatusOK, profile)
}

// Stats returns decision statistics.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	stats, err := h.repo.Stats(ctx)
	if err != nil {
		slog.Error("failed to compute stats", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to compute stats",
		})
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// CreateRuleRequest is the request body for creating a custom rule.
type CreateRuleRequest struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Expression  string  `json:"expression"`
	Weight      float64 `json:"weight"`
	Enabled     bool    `json:"enabled"`
}

// CreateRule creates a new custom rule, compiles it into the engine,
// and persists it.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.customEngine == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "custom rule engine not available",
		})
		return
	}

	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, and expression are required",
		})
		return
	}
	if req.Weight <= 0 || req.Weight > 1 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "weight must be between 0 (exclusive) and 1",
		})
		return
	}

	rule := &domain.CustomRule{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		Expression:  req.Expression,
		Weight:      req.Weight,
		Enabled:     req.Enabled,
	}

	// Compile first so a broken expression never reaches the database
	if rule.Enabled {
		if err := h.customEngine.LoadRule(rule); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "invalid CEL expression: " + err.Error(),
			})
			return
		}
	}

	if h.repo != nil {
		if err := h.repo.SaveCustomRule(ctx, rule); err != nil {
			slog.Error("failed to save custom rule", "id", rule.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save rule",
			})
			return
		}
	}

	slog.Info("custom rule created", "id", rule.ID, "name", rule.Name)
	writeJSON(w, http.StatusCreated, map[string]any{
		"rule": rule,
	})
}

// ListRules returns all persisted custom rules.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	ruleList, err := h.repo.ListCustomRules(ctx)
	if err != nil {
		slog.Error("failed to list custom rules", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list rules",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"rules": ruleList,
		"count": len(ruleList),
	})
}

// ReloadRules reloads all custom rules from the database into the engine.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil || h.customEngine == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository or rule engine not available",
		})
		return
	}

	dbRules, err := h.repo.ListCustomRules(ctx)
	if err != nil {
		slog.Error("failed to list custom rules", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load rules from database",
		})
		return
	}

	if err := h.customEngine.ReloadRules(dbRules); err != nil {
		slog.Error("failed to reload custom rules", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	slog.Info("custom rules reloaded", "count", len(dbRules))
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "rules reloaded successfully",
		"count":   len(dbRules),
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
