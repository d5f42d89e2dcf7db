package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/opensource-health/kestrel/internal/domain"
	"github.com/opensource-health/kestrel/internal/feature"
	"github.com/opensource-health/kestrel/internal/provider"
	"github.com/opensource-health/kestrel/internal/risk"
	"github.com/opensource-health/kestrel/internal/screen"
	"github.com/opensource-health/kestrel/internal/scoring"
	"github.com/opensource-health/kestrel/internal/worker"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	scorer    *scoring.Scorer
	screener  *screen.Engine
	providers *provider.Service
	version   string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, scorer *scoring.Scorer, screener *screen.Engine, providers *provider.Service, version string) *Handler {
	return &Handler{
		repo:      repo,
		cache:     cache,
		bus:       bus,
		scorer:    scorer,
		screener:  screener,
		providers: providers,
		version:   version,
	}
}

// ScoreResponse is the response for POST /score.
type ScoreResponse struct {
	ClaimID      string `json:"claim_id"`
	AssessmentID string `json:"assessment_id"`

	IsFraud          bool             `json:"is_fraud"`
	FraudProbability float64          `json:"fraud_probability"`
	RiskScore        int              `json:"risk_score"`
	RiskLevel        domain.RiskLevel `json:"risk_level"`

	TopRiskFactors []domain.RiskFactor   `json:"top_risk_factors"`
	Recommendation domain.Recommendation `json:"recommendation"`
	ScreenFlags    []domain.ScreenFlag   `json:"screen_flags,omitempty"`

	Metadata domain.AssessmentMetadata `json:"metadata"`
}

// Score handles POST /score requests: synchronous claim scoring.
func (h *Handler) Score(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	traceID := GetTraceID(ctx)

	var req domain.ClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	ingestMs := time.Since(start).Milliseconds()

	claim, assessment, err := h.scorer.Score(ctx, tenantID, &req)
	if err != nil {
		h.writeScoreError(w, err)
		return
	}

	assessment.Metadata.TraceID = traceID
	assessment.Metadata.IngestMs = ingestMs
	assessment.Metadata.TotalMs = time.Since(start).Milliseconds()

	if h.repo != nil {
		if err := h.repo.SaveClaim(ctx, tenantID, claim); err != nil {
			slog.Error("failed to save claim", "claim_id", claim.ID, "error", err)
		}
		if err := h.repo.SaveAssessment(ctx, tenantID, assessment); err != nil {
			slog.Error("failed to save assessment", "claim_id", claim.ID, "error", err)
		}
	}

	if h.cache != nil {
		if err := h.cache.SetAssessment(ctx, tenantID, claim.ID, assessment, time.Hour); err != nil {
			slog.Warn("failed to cache assessment", "claim_id", claim.ID, "error", err)
		}
	}

	if h.providers != nil {
		// Observational counters only; never read back into this score.
		derived := feature.Derive(claim)
		if err := h.providers.Record(ctx, tenantID, claim.DoctorID, derived.IsHighCost); err != nil {
			slog.Warn("failed to record provider claim", "doctor_id", claim.DoctorID, "error", err)
		}
	}

	if h.bus != nil {
		payload, _ := json.Marshal(assessment)
		if err := h.bus.Publish(ctx, tenantID, domain.TopicClaimScored, payload); err != nil {
			slog.Warn("failed to publish scored claim", "claim_id", claim.ID, "error", err)
		}
	}

	resp := ScoreResponse{
		ClaimID:          claim.ID,
		AssessmentID:     assessment.ID,
		IsFraud:          assessment.IsFraud,
		FraudProbability: assessment.FraudProbability,
		RiskScore:        assessment.RiskScore,
		RiskLevel:        assessment.RiskLevel,
		TopRiskFactors:   risk.TopFactors(assessment.TopRiskFactors, factorLimit(r)),
		Recommendation:   assessment.Recommendation,
		ScreenFlags:      assessment.ScreenFlags,
		Metadata:         assessment.Metadata,
	}

	writeJSON(w, http.StatusOK, resp)
}

// factorLimit parses the optional ?factors=N query parameter.
func factorLimit(r *http.Request) int {
	raw := r.URL.Query().Get("factors")
	if raw == "" {
		return risk.DefaultTopFactors
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return risk.DefaultTopFactors
	}
	return n
}

// writeScoreError maps scoring failures to HTTP responses.
func (h *Handler) writeScoreError(w http.ResponseWriter, err error) {
	var missing *domain.MissingFieldError
	if errors.As(err, &missing) {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": missing.Error(),
		})
		return
	}

	if errors.Is(err, domain.ErrModelUnavailable) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "model artifact not loaded",
		})
		return
	}

	slog.Error("claim scoring failed", "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{
		"error": "claim scoring failed",
	})
}

// SubmitClaim handles POST /claims: enqueue a claim for async scoring.
func (h *Handler) SubmitClaim(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	traceID := GetTraceID(ctx)

	if h.bus == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "event bus not available",
		})
		return
	}

	var req domain.ClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	// Reject incomplete requests before they reach the worker
	if field := req.MissingField(); field != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": (&domain.MissingFieldError{Field: field}).Error(),
		})
		return
	}

	if req.ClaimID == "" {
		req.ClaimID = uuid.New().String()
	}

	msg := worker.ClaimMessage{
		TenantID: tenantID,
		TraceID:  traceID,
		Request:  req,
	}
	payload, _ := json.Marshal(msg)

	if err := h.bus.Publish(ctx, tenantID, domain.TopicClaimIngested, payload); err != nil {
		slog.Error("failed to enqueue claim", "claim_id", req.ClaimID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to enqueue claim",
		})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"claim_id": req.ClaimID,
		"status":   "queued",
		"trace_id": traceID,
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":       status,
		"version":      h.version,
		"model_loaded": h.scorer.Ready(),
	})
}

// Ready returns whether the server is ready to score claims.
// Readiness requires a loaded model artifact.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if !h.scorer.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"ready": "false",
			"error": "model artifact not loaded",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// GetModel returns information about the loaded model artifact.
func (h *Handler) GetModel(w http.ResponseWriter, r *http.Request) {
	if !h.scorer.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "model artifact not loaded",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"model_version":       h.scorer.ModelVersion(),
		"engine_version":      scoring.EngineVersion,
		"feature_names":       domain.FeatureNames,
		"feature_importances": h.scorer.FeatureImportances(),
	})
}

// GetAssessment retrieves an assessment by ID.
func (h *Handler) GetAssessment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	assessmentID := chi.URLParam(r, "id")

	if assessmentID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "assessment id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	assessment, err := h.repo.GetAssessment(ctx, tenantID, assessmentID)
	if err != nil {
		slog.Error("failed to get assessment", "id", assessmentID, "error", err)
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "assessment not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, assessment)
}

// GetClaim retrieves a claim by ID.
func (h *Handler) GetClaim(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	claimID := chi.URLParam(r, "id")

	if claimID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "claim id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	claim, err := h.repo.GetClaim(ctx, tenantID, claimID)
	if err != nil {
		slog.Error("failed to get claim", "id", claimID, "error", err)
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "claim not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, claim)
}

// GetClaimAssessment returns the assessment for a claim by the claim's ID.
// This is the lookup async clients use after a 202 from POST /claims.
func (h *Handler) GetClaimAssessment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	claimID := chi.URLParam(r, "id")

	if claimID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "claim id is required",
		})
		return
	}

	if h.cache != nil {
		if cached, err := h.cache.GetAssessment(ctx, tenantID, claimID); err == nil && cached != nil {
			writeJSON(w, http.StatusOK, cached)
			return
		}
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	assessment, err := h.repo.GetAssessmentByClaim(ctx, tenantID, claimID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "assessment not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, assessment)
}

// GetProviderStats returns the history counters for a provider.
func (h *Handler) GetProviderStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	providerID := chi.URLParam(r, "id")

	if providerID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "provider id is required",
		})
		return
	}

	if h.providers == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "provider service not available",
		})
		return
	}

	stats, err := h.providers.Stats(ctx, tenantID, providerID)
	if err != nil {
		slog.Error("failed to get provider stats", "provider_id", providerID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get provider stats",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"provider_id":     stats.ProviderID,
		"claims_count":    stats.ClaimsCount,
		"high_cost_count": stats.HighCostCount,
		"high_cost_rate":  stats.HighCostRate(),
		"updated_at":      stats.UpdatedAt,
	})
}

// ListRules returns all loaded screening rules from the engine.
// Rules are loaded from the database at startup and can be reloaded via POST /rules/reload.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	if h.screener == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "screening engine not available",
		})
		return
	}

	loadedRules := h.screener.GetLoadedRules()

	writeJSON(w, http.StatusOK, map[string]any{
		"rules":  loadedRules,
		"count":  len(loadedRules),
		"source": "database",
	})
}

// GetRule retrieves a screening rule by ID from the loaded engine rules.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")

	if ruleID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "rule id is required",
		})
		return
	}

	if h.screener == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "screening engine not available",
		})
		return
	}

	for _, rule := range h.screener.GetLoadedRules() {
		if rule.ID == ruleID {
			writeJSON(w, http.StatusOK, rule)
			return
		}
	}

	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "rule not found",
	})
}

// CreateRuleRequest is the request body for creating a screening rule.
type CreateRuleRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Expression  string `json:"expression"`
	Severity    string `json:"severity,omitempty"`
	Reason      string `json:"reason,omitempty"`
	Enabled     bool   `json:"enabled"`
}

// CreateRule creates a new screening rule and saves it to the database.
// Rules are saved globally (tenant_id = "*") so they apply to all tenants.
// After saving, call POST /rules/reload to hot-reload into the engine.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.screener == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "screening engine not available",
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

	// Validate
	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, and expression are required",
		})
		return
	}

	severity := req.Severity
	if severity == "" {
		severity = domain.SeverityWarning
	}

	rule := &domain.ScreenRule{
		ID:          req.ID,
		TenantID:    domain.GlobalTenantID,
		Name:        req.Name,
		Description: req.Description,
		Version:     "1.0.0",
		Expression:  req.Expression,
		Severity:    severity,
		Reason:      req.Reason,
		Enabled:     req.Enabled,
	}

	// Validate CEL expression by attempting to load
	if err := h.screener.LoadRule(rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid CEL expression: " + err.Error(),
		})
		return
	}

	// Persist to repository (global tenant ID)
	if h.repo != nil {
		if err := h.repo.SaveScreenRule(ctx, domain.GlobalTenantID, rule); err != nil {
			slog.Error("failed to save screen rule", "id", rule.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save rule",
			})
			return
		}
	}

	slog.Info("screen rule created", "id", rule.ID, "name", rule.Name)
	writeJSON(w, http.StatusCreated, map[string]any{
		"rule":    rule,
		"message": "Rule created. Call POST /rules/reload to apply changes.",
	})
}

// DeleteRule disables a screening rule and auto-reloads the engine.
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ruleID := chi.URLParam(r, "id")

	if ruleID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "rule id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	if err := h.repo.DeleteScreenRule(ctx, domain.GlobalTenantID, ruleID); err != nil {
		slog.Error("failed to delete screen rule", "id", ruleID, "error", err)
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "rule not found",
		})
		return
	}

	// Auto-reload the engine after delete
	if h.screener != nil {
		dbRules, err := h.repo.ListScreenRules(ctx, domain.GlobalTenantID)
		if err != nil {
			slog.Error("failed to reload rules after delete", "error", err)
		} else if err := h.screener.ReloadRules(dbRules); err != nil {
			slog.Error("failed to reload rules into engine", "error", err)
		}
	}

	slog.Info("screen rule deleted", "id", ruleID)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Rule deleted and engine reloaded.",
	})
}

// ReloadRules reloads all screening rules from the database into the engine.
// This enables hot-reloading without server restart.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	if h.screener == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "screening engine not available",
		})
		return
	}

	dbRules, err := h.repo.ListScreenRules(ctx, domain.GlobalTenantID)
	if err != nil {
		slog.Error("failed to list rules from database", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load rules from database",
		})
		return
	}

	if err := h.screener.ReloadRules(dbRules); err != nil {
		slog.Error("failed to reload rules into engine", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	slog.Info("screen rules reloaded from database", "count", len(dbRules))
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "rules reloaded successfully",
		"count":   len(dbRules),
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
