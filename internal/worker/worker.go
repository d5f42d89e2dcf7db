// Package worker provides async claim processing for the Pro tier.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-health/kestrel/internal/domain"
	"github.com/opensource-health/kestrel/internal/feature"
	"github.com/opensource-health/kestrel/internal/provider"
	"github.com/opensource-health/kestrel/internal/scoring"
)

// Worker scores claims asynchronously from the EventBus.
type Worker struct {
	bus       domain.EventBus
	repo      domain.Repository
	scorer    *scoring.Scorer
	providers *provider.Service

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to process (empty = all via wildcard if supported)
	TenantIDs []string

	// WorkerCount is the number of concurrent workers per tenant
	WorkerCount int
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, repo domain.Repository, scorer *scoring.Scorer, providers *provider.Service) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:       bus,
		repo:      repo,
		scorer:    scorer,
		providers: providers,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start begins processing messages for the given tenants.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.TenantIDs) == 0 {
		return w.startGlobalWorker()
	}

	for _, tenantID := range cfg.TenantIDs {
		if err := w.startTenantWorker(tenantID); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"tenant_count", len(cfg.TenantIDs),
	)

	return nil
}

// startGlobalWorker starts a single worker that receives claims from
// every tenant, used when no tenant list is configured.
func (w *Worker) startGlobalWorker() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.GlobalTenantID, domain.TopicClaimIngested, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("global worker started")
	return nil
}

// startTenantWorker starts workers for a specific tenant.
func (w *Worker) startTenantWorker(tenantID string) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicClaimIngested, func(ctx context.Context, msg *domain.Message) error {
		return w.processClaim(ctx, tenantID, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("tenant worker started",
		"tenant_id", tenantID,
		"topic", domain.TopicClaimIngested,
	)

	return nil
}

// handleMessage handles messages from global subscription.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	return w.processClaim(ctx, msg.TenantID, msg)
}

// ClaimMessage is the message payload for async claim scoring.
type ClaimMessage struct {
	TenantID string              `json:"tenantId,omitempty"`
	TraceID  string              `json:"traceId,omitempty"`
	Request  domain.ClaimRequest `json:"request"`
}

// processClaim runs a claim through the scoring pipeline.
func (w *Worker) processClaim(ctx context.Context, tenantID string, msg *domain.Message) error {
	start := time.Now()

	var claimMsg ClaimMessage
	if err := json.Unmarshal(msg.Payload, &claimMsg); err != nil {
		slog.Error("failed to parse claim message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	// Use message tenant if provided
	if claimMsg.TenantID != "" {
		tenantID = claimMsg.TenantID
	}

	traceID := claimMsg.TraceID
	if traceID == "" {
		traceID = msg.ID
	}

	slog.Debug("processing claim",
		"claim_id", claimMsg.Request.ClaimID,
		"tenant_id", tenantID,
		"trace_id", traceID,
	)

	claim, assessment, err := w.scorer.Score(ctx, tenantID, &claimMsg.Request)
	if err != nil {
		slog.Error("claim scoring failed",
			"claim_id", claimMsg.Request.ClaimID,
			"tenant_id", tenantID,
			"error", err,
		)
		return err
	}

	assessment.Metadata.TraceID = traceID
	assessment.Metadata.TotalMs = time.Since(start).Milliseconds()

	if w.repo != nil {
		if err := w.repo.SaveClaim(ctx, tenantID, claim); err != nil {
			slog.Error("failed to save claim",
				"claim_id", claim.ID,
				"error", err,
			)
		}
		if err := w.repo.SaveAssessment(ctx, tenantID, assessment); err != nil {
			slog.Error("failed to save assessment",
				"claim_id", claim.ID,
				"error", err,
			)
		}
	}

	// Observational counters only; never read back into this score.
	if w.providers != nil {
		derived := feature.Derive(claim)
		if err := w.providers.Record(ctx, tenantID, claim.DoctorID, derived.IsHighCost); err != nil {
			slog.Warn("failed to record provider claim",
				"doctor_id", claim.DoctorID,
				"error", err,
			)
		}
	}

	resultPayload, _ := json.Marshal(assessment)
	if err := w.bus.Publish(ctx, tenantID, domain.TopicClaimScored, resultPayload); err != nil {
		slog.Error("failed to publish scored claim",
			"claim_id", claim.ID,
			"error", err,
		)
	}

	if assessment.RiskLevel == domain.RiskHigh || assessment.RiskLevel == domain.RiskCritical {
		if err := w.bus.Publish(ctx, tenantID, domain.TopicAlert, resultPayload); err != nil {
			slog.Error("failed to publish alert",
				"claim_id", claim.ID,
				"error", err,
			)
		}
	}

	slog.Info("claim processed",
		"claim_id", claim.ID,
		"tenant_id", tenantID,
		"risk_level", assessment.RiskLevel,
		"risk_score", assessment.RiskScore,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	// Unsubscribe all
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
