package worker

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-health/kestrel/internal/bus"
	"github.com/opensource-health/kestrel/internal/domain"
	"github.com/opensource-health/kestrel/internal/model"
	"github.com/opensource-health/kestrel/internal/scoring"
)

func strPtr(s string) *string { return &s }
func fPtr(f float64) *float64 { return &f }

// newTestScorer wires a scorer with a single-stump forest: claims billed
// more than 30% above reference score 0.9, everything else 0.2.
func newTestScorer(t *testing.T) *scoring.Scorer {
	t.Helper()

	trees := []model.Tree{
		{Nodes: []model.Node{
			{Feature: 0, Threshold: 1.3, Left: 1, Right: 2},
			{Feature: -1, Prob: 0.2},
			{Feature: -1, Prob: 0.9},
		}},
	}
	importances := make([]float64, domain.NumFeatures)
	importances[0] = 0.35

	forest, err := model.NewForest(trees, importances, 0.5)
	if err != nil {
		t.Fatalf("failed to build forest: %v", err)
	}

	encoders := &domain.Encoders{
		Hospital:  map[string]int{"RS001": 0},
		Doctor:    map[string]int{"DR001": 0},
		ICD10:     map[string]int{"J18.9": 5},
		Gender:    map[string]int{"L": 0, "P": 1},
		CareClass: map[string]int{"1": 0, "2": 1, "3": 2},
	}

	scorer := scoring.NewScorer(nil)
	scorer.SetArtifacts(forest, encoders, "test-model")
	return scorer
}

func claimRequest(claimID string, tarifRS float64) domain.ClaimRequest {
	return domain.ClaimRequest{
		ClaimID:       claimID,
		HospitalCode:  strPtr("RS001"),
		DoctorID:      strPtr("DR001"),
		ICD10Code:     strPtr("J18.9"),
		PatientGender: strPtr("L"),
		CareClass:     strPtr("2"),
		TarifINACBG:   fPtr(5000000),
		TarifRS:       fPtr(tarifRS),
	}
}

func TestWorker(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	scorer := newTestScorer(t)

	worker := NewWorker(eventBus, nil, scorer, nil)

	t.Run("StartAndStop", func(t *testing.T) {
		cfg := Config{
			TenantIDs:   []string{"tenant-001"},
			WorkerCount: 1,
		}

		err := worker.Start(cfg)
		if err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		stats := worker.GetStats()
		if stats.SubscriptionCount != 1 {
			t.Errorf("expected 1 subscription, got %d", stats.SubscriptionCount)
		}

		err = worker.Stop()
		if err != nil {
			t.Errorf("Stop failed: %v", err)
		}

		stats = worker.GetStats()
		if stats.SubscriptionCount != 0 {
			t.Errorf("expected 0 subscriptions after stop, got %d", stats.SubscriptionCount)
		}
	})

	t.Run("ProcessClaim", func(t *testing.T) {
		w := NewWorker(eventBus, nil, scorer, nil)

		cfg := Config{
			TenantIDs: []string{"tenant-test"},
		}
		w.Start(cfg)
		defer w.Stop()

		// Track scored results
		var scoredReceived atomic.Bool
		var scoredPayload []byte

		eventBus.Subscribe(context.Background(), "tenant-test", domain.TopicClaimScored, func(ctx context.Context, msg *domain.Message) error {
			scoredPayload = msg.Payload
			scoredReceived.Store(true)
			return nil
		})

		// Allow subscriptions to be active
		time.Sleep(50 * time.Millisecond)

		// Publish a low-risk claim (billed below the 1.3x ratio)
		claimMsg := ClaimMessage{
			TenantID: "tenant-test",
			TraceID:  "trace-001",
			Request:  claimRequest("claim-001", 4800000),
		}

		payload, _ := json.Marshal(claimMsg)
		err := eventBus.Publish(context.Background(), "tenant-test", domain.TopicClaimIngested, payload)
		if err != nil {
			t.Fatalf("Publish failed: %v", err)
		}

		// Wait for processing
		time.Sleep(100 * time.Millisecond)

		if !scoredReceived.Load() {
			t.Error("expected scored claim to be published")
		}

		if scoredPayload != nil {
			var assessment domain.RiskAssessment
			if err := json.Unmarshal(scoredPayload, &assessment); err != nil {
				t.Fatalf("failed to parse assessment: %v", err)
			}

			if assessment.ClaimID != "claim-001" {
				t.Errorf("expected claimID 'claim-001', got '%s'", assessment.ClaimID)
			}
			if assessment.RiskLevel != domain.RiskLow {
				t.Errorf("expected risk level low, got '%s'", assessment.RiskLevel)
			}
			if assessment.Metadata.TraceID != "trace-001" {
				t.Errorf("expected traceID 'trace-001', got '%s'", assessment.Metadata.TraceID)
			}
		}
	})

	t.Run("GlobalWorkerReceivesAnyTenant", func(t *testing.T) {
		w := NewWorker(eventBus, nil, scorer, nil)

		// No tenant list: a single global worker handles every tenant.
		w.Start(Config{})
		defer w.Stop()

		var scoredReceived atomic.Bool
		eventBus.Subscribe(context.Background(), "tenant-unlisted", domain.TopicClaimScored, func(ctx context.Context, msg *domain.Message) error {
			scoredReceived.Store(true)
			return nil
		})

		time.Sleep(50 * time.Millisecond)

		claimMsg := ClaimMessage{
			TenantID: "tenant-unlisted",
			Request:  claimRequest("claim-global-001", 4800000),
		}
		payload, _ := json.Marshal(claimMsg)
		if err := eventBus.Publish(context.Background(), "tenant-unlisted", domain.TopicClaimIngested, payload); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}

		time.Sleep(100 * time.Millisecond)

		if !scoredReceived.Load() {
			t.Error("expected global worker to score a claim from an unlisted tenant")
		}
	})

	t.Run("AlertPublished", func(t *testing.T) {
		w := NewWorker(eventBus, nil, scorer, nil)

		cfg := Config{
			TenantIDs: []string{"tenant-alert"},
		}
		w.Start(cfg)
		defer w.Stop()

		// Track alerts
		var alertReceived atomic.Bool

		eventBus.Subscribe(context.Background(), "tenant-alert", domain.TopicAlert, func(ctx context.Context, msg *domain.Message) error {
			alertReceived.Store(true)
			return nil
		})

		time.Sleep(50 * time.Millisecond)

		// Billed far above reference: the stump forest scores 0.9
		claimMsg := ClaimMessage{
			TenantID: "tenant-alert",
			Request:  claimRequest("claim-alert", 9500000),
		}

		payload, _ := json.Marshal(claimMsg)
		eventBus.Publish(context.Background(), "tenant-alert", domain.TopicClaimIngested, payload)

		time.Sleep(100 * time.Millisecond)

		if !alertReceived.Load() {
			t.Error("expected alert to be published for high-risk claim")
		}
	})

	t.Run("MultiTenant", func(t *testing.T) {
		w := NewWorker(eventBus, nil, scorer, nil)

		cfg := Config{
			TenantIDs: []string{"tenant-a", "tenant-b"},
		}
		w.Start(cfg)
		defer w.Stop()

		stats := w.GetStats()
		if stats.SubscriptionCount != 2 {
			t.Errorf("expected 2 subscriptions for 2 tenants, got %d", stats.SubscriptionCount)
		}
	})
}

func TestClaimMessageParsing(t *testing.T) {
	msg := ClaimMessage{
		TenantID: "tenant-001",
		TraceID:  "trace-456",
		Request:  claimRequest("claim-123", 6100000),
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var parsed ClaimMessage
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if parsed.Request.ClaimID != "claim-123" {
		t.Errorf("expected ClaimID 'claim-123', got '%s'", parsed.Request.ClaimID)
	}
	if parsed.Request.TarifRS == nil || *parsed.Request.TarifRS != 6100000 {
		t.Errorf("tarif_rs not round-tripped: %v", parsed.Request.TarifRS)
	}
	if parsed.TraceID != msg.TraceID {
		t.Errorf("expected TraceID '%s', got '%s'", msg.TraceID, parsed.TraceID)
	}
}
