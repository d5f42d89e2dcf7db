package provider

import (
	"context"
	"math"
	"os"
	"testing"

	"github.com/opensource-health/kestrel/internal/cache"
	"github.com/opensource-health/kestrel/internal/domain"
	"github.com/opensource-health/kestrel/internal/repository"
)

func newTestService(t *testing.T) (*Service, domain.Repository, domain.Cache) {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "kestrel-provider-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	c := cache.NewLRUCache(100)
	t.Cleanup(func() { c.Close() })

	return NewService(repo, c), repo, c
}

func TestService(t *testing.T) {
	svc, _, c := newTestService(t)
	ctx := context.Background()
	tenantID := "tenant-001"

	t.Run("StatsForUnknownProvider", func(t *testing.T) {
		stats, err := svc.Stats(ctx, tenantID, "DOC-NEW")
		if err != nil {
			t.Fatalf("Stats failed: %v", err)
		}
		if stats.ClaimsCount != 0 || stats.HighCostCount != 0 {
			t.Errorf("expected zero counters, got %d/%d", stats.ClaimsCount, stats.HighCostCount)
		}
		if stats.HighCostRate() != 0 {
			t.Errorf("expected zero rate, got %f", stats.HighCostRate())
		}
	})

	t.Run("RecordIncrementsCounters", func(t *testing.T) {
		if err := svc.Record(ctx, tenantID, "DOC001", false); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
		if err := svc.Record(ctx, tenantID, "DOC001", true); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
		if err := svc.Record(ctx, tenantID, "DOC001", true); err != nil {
			t.Fatalf("Record failed: %v", err)
		}

		stats, err := svc.Stats(ctx, tenantID, "DOC001")
		if err != nil {
			t.Fatalf("Stats failed: %v", err)
		}
		if stats.ClaimsCount != 3 {
			t.Errorf("expected 3 claims, got %d", stats.ClaimsCount)
		}
		if stats.HighCostCount != 2 {
			t.Errorf("expected 2 high-cost claims, got %d", stats.HighCostCount)
		}
		if math.Abs(stats.HighCostRate()-2.0/3.0) > 1e-9 {
			t.Errorf("expected rate 2/3, got %f", stats.HighCostRate())
		}
	})

	t.Run("RecordInvalidatesCachedStats", func(t *testing.T) {
		// Prime the cache.
		stats, err := svc.Stats(ctx, tenantID, "DOC002")
		if err != nil {
			t.Fatalf("Stats failed: %v", err)
		}
		if stats.ClaimsCount != 0 {
			t.Fatalf("expected fresh provider, got %d claims", stats.ClaimsCount)
		}

		if err := svc.Record(ctx, tenantID, "DOC002", false); err != nil {
			t.Fatalf("Record failed: %v", err)
		}

		stats, err = svc.Stats(ctx, tenantID, "DOC002")
		if err != nil {
			t.Fatalf("Stats failed: %v", err)
		}
		if stats.ClaimsCount != 1 {
			t.Errorf("expected cache invalidation to expose 1 claim, got %d", stats.ClaimsCount)
		}
	})

	t.Run("StatsServedFromCache", func(t *testing.T) {
		if err := svc.Record(ctx, tenantID, "DOC003", true); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
		// First read fills the cache.
		if _, err := svc.Stats(ctx, tenantID, "DOC003"); err != nil {
			t.Fatalf("Stats failed: %v", err)
		}

		data, err := c.Get(ctx, tenantID, statsKey("DOC003"))
		if err != nil {
			t.Fatalf("cache Get failed: %v", err)
		}
		if data == nil {
			t.Error("expected stats snapshot in cache after read")
		}
	})

	t.Run("RollingCounter", func(t *testing.T) {
		if err := svc.Record(ctx, tenantID, "DOC004", false); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
		if err := svc.Record(ctx, tenantID, "DOC004", false); err != nil {
			t.Fatalf("Record failed: %v", err)
		}

		n, err := c.IncrementCounter(ctx, tenantID, "provider:claims:DOC004", 0)
		if err != nil {
			t.Fatalf("IncrementCounter failed: %v", err)
		}
		if n != 3 {
			t.Errorf("expected rolling counter at 3 after two records, got %d", n)
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		if err := svc.Record(ctx, "tenant-a", "DOC005", true); err != nil {
			t.Fatalf("Record failed: %v", err)
		}

		stats, err := svc.Stats(ctx, "tenant-b", "DOC005")
		if err != nil {
			t.Fatalf("Stats failed: %v", err)
		}
		if stats.ClaimsCount != 0 {
			t.Errorf("tenant-b should not see tenant-a claims, got %d", stats.ClaimsCount)
		}
	})

	t.Run("RequiresTenantAndProvider", func(t *testing.T) {
		if err := svc.Record(ctx, "", "DOC001", false); err == nil {
			t.Error("expected error for empty tenantID")
		}
		if err := svc.Record(ctx, tenantID, "", false); err == nil {
			t.Error("expected error for empty providerID")
		}
		if _, err := svc.Stats(ctx, "", "DOC001"); err == nil {
			t.Error("expected error for empty tenantID")
		}
		if _, err := svc.Stats(ctx, tenantID, ""); err == nil {
			t.Error("expected error for empty providerID")
		}
	})
}

func TestServiceWithoutCache(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "kestrel-provider-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	defer os.Remove(tmpPath)

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	defer repo.Close()

	svc := NewService(repo, nil)
	ctx := context.Background()

	if err := svc.Record(ctx, "tenant-001", "DOC001", true); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	stats, err := svc.Stats(ctx, "tenant-001", "DOC001")
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.ClaimsCount != 1 || stats.HighCostCount != 1 {
		t.Errorf("expected 1/1 counters, got %d/%d", stats.ClaimsCount, stats.HighCostCount)
	}
}
