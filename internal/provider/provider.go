// Package provider maintains per-provider claim history statistics.
// The scoring core never reads these directly: callers that want history
// features in the vector pass the counters in the request. The service
// keeps the counters current and serves them for review tooling.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/opensource-health/kestrel/internal/domain"
)

// statsCacheTTL bounds staleness of cached provider stats.
const statsCacheTTL = 5 * time.Minute

// Service records and serves provider claim history.
type Service struct {
	repo  domain.Repository
	cache domain.Cache
}

// NewService creates a new provider statistics service.
func NewService(repo domain.Repository, cache domain.Cache) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
	}
}

// Record updates the counters for a provider after a scored claim.
// highCost marks claims whose tariff ratio exceeded the high-cost flag
// threshold. Also bumps the rolling claim counter in the cache when one
// is configured.
func (s *Service) Record(ctx context.Context, tenantID, providerID string, highCost bool) error {
	if tenantID == "" || providerID == "" {
		return fmt.Errorf("tenantID and providerID are required")
	}

	if s.repo != nil {
		if err := s.repo.RecordProviderClaim(ctx, tenantID, providerID, highCost); err != nil {
			return fmt.Errorf("failed to record provider claim: %w", err)
		}
	}

	if s.cache != nil {
		// Rolling 24h counter, best effort.
		_, _ = s.cache.IncrementCounter(ctx, tenantID, "provider:claims:"+providerID, 24*time.Hour)
		// Drop the cached snapshot so the next read sees fresh counters.
		_ = s.cache.Delete(ctx, tenantID, statsKey(providerID))
	}

	return nil
}

// Stats returns the history counters for a provider, cache-aside.
// A provider with no recorded claims yields zero counters, not an error.
func (s *Service) Stats(ctx context.Context, tenantID, providerID string) (*domain.ProviderStats, error) {
	if tenantID == "" || providerID == "" {
		return nil, fmt.Errorf("tenantID and providerID are required")
	}

	if s.cache != nil {
		if cached, err := s.statsFromCache(ctx, tenantID, providerID); err == nil && cached != nil {
			return cached, nil
		}
	}

	if s.repo == nil {
		return nil, fmt.Errorf("no data source available")
	}

	stats, err := s.repo.GetProviderStats(ctx, tenantID, providerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get provider stats: %w", err)
	}

	if s.cache != nil {
		s.cacheStats(ctx, tenantID, stats)
	}

	return stats, nil
}

func statsKey(providerID string) string {
	return "provider:stats:" + providerID
}

func (s *Service) statsFromCache(ctx context.Context, tenantID, providerID string) (*domain.ProviderStats, error) {
	data, err := s.cache.Get(ctx, tenantID, statsKey(providerID))
	if err != nil || data == nil {
		return nil, err
	}
	var stats domain.ProviderStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (s *Service) cacheStats(ctx context.Context, tenantID string, stats *domain.ProviderStats) {
	data, err := json.Marshal(stats)
	if err != nil {
		return
	}
	_ = s.cache.Set(ctx, tenantID, statsKey(stats.ProviderID), data, statsCacheTTL)
}
