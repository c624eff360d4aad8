package api

import (
	"context"
	"time"

	"github.com/zjrosen/refcheck/internal/cachemanager"
	"github.com/zjrosen/refcheck/internal/checks/domain"
)

// DetailFetcher loads full check records.
type DetailFetcher interface {
	GetCheckDetail(ctx context.Context, id domain.CheckID) (*domain.Record, error)
}

// CachedDetails serves detail fetches through a read-through cache. Only
// records in a terminal status are cached because running ones still change.
type CachedDetails struct {
	rt *cachemanager.ReadThroughCache[domain.CheckID, *domain.Record]
}

// NewCachedDetails wraps fetcher with an in-memory cache holding entries for
// ttl.
func NewCachedDetails(fetcher DetailFetcher, ttl time.Duration) *CachedDetails {
	cache := cachemanager.NewInMemoryCacheManager[domain.CheckID, *domain.Record]("check-detail", ttl, cachemanager.DefaultCleanupInterval)
	return &CachedDetails{
		rt: cachemanager.NewReadThroughCache[domain.CheckID, *domain.Record](cache, fetcher.GetCheckDetail, func(rec *domain.Record) bool {
			return rec != nil && rec.Status.IsTerminal()
		}, ttl),
	}
}

// GetCheckDetail returns a copy of the (possibly cached) record.
func (c *CachedDetails) GetCheckDetail(ctx context.Context, id domain.CheckID) (*domain.Record, error) {
	rec, err := c.rt.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return rec.Clone(), nil
}

// Invalidate forgets a cached record, e.g. after rename or delete.
func (c *CachedDetails) Invalidate(ctx context.Context, id domain.CheckID) {
	c.rt.Invalidate(ctx, id)
}
