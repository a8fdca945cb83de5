// Package catalog caches product reference data used by batch validation.
// Lookups go local LRU, then the shared store, then the backing repository,
// and unknown products are cached negatively so repeated misses stay cheap.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/target/jobstream/internal/core"
	"github.com/target/jobstream/internal/domain/model"
	apperrors "github.com/target/jobstream/internal/errors"
	"github.com/target/jobstream/internal/observability/metrics"
	"github.com/target/jobstream/internal/observability/statsd"
)

// SharedStore is the second cache tier. *data.RedisStore satisfies it.
type SharedStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithExpiry(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) (int64, error)
}

// TTL holds per-tier lifetimes.
type TTL struct {
	Local  time.Duration
	Shared time.Duration
}

// DefaultTTL returns the lifetimes used when none are configured.
func DefaultTTL() TTL {
	return TTL{Local: 5 * time.Minute, Shared: time.Hour}
}

// Options groups dependencies for Cache.
type Options struct {
	Repo          core.ItemCatalog // Required: source of truth
	Shared        SharedStore      // Optional: skipped when nil
	LocalCapacity int              // Optional: entries kept in process, defaults to 1024
	TTL           TTL
	Clock         func() time.Time // Optional: clock of the local tier
	Logger        *slog.Logger
	Metrics       statsd.Sink
}

// entry is what both tiers hold. Found=false marks a negative result.
type entry struct {
	Found bool              `json:"found"`
	Item  model.CatalogItem `json:"item"`
}

// Cache is a tiered core.ItemCatalog.
type Cache struct {
	repo    core.ItemCatalog
	local   *LRU[entry]
	shared  SharedStore
	ttl     TTL
	logger  *slog.Logger
	metrics statsd.Sink
}

var _ core.ItemCatalog = (*Cache)(nil)

// New constructs a Cache.
func New(opts Options) (*Cache, error) {
	if opts.Repo == nil {
		return nil, errors.New("catalog repository is required")
	}
	defaults := DefaultTTL()
	if opts.TTL.Local <= 0 {
		opts.TTL.Local = defaults.Local
	}
	if opts.TTL.Shared <= 0 {
		opts.TTL.Shared = defaults.Shared
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Cache{
		repo:    opts.Repo,
		local:   NewLRU[entry](LRUConfig{Capacity: opts.LocalCapacity, Now: opts.Clock}),
		shared:  opts.Shared,
		ttl:     opts.TTL,
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}, nil
}

func cacheKey(productID int64) string {
	return "catalog:item:" + strconv.FormatInt(productID, 10)
}

// Lookup returns the catalog entry for productID. Unknown products yield the
// repository's NotFound error whether or not the miss came from a cache tier.
func (c *Cache) Lookup(ctx context.Context, productID int64) (model.CatalogItem, error) {
	key := cacheKey(productID)

	if e, ok := c.fromLocal(key); ok {
		return e.result(productID)
	}
	if e, ok := c.fromShared(ctx, key); ok {
		return e.result(productID)
	}

	item, err := c.repo.Lookup(ctx, productID)
	switch {
	case apperrors.IsNotFound(err):
		c.emit(metrics.CacheTierRepo, metrics.CacheOpMiss)
		c.store(ctx, key, entry{})
		return model.CatalogItem{}, err
	case err != nil:
		return model.CatalogItem{}, err
	}
	c.emit(metrics.CacheTierRepo, metrics.CacheOpHit)
	c.store(ctx, key, entry{Found: true, Item: item})
	return item, nil
}

// Invalidate drops productID from both tiers.
func (c *Cache) Invalidate(ctx context.Context, productID int64) error {
	key := cacheKey(productID)
	c.local.Delete(key)
	if c.shared == nil {
		return nil
	}
	if _, err := c.shared.Delete(ctx, key); err != nil {
		return fmt.Errorf("invalidate %s: %w", key, err)
	}
	return nil
}

func (e entry) result(productID int64) (model.CatalogItem, error) {
	if !e.Found {
		return model.CatalogItem{}, apperrors.NotFoundf("Product ID %d not found.", productID)
	}
	return e.Item, nil
}

func (c *Cache) fromLocal(key string) (entry, bool) {
	e, ok := c.local.Get(key)
	if !ok {
		c.emit(metrics.CacheTierLocal, metrics.CacheOpMiss)
		return entry{}, false
	}
	c.emit(metrics.CacheTierLocal, metrics.CacheOpHit)
	return e, true
}

func (c *Cache) fromShared(ctx context.Context, key string) (entry, bool) {
	if c.shared == nil {
		return entry{}, false
	}
	b, err := c.shared.Get(ctx, key)
	if err != nil {
		c.logger.WarnContext(ctx, "catalog shared cache read failed", "key", key, "error", err)
	}
	if err != nil || b == nil {
		c.emit(metrics.CacheTierShared, metrics.CacheOpMiss)
		return entry{}, false
	}

	var e entry
	if err := json.Unmarshal(b, &e); err != nil {
		// Drop the corrupted entry so the next lookup repopulates it.
		if _, delErr := c.shared.Delete(ctx, key); delErr != nil {
			c.logger.WarnContext(ctx, "catalog shared cache evict failed", "key", key, "error", delErr)
		}
		c.emit(metrics.CacheTierShared, metrics.CacheOpMiss)
		return entry{}, false
	}
	c.emit(metrics.CacheTierShared, metrics.CacheOpHit)
	c.local.Set(key, e, c.ttl.Local)
	return e, true
}

func (c *Cache) store(ctx context.Context, key string, e entry) {
	c.local.Set(key, e, c.ttl.Local)
	if c.shared == nil {
		return
	}
	b, err := json.Marshal(e)
	if err == nil {
		err = c.shared.SetWithExpiry(ctx, key, b, c.ttl.Shared)
	}
	if err != nil {
		c.logger.WarnContext(ctx, "catalog shared cache write failed", "key", key, "error", err)
	}
}

func (c *Cache) emit(tier, op string) {
	metrics.EmitCacheEvent(c.metrics, "catalog", tier, op)
}

// LocalStats reports the counters of the in-process tier.
func (c *Cache) LocalStats() LRUStats {
	return c.local.Stats()
}
