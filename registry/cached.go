package registry

import (
	"context"
	"errors"
	"time"

	"github.com/nuxeo/docroute/internal/cache"
	"github.com/nuxeo/docroute/routing"
	"go.uber.org/zap"
)

// Cached is a read-through Redis decorator over a Registry. Definitions
// are cached as their serialized spec and rebuilt (including validation)
// on every hit, so a poisoned cache entry can never hand out an invalid
// graph. Cache failures degrade to the source registry.
type Cached struct {
	source routing.Registry
	cache  *cache.Manager
	ttl    time.Duration
	logger *zap.Logger
}

// NewCached wraps source with a Redis cache. A zero ttl falls back to
// the cache manager's default.
func NewCached(source routing.Registry, manager *cache.Manager, ttl time.Duration, logger *zap.Logger) *Cached {
	return &Cached{
		source: source,
		cache:  manager,
		ttl:    ttl,
		logger: logger.With(zap.String("component", "cached_registry")),
	}
}

func (c *Cached) key(id string) string {
	return c.cache.Key("definition", id)
}

// GetDefinition implements routing.Registry.
func (c *Cached) GetDefinition(ctx context.Context, id string) (*routing.Definition, error) {
	var spec routing.DefinitionSpec
	err := c.cache.GetJSON(ctx, c.key(id), &spec)
	if err == nil {
		def, derr := spec.Definition()
		if derr == nil {
			return def, nil
		}
		c.logger.Warn("cached definition is invalid, falling back to source",
			zap.String("definition", id), zap.Error(derr))
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		c.logger.Warn("definition cache read failed",
			zap.String("definition", id), zap.Error(err))
	}

	def, err := c.source.GetDefinition(ctx, id)
	if err != nil {
		return nil, err
	}

	// Best effort backfill; a write failure only costs the next reader a
	// source round trip.
	if cerr := c.cache.SetJSON(ctx, c.key(id), def.Spec(), c.ttl); cerr != nil {
		c.logger.Warn("definition cache write failed",
			zap.String("definition", id), zap.Error(cerr))
	}
	return def, nil
}

// Invalidate drops the cached entry for id, forcing the next read back
// to the source. Called after publishing a new version.
func (c *Cached) Invalidate(ctx context.Context, id string) error {
	return c.cache.Delete(ctx, c.key(id))
}
