package risk

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/pestalert/pestalert-go/internal/model"
)

// Cached memoizes another provider per location. Coordinates are rounded to
// two decimals (about 1 km), which is finer than forecast resolution.
type Cached struct {
	next  Provider
	cache *cache.Cache
}

// NewCached wraps next with a cache of the given TTL.
func NewCached(next Provider, ttl time.Duration) *Cached {
	return &Cached{
		next:  next,
		cache: cache.New(ttl, ttl*2),
	}
}

// GetRisk returns a cached estimate or asks the wrapped provider. Errors are
// not cached.
func (c *Cached) GetRisk(ctx context.Context, lat, lon float64) (model.EnvironmentalRisk, error) {
	key := cacheKey(lat, lon)
	if v, ok := c.cache.Get(key); ok {
		return clone(v.(model.EnvironmentalRisk)), nil
	}

	r, err := c.next.GetRisk(ctx, lat, lon)
	if err != nil {
		return model.EnvironmentalRisk{}, err
	}
	c.cache.SetDefault(key, clone(r))
	return r, nil
}

// Name reports the wrapped provider name.
func (c *Cached) Name() string { return c.next.Name() }

func cacheKey(lat, lon float64) string {
	return fmt.Sprintf("%.2f,%.2f", lat, lon)
}

func clone(r model.EnvironmentalRisk) model.EnvironmentalRisk {
	r.Recommendations = slices.Clone(r.Recommendations)
	return r
}
