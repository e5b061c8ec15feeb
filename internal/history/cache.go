package history

import (
	"context"
	"encoding/json"
	"log"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"claimsaga/internal/domain"
)

// Cached memoizes successful lookups. Reports are stored encoded so every
// caller decodes its own copy and no two claims share history records.
type Cached struct {
	Source Lookuper
	cache  *gocache.Cache
}

func NewCached(source Lookuper, ttl, cleanupInterval time.Duration) *Cached {
	return &Cached{
		Source: source,
		cache:  gocache.New(ttl, cleanupInterval),
	}
}

func (c *Cached) Lookup(ctx context.Context, vin string) (domain.VehicleHistory, error) {
	if raw, ok := c.cache.Get(vin); ok {
		var h domain.VehicleHistory
		if err := json.Unmarshal(raw.([]byte), &h); err == nil {
			return h, nil
		}
		c.cache.Delete(vin)
	}
	h, err := c.Source.Lookup(ctx, vin)
	if err != nil {
		return domain.VehicleHistory{}, err
	}
	data, err := json.Marshal(h)
	if err != nil {
		log.Printf("history: encode %s for cache: %v", vin, err)
		return h, nil
	}
	c.cache.SetDefault(vin, data)
	return h, nil
}

// Len reports the number of cached reports.
func (c *Cached) Len() int {
	return c.cache.ItemCount()
}
