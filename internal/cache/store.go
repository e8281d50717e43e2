package cache

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/terralens/landcover-cli/internal/imagery"
	"github.com/terralens/landcover-cli/internal/store"
)

// Stored persists composites through the run store so cached imagery
// survives process restarts. All failures degrade to cache misses; a broken
// store never fails an analysis.
type Stored struct {
	store store.Store
	ttl   time.Duration
}

// NewStored creates a persistent cache tier over the store with the given TTL.
func NewStored(st store.Store, ttl time.Duration) *Stored {
	return &Stored{store: st, ttl: ttl}
}

// Get loads and decodes a cached composite. Expired or undecodable entries
// report a miss.
func (c *Stored) Get(ctx context.Context, key string) (*imagery.RasterComposite, bool) {
	data, err := c.store.GetComposite(ctx, key)
	if err != nil {
		zap.L().Warn("cache: persistent get failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if data == nil {
		return nil, false
	}

	var comp imagery.RasterComposite
	if err := json.Unmarshal(data, &comp); err != nil {
		zap.L().Warn("cache: discarding undecodable composite", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return &comp, true
}

// Put encodes and stores a composite under the tier's TTL.
func (c *Stored) Put(ctx context.Context, key string, comp *imagery.RasterComposite) {
	data, err := json.Marshal(comp)
	if err != nil {
		zap.L().Warn("cache: encode composite", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.store.SetComposite(ctx, key, data, c.ttl); err != nil {
		zap.L().Warn("cache: persistent put failed", zap.String("key", key), zap.Error(err))
	}
}
