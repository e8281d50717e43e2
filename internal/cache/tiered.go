package cache

import (
	"context"

	"github.com/terralens/landcover-cli/internal/imagery"
)

// Tiered checks the in-process tier before the persistent one and promotes
// persistent hits into memory. The persistent tier may be nil.
type Tiered struct {
	memory     *Memory
	persistent *Stored
}

// NewTiered stacks a memory tier over an optional persistent tier.
func NewTiered(memory *Memory, persistent *Stored) *Tiered {
	return &Tiered{memory: memory, persistent: persistent}
}

func (c *Tiered) Get(ctx context.Context, key string) (*imagery.RasterComposite, bool) {
	if comp, ok := c.memory.Get(ctx, key); ok {
		return comp, true
	}
	if c.persistent == nil {
		return nil, false
	}
	comp, ok := c.persistent.Get(ctx, key)
	if ok {
		c.memory.Put(ctx, key, comp)
	}
	return comp, ok
}

func (c *Tiered) Put(ctx context.Context, key string, comp *imagery.RasterComposite) {
	c.memory.Put(ctx, key, comp)
	if c.persistent != nil {
		c.persistent.Put(ctx, key, comp)
	}
}

// Stats reports the memory tier's counters; the persistent tier is observed
// through the store's composite stats.
func (c *Tiered) Stats() Stats {
	return c.memory.Stats()
}
