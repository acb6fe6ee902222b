package pipeline

import (
	"sync"

	"tradepulse/internal/client/analysis"
)

// ResultCache holds analysis outcomes between a worker finishing and the
// ingestion loop turning them into signals. Drain hands the whole batch to
// exactly one consumer.
type ResultCache struct {
	mu      sync.Mutex
	results map[string]analysis.Outcome
}

func NewResultCache() *ResultCache {
	return &ResultCache{results: make(map[string]analysis.Outcome)}
}

func (c *ResultCache) Put(recordID string, out analysis.Outcome) {
	if c == nil || recordID == "" {
		return
	}
	c.mu.Lock()
	c.results[recordID] = out
	c.mu.Unlock()
}

// Drain returns all cached outcomes and clears the cache.
func (c *ResultCache) Drain() map[string]analysis.Outcome {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.results) == 0 {
		return nil
	}
	out := c.results
	c.results = make(map[string]analysis.Outcome)
	return out
}

func (c *ResultCache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.results)
}
