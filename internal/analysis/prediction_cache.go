package analysis

import (
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Runbook-Agent/change-intelligence/internal/models"
)

const (
	defaultPredictionCacheSize = 256
	predictionCacheTTL         = 60 * time.Second
)

type cachedPrediction struct {
	prediction *models.BlastRadiusPrediction
	generation uint64
	storedAt   time.Time
}

// predictionCache memoizes blast-radius predictions. Entries expire after a
// short TTL and are invalidated whenever the graph generation moves, so a
// topology change is never served from stale cache.
type predictionCache struct {
	mu  sync.Mutex
	lru *lru.Cache[string, cachedPrediction]
	now func() time.Time
}

func newPredictionCache(size int) *predictionCache {
	cache, err := lru.New[string, cachedPrediction](size)
	if err != nil {
		// lru.New only fails on a non-positive size
		panic(err)
	}
	return &predictionCache{
		lru: cache,
		now: time.Now,
	}
}

func (c *predictionCache) get(key string, generation uint64) (*models.BlastRadiusPrediction, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	if entry.generation != generation || c.now().Sub(entry.storedAt) > predictionCacheTTL {
		c.lru.Remove(key)
		return nil, false
	}
	return entry.prediction, true
}

func (c *predictionCache) put(key string, generation uint64, prediction *models.BlastRadiusPrediction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(key, cachedPrediction{
		prediction: prediction,
		generation: generation,
		storedAt:   c.now(),
	})
}

// predictionKey builds a deterministic cache key independent of target order
func predictionKey(targets []string, changeType models.ChangeType, maxDepth int) string {
	sorted := make([]string, len(targets))
	copy(sorted, targets)
	sort.Strings(sorted)
	return strings.Join(sorted, ",") + "|" + string(changeType) + "|" + strconv.Itoa(maxDepth)
}
