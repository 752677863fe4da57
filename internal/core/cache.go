package core

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"heritagestore/pkg/domain"
)

type cacheKey struct {
	collection Collection
	id         string
}

// recordCache is a TTL-bounded LRU of records read through the service.
// Values are cloned in and out.
type recordCache struct {
	lru    *expirable.LRU[cacheKey, Record]
	hits   prometheus.Counter
	misses prometheus.Counter
}

func newRecordCache(size int, ttl time.Duration, reg prometheus.Registerer) *recordCache {
	factory := promauto.With(reg)
	return &recordCache{
		lru: expirable.NewLRU[cacheKey, Record](size, nil, ttl),
		hits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "heritage",
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Record reads served from the service cache.",
		}),
		misses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "heritage",
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Record reads that went to the store.",
		}),
	}
}

func (c *recordCache) get(col Collection, id string) (Record, bool) {
	if c == nil {
		return nil, false
	}
	rec, ok := c.lru.Get(cacheKey{col, id})
	if !ok {
		c.misses.Inc()
		return nil, false
	}
	c.hits.Inc()
	return domain.CloneRecord(rec), true
}

func (c *recordCache) set(col Collection, id string, rec Record) {
	if c == nil {
		return
	}
	c.lru.Add(cacheKey{col, id}, domain.CloneRecord(rec))
}

func (c *recordCache) invalidate(col Collection, id string) {
	if c == nil {
		return
	}
	c.lru.Remove(cacheKey{col, id})
}

func (c *recordCache) len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}
