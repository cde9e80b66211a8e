package service

import (
	"container/list"
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"grid_adequacy/internal/logger"
	"grid_adequacy/internal/metrics"
	"grid_adequacy/internal/models"

	geojson "github.com/paulmach/go.geojson"
	"github.com/redis/go-redis/v9"
)

// HeatCache stores resolved geography by year. Cached collections are shared
// and must not be mutated.
type HeatCache interface {
	Get(ctx context.Context, year models.Year) (*geojson.FeatureCollection, bool)
	Set(ctx context.Context, year models.Year, fc *geojson.FeatureCollection)
}

// LRUHeatCache is an in-process LRU with per-entry TTL.
type LRUHeatCache struct {
	mu   sync.Mutex
	cap  int
	ttl  time.Duration
	lst  *list.List
	dict map[models.Year]*list.Element
	now  func() time.Time
}

type heatEntry struct {
	year models.Year
	fc   *geojson.FeatureCollection
	exp  time.Time
}

// NewLRUHeatCache returns a cache of at most capacity years. ttl <= 0 disables expiry.
func NewLRUHeatCache(capacity int, ttl time.Duration) *LRUHeatCache {
	return &LRUHeatCache{
		cap:  capacity,
		ttl:  ttl,
		lst:  list.New(),
		dict: make(map[models.Year]*list.Element),
		now:  time.Now,
	}
}

func (c *LRUHeatCache) Get(_ context.Context, year models.Year) (*geojson.FeatureCollection, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.dict[year]
	if !ok {
		return nil, false
	}
	it := e.Value.(heatEntry)
	if c.ttl > 0 && !c.now().Before(it.exp) {
		c.lst.Remove(e)
		delete(c.dict, year)
		return nil, false
	}
	c.lst.MoveToFront(e)
	return it.fc, true
}

func (c *LRUHeatCache) Set(_ context.Context, year models.Year, fc *geojson.FeatureCollection) {
	if c.cap <= 0 || fc == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	it := heatEntry{year: year, fc: fc, exp: c.now().Add(c.ttl)}
	if e, ok := c.dict[year]; ok {
		e.Value = it
		c.lst.MoveToFront(e)
		return
	}
	c.dict[year] = c.lst.PushFront(it)
	for c.lst.Len() > c.cap {
		back := c.lst.Back()
		delete(c.dict, back.Value.(heatEntry).year)
		c.lst.Remove(back)
	}
}

// Len returns the number of cached years, expired ones included.
func (c *LRUHeatCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lst.Len()
}

// RedisHeatCache shares resolved geography between processes.
type RedisHeatCache struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
	log    *logger.Logger
}

func NewRedisHeatCache(rdb redis.UniversalClient, prefix string, ttl time.Duration, log *logger.Logger) *RedisHeatCache {
	if log == nil {
		log = logger.Nop()
	}
	return &RedisHeatCache{rdb: rdb, prefix: prefix, ttl: ttl, log: log}
}

func (c *RedisHeatCache) key(year models.Year) string {
	return c.prefix + strconv.Itoa(year)
}

func (c *RedisHeatCache) Get(ctx context.Context, year models.Year) (*geojson.FeatureCollection, bool) {
	raw, err := c.rdb.Get(ctx, c.key(year)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warnw("heat_cache_get_failed", "year", year, "err", err)
		}
		return nil, false
	}
	fc, err := geojson.UnmarshalFeatureCollection(raw)
	if err != nil {
		c.log.Warnw("heat_cache_decode_failed", "year", year, "err", err)
		return nil, false
	}
	return fc, true
}

func (c *RedisHeatCache) Set(ctx context.Context, year models.Year, fc *geojson.FeatureCollection) {
	if fc == nil {
		return
	}
	raw, err := fc.MarshalJSON()
	if err != nil {
		c.log.Warnw("heat_cache_encode_failed", "year", year, "err", err)
		return
	}
	if err := c.rdb.Set(ctx, c.key(year), raw, c.ttl).Err(); err != nil {
		c.log.Warnw("heat_cache_set_failed", "year", year, "err", err)
	}
}

// TieredHeatCache reads through an in-process tier to an optional shared tier.
type TieredHeatCache struct {
	local  HeatCache
	shared HeatCache // may be nil
}

func NewTieredHeatCache(local, shared HeatCache) *TieredHeatCache {
	return &TieredHeatCache{local: local, shared: shared}
}

func (c *TieredHeatCache) Get(ctx context.Context, year models.Year) (*geojson.FeatureCollection, bool) {
	if fc, ok := c.local.Get(ctx, year); ok {
		metrics.HeatCacheHitsTotal.WithLabelValues("local").Inc()
		return fc, true
	}
	if c.shared != nil {
		if fc, ok := c.shared.Get(ctx, year); ok {
			metrics.HeatCacheHitsTotal.WithLabelValues("shared").Inc()
			c.local.Set(ctx, year, fc)
			return fc, true
		}
	}
	metrics.HeatCacheMissesTotal.Inc()
	return nil, false
}

func (c *TieredHeatCache) Set(ctx context.Context, year models.Year, fc *geojson.FeatureCollection) {
	c.local.Set(ctx, year, fc)
	if c.shared != nil {
		c.shared.Set(ctx, year, fc)
	}
}
