package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"grid_adequacy/internal/logger"
	"grid_adequacy/internal/metrics"
	"grid_adequacy/internal/models"

	geojson "github.com/paulmach/go.geojson"
)

const cacheWriteTimeout = 2 * time.Second

// HeatFetcher is the per-year geography boundary.
type HeatFetcher interface {
	GetHeat(ctx context.Context, year models.Year) (*geojson.FeatureCollection, error)
}

// HeatOutcome is what Resolve did with a completed fetch.
type HeatOutcome int

const (
	HeatApplied HeatOutcome = iota
	HeatStale
	HeatSuperseded
	HeatFailed
)

// heatResult is a completed fetch tagged with the request it answers.
type heatResult struct {
	seq    uint64
	year   models.Year
	fc     *geojson.FeatureCollection
	err    error
	cached bool
}

// HeatSync fetches the geography of the current year and applies only
// results that still match the current year when they arrive. Request and
// Resolve must be called from a single goroutine; fetches run on their own.
type HeatSync struct {
	fetcher HeatFetcher
	cache   HeatCache
	retry   RetryPolicy
	log     *logger.Logger

	results  chan heatResult
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	seq        uint64
	current    models.Year
	hasCurrent bool
	cancel     context.CancelFunc
	lastGood   models.Year
}

// NewHeatSync builds a synchronizer. cache may be nil.
func NewHeatSync(fetcher HeatFetcher, cache HeatCache, retry RetryPolicy, log *logger.Logger) *HeatSync {
	if log == nil {
		log = logger.Nop()
	}
	return &HeatSync{
		fetcher: fetcher,
		cache:   cache,
		retry:   retry,
		log:     log,
		results: make(chan heatResult, 8),
		stop:    make(chan struct{}),
	}
}

// Results delivers completed fetches to the owning loop.
func (h *HeatSync) Results() <-chan heatResult { return h.results }

// Current is the year the latest request was issued for.
func (h *HeatSync) Current() (models.Year, bool) { return h.current, h.hasCurrent }

// LastGood is the year of the last applied geography, 0 if none.
func (h *HeatSync) LastGood() models.Year { return h.lastGood }

// Request makes year current and starts fetching it. The previous in-flight
// fetch is cancelled; if it completes anyway Resolve still discards it.
func (h *HeatSync) Request(ctx context.Context, year models.Year) uint64 {
	if h.cancel != nil {
		h.cancel()
	}
	h.seq++
	h.current, h.hasCurrent = year, true

	fctx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	seq := h.seq

	select {
	case <-h.stop:
		cancel()
		return seq
	default:
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		res := h.fetch(fctx, seq, year)
		select {
		case h.results <- res:
		case <-h.stop:
		}
	}()
	return seq
}

func (h *HeatSync) fetch(ctx context.Context, seq uint64, year models.Year) heatResult {
	res := heatResult{seq: seq, year: year}
	if h.cache != nil {
		if fc, ok := h.cache.Get(ctx, year); ok {
			res.fc, res.cached = fc, true
			return res
		}
	}

	res.err = withRetry(ctx, h.retry, func() error {
		fc, err := h.fetcher.GetHeat(ctx, year)
		if err != nil {
			return err
		}
		res.fc = fc
		return nil
	})
	if res.err == nil && h.cache != nil {
		// a superseded result is still valid data for its year
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheWriteTimeout)
		h.cache.Set(cctx, year, res.fc)
		cancel()
	}
	return res
}

// Resolve applies res through apply when its year is still current.
func (h *HeatSync) Resolve(res heatResult, apply func(models.GeoLayer) error) HeatOutcome {
	switch {
	case res.err != nil && res.seq != h.seq:
		metrics.HeatFetchTotal.WithLabelValues(metrics.HeatCanceled).Inc()
		return HeatSuperseded
	case res.err != nil:
		metrics.HeatFetchTotal.WithLabelValues(metrics.HeatFailed).Inc()
		if !errors.Is(res.err, context.Canceled) {
			h.log.Warnw("heat_fetch_failed", "year", res.year, "err", res.err, "kept_year", h.lastGood)
		}
		return HeatFailed
	case !h.hasCurrent || res.year != h.current:
		metrics.HeatFetchTotal.WithLabelValues(metrics.HeatStale).Inc()
		return HeatStale
	}

	if err := apply(models.GeoLayer{Year: res.year, Collection: res.fc}); err != nil {
		metrics.HeatFetchTotal.WithLabelValues(metrics.HeatFailed).Inc()
		h.log.Warnw("heat_apply_failed", "year", res.year, "err", err)
		return HeatFailed
	}
	metrics.HeatFetchTotal.WithLabelValues(metrics.HeatApplied).Inc()
	h.lastGood = res.year
	return HeatApplied
}

// Stop cancels the in-flight fetch and waits for fetch goroutines to exit.
func (h *HeatSync) Stop() {
	h.stopOnce.Do(func() {
		if h.cancel != nil {
			h.cancel()
		}
		close(h.stop)
	})
	h.wg.Wait()
}
