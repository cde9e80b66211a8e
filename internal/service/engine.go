package service

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"grid_adequacy/internal/format"
	"grid_adequacy/internal/logger"
	"grid_adequacy/internal/mapsurface"
	"grid_adequacy/internal/metrics"
	"grid_adequacy/internal/models"

	"github.com/google/uuid"
)

// DefaultTick is the auto-advance period used when none is configured.
const DefaultTick = 1200 * time.Millisecond

var (
	ErrEngineClosed = errors.New("session engine closed")
	ErrNotFailed    = errors.New("retry is only accepted after a failed load")
)

// Recorder receives session journal entries. It must not block.
type Recorder interface {
	Record(e models.SessionEvent)
}

// EngineDeps are the collaborators shared by every session.
type EngineDeps struct {
	Frames    FrameSource
	Heat      HeatFetcher
	Cache     HeatCache // optional
	Journal   Recorder  // optional
	Log       *logger.Logger
	Map       mapsurface.MapOptions
	Tick      time.Duration
	Autoplay  bool
	LoadRetry RetryPolicy
	HeatRetry RetryPolicy
}

type cmdKind int

const (
	cmdToggle cmdKind = iota
	cmdScrub
	cmdRetry
	cmdReady
)

type command struct {
	kind  cmdKind
	index int
	reply chan error
}

type loadResult struct {
	frames *models.FrameSet
	err    error
}

// Engine is one mounted session. All state below the mutex line is owned by
// the Run goroutine; other goroutines talk to it through commands.
type Engine struct {
	id       string
	deps     EngineDeps
	log      *logger.Logger
	renderer mapsurface.Renderer
	notify   func(models.Snapshot)

	cmds      chan command
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	store      *FrameStore
	heat       *HeatSync
	surface    *mapsurface.Adapter
	playback   *Playback
	phase      models.Phase
	frames     *models.FrameSet
	loadErr    error
	loadCh     chan loadResult
	loadCancel context.CancelFunc
	ticker     *time.Ticker
	tickC      <-chan time.Time

	mu   sync.RWMutex
	snap models.Snapshot
}

// NewEngine builds a session bound to renderer. notify, if set, is called
// from the session goroutine after every state change and must not block.
func NewEngine(id string, deps EngineDeps, renderer mapsurface.Renderer, notify func(models.Snapshot)) *Engine {
	log := deps.Log
	if log == nil {
		log = logger.Nop()
	}
	log = log.With("session", id)
	if deps.Tick <= 0 {
		deps.Tick = DefaultTick
	}
	e := &Engine{
		id:       id,
		deps:     deps,
		log:      log,
		renderer: renderer,
		notify:   notify,
		cmds:     make(chan command),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		store:    NewFrameStore(deps.Frames, deps.LoadRetry, log),
		heat:     NewHeatSync(deps.Heat, deps.Cache, deps.HeatRetry, log),
		surface:  mapsurface.New(deps.Map),
		playback: NewPlayback(),
		phase:    models.PhaseLoading,
		loadCh:   make(chan loadResult, 1),
	}
	e.snap = e.buildSnapshot()
	return e
}

func (e *Engine) ID() string { return e.id }

// Done is closed once Run has torn the session down.
func (e *Engine) Done() <-chan struct{} { return e.done }

// Snapshot returns the last published view.
func (e *Engine) Snapshot() models.Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snap
}

// Close asks the session to tear down. It does not wait.
func (e *Engine) Close() {
	e.closeOnce.Do(func() { close(e.quit) })
}

func (e *Engine) TogglePlay(ctx context.Context) error {
	return e.send(ctx, command{kind: cmdToggle})
}

func (e *Engine) Scrub(ctx context.Context, index int) error {
	return e.send(ctx, command{kind: cmdScrub, index: index})
}

func (e *Engine) Retry(ctx context.Context) error {
	return e.send(ctx, command{kind: cmdRetry})
}

// SurfaceReady reports that the renderer finished loading the map.
func (e *Engine) SurfaceReady(ctx context.Context) error {
	return e.send(ctx, command{kind: cmdReady})
}

func (e *Engine) send(ctx context.Context, c command) error {
	c.reply = make(chan error, 1)
	select {
	case e.cmds <- c:
	case <-e.done:
		return ErrEngineClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-c.reply:
		return err
	case <-e.done:
		return ErrEngineClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drives the session until ctx is cancelled or Close is called.
func (e *Engine) Run(ctx context.Context) {
	defer close(e.done)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	metrics.SessionsActive.Inc()
	defer metrics.SessionsActive.Dec()
	defer e.teardown()

	e.record(models.EventSessionOpen, "Session opened", nil)
	if err := e.surface.Acquire(e.renderer); err != nil {
		e.log.Warnw("map_create_failed", "err", err)
	}
	e.startLoad(ctx)
	e.publish()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.quit:
			return
		case res := <-e.loadCh:
			e.onLoad(ctx, res)
		case res := <-e.heat.Results():
			e.onHeat(res)
		case <-e.tickC:
			e.onTick(ctx)
		case c := <-e.cmds:
			c.reply <- e.handle(ctx, c)
		}
	}
}

func (e *Engine) startLoad(ctx context.Context) {
	lctx, cancel := context.WithCancel(ctx)
	e.loadCancel = cancel
	go func() {
		fs, err := e.store.Load(lctx)
		e.loadCh <- loadResult{frames: fs, err: err}
	}()
}

func (e *Engine) onLoad(ctx context.Context, res loadResult) {
	e.loadCancel()
	e.loadCancel = nil

	if res.err != nil {
		e.phase = models.PhaseFailed
		e.loadErr = res.err
		e.log.Errorw("frames_load_failed", "err", res.err)
		e.record(models.EventLoadFailed, "Frame set load failed", map[string]any{"error": res.err.Error()})
		e.publish()
		return
	}

	e.frames = res.frames
	e.phase = models.PhaseReady
	e.loadErr = nil
	e.applyTimer(e.playback.Load(e.frames.Len(), e.deps.Autoplay))
	first, _ := e.frames.First()
	last, _ := e.frames.Last()
	e.log.Infow("frames_loaded", "count", e.frames.Len(), "first", first, "last", last)
	e.record(models.EventLoadOK, "Frame set loaded", map[string]any{"count": e.frames.Len(), "first": first, "last": last})
	e.yearChanged(ctx)
	e.publish()
}

func (e *Engine) onTick(ctx context.Context) {
	if !e.playback.Tick() {
		return
	}
	metrics.TicksTotal.Inc()
	e.yearChanged(ctx)
	e.publish()
}

func (e *Engine) onHeat(res heatResult) {
	switch e.heat.Resolve(res, e.surface.Update) {
	case HeatApplied:
		e.publish()
	case HeatFailed:
		desc := fmt.Sprintf("Heat layer for %d unavailable", res.year)
		meta := map[string]any{"year": res.year, "kept_year": e.heat.LastGood()}
		if res.err != nil {
			meta["error"] = res.err.Error()
		}
		e.record(models.EventHeatFailed, desc, meta)
	}
}

func (e *Engine) handle(ctx context.Context, c command) error {
	switch c.kind {
	case cmdToggle:
		eff, err := e.playback.TogglePlay()
		if err != nil {
			return err
		}
		e.applyTimer(eff)
		if e.playback.State().Playing {
			e.record(models.EventPlay, "Playback started", map[string]any{"index": e.playback.State().Index})
		} else {
			e.record(models.EventPause, "Playback paused", map[string]any{"index": e.playback.State().Index})
		}
		e.publish()
		return nil

	case cmdScrub:
		before := e.playback.State().Index
		eff, err := e.playback.Scrub(c.index)
		if err != nil {
			return err
		}
		e.applyTimer(eff)
		after := e.playback.State().Index
		e.record(models.EventScrub, "Scrubbed", map[string]any{"requested": c.index, "index": after})
		if after != before {
			e.yearChanged(ctx)
		}
		e.publish()
		return nil

	case cmdRetry:
		if e.phase != models.PhaseFailed {
			return ErrNotFailed
		}
		e.phase = models.PhaseLoading
		e.loadErr = nil
		e.startLoad(ctx)
		e.publish()
		return nil

	case cmdReady:
		if err := e.surface.Ready(); err != nil {
			e.log.Warnw("map_register_failed", "err", err)
			return err
		}
		e.publish()
		return nil
	}
	return fmt.Errorf("unknown command %d", c.kind)
}

// yearChanged hands the current year to the heat synchronizer.
func (e *Engine) yearChanged(ctx context.Context) {
	year, ok := e.frames.YearAt(e.playback.State().Index)
	if !ok {
		return
	}
	e.heat.Request(ctx, year)
}

// applyTimer keeps at most one ticker alive.
func (e *Engine) applyTimer(eff TimerEffect) {
	switch eff {
	case ArmTimer:
		e.stopTicker()
		e.ticker = time.NewTicker(e.deps.Tick)
		e.tickC = e.ticker.C
	case DisarmTimer:
		e.stopTicker()
	}
}

func (e *Engine) stopTicker() {
	if e.ticker != nil {
		e.ticker.Stop()
	}
	e.ticker = nil
	e.tickC = nil
}

func (e *Engine) teardown() {
	e.stopTicker()
	if e.loadCancel != nil {
		e.loadCancel()
	}
	e.heat.Stop()
	if err := e.surface.Release(); err != nil {
		e.log.Warnw("map_release_failed", "err", err)
	}
	e.record(models.EventSessionClose, "Session closed", nil)
}

func (e *Engine) buildSnapshot() models.Snapshot {
	st := e.playback.State()
	s := models.Snapshot{
		SessionID: e.id,
		Phase:     e.phase,
		Index:     st.Index,
		Playing:   st.Playing,
		HeatYear:  e.surface.ShownYear(),
		UpdatedAt: time.Now().UTC(),
	}

	var m models.Metrics
	if e.frames.Len() > 0 {
		s.Count = e.frames.Len()
		s.Year, _ = e.frames.YearAt(st.Index)
		s.FirstYear, _ = e.frames.First()
		s.LastYear, _ = e.frames.Last()
		m = maps.Clone(e.frames.MetricsFor(s.Year))
		s.Metrics = m
	}
	adequacy := m[models.MetricAdequacyIndex]
	s.KPIs = format.KPIsFor(m, e.phase)
	s.AdequacyPct = format.AdequacyPercent(adequacy)
	s.BadgeColor = format.ValueToColor(adequacy)
	if e.loadErr != nil {
		s.Error = e.loadErr.Error()
	}
	return s
}

func (e *Engine) publish() {
	s := e.buildSnapshot()
	e.mu.Lock()
	e.snap = s
	e.mu.Unlock()
	if e.notify != nil {
		e.notify(s)
	}
}

func (e *Engine) record(typ, desc string, meta map[string]any) {
	if e.deps.Journal == nil {
		return
	}
	ev := models.SessionEvent{
		EventID:     uuid.NewString(),
		SessionID:   e.id,
		OccurredAt:  time.Now().UTC(),
		Type:        typ,
		Description: desc,
	}
	if meta != nil {
		ev.Metadata = meta
	}
	e.deps.Journal.Record(ev)
}
