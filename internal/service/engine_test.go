package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"grid_adequacy/internal/config"
	"grid_adequacy/internal/format"
	"grid_adequacy/internal/mapsurface"
	"grid_adequacy/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

type engineFixture struct {
	engine   *Engine
	frames   *fakeFrames
	heat     *fakeHeat
	renderer *fakeRenderer
	journal  *fakeRecorder
	cancel   context.CancelFunc

	mu    sync.Mutex
	snaps []models.Snapshot
}

func startEngine(t *testing.T, frames *fakeFrames, heat *fakeHeat, tune func(*EngineDeps)) *engineFixture {
	t.Helper()
	f := &engineFixture{frames: frames, heat: heat, renderer: &fakeRenderer{}, journal: &fakeRecorder{}}
	deps := EngineDeps{
		Frames:    frames,
		Heat:      heat,
		Journal:   f.journal,
		Map:       mapsurface.MapOptions{Style: "test", Zoom: 5.4},
		Tick:      time.Hour,
		Autoplay:  false,
		LoadRetry: fastRetry,
		HeatRetry: fastRetry,
	}
	if tune != nil {
		tune(&deps)
	}
	f.engine = NewEngine("s-test", deps, f.renderer, func(s models.Snapshot) {
		f.mu.Lock()
		f.snaps = append(f.snaps, s)
		f.mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	go f.engine.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-f.engine.Done()
	})
	return f
}

func (f *engineFixture) waitPhase(t *testing.T, phase models.Phase) models.Snapshot {
	t.Helper()
	require.Eventually(t, func() bool { return f.engine.Snapshot().Phase == phase }, waitFor, time.Millisecond)
	return f.engine.Snapshot()
}

func (f *engineFixture) published() []models.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Snapshot(nil), f.snaps...)
}

func TestEngine_LoadStartsAtLatestYear(t *testing.T) {
	f := startEngine(t, &fakeFrames{frames: seriesOf(2018, 2024)}, newFakeHeat(), nil)

	snap := f.waitPhase(t, models.PhaseReady)
	assert.Equal(t, 6, snap.Index)
	assert.Equal(t, 2024, snap.Year)
	assert.Equal(t, 2018, snap.FirstYear)
	assert.Equal(t, 2024, snap.LastYear)
	assert.Equal(t, 7, snap.Count)
	assert.False(t, snap.Playing)
	assert.Equal(t, "1.85M", snap.KPIs.AvailableSupply)
	assert.Equal(t, format.StatusSurplus, snap.KPIs.Status)
	assert.Equal(t, 40, snap.AdequacyPct)
	assert.Equal(t, "s-test", snap.SessionID)
	assert.True(t, f.journal.has(models.EventLoadOK))
}

func TestEngine_DefaultConfigPlaysAfterLoad(t *testing.T) {
	cfg, err := config.Load(t.TempDir())
	require.NoError(t, err)

	f := startEngine(t, &fakeFrames{frames: seriesOf(2018, 2024)}, newFakeHeat(), func(d *EngineDeps) {
		d.Autoplay = cfg.Playback.Autoplay
		d.Tick = 10 * time.Millisecond
	})
	f.waitPhase(t, models.PhaseReady)
	require.True(t, f.journal.has(models.EventLoadOK))

	var first models.Snapshot
	for _, s := range f.published() {
		if s.Phase == models.PhaseReady {
			first = s
			break
		}
	}
	assert.True(t, first.Playing, "the load snapshot is already playing")
	assert.Equal(t, 6, first.Index, "playback starts from the latest year")

	require.Eventually(t, func() bool {
		s := f.engine.Snapshot()
		return s.Playing && s.Index != 6
	}, waitFor, time.Millisecond, "ticker must advance without any intent")
}

func TestEngine_LoadingSnapshotBeforeFramesArrive(t *testing.T) {
	frames := &fakeFrames{frames: seriesOf(2018, 2024)}
	e := NewEngine("s-idle", EngineDeps{Frames: frames, Heat: newFakeHeat()}, &fakeRenderer{}, nil)

	snap := e.Snapshot()
	assert.Equal(t, models.PhaseLoading, snap.Phase)
	assert.Equal(t, format.StatusLoading, snap.KPIs.Status)
	assert.Equal(t, 0, snap.Count)
	require.ErrorIs(t, e.TogglePlay(contextWithTimeout(t, 50*time.Millisecond)), context.DeadlineExceeded)
}

func TestEngine_MapConvergesToCurrentYear(t *testing.T) {
	f := startEngine(t, &fakeFrames{frames: seriesOf(2018, 2024)}, newFakeHeat(), nil)
	f.waitPhase(t, models.PhaseReady)
	ctx := context.Background()

	require.NoError(t, f.engine.SurfaceReady(ctx))
	require.Eventually(t, func() bool { return f.renderer.shown() == 2024 }, waitFor, time.Millisecond)

	for _, k := range []int{3, 1, 5, 2} {
		require.NoError(t, f.engine.Scrub(ctx, k))
	}
	require.Eventually(t, func() bool {
		s := f.engine.Snapshot()
		return s.HeatYear == 2020 && f.renderer.shown() == 2020
	}, waitFor, time.Millisecond)

	f.renderer.mu.Lock()
	defer f.renderer.mu.Unlock()
	assert.Equal(t, 1, f.renderer.creates)
	assert.Equal(t, 1, f.renderer.sources)
	assert.Equal(t, 1, f.renderer.layers)
}

func TestEngine_ScrubClampsAndPauses(t *testing.T) {
	f := startEngine(t, &fakeFrames{frames: seriesOf(2015, 2024)}, newFakeHeat(), nil)
	f.waitPhase(t, models.PhaseReady)
	ctx := context.Background()

	require.NoError(t, f.engine.TogglePlay(ctx))
	assert.True(t, f.engine.Snapshot().Playing)

	require.NoError(t, f.engine.Scrub(ctx, -5))
	snap := f.engine.Snapshot()
	assert.Equal(t, 0, snap.Index)
	assert.False(t, snap.Playing)

	require.NoError(t, f.engine.Scrub(ctx, 999))
	assert.Equal(t, 9, f.engine.Snapshot().Index)
	assert.True(t, f.journal.has(models.EventPlay))
	assert.True(t, f.journal.has(models.EventScrub))
}

func TestEngine_PlaybackAdvancesCircularly(t *testing.T) {
	f := startEngine(t, &fakeFrames{frames: seriesOf(2018, 2024)}, newFakeHeat(), func(d *EngineDeps) {
		d.Tick = 5 * time.Millisecond
		d.Autoplay = true
	})

	require.Eventually(t, func() bool {
		n := 0
		for _, s := range f.published() {
			if s.Phase == models.PhaseReady && s.Index == 0 {
				n++
			}
		}
		return n > 0
	}, waitFor, time.Millisecond, "playback should wrap from the last year to the first")

	require.NoError(t, f.engine.TogglePlay(context.Background()))
	paused := f.engine.Snapshot()
	assert.False(t, paused.Playing)

	prev := -1
	for _, s := range f.published() {
		if s.Phase != models.PhaseReady {
			continue
		}
		if prev >= 0 && s.Index != prev {
			assert.Equal(t, (prev+1)%7, s.Index, "index must advance one step at a time")
		}
		prev = s.Index
	}

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, paused.Index, f.engine.Snapshot().Index, "no ticks after pause")
}

func TestEngine_LoadFailureThenRetry(t *testing.T) {
	frames := &fakeFrames{frames: seriesOf(2018, 2020)}
	frames.setRebuildErrs(serverError("rebuild"), serverError("rebuild"), serverError("rebuild"))
	f := startEngine(t, frames, newFakeHeat(), nil)
	ctx := context.Background()

	snap := f.waitPhase(t, models.PhaseFailed)
	assert.NotEmpty(t, snap.Error)
	assert.Equal(t, format.StatusUnavailable, snap.KPIs.Status)
	assert.Equal(t, 0, snap.Count)
	assert.True(t, f.journal.has(models.EventLoadFailed))

	require.ErrorIs(t, f.engine.TogglePlay(ctx), ErrNotLoaded)
	require.ErrorIs(t, f.engine.Scrub(ctx, 1), ErrNotLoaded)

	require.NoError(t, f.engine.Retry(ctx))
	snap = f.waitPhase(t, models.PhaseReady)
	assert.Equal(t, 2020, snap.Year)
	assert.Empty(t, snap.Error)

	require.ErrorIs(t, f.engine.Retry(ctx), ErrNotFailed)
}

func TestEngine_HeatFailureKeepsLastGoodAndPlayback(t *testing.T) {
	heat := newFakeHeat()
	heat.fail(2023, notFound("heat"))
	f := startEngine(t, &fakeFrames{frames: seriesOf(2018, 2024)}, heat, nil)
	f.waitPhase(t, models.PhaseReady)
	ctx := context.Background()

	require.NoError(t, f.engine.SurfaceReady(ctx))
	require.Eventually(t, func() bool { return f.renderer.shown() == 2024 }, waitFor, time.Millisecond)

	require.NoError(t, f.engine.Scrub(ctx, 5))
	require.Eventually(t, func() bool { return f.journal.has(models.EventHeatFailed) }, waitFor, time.Millisecond)

	snap := f.engine.Snapshot()
	assert.Equal(t, 2024, snap.HeatYear, "last good geography stays on the map")
	assert.Equal(t, 2024, f.renderer.shown())
	assert.Equal(t, 5, snap.Index)
	assert.Equal(t, 2023, snap.Year)
	assert.False(t, snap.Playing)
}

func TestEngine_HeatFailureWhilePlayingKeepsAdvancing(t *testing.T) {
	heat := newFakeHeat()
	heat.fail(2018, notFound("heat"))
	f := startEngine(t, &fakeFrames{frames: seriesOf(2018, 2024)}, heat, func(d *EngineDeps) {
		d.Autoplay = true
		d.Tick = 20 * time.Millisecond
	})
	f.waitPhase(t, models.PhaseReady)
	require.NoError(t, f.engine.SurfaceReady(context.Background()))

	require.Eventually(t, func() bool { return f.journal.has(models.EventHeatFailed) }, waitFor, time.Millisecond)

	// the failed year is followed by later years on the map while still playing
	require.Eventually(t, func() bool {
		s := f.engine.Snapshot()
		return s.Playing && s.Year == 2020 && s.HeatYear == 2020
	}, waitFor, time.Millisecond)
	assert.False(t, f.journal.has(models.EventPause), "a heat failure never pauses playback")
	assert.NotEqual(t, 2018, f.renderer.shown())
}

func TestEngine_CloseTearsDownOnce(t *testing.T) {
	f := startEngine(t, &fakeFrames{frames: seriesOf(2018, 2024)}, newFakeHeat(), nil)
	f.waitPhase(t, models.PhaseReady)

	f.engine.Close()
	f.engine.Close()
	select {
	case <-f.engine.Done():
	case <-time.After(waitFor):
		t.Fatalf("engine did not stop")
	}

	assert.ErrorIs(t, f.engine.TogglePlay(context.Background()), ErrEngineClosed)
	f.renderer.mu.Lock()
	assert.Equal(t, 1, f.renderer.removes)
	f.renderer.mu.Unlock()
	assert.True(t, f.journal.has(models.EventSessionClose))
}

func contextWithTimeout(t *testing.T, d time.Duration) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	t.Cleanup(cancel)
	return ctx
}
