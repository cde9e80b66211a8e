package service

import (
	"context"
	"net/http"
	"sync"
	"time"

	"grid_adequacy/internal/mapsurface"
	"grid_adequacy/internal/models"
	"grid_adequacy/internal/upstream"

	geojson "github.com/paulmach/go.geojson"
)

var fastRetry = RetryPolicy{MaxRetries: 2, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}

func serverError(op string) error {
	return &upstream.StatusError{Op: op, Code: http.StatusBadGateway, Status: "502 Bad Gateway"}
}

func notFound(op string) error {
	return &upstream.StatusError{Op: op, Code: http.StatusNotFound, Status: "404 Not Found"}
}

func seriesOf(from, to models.Year) models.FrameSet {
	var fs models.FrameSet
	for y := from; y <= to; y++ {
		fs.Years = append(fs.Years, y)
		fs.Frames = append(fs.Frames, models.Frame{Year: y, Metrics: models.Metrics{
			models.MetricAvailableSupply: 1.25e6 + float64(y-from)*1e5,
			models.MetricPeakDemand:      1.1e6,
			models.MetricAdequacyIndex:   float64(y-from)/10 - 0.2,
		}})
	}
	return fs
}

// fakeFrames fails the first N calls of each step with the queued errors.
type fakeFrames struct {
	mu          sync.Mutex
	rebuildErrs []error
	framesErrs  []error
	frames      models.FrameSet
	rebuilds    int
	gets        int
}

func (f *fakeFrames) Rebuild(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rebuilds++
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(f.rebuildErrs) > 0 {
		err := f.rebuildErrs[0]
		f.rebuildErrs = f.rebuildErrs[1:]
		return err
	}
	return nil
}

func (f *fakeFrames) GetFrames(ctx context.Context) (models.FrameSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if err := ctx.Err(); err != nil {
		return models.FrameSet{}, err
	}
	if len(f.framesErrs) > 0 {
		err := f.framesErrs[0]
		f.framesErrs = f.framesErrs[1:]
		return models.FrameSet{}, err
	}
	return f.frames, nil
}

func (f *fakeFrames) setRebuildErrs(errs ...error) {
	f.mu.Lock()
	f.rebuildErrs = errs
	f.mu.Unlock()
}

func (f *fakeFrames) counts() (rebuilds, gets int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rebuilds, f.gets
}

// fakeHeat serves one feature per year tagged with the year. A gated year
// blocks until its gate is closed or the request is cancelled.
type fakeHeat struct {
	mu    sync.Mutex
	gates map[models.Year]chan struct{}
	errs  map[models.Year]error
	calls []models.Year
}

func newFakeHeat() *fakeHeat {
	return &fakeHeat{gates: map[models.Year]chan struct{}{}, errs: map[models.Year]error{}}
}

func (f *fakeHeat) GetHeat(ctx context.Context, year models.Year) (*geojson.FeatureCollection, error) {
	f.mu.Lock()
	f.calls = append(f.calls, year)
	gate := f.gates[year]
	err := f.errs[year]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return heatFor(year), nil
}

func (f *fakeHeat) gate(year models.Year) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	g := make(chan struct{})
	f.gates[year] = g
	return g
}

func (f *fakeHeat) fail(year models.Year, err error) {
	f.mu.Lock()
	f.errs[year] = err
	f.mu.Unlock()
}

func (f *fakeHeat) callsFor(year models.Year) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, y := range f.calls {
		if y == year {
			n++
		}
	}
	return n
}

func heatFor(year models.Year) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	f := geojson.NewPointFeature([]float64{90.35, 23.8})
	f.SetProperty(models.WeightProperty, 0.2)
	f.SetProperty("year", year)
	fc.AddFeature(f)
	return fc
}

func yearOf(fc *geojson.FeatureCollection) models.Year {
	if fc == nil || len(fc.Features) == 0 {
		return 0
	}
	y, _ := fc.Features[0].PropertyInt("year")
	return y
}

// fakeRenderer records the surface calls of one session.
type fakeRenderer struct {
	mu       sync.Mutex
	creates  int
	sources  int
	layers   int
	removes  int
	dataYear models.Year
	writes   int
}

func (r *fakeRenderer) Create(mapsurface.MapOptions) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.creates++
	return nil
}

func (r *fakeRenderer) AddSource(_ string, data *geojson.FeatureCollection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources++
	r.dataYear = yearOf(data)
	return nil
}

func (r *fakeRenderer) AddLayer(mapsurface.Layer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.layers++
	return nil
}

func (r *fakeRenderer) SetSourceData(_ string, data *geojson.FeatureCollection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes++
	r.dataYear = yearOf(data)
	return nil
}

func (r *fakeRenderer) Remove() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removes++
	return nil
}

func (r *fakeRenderer) shown() models.Year {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dataYear
}

// fakeRecorder captures journal entries.
type fakeRecorder struct {
	mu     sync.Mutex
	events []models.SessionEvent
}

func (r *fakeRecorder) Record(e models.SessionEvent) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *fakeRecorder) has(typ string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.Type == typ {
			return true
		}
	}
	return false
}
