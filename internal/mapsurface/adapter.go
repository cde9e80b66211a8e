// Package mapsurface owns the lifecycle of the map rendering surface: create
// once, register one source and one layer once, update in place, release once.
package mapsurface

import (
	"errors"
	"fmt"
	"sync"

	"grid_adequacy/internal/models"

	geojson "github.com/paulmach/go.geojson"
)

var (
	ErrAlreadyAcquired = errors.New("map surface already acquired")
	ErrReleased        = errors.New("map surface released")
)

// Renderer is the capability offered by the rendering engine.
type Renderer interface {
	Create(opts MapOptions) error
	AddSource(name string, data *geojson.FeatureCollection) error
	AddLayer(layer Layer) error
	SetSourceData(name string, data *geojson.FeatureCollection) error
	Remove() error
}

// Adapter is safe for concurrent use; teardown and updates may race.
type Adapter struct {
	mu       sync.Mutex
	opts     MapOptions
	layer    Layer
	r        Renderer // nil before Acquire and after Release
	released bool

	registered bool
	pending    *geojson.FeatureCollection
	shownYear  models.Year
}

// New returns an adapter that will create surfaces with opts.
func New(opts MapOptions) *Adapter {
	return &Adapter{opts: opts, layer: HeatLayer()}
}

// Acquire creates the surface on r. It succeeds at most once per adapter.
func (a *Adapter) Acquire(r Renderer) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.released {
		return ErrReleased
	}
	if a.r != nil {
		return ErrAlreadyAcquired
	}
	if err := r.Create(a.opts); err != nil {
		return fmt.Errorf("create map surface: %w", err)
	}
	a.r = r
	return nil
}

// Ready registers the source and layer after the surface reports it has loaded.
// Repeated calls are no-ops once registration succeeded.
func (a *Adapter) Ready() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.r == nil || a.registered {
		return nil
	}
	data := a.pending
	if data == nil {
		data = models.EmptyCollection()
	}
	if err := a.r.AddSource(SourceName, data); err != nil {
		return fmt.Errorf("add source %q: %w", SourceName, err)
	}
	if err := a.r.AddLayer(a.layer); err != nil {
		return fmt.Errorf("add layer %q: %w", a.layer.ID, err)
	}
	a.registered = true
	a.pending = nil
	return nil
}

// Update replaces the displayed geography. Before Ready the data is kept as
// pending (last wins); after Release it is dropped.
func (a *Adapter) Update(layer models.GeoLayer) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.r == nil {
		return nil
	}
	data := layer.Collection
	if data == nil {
		data = models.EmptyCollection()
	}
	if !a.registered {
		a.pending = data
		a.shownYear = layer.Year
		return nil
	}
	if err := a.r.SetSourceData(SourceName, data); err != nil {
		return fmt.Errorf("set source %q data for %d: %w", SourceName, layer.Year, err)
	}
	a.shownYear = layer.Year
	return nil
}

// Release tears the surface down. Only the first call reaches the renderer.
func (a *Adapter) Release() error {
	a.mu.Lock()
	r := a.r
	a.r = nil
	a.released = true
	a.pending = nil
	a.registered = false
	a.mu.Unlock()

	if r == nil {
		return nil
	}
	if err := r.Remove(); err != nil {
		return fmt.Errorf("remove map surface: %w", err)
	}
	return nil
}

// Registered reports whether the source and layer exist.
func (a *Adapter) Registered() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.registered
}

// Released reports whether Release was called.
func (a *Adapter) Released() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.released
}

// ShownYear is the year of the last geography handed to the surface, 0 if none.
func (a *Adapter) ShownYear() models.Year {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.shownYear
}
