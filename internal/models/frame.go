package models

import (
	"errors"
	"fmt"
)

// Well-known metric names carried by every frame.
const (
	MetricAvailableSupply = "available_supply"
	MetricPeakDemand      = "peak_demand"
	MetricTotalGeneration = "total_generation"
	MetricAdequacyIndex   = "adequacy_index"
)

// ErrInvalidFrameSet is wrapped by every FrameSet validation failure.
var ErrInvalidFrameSet = errors.New("invalid frame set")

// Year identifies one point of the series.
type Year = int

// Metrics maps indicator names to values for one year.
type Metrics map[string]float64

// Frame is one year's metrics snapshot.
type Frame struct {
	Year    Year    `json:"year"`
	Metrics Metrics `json:"metrics"`
}

// FrameSet is the ordered series loaded once per session. Treat as read-only after Validate.
type FrameSet struct {
	Years  []Year  `json:"years"`
	Frames []Frame `json:"frames"`

	byYear map[Year]Metrics
}

// Validate checks ordering and the one-metrics-per-year invariant and builds the lookup index.
func (fs *FrameSet) Validate() error {
	if len(fs.Frames) != len(fs.Years) {
		return fmt.Errorf("%w: %d years but %d frames", ErrInvalidFrameSet, len(fs.Years), len(fs.Frames))
	}
	index := make(map[Year]Metrics, len(fs.Frames))
	for _, f := range fs.Frames {
		if _, dup := index[f.Year]; dup {
			return fmt.Errorf("%w: duplicate frame for year %d", ErrInvalidFrameSet, f.Year)
		}
		index[f.Year] = f.Metrics
	}
	for i, y := range fs.Years {
		if i > 0 && y <= fs.Years[i-1] {
			return fmt.Errorf("%w: year %d out of order after %d", ErrInvalidFrameSet, y, fs.Years[i-1])
		}
		if _, ok := index[y]; !ok {
			return fmt.Errorf("%w: no metrics for year %d", ErrInvalidFrameSet, y)
		}
	}
	fs.byYear = index
	return nil
}

// Len returns the number of years in the series.
func (fs *FrameSet) Len() int {
	if fs == nil {
		return 0
	}
	return len(fs.Years)
}

// YearAt returns the year at position i.
func (fs *FrameSet) YearAt(i int) (Year, bool) {
	if i < 0 || i >= fs.Len() {
		return 0, false
	}
	return fs.Years[i], true
}

// IndexOf returns the position of y, or -1.
func (fs *FrameSet) IndexOf(y Year) int {
	for i := 0; i < fs.Len(); i++ {
		if fs.Years[i] == y {
			return i
		}
	}
	return -1
}

// MetricsFor returns the metrics of year y. Missing years yield nil.
func (fs *FrameSet) MetricsFor(y Year) Metrics {
	if fs == nil {
		return nil
	}
	if fs.byYear != nil {
		return fs.byYear[y]
	}
	for _, f := range fs.Frames {
		if f.Year == y {
			return f.Metrics
		}
	}
	return nil
}

// First returns the earliest year.
func (fs *FrameSet) First() (Year, bool) { return fs.YearAt(0) }

// Last returns the most recent year.
func (fs *FrameSet) Last() (Year, bool) { return fs.YearAt(fs.Len() - 1) }
