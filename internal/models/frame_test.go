package models

import (
	"errors"
	"testing"
)

func frameSetOf(years ...Year) FrameSet {
	fs := FrameSet{Years: years}
	for _, y := range years {
		fs.Frames = append(fs.Frames, Frame{Year: y, Metrics: Metrics{MetricAdequacyIndex: float64(y-2000) / 100}})
	}
	return fs
}

func TestFrameSet_Validate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		fs      FrameSet
		wantErr bool
	}{
		{name: "empty is valid", fs: FrameSet{}},
		{name: "ascending years", fs: frameSetOf(2018, 2019, 2020)},
		{name: "out of order", fs: frameSetOf(2019, 2018), wantErr: true},
		{name: "duplicate year", fs: frameSetOf(2018, 2018), wantErr: true},
		{
			name: "year without metrics",
			fs: FrameSet{
				Years:  []Year{2018, 2019},
				Frames: []Frame{{Year: 2018}, {Year: 2020}},
			},
			wantErr: true,
		},
		{
			name:    "length mismatch",
			fs:      FrameSet{Years: []Year{2018}},
			wantErr: true,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.fs.Validate()
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidFrameSet) {
					t.Fatalf("expected ErrInvalidFrameSet, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestFrameSet_Lookups(t *testing.T) {
	fs := frameSetOf(2018, 2019, 2020, 2021)
	if err := fs.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	if y, ok := fs.Last(); !ok || y != 2021 {
		t.Fatalf("Last() = %d,%v", y, ok)
	}
	if y, ok := fs.First(); !ok || y != 2018 {
		t.Fatalf("First() = %d,%v", y, ok)
	}
	if _, ok := fs.YearAt(4); ok {
		t.Fatalf("YearAt out of range must report false")
	}
	if i := fs.IndexOf(2020); i != 2 {
		t.Fatalf("IndexOf(2020) = %d", i)
	}
	if i := fs.IndexOf(1999); i != -1 {
		t.Fatalf("IndexOf(1999) = %d", i)
	}
	if m := fs.MetricsFor(2019); m[MetricAdequacyIndex] != 0.19 {
		t.Fatalf("MetricsFor(2019) = %v", m)
	}
	if m := fs.MetricsFor(1999); m != nil {
		t.Fatalf("MetricsFor(1999) should be nil, got %v", m)
	}

	var nilSet *FrameSet
	if nilSet.Len() != 0 {
		t.Fatalf("nil set must have zero length")
	}
}
