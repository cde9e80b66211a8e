package format

import (
	"fmt"
	"math"

	"grid_adequacy/internal/models"
)

// Sentinel is rendered for values that are not finite numbers.
const Sentinel = "-"

var units = []struct {
	scale  float64
	suffix string
}{
	{1e12, "T"},
	{1e9, "B"},
	{1e6, "M"},
	{1e3, "K"},
}

// FormatMagnitude renders n with the largest fitting unit suffix and two decimals.
func FormatMagnitude(n float64) string {
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return Sentinel
	}
	for _, u := range units {
		if n >= u.scale {
			return fmt.Sprintf("%.2f%s", n/u.scale, u.suffix)
		}
	}
	return fmt.Sprintf("%.2f", n)
}

// FormatMetric formats metric key of m. A missing metric counts as zero.
func FormatMetric(m models.Metrics, key string) string {
	v, ok := m[key]
	if !ok {
		v = 0
	}
	return FormatMagnitude(v)
}

// AdequacyPercent rounds x*100 half-up to an integer percent.
func AdequacyPercent(x float64) int {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return int(math.Floor(x*100 + 0.5))
}
