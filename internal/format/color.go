// Package format turns raw adequacy figures into display values: badge colors,
// magnitude strings and status labels. Every function here is pure.
package format

import (
	"fmt"
	"image/color"
	"math"
)

// Stop is one anchor of the adequacy gradient.
type Stop struct {
	At    float64
	Color color.RGBA
}

// Gradient anchors, ordered by At. Inputs outside [-0.5, 0.5] clamp to the ends.
var gradient = []Stop{
	{At: -0.5, Color: color.RGBA{R: 0xe0, G: 0x4a, B: 0x3a, A: 0xff}}, // deficit
	{At: -0.1, Color: color.RGBA{R: 0xf0, G: 0xe6, B: 0x4f, A: 0xff}},
	{At: 0, Color: color.RGBA{R: 0x63, G: 0xd8, B: 0x6b, A: 0xff}},   // balanced
	{At: 0.5, Color: color.RGBA{R: 0x39, G: 0xc6, B: 0xd6, A: 0xff}}, // surplus
}

// BalancedColor is the badge color for a zero adequacy index.
const BalancedColor = "#63d86b"

// Stops returns a copy of the gradient anchors.
func Stops() []Stop {
	out := make([]Stop, len(gradient))
	copy(out, gradient)
	return out
}

// ValueToColor maps an adequacy fraction to a hex color along the gradient.
func ValueToColor(x float64) string {
	return Hex(ValueToRGBA(x))
}

// ValueToRGBA is ValueToColor without the hex encoding.
func ValueToRGBA(x float64) color.RGBA {
	if math.IsNaN(x) {
		x = 0
	}
	first, last := gradient[0], gradient[len(gradient)-1]
	if x <= first.At {
		return first.Color
	}
	if x >= last.At {
		return last.Color
	}
	for i := 1; i < len(gradient); i++ {
		hi := gradient[i]
		if x > hi.At {
			continue
		}
		if x == hi.At {
			return hi.Color
		}
		lo := gradient[i-1]
		t := (x - lo.At) / (hi.At - lo.At)
		return color.RGBA{
			R: lerp(lo.Color.R, hi.Color.R, t),
			G: lerp(lo.Color.G, hi.Color.G, t),
			B: lerp(lo.Color.B, hi.Color.B, t),
			A: 0xff,
		}
	}
	return last.Color
}

// Hex encodes c as #rrggbb.
func Hex(c color.RGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

func lerp(a, b uint8, t float64) uint8 {
	return uint8(math.Round(float64(a) + (float64(b)-float64(a))*t))
}
