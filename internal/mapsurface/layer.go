package mapsurface

// Names of the single source and layer registered on the surface.
const (
	SourceName = "heat"
	LayerID    = "heat-layer"
	layerType  = "heatmap"
)

// MapOptions configure surface creation.
type MapOptions struct {
	Style   string     `json:"style"`
	Center  [2]float64 `json:"center"` // lon, lat
	Zoom    float64    `json:"zoom"`
	Pitch   float64    `json:"pitch"`
	Bearing float64    `json:"bearing"`
}

// Layer describes a style layer bound to a source.
type Layer struct {
	ID     string         `json:"id"`
	Type   string         `json:"type"`
	Source string         `json:"source"`
	Paint  map[string]any `json:"paint"`
}

// HeatLayer is the density layer over SourceName. Feature weight "v" maps
// -0.5..0.5 onto 0..1; intensity and radius grow with zoom.
func HeatLayer() Layer {
	return Layer{
		ID:     LayerID,
		Type:   layerType,
		Source: SourceName,
		Paint: map[string]any{
			"heatmap-weight":    []any{"interpolate", []any{"linear"}, []any{"get", "v"}, -0.5, 0, 0.5, 1},
			"heatmap-intensity": []any{"interpolate", []any{"linear"}, []any{"zoom"}, 4, 0.6, 7, 1.35},
			"heatmap-radius":    []any{"interpolate", []any{"linear"}, []any{"zoom"}, 4, 18, 7, 34},
			"heatmap-opacity":   0.92,
			"heatmap-color": []any{
				"interpolate", []any{"linear"}, []any{"heatmap-density"},
				0, "rgba(0,0,0,0)",
				0.2, "#39c6d6",
				0.45, "#63d86b",
				0.7, "#f0e64f",
				1.0, "#e04a3a",
			},
		},
	}
}
