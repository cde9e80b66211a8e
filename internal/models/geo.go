package models

import geojson "github.com/paulmach/go.geojson"

// WeightProperty is the per-feature density weight read by the heatmap layer.
const WeightProperty = "v"

// GeoLayer is the resolved geography for one year.
type GeoLayer struct {
	Year       Year                       `json:"year"`
	Collection *geojson.FeatureCollection `json:"collection"`
}

// EmptyCollection returns a FeatureCollection with no features.
func EmptyCollection() *geojson.FeatureCollection {
	return geojson.NewFeatureCollection()
}
