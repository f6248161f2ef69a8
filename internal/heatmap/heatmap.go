// Package heatmap turns aggregated telemetry points into the JSON envelope
// served to the dashboard and the static HTML export.
package heatmap

import (
	"errors"

	"github.com/meshmap-dev/meshmap/internal/db"
)

// ErrEmptyDataset is returned when an HTML render is requested for zero
// points. The JSON envelope stays permissive on the same condition: an empty
// overlay is a valid dashboard state, a file export of nothing is a user
// error.
var ErrEmptyDataset = errors.New("no heatmap points available to render")

// Envelope is the JSON payload for a heatmap layer.
type Envelope struct {
	Metric   string               `json:"metric"`
	Points   []db.AggregatedPoint `json:"points"`
	MinValue *float64             `json:"min_value"`
	MaxValue *float64             `json:"max_value"`
}

// BuildEnvelope wraps aggregated points with the min/max intensity across the
// set. Min and max are null when the point set is empty.
func BuildEnvelope(metric db.Metric, points []db.AggregatedPoint) Envelope {
	env := Envelope{
		Metric: string(metric),
		Points: points,
	}
	if len(points) == 0 {
		// Keep an empty array rather than null in the JSON output.
		env.Points = []db.AggregatedPoint{}
		return env
	}

	min := points[0].Intensity
	max := points[0].Intensity
	for _, p := range points[1:] {
		if p.Intensity < min {
			min = p.Intensity
		}
		if p.Intensity > max {
			max = p.Intensity
		}
	}
	env.MinValue = &min
	env.MaxValue = &max
	return env
}
