package heatmap

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/gonum/stat"

	"github.com/meshmap-dev/meshmap/internal/db"
)

// viridis ramp, low to high intensity.
var heatColors = []string{
	"#440154", "#482777", "#3e4989", "#31688e", "#26828e",
	"#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725",
}

// RenderHTML writes a standalone HTML document plotting the aggregated points
// as an intensity-weighted scatter over a longitude/latitude plane. The view
// is centered on the arithmetic mean of the point coordinates and each marker
// carries a tooltip with the metric value, contributing sample count, and
// antenna gain.
func RenderHTML(w io.Writer, metric db.Metric, points []db.AggregatedPoint) error {
	if len(points) == 0 {
		return ErrEmptyDataset
	}

	lats := make([]float64, len(points))
	lons := make([]float64, len(points))
	minIntensity := points[0].Intensity
	maxIntensity := points[0].Intensity

	data := make([]opts.ScatterData, 0, len(points))
	for i, p := range points {
		lats[i] = p.Latitude
		lons[i] = p.Longitude
		if p.Intensity < minIntensity {
			minIntensity = p.Intensity
		}
		if p.Intensity > maxIntensity {
			maxIntensity = p.Intensity
		}

		data = append(data, opts.ScatterData{
			Name:  pointLabel(metric, p),
			Value: []interface{}{p.Longitude, p.Latitude, p.Intensity},
		})
	}

	centerLat := stat.Mean(lats, nil)
	centerLon := stat.Mean(lons, nil)

	// Pad the axis ranges around the center so a single point is still
	// visible.
	halfSpan := maxSpread(lats, centerLat, lons, centerLon) * 1.1
	if halfSpan == 0 {
		halfSpan = 0.05
	}

	if maxIntensity == minIntensity {
		maxIntensity = minIntensity + 1
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: fmt.Sprintf("Mesh heatmap: %s", metric),
			Width:     "900px",
			Height:    "900px",
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Mesh telemetry heatmap",
			Subtitle: fmt.Sprintf("metric=%s points=%d", metric, len(points)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "item", Formatter: "{b}"}),
		charts.WithXAxisOpts(opts.XAxis{
			Min: centerLon - halfSpan, Max: centerLon + halfSpan,
			Name: "Longitude", NameLocation: "middle", NameGap: 25,
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Min: centerLat - halfSpan, Max: centerLat + halfSpan,
			Name: "Latitude", NameLocation: "middle", NameGap: 30,
		}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        float32(minIntensity),
			Max:        float32(maxIntensity),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: heatColors},
		}),
	)

	scatter.AddSeries(string(metric), data,
		charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 14}))

	return scatter.Render(w)
}

// WriteFile renders the HTML export to path, creating parent directories as
// needed. Nothing is written when the point set is empty.
func WriteFile(path string, metric db.Metric, points []db.AggregatedPoint) error {
	// Render to memory first so a failed render leaves no partial file.
	var buf bytes.Buffer
	if err := RenderHTML(&buf, metric, points); err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write heatmap file: %w", err)
	}
	return nil
}

func pointLabel(metric db.Metric, p db.AggregatedPoint) string {
	gain := "n/a"
	if p.AntennaGainDBi != nil {
		gain = fmt.Sprintf("%.1f", *p.AntennaGainDBi)
	}
	return fmt.Sprintf("%s: %.1f / Samples: %d / Antenna gain: %s dBi",
		metric, p.Intensity, p.Samples, gain)
}

// maxSpread returns the largest absolute deviation of any coordinate from the
// center, in degrees.
func maxSpread(lats []float64, centerLat float64, lons []float64, centerLon float64) float64 {
	spread := 0.0
	for _, v := range lats {
		if d := abs(v - centerLat); d > spread {
			spread = d
		}
	}
	for _, v := range lons {
		if d := abs(v - centerLon); d > spread {
			spread = d
		}
	}
	return spread
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
