package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/meshmap-dev/meshmap/internal/monitoring"
)

// Metric identifies the telemetry field a heatmap aggregates over. The set is
// closed: metric names map to column references through metricColumns and
// nothing else, so an unknown name can never reach the query builder.
type Metric string

const (
	MetricRSSI      Metric = "rssi_dbm"
	MetricSNR       Metric = "snr_db"
	MetricRoundTrip Metric = "round_trip_ms"
)

var metricColumns = map[Metric]string{
	MetricRSSI:      "rssi_dbm",
	MetricSNR:       "snr_db",
	MetricRoundTrip: "round_trip_ms",
}

// ErrUnsupportedMetric rejects metric names outside the closed set before any
// query executes.
var ErrUnsupportedMetric = errors.New("unsupported metric")

// ErrInvalidWindow rejects lookback windows outside [1,168] hours.
var ErrInvalidWindow = errors.New("lookback window out of range")

// ParseMetric validates a metric name against the closed set.
func ParseMetric(name string) (Metric, error) {
	m := Metric(name)
	if _, ok := metricColumns[m]; !ok {
		return "", fmt.Errorf("%w: %q (supported: %s)", ErrUnsupportedMetric, name, strings.Join(MetricNames(), ", "))
	}
	return m, nil
}

// MetricNames lists the supported metric names for help text and errors.
func MetricNames() []string {
	return []string{string(MetricRSSI), string(MetricSNR), string(MetricRoundTrip)}
}

// HeatmapFilter narrows the sample set an aggregation runs over. The zero
// value applies no filtering at all.
type HeatmapFilter struct {
	// Hours limits aggregation to samples within the last N hours.
	// Zero means no time filter; otherwise the value must be in [1,168].
	Hours int

	// HardwareModel and AntennaModel are exact-match filters when non-empty.
	HardwareModel string
	AntennaModel  string
}

// Validate checks the lookback window bounds.
func (f HeatmapFilter) Validate() error {
	if f.Hours != 0 && (f.Hours < 1 || f.Hours > 168) {
		return fmt.Errorf("%w: hours must be between 1 and 168, got %d", ErrInvalidWindow, f.Hours)
	}
	return nil
}

// AggregatedPoint is the per-coordinate summary derived from one or more
// samples. It is recomputed on every query and never persisted.
type AggregatedPoint struct {
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Intensity  float64   `json:"intensity"`
	Samples    int       `json:"samples"`
	LatestSeen time.Time `json:"latest_seen"`

	AntennaGainDBi *float64 `json:"antenna_gain_dbi"`
	TxPowerDBm     *float64 `json:"tx_power_dbm"`
	HardwareModel  *string  `json:"hardware_model"`
}

// AggregateHeatmap groups the filtered samples by exact (latitude, longitude)
// and computes per group the mean of the chosen metric, the contributing
// sample count, the most recent timestamp, mean antenna gain, mean transmit
// power, and a representative hardware model (maximum string value). Samples
// with a null coordinate never contribute; groups whose metric mean is null
// (every contributor null) are dropped.
func (db *DB) AggregateHeatmap(metric Metric, filter HeatmapFilter) ([]AggregatedPoint, error) {
	column, ok := metricColumns[metric]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMetric, metric)
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	monitoring.HeatmapQueries.WithLabelValues(string(metric)).Inc()
	start := db.clock.Now()
	defer func() {
		monitoring.QueryDuration.Observe(db.clock.Since(start).Seconds())
	}()

	// column comes from the metricColumns whitelist above, never from input.
	query := `SELECT latitude, longitude,
			AVG(` + column + `) AS metric_value,
			COUNT(id) AS sample_count,
			MAX(created_at) AS latest_seen,
			AVG(antenna_gain_dbi) AS antenna_gain,
			AVG(tx_power_dbm) AS tx_power,
			MAX(hardware_model) AS hardware_model
		FROM ping_samples
		WHERE latitude IS NOT NULL AND longitude IS NOT NULL`

	var args []interface{}

	if filter.Hours > 0 {
		cutoff := db.clock.Now().UTC().Add(-time.Duration(filter.Hours) * time.Hour)
		query += ` AND created_at >= ?`
		args = append(args, cutoff.Unix())
	}
	if filter.HardwareModel != "" {
		query += ` AND hardware_model = ?`
		args = append(args, filter.HardwareModel)
	}
	if filter.AntennaModel != "" {
		query += ` AND antenna_model = ?`
		args = append(args, filter.AntennaModel)
	}

	query += ` GROUP BY latitude, longitude`

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to run aggregation query: %w", err)
	}
	defer rows.Close()

	var points []AggregatedPoint
	for rows.Next() {
		var (
			lat, lon    float64
			metricValue sql.NullFloat64
			sampleCount int
			latestUnix  int64
			gain, power sql.NullFloat64
			hardware    sql.NullString
		)

		if err := rows.Scan(&lat, &lon, &metricValue, &sampleCount, &latestUnix, &gain, &power, &hardware); err != nil {
			return nil, fmt.Errorf("failed to scan aggregated point: %w", err)
		}

		// Every contributor had a null metric value; nothing to plot.
		if !metricValue.Valid {
			continue
		}

		p := AggregatedPoint{
			Latitude:   lat,
			Longitude:  lon,
			Intensity:  metricValue.Float64,
			Samples:    sampleCount,
			LatestSeen: time.Unix(latestUnix, 0).UTC(),
		}
		if gain.Valid {
			p.AntennaGainDBi = &gain.Float64
		}
		if power.Valid {
			p.TxPowerDBm = &power.Float64
		}
		if hardware.Valid {
			p.HardwareModel = &hardware.String
		}

		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return points, nil
}
