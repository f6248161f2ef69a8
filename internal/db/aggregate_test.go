package db

import (
	"errors"
	"math"
	"sort"
	"testing"
	"time"
)

func TestParseMetric(t *testing.T) {
	for _, name := range MetricNames() {
		if _, err := ParseMetric(name); err != nil {
			t.Errorf("ParseMetric(%q) failed: %v", name, err)
		}
	}

	for _, name := range []string{"foo", "", "RSSI_DBM", "latitude", "id; DROP TABLE ping_samples"} {
		_, err := ParseMetric(name)
		if !errors.Is(err, ErrUnsupportedMetric) {
			t.Errorf("ParseMetric(%q) = %v, want ErrUnsupportedMetric", name, err)
		}
	}
}

func TestHeatmapFilterValidate(t *testing.T) {
	cases := []struct {
		hours int
		ok    bool
	}{
		// Zero is the internal "no time filter" sentinel; callers that
		// take an explicit hours value reject it before building a
		// filter.
		{0, true}, {1, true}, {24, true}, {168, true},
		{-1, false}, {169, false}, {10000, false},
	}

	for _, tc := range cases {
		err := HeatmapFilter{Hours: tc.hours}.Validate()
		if tc.ok && err != nil {
			t.Errorf("hours=%d rejected: %v", tc.hours, err)
		}
		if !tc.ok && !errors.Is(err, ErrInvalidWindow) {
			t.Errorf("hours=%d: err = %v, want ErrInvalidWindow", tc.hours, err)
		}
	}
}

// The worked example: three samples at (1,2) with RSSI -60/-70/-80 and one at
// (3,4) with -50 must aggregate to exactly two points with mean intensities
// -70 and -50.
func TestAggregateHeatmapGrouping(t *testing.T) {
	database := newTestDB(t)

	batch := []*Sample{
		geoSample(1.0, 2.0, -60),
		geoSample(1.0, 2.0, -70),
		geoSample(1.0, 2.0, -80),
		geoSample(3.0, 4.0, -50),
	}
	if err := database.InsertSamples(batch); err != nil {
		t.Fatalf("InsertSamples failed: %v", err)
	}

	points, err := database.AggregateHeatmap(MetricRSSI, HeatmapFilter{})
	if err != nil {
		t.Fatalf("AggregateHeatmap failed: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("got %d points, want 2", len(points))
	}

	sort.Slice(points, func(i, j int) bool { return points[i].Latitude < points[j].Latitude })

	if points[0].Latitude != 1.0 || points[0].Longitude != 2.0 {
		t.Errorf("first point at (%v,%v), want (1,2)", points[0].Latitude, points[0].Longitude)
	}
	if points[0].Intensity != -70.0 {
		t.Errorf("intensity at (1,2) = %v, want -70", points[0].Intensity)
	}
	if points[0].Samples != 3 {
		t.Errorf("samples at (1,2) = %d, want 3", points[0].Samples)
	}
	if points[1].Intensity != -50.0 || points[1].Samples != 1 {
		t.Errorf("point at (3,4) = %v/%d, want -50/1", points[1].Intensity, points[1].Samples)
	}
}

func TestAggregateHeatmapExcludesNullCoordinates(t *testing.T) {
	database := newTestDB(t)

	withCoords := geoSample(1, 2, -60)

	noLat := geoSample(0, 2, -90)
	noLat.Latitude = nil
	noLon := geoSample(1, 0, -90)
	noLon.Longitude = nil

	if err := database.InsertSamples([]*Sample{withCoords, noLat, noLon}); err != nil {
		t.Fatalf("InsertSamples failed: %v", err)
	}

	// All three are stored.
	count, err := database.CountSamples()
	if err != nil {
		t.Fatalf("CountSamples failed: %v", err)
	}
	if count != 3 {
		t.Fatalf("stored %d samples, want 3", count)
	}

	// Only the fully geotagged one aggregates.
	points, err := database.AggregateHeatmap(MetricRSSI, HeatmapFilter{})
	if err != nil {
		t.Fatalf("AggregateHeatmap failed: %v", err)
	}
	if len(points) != 1 {
		t.Fatalf("got %d points, want 1", len(points))
	}
	if points[0].Samples != 1 || points[0].Intensity != -60 {
		t.Errorf("point = %v/%d, want -60/1", points[0].Intensity, points[0].Samples)
	}
}

func TestAggregateHeatmapDropsAllNullMetricGroups(t *testing.T) {
	database := newTestDB(t)

	noMetric := geoSample(5, 6, 0)
	noMetric.RSSIDBm = nil

	mixed1 := geoSample(1, 2, -60)
	mixed2 := geoSample(1, 2, 0)
	mixed2.RSSIDBm = nil

	if err := database.InsertSamples([]*Sample{noMetric, mixed1, mixed2}); err != nil {
		t.Fatalf("InsertSamples failed: %v", err)
	}

	points, err := database.AggregateHeatmap(MetricRSSI, HeatmapFilter{})
	if err != nil {
		t.Fatalf("AggregateHeatmap failed: %v", err)
	}

	// (5,6) has only null RSSI and is dropped; (1,2) averages over the
	// single non-null contributor but still counts both rows.
	if len(points) != 1 {
		t.Fatalf("got %d points, want 1", len(points))
	}
	if points[0].Latitude != 1 || points[0].Intensity != -60 || points[0].Samples != 2 {
		t.Errorf("point = (%v, %v, %d), want (1, -60, 2)",
			points[0].Latitude, points[0].Intensity, points[0].Samples)
	}
}

func TestAggregateHeatmapTimeWindow(t *testing.T) {
	now := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	database, _ := newTestDBAt(t, now)

	recent := geoSample(1, 2, -60)
	recent.CreatedAt = now.Add(-30 * time.Minute)

	stale := geoSample(3, 4, -50)
	stale.CreatedAt = now.Add(-49 * time.Hour)

	if err := database.InsertSamples([]*Sample{recent, stale}); err != nil {
		t.Fatalf("InsertSamples failed: %v", err)
	}

	// 24h window sees only the recent sample.
	points, err := database.AggregateHeatmap(MetricRSSI, HeatmapFilter{Hours: 24})
	if err != nil {
		t.Fatalf("AggregateHeatmap failed: %v", err)
	}
	if len(points) != 1 {
		t.Fatalf("24h window: got %d points, want 1", len(points))
	}
	if points[0].Latitude != 1 {
		t.Errorf("24h window kept point at lat %v, want the recent one at 1", points[0].Latitude)
	}

	// No window sees both.
	points, err = database.AggregateHeatmap(MetricRSSI, HeatmapFilter{})
	if err != nil {
		t.Fatalf("AggregateHeatmap failed: %v", err)
	}
	if len(points) != 2 {
		t.Errorf("no window: got %d points, want 2", len(points))
	}

	// Out-of-range window fails validation before querying.
	if _, err := database.AggregateHeatmap(MetricRSSI, HeatmapFilter{Hours: 200}); !errors.Is(err, ErrInvalidWindow) {
		t.Errorf("hours=200: err = %v, want ErrInvalidWindow", err)
	}
}

func TestAggregateHeatmapEqualityFilters(t *testing.T) {
	database := newTestDB(t)

	heltec := geoSample(1, 2, -60)
	heltec.HardwareModel = strPtr("heltec_v3")
	heltec.AntennaModel = strPtr("stub")

	rak := geoSample(3, 4, -50)
	rak.HardwareModel = strPtr("rak4631")
	rak.AntennaModel = strPtr("blade")

	if err := database.InsertSamples([]*Sample{heltec, rak}); err != nil {
		t.Fatalf("InsertSamples failed: %v", err)
	}

	points, err := database.AggregateHeatmap(MetricRSSI, HeatmapFilter{HardwareModel: "heltec_v3"})
	if err != nil {
		t.Fatalf("AggregateHeatmap failed: %v", err)
	}
	if len(points) != 1 || points[0].Latitude != 1 {
		t.Errorf("hardware filter: got %d points, want only (1,2)", len(points))
	}

	points, err = database.AggregateHeatmap(MetricRSSI, HeatmapFilter{AntennaModel: "blade"})
	if err != nil {
		t.Fatalf("AggregateHeatmap failed: %v", err)
	}
	if len(points) != 1 || points[0].Latitude != 3 {
		t.Errorf("antenna filter: got %d points, want only (3,4)", len(points))
	}

	points, err = database.AggregateHeatmap(MetricRSSI, HeatmapFilter{HardwareModel: "tbeam"})
	if err != nil {
		t.Fatalf("AggregateHeatmap failed: %v", err)
	}
	if len(points) != 0 {
		t.Errorf("non-matching filter: got %d points, want 0", len(points))
	}
}

func TestAggregateHeatmapAuxiliaryAggregates(t *testing.T) {
	now := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	database, _ := newTestDBAt(t, now)

	first := geoSample(1, 2, -60)
	first.CreatedAt = now.Add(-2 * time.Hour)
	first.AntennaGainDBi = floatPtr(2.0)
	first.TxPowerDBm = floatPtr(17)
	first.HardwareModel = strPtr("heltec_v3")

	second := geoSample(1, 2, -70)
	second.CreatedAt = now.Add(-1 * time.Hour)
	second.AntennaGainDBi = floatPtr(4.0)
	second.TxPowerDBm = floatPtr(21)
	second.HardwareModel = strPtr("rak4631")

	if err := database.InsertSamples([]*Sample{first, second}); err != nil {
		t.Fatalf("InsertSamples failed: %v", err)
	}

	points, err := database.AggregateHeatmap(MetricRSSI, HeatmapFilter{})
	if err != nil {
		t.Fatalf("AggregateHeatmap failed: %v", err)
	}
	if len(points) != 1 {
		t.Fatalf("got %d points, want 1", len(points))
	}

	p := points[0]
	if !p.LatestSeen.Equal(now.Add(-1 * time.Hour)) {
		t.Errorf("LatestSeen = %v, want %v", p.LatestSeen, now.Add(-1*time.Hour))
	}
	if p.AntennaGainDBi == nil || math.Abs(*p.AntennaGainDBi-3.0) > 1e-9 {
		t.Errorf("AntennaGainDBi = %v, want 3.0", p.AntennaGainDBi)
	}
	if p.TxPowerDBm == nil || math.Abs(*p.TxPowerDBm-19.0) > 1e-9 {
		t.Errorf("TxPowerDBm = %v, want 19.0", p.TxPowerDBm)
	}
	// MAX over the string values.
	if p.HardwareModel == nil || *p.HardwareModel != "rak4631" {
		t.Errorf("HardwareModel = %v, want rak4631", p.HardwareModel)
	}
}

func TestAggregateHeatmapOtherMetrics(t *testing.T) {
	database := newTestDB(t)

	s := geoSample(1, 2, -60)
	s.SNRDb = floatPtr(8.5)
	s.RoundTripMs = floatPtr(350)
	if err := database.InsertSample(s); err != nil {
		t.Fatalf("InsertSample failed: %v", err)
	}

	snr, err := database.AggregateHeatmap(MetricSNR, HeatmapFilter{})
	if err != nil {
		t.Fatalf("AggregateHeatmap(snr) failed: %v", err)
	}
	if len(snr) != 1 || snr[0].Intensity != 8.5 {
		t.Errorf("snr aggregation = %+v, want one point at 8.5", snr)
	}

	rtt, err := database.AggregateHeatmap(MetricRoundTrip, HeatmapFilter{})
	if err != nil {
		t.Fatalf("AggregateHeatmap(round_trip_ms) failed: %v", err)
	}
	if len(rtt) != 1 || rtt[0].Intensity != 350 {
		t.Errorf("rtt aggregation = %+v, want one point at 350", rtt)
	}
}

func TestAggregateHeatmapRejectsUnknownMetricBeforeQuery(t *testing.T) {
	database := newTestDB(t)
	database.Close() // any query attempt would fail loudly

	_, err := database.AggregateHeatmap(Metric("foo"), HeatmapFilter{})
	if !errors.Is(err, ErrUnsupportedMetric) {
		t.Errorf("err = %v, want ErrUnsupportedMetric", err)
	}
}
