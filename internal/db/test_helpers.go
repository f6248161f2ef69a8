package db

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/meshmap-dev/meshmap/internal/timeutil"
)

// Helper functions for creating pointer values
func strPtr(s string) *string {
	return &s
}

func floatPtr(f float64) *float64 {
	return &f
}

// newTestDB opens a migrated database in a per-test temp directory.
func newTestDB(t *testing.T) *DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "meshmap_test.db")
	database, err := NewDB(path)
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	return database
}

// newTestDBAt opens a migrated test database with a pinned clock.
func newTestDBAt(t *testing.T, now time.Time) (*DB, *timeutil.MockClock) {
	t.Helper()

	database := newTestDB(t)
	clock := timeutil.NewMockClock(now)
	database.SetClock(clock)
	return database, clock
}

// geoSample builds a minimal geotagged sample with an RSSI reading.
func geoSample(lat, lon, rssi float64) *Sample {
	return &Sample{
		OriginNodeID: "node-a",
		TargetNodeID: "node-b",
		Latitude:     floatPtr(lat),
		Longitude:    floatPtr(lon),
		RSSIDBm:      floatPtr(rssi),
	}
}
