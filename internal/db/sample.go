package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrEmptyBatch is returned when a bulk insert is attempted with no samples.
// The batch is rejected before any storage work happens.
var ErrEmptyBatch = errors.New("no samples provided")

// Sample is one recorded radio exchange between two mesh nodes. Optional
// fields use pointers so that absent telemetry stays NULL in storage and is
// distinguishable from a measured zero.
type Sample struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"created_at"`

	OriginNodeID string `json:"origin_node_id"`
	TargetNodeID string `json:"target_node_id"`

	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	AltitudeM *float64 `json:"altitude_m"`

	RSSIDBm     *float64 `json:"rssi_dbm"`
	SNRDb       *float64 `json:"snr_db"`
	RoundTripMs *float64 `json:"round_trip_ms"`

	HardwareModel       *string  `json:"hardware_model"`
	FirmwareVersion     *string  `json:"firmware_version"`
	AntennaModel        *string  `json:"antenna_model"`
	AntennaGainDBi      *float64 `json:"antenna_gain_dbi"`
	AntennaPolarization *string  `json:"antenna_polarization"`
	TxPowerDBm          *float64 `json:"tx_power_dbm"`
	FrequencyMHz        *float64 `json:"frequency_mhz"`

	ChannelID *string `json:"channel_id"`
	Region    *string `json:"region"`
}

// FlexTime accepts timestamps either as a numeric UNIX epoch (seconds,
// fractional allowed) or as an RFC 3339 string. Either form is normalized to
// UTC on decode.
type FlexTime struct {
	time.Time
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *FlexTime) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		t.Time = time.Time{}
		return nil
	}

	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		parsed, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return fmt.Errorf("invalid timestamp %q: %w", s, err)
		}
		t.Time = parsed.UTC()
		return nil
	}

	var epoch float64
	if err := json.Unmarshal(b, &epoch); err != nil {
		return fmt.Errorf("invalid timestamp %s: %w", b, err)
	}
	sec, frac := math.Modf(epoch)
	t.Time = time.Unix(int64(sec), int64(frac*1e9)).UTC()
	return nil
}

// MarshalJSON implements json.Marshaler using RFC 3339.
func (t FlexTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Time.UTC().Format(time.RFC3339))
}

// SampleInput is the wire form accepted by the ingestion surfaces (HTTP, CLI
// file import, serial). It mirrors Sample minus the server-assigned fields.
type SampleInput struct {
	OriginNodeID string    `json:"origin_node_id"`
	TargetNodeID string    `json:"target_node_id"`
	Timestamp    *FlexTime `json:"timestamp,omitempty"`

	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	AltitudeM *float64 `json:"altitude_m,omitempty"`

	RSSIDBm     *float64 `json:"rssi_dbm,omitempty"`
	SNRDb       *float64 `json:"snr_db,omitempty"`
	RoundTripMs *float64 `json:"round_trip_ms,omitempty"`

	HardwareModel       *string  `json:"hardware_model,omitempty"`
	FirmwareVersion     *string  `json:"firmware_version,omitempty"`
	AntennaModel        *string  `json:"antenna_model,omitempty"`
	AntennaGainDBi      *float64 `json:"antenna_gain_dbi,omitempty"`
	AntennaPolarization *string  `json:"antenna_polarization,omitempty"`
	TxPowerDBm          *float64 `json:"tx_power_dbm,omitempty"`
	FrequencyMHz        *float64 `json:"frequency_mhz,omitempty"`

	ChannelID *string `json:"channel_id,omitempty"`
	Region    *string `json:"region,omitempty"`
}

// Validate enforces the sample invariants: node ids present and non-empty,
// coordinates within bounds when supplied. A sample with only one of
// latitude/longitude set is legal to store; it just never aggregates.
func (in *SampleInput) Validate() error {
	if in.OriginNodeID == "" {
		return fmt.Errorf("origin_node_id is required")
	}
	if in.TargetNodeID == "" {
		return fmt.Errorf("target_node_id is required")
	}
	if in.Latitude != nil && (*in.Latitude < -90 || *in.Latitude > 90) {
		return fmt.Errorf("latitude %v out of range [-90,90]", *in.Latitude)
	}
	if in.Longitude != nil && (*in.Longitude < -180 || *in.Longitude > 180) {
		return fmt.Errorf("longitude %v out of range [-180,180]", *in.Longitude)
	}
	return nil
}

// Sample converts the input to a storable record, assigning now (UTC) when no
// timestamp was supplied.
func (in *SampleInput) Sample(now time.Time) *Sample {
	createdAt := now.UTC()
	if in.Timestamp != nil && !in.Timestamp.IsZero() {
		createdAt = in.Timestamp.UTC()
	}

	return &Sample{
		CreatedAt:           createdAt,
		OriginNodeID:        in.OriginNodeID,
		TargetNodeID:        in.TargetNodeID,
		Latitude:            in.Latitude,
		Longitude:           in.Longitude,
		AltitudeM:           in.AltitudeM,
		RSSIDBm:             in.RSSIDBm,
		SNRDb:               in.SNRDb,
		RoundTripMs:         in.RoundTripMs,
		HardwareModel:       in.HardwareModel,
		FirmwareVersion:     in.FirmwareVersion,
		AntennaModel:        in.AntennaModel,
		AntennaGainDBi:      in.AntennaGainDBi,
		AntennaPolarization: in.AntennaPolarization,
		TxPowerDBm:          in.TxPowerDBm,
		FrequencyMHz:        in.FrequencyMHz,
		ChannelID:           in.ChannelID,
		Region:              in.Region,
	}
}

const sampleColumns = `created_at, origin_node_id, target_node_id,
		latitude, longitude, altitude_m,
		rssi_dbm, snr_db, round_trip_ms,
		hardware_model, firmware_version, antenna_model, antenna_gain_dbi,
		antenna_polarization, tx_power_dbm, frequency_mhz, channel_id, region`

const insertSampleQuery = `INSERT INTO ping_samples (` + sampleColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// execer covers both *sql.DB and *sql.Tx so single and bulk inserts share one
// code path.
type execer interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
}

func insertSample(e execer, s *Sample) error {
	result, err := e.Exec(insertSampleQuery,
		s.CreatedAt.Unix(),
		s.OriginNodeID,
		s.TargetNodeID,
		s.Latitude,
		s.Longitude,
		s.AltitudeM,
		s.RSSIDBm,
		s.SNRDb,
		s.RoundTripMs,
		s.HardwareModel,
		s.FirmwareVersion,
		s.AntennaModel,
		s.AntennaGainDBi,
		s.AntennaPolarization,
		s.TxPowerDBm,
		s.FrequencyMHz,
		s.ChannelID,
		s.Region,
	)
	if err != nil {
		return fmt.Errorf("failed to insert sample: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID: %w", err)
	}

	s.ID = id
	return nil
}

// InsertSample stores one sample, assigning its surrogate id and, when the
// record carries no timestamp, the current UTC time.
func (db *DB) InsertSample(s *Sample) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = db.clock.Now().UTC()
	}
	return insertSample(db.DB, s)
}

// InsertSamples stores a batch of samples in a single transaction. The batch
// is all-or-nothing: any storage constraint violation rolls back every row.
// An empty batch is rejected with ErrEmptyBatch before the transaction opens.
func (db *DB) InsertSamples(samples []*Sample) error {
	if len(samples) == 0 {
		return ErrEmptyBatch
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := db.clock.Now().UTC()
	for _, s := range samples {
		if s.CreatedAt.IsZero() {
			s.CreatedAt = now
		}
		if err := insertSample(tx, s); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

// RecentSamples returns up to limit samples ordered newest first.
func (db *DB) RecentSamples(limit int) ([]Sample, error) {
	rows, err := db.Query(`SELECT id, `+sampleColumns+`
		FROM ping_samples ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent samples: %w", err)
	}
	defer rows.Close()

	var samples []Sample
	for rows.Next() {
		var s Sample
		var createdAtUnix int64

		if err := rows.Scan(
			&s.ID,
			&createdAtUnix,
			&s.OriginNodeID,
			&s.TargetNodeID,
			&s.Latitude,
			&s.Longitude,
			&s.AltitudeM,
			&s.RSSIDBm,
			&s.SNRDb,
			&s.RoundTripMs,
			&s.HardwareModel,
			&s.FirmwareVersion,
			&s.AntennaModel,
			&s.AntennaGainDBi,
			&s.AntennaPolarization,
			&s.TxPowerDBm,
			&s.FrequencyMHz,
			&s.ChannelID,
			&s.Region,
		); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}

		s.CreatedAt = time.Unix(createdAtUnix, 0).UTC()
		samples = append(samples, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return samples, nil
}

// CountSamples returns the total number of stored samples.
func (db *DB) CountSamples() (int64, error) {
	var count int64
	if err := db.QueryRow(`SELECT COUNT(*) FROM ping_samples`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count samples: %w", err)
	}
	return count, nil
}
