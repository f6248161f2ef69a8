// Package config holds the process-wide settings for meshmap.
//
// Settings is an explicit value constructed once at startup and passed to the
// components that need it. There is no package-level cached instance; callers
// that want environment-backed defaults use FromEnv in main and hand the
// result down.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Settings collects every tunable the service reads at startup: storage
// location, HTTP listen address, and the presentation parameters for the
// heat layer on the map pages.
type Settings struct {
	// DatabasePath is the filesystem path of the SQLite database.
	DatabasePath string `json:"database_path"`

	// Listen is the HTTP listen address for the serve command.
	Listen string `json:"listen"`

	// MapTileURL overrides the tile layer used by the map pages. Empty
	// selects the default OpenStreetMap tiles client-side.
	MapTileURL string `json:"map_tile_url"`

	// Heat-layer rendering parameters.
	HeatmapMinOpacity float64 `json:"heatmap_min_opacity"`
	HeatmapRadius     int     `json:"heatmap_radius"`
	HeatmapBlur       int     `json:"heatmap_blur"`
	HeatmapMaxZoom    int     `json:"heatmap_max_zoom"`
}

// Defaults returns the built-in settings used when no environment overrides
// are present.
func Defaults() Settings {
	return Settings{
		DatabasePath:      "meshmap.db",
		Listen:            ":8080",
		HeatmapMinOpacity: 0.3,
		HeatmapRadius:     18,
		HeatmapBlur:       15,
		HeatmapMaxZoom:    18,
	}
}

// FromEnv builds Settings from the process environment on top of Defaults.
// Unset variables keep their default value; malformed numeric values are
// reported rather than silently ignored.
func FromEnv() (Settings, error) {
	s := Defaults()

	if v := os.Getenv("MESHMAP_DB"); v != "" {
		s.DatabasePath = v
	}
	if v := os.Getenv("MESHMAP_LISTEN"); v != "" {
		s.Listen = v
	}
	if v := os.Getenv("MAP_TILE_URL"); v != "" {
		s.MapTileURL = v
	}

	var err error
	if s.HeatmapMinOpacity, err = envFloat("HEATMAP_MIN_OPACITY", s.HeatmapMinOpacity); err != nil {
		return s, err
	}
	if s.HeatmapRadius, err = envInt("HEATMAP_RADIUS", s.HeatmapRadius); err != nil {
		return s, err
	}
	if s.HeatmapBlur, err = envInt("HEATMAP_BLUR", s.HeatmapBlur); err != nil {
		return s, err
	}
	if s.HeatmapMaxZoom, err = envInt("HEATMAP_MAX_ZOOM", s.HeatmapMaxZoom); err != nil {
		return s, err
	}

	return s, s.Validate()
}

// Validate checks the settings for values the renderer cannot work with.
func (s Settings) Validate() error {
	if s.DatabasePath == "" {
		return fmt.Errorf("database path must not be empty")
	}
	if s.HeatmapMinOpacity < 0 || s.HeatmapMinOpacity > 1 {
		return fmt.Errorf("heatmap min opacity %v out of range [0,1]", s.HeatmapMinOpacity)
	}
	if s.HeatmapRadius <= 0 {
		return fmt.Errorf("heatmap radius must be positive, got %d", s.HeatmapRadius)
	}
	if s.HeatmapBlur < 0 {
		return fmt.Errorf("heatmap blur must not be negative, got %d", s.HeatmapBlur)
	}
	if s.HeatmapMaxZoom <= 0 {
		return fmt.Errorf("heatmap max zoom must be positive, got %d", s.HeatmapMaxZoom)
	}
	return nil
}

func envFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback, fmt.Errorf("invalid %s=%q: %w", key, v, err)
	}
	return f, nil
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback, fmt.Errorf("invalid %s=%q: %w", key, v, err)
	}
	return n, nil
}
