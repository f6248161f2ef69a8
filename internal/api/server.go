// Package api exposes the HTTP surface: sample ingestion, heatmap queries,
// and the dashboard pages.
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/meshmap-dev/meshmap/internal/config"
	"github.com/meshmap-dev/meshmap/internal/db"
	"github.com/meshmap-dev/meshmap/internal/monitoring"
	"github.com/meshmap-dev/meshmap/internal/timeutil"
)

// ANSI escape codes for request logging
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Server holds the dependencies of the HTTP handlers.
type Server struct {
	db       *db.DB
	settings config.Settings
	clock    timeutil.Clock
}

// NewServer creates an API server over the given database and settings.
func NewServer(database *db.DB, settings config.Settings) *Server {
	return &Server{
		db:       database,
		settings: settings,
		clock:    timeutil.RealClock{},
	}
}

// SetClock replaces the server clock. Tests use this to pin time.
func (s *Server) SetClock(c timeutil.Clock) {
	s.clock = c
}

// ServeMux returns the route table for the public API.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/samples", s.createSample)
	mux.HandleFunc("/samples/bulk", s.createSampleBatch)
	mux.HandleFunc("/samples/recent", s.listRecentSamples)
	mux.HandleFunc("/heatmap", s.getHeatmap)
	mux.HandleFunc("/heatmap/full", s.fullHeatmapPage)
	mux.HandleFunc("/health", s.healthcheck)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/", s.dashboardPage)
	return mux
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}
