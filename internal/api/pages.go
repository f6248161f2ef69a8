package api

import (
	"embed"
	"html/template"
	"net/http"

	"github.com/meshmap-dev/meshmap/internal/httputil"
)

//go:embed templates/*
var templateFS embed.FS

var dashboardTemplate = template.Must(template.ParseFS(templateFS, "templates/dashboard.html.tmpl"))

// pageContext feeds the dashboard template: the tile source, heat-layer
// styling, and the filter/refresh behavior that distinguishes the live view
// from the full-dataset view.
type pageContext struct {
	MapTileURL        string
	HeatmapMinOpacity float64
	HeatmapRadius     int
	HeatmapBlur       int
	HeatmapMaxZoom    int
	FiltersEnabled    bool
	AutoRefreshMs     int
}

// dashboardPage handles GET /: the live heatmap view with filter controls and
// a 30 second refresh.
func (s *Server) dashboardPage(w http.ResponseWriter, r *http.Request) {
	// The root pattern matches everything; anything but "/" is a miss.
	if r.URL.Path != "/" {
		httputil.NotFound(w, "not found")
		return
	}
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	s.renderPage(w, pageContext{
		MapTileURL:        s.settings.MapTileURL,
		HeatmapMinOpacity: s.settings.HeatmapMinOpacity,
		HeatmapRadius:     s.settings.HeatmapRadius,
		HeatmapBlur:       s.settings.HeatmapBlur,
		HeatmapMaxZoom:    s.settings.HeatmapMaxZoom,
		FiltersEnabled:    true,
		AutoRefreshMs:     30000,
	})
}

// fullHeatmapPage handles GET /heatmap/full: the whole dataset with no filter
// controls and a slower refresh.
func (s *Server) fullHeatmapPage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	s.renderPage(w, pageContext{
		MapTileURL:        s.settings.MapTileURL,
		HeatmapMinOpacity: s.settings.HeatmapMinOpacity,
		HeatmapRadius:     s.settings.HeatmapRadius,
		HeatmapBlur:       s.settings.HeatmapBlur,
		HeatmapMaxZoom:    s.settings.HeatmapMaxZoom,
		FiltersEnabled:    false,
		AutoRefreshMs:     60000,
	})
}

func (s *Server) renderPage(w http.ResponseWriter, ctx pageContext) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := dashboardTemplate.Execute(w, ctx); err != nil {
		httputil.InternalServerError(w, "failed to render page")
	}
}
