package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/meshmap-dev/meshmap/internal/db"
	"github.com/meshmap-dev/meshmap/internal/heatmap"
	"github.com/meshmap-dev/meshmap/internal/httputil"
	"github.com/meshmap-dev/meshmap/internal/monitoring"
)

const (
	defaultRecentLimit = 25
	maxRecentLimit     = 500
)

// createSample handles POST /samples: validate and store one sample.
func (s *Server) createSample(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	var in db.SampleInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		monitoring.IngestErrors.WithLabelValues("http").Inc()
		httputil.BadRequest(w, "invalid sample payload: "+err.Error())
		return
	}
	if err := in.Validate(); err != nil {
		monitoring.IngestErrors.WithLabelValues("http").Inc()
		httputil.BadRequest(w, err.Error())
		return
	}

	sample := in.Sample(s.clock.Now())
	if err := s.db.InsertSample(sample); err != nil {
		monitoring.IngestErrors.WithLabelValues("http").Inc()
		httputil.InternalServerError(w, "failed to store sample: "+err.Error())
		return
	}

	monitoring.SamplesIngested.WithLabelValues("http").Inc()
	httputil.WriteJSONCreated(w, sample)
}

// batchResponse is the envelope returned by the bulk endpoint.
type batchResponse struct {
	BatchID string       `json:"batch_id"`
	Samples []*db.Sample `json:"samples"`
}

// createSampleBatch handles POST /samples/bulk: validate and store a batch of
// samples in one all-or-nothing transaction.
func (s *Server) createSampleBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	var inputs []db.SampleInput
	if err := json.NewDecoder(r.Body).Decode(&inputs); err != nil {
		monitoring.IngestErrors.WithLabelValues("http").Inc()
		httputil.BadRequest(w, "invalid sample list: "+err.Error())
		return
	}
	if len(inputs) == 0 {
		monitoring.IngestErrors.WithLabelValues("http").Inc()
		httputil.BadRequest(w, db.ErrEmptyBatch.Error())
		return
	}

	now := s.clock.Now()
	samples := make([]*db.Sample, 0, len(inputs))
	for i := range inputs {
		if err := inputs[i].Validate(); err != nil {
			monitoring.IngestErrors.WithLabelValues("http").Inc()
			httputil.BadRequest(w, "sample "+strconv.Itoa(i)+": "+err.Error())
			return
		}
		samples = append(samples, inputs[i].Sample(now))
	}

	if err := s.db.InsertSamples(samples); err != nil {
		monitoring.IngestErrors.WithLabelValues("http").Inc()
		if errors.Is(err, db.ErrEmptyBatch) {
			httputil.BadRequest(w, err.Error())
			return
		}
		httputil.InternalServerError(w, "failed to store batch: "+err.Error())
		return
	}

	batchID := uuid.NewString()
	monitoring.SamplesIngested.WithLabelValues("http").Add(float64(len(samples)))
	monitoring.Logf("stored batch %s with %d samples", batchID, len(samples))

	httputil.WriteJSONCreated(w, batchResponse{BatchID: batchID, Samples: samples})
}

// getHeatmap handles GET /heatmap: run the aggregation with the requested
// metric and filters and return the JSON envelope. An empty result is a valid
// envelope with null min/max, not an error.
func (s *Server) getHeatmap(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	q := r.URL.Query()

	metricName := q.Get("metric")
	if metricName == "" {
		metricName = string(db.MetricRSSI)
	}
	metric, err := db.ParseMetric(metricName)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	filter := db.HeatmapFilter{
		HardwareModel: q.Get("hardware_model"),
		AntennaModel:  q.Get("antenna_model"),
	}
	if h := q.Get("hours"); h != "" {
		// An explicit hours value must be a positive window. Only an
		// omitted parameter means "no time filter"; the filter's zero
		// value is an internal sentinel, not a client-facing one.
		hours, err := strconv.Atoi(h)
		if err != nil || hours < 1 {
			httputil.BadRequest(w, "invalid 'hours' parameter: must be between 1 and 168")
			return
		}
		filter.Hours = hours
	}
	if err := filter.Validate(); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	points, err := s.db.AggregateHeatmap(metric, filter)
	if err != nil {
		httputil.InternalServerError(w, "aggregation failed: "+err.Error())
		return
	}

	httputil.WriteJSONOK(w, heatmap.BuildEnvelope(metric, points))
}

// listRecentSamples handles GET /samples/recent.
func (s *Server) listRecentSamples(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	limit := defaultRecentLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 || parsed > maxRecentLimit {
			httputil.BadRequest(w, "invalid 'limit' parameter: must be between 1 and 500")
			return
		}
		limit = parsed
	}

	samples, err := s.db.RecentSamples(limit)
	if err != nil {
		httputil.InternalServerError(w, "failed to list samples: "+err.Error())
		return
	}
	if samples == nil {
		samples = []db.Sample{}
	}

	httputil.WriteJSONOK(w, samples)
}

// healthcheck handles GET /health.
func (s *Server) healthcheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	httputil.WriteJSONOK(w, map[string]string{
		"status":   "ok",
		"database": s.db.Path(),
	})
}
