package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/thermowatch/thermowatch/pkg/types"
	"github.com/thermowatch/thermowatch/server/internal/analysis"
	"github.com/thermowatch/thermowatch/server/internal/compute"
	"github.com/thermowatch/thermowatch/server/internal/dashboard"
)

const (
	maxJSONBody = 64 << 10
	// multipart overhead allowed on top of the image limit
	multipartSlack = 1 << 20

	defaultStatsDays = 30
	maxStatsDays     = 365
)

// Handler is the HTTP handler for all /api/v1/* endpoints and /metrics.
type Handler struct {
	ctrl     *dashboard.Controller
	mux      *http.ServeMux
	metrics  *Metrics
	maxImage int
	started  time.Time
}

// New creates a Handler driving ctrl and registers all routes. maxImage caps
// uploads (analysis.DefaultMaxImageBytes if <= 0).
func New(ctrl *dashboard.Controller, maxImage int) *Handler {
	if maxImage <= 0 {
		maxImage = analysis.DefaultMaxImageBytes
	}
	h := &Handler{
		ctrl:     ctrl,
		mux:      http.NewServeMux(),
		metrics:  NewMetrics(ctrl),
		maxImage: maxImage,
		started:  time.Now(),
	}

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/dashboard", h.dashboard)
	h.mux.HandleFunc("/api/v1/measurements", h.measurements)
	h.mux.HandleFunc("/api/v1/measurements/simulate", h.simulate)
	h.mux.HandleFunc("/api/v1/images", h.images)
	h.mux.HandleFunc("/api/v1/images/pending", h.pendingImage)
	h.mux.HandleFunc("/api/v1/history", h.history)
	h.mux.HandleFunc("/api/v1/history/stats", h.stats)
	h.mux.HandleFunc("/api/v1/settings", h.settings)
	h.mux.HandleFunc("/api/v1/alerts", h.alerts)
	h.mux.Handle("/metrics", h.metrics)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	resp := HealthResponse{
		Status:          "ok",
		StorageDegraded: h.ctrl.StorageDegraded(),
		HistoryCount:    h.ctrl.HistoryLen(),
		DeviceCount:     len(h.ctrl.Devices()),
		AlertCount:      h.ctrl.FiringAlerts(),
		Uptime:          time.Since(h.started).Round(time.Second).String(),
	}
	if resp.StorageDegraded {
		resp.Status = "degraded"
	}
	jsonResp(w, http.StatusOK, resp)
}

// dashboard returns GET /api/v1/dashboard.
func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, BuildDashboard(h.ctrl))
}

// measurements handles POST /api/v1/measurements: a manual reading.
func (h *Handler) measurements(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req MeasurementRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	// Zone ranges are checked by the controller for every source.
	reading, err := types.NewReading(req.LeftZones, req.RightZones)
	if err != nil {
		writeError(w, err)
		return
	}
	reading.DeviceID = req.DeviceID

	m, err := h.ctrl.SubmitManual(r.Context(), reading)
	if err != nil {
		writeError(w, err)
		return
	}
	jsonResp(w, http.StatusCreated, toMeasurementResponse(m))
}

// simulate handles POST /api/v1/measurements/simulate.
func (h *Handler) simulate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	m, err := h.ctrl.Simulate(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	jsonResp(w, http.StatusCreated, toMeasurementResponse(m))
}

// images handles POST /api/v1/images: a multipart upload in field "file".
// The request blocks until the analysis finishes.
func (h *Handler) images(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, int64(h.maxImage)+multipartSlack)
	file, hdr, err := r.FormFile("file")
	if err != nil {
		jsonErr(w, http.StatusBadRequest, "multipart field \"file\" is required: "+err.Error())
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, int64(h.maxImage)+1))
	if err != nil {
		jsonErr(w, http.StatusBadRequest, "read upload: "+err.Error())
		return
	}

	m, err := h.ctrl.SubmitImage(r.Context(), hdr.Filename, hdr.Header.Get("Content-Type"), data)
	if err != nil {
		writeError(w, err)
		return
	}
	jsonResp(w, http.StatusCreated, toMeasurementResponse(m))
}

// pendingImage handles DELETE /api/v1/images/pending.
func (h *Handler) pendingImage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, CancelResponse{Cancelled: h.ctrl.CancelAnalysis()})
}

// history handles GET and DELETE /api/v1/history.
func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		days, err := queryInt(r, "days")
		if err != nil {
			jsonErr(w, http.StatusBadRequest, err.Error())
			return
		}
		limit, err := queryInt(r, "limit")
		if err != nil {
			jsonErr(w, http.StatusBadRequest, err.Error())
			return
		}
		jsonResp(w, http.StatusOK, HistoryResponse{
			Entries: h.ctrl.History(days, limit),
			Total:   h.ctrl.HistoryLen(),
		})

	case http.MethodDelete:
		if err := h.ctrl.ClearHistory(r.Context()); err != nil {
			// The in-memory log is already empty; report the durability failure.
			slog.Warn("api: history cleared in memory only", "err", err)
			jsonResp(w, http.StatusOK, map[string]bool{"persisted": false})
			return
		}
		jsonResp(w, http.StatusOK, map[string]bool{"persisted": true})

	default:
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// stats returns GET /api/v1/history/stats?days=N aggregated over the last
// N days (default 30, at most 365).
func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	days := defaultStatsDays
	if r.URL.Query().Get("days") != "" {
		n, err := queryInt(r, "days")
		if err == nil && (n < 1 || n > maxStatsDays) {
			err = fmt.Errorf("query parameter \"days\" must be between 1 and %d", maxStatsDays)
		}
		if err != nil {
			jsonErr(w, http.StatusBadRequest, err.Error())
			return
		}
		days = n
	}
	jsonResp(w, http.StatusOK, StatsResponse{Days: days, Stats: h.ctrl.Stats(days)})
}

// settings handles GET and PUT /api/v1/settings.
func (h *Handler) settings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s := h.ctrl.Settings()
		jsonResp(w, http.StatusOK, SettingsResponse{
			APIURL:         s.APIURL,
			AlertThreshold: s.AlertThreshold,
			Persisted:      !h.ctrl.StorageDegraded(),
		})

	case http.MethodPut:
		// Omitted fields keep their current value.
		s := h.ctrl.Settings()
		if err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody)).Decode(&s); err != nil {
			jsonErr(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
			return
		}
		applied, err := h.ctrl.UpdateSettings(r.Context(), s)
		if err != nil && !errors.Is(err, types.ErrStorageUnavailable) {
			writeError(w, err)
			return
		}
		jsonResp(w, http.StatusOK, SettingsResponse{
			APIURL:         applied.APIURL,
			AlertThreshold: applied.AlertThreshold,
			Persisted:      err == nil,
		})

	default:
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// alerts returns GET /api/v1/alerts: firing and recently resolved alerts.
func (h *Handler) alerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, h.ctrl.Alerts())
}

// --- builders ---------------------------------------------------------------

// BuildDashboard assembles the dashboard view of ctrl's current state.
func BuildDashboard(ctrl *dashboard.Controller) DashboardResponse {
	resp := DashboardResponse{
		Status:          "no_data",
		ActiveAlerts:    ctrl.FiringAlerts(),
		Devices:         ctrl.Devices(),
		HistoryCount:    ctrl.HistoryLen(),
		Thresholds:      ctrl.Thresholds(),
		StorageDegraded: ctrl.StorageDegraded(),
		GeneratedAt:     time.Now().UTC().Format(time.RFC3339),
	}
	if m, ok := ctrl.Current(); ok {
		mr := toMeasurementResponse(m)
		resp.Status = "ok"
		resp.Measurement = &mr
	}
	if ra, ok := ctrl.RemoteAnalysis(); ok {
		resp.RemoteAnalysis = &ra
	}
	if img, ok := ctrl.Pending(); ok {
		resp.Pending = &img
	}
	return resp
}

func toMeasurementResponse(m dashboard.Measurement) MeasurementResponse {
	met := m.Analysis.Metrics
	anomalies := make([]string, 0, len(m.Analysis.Anomalies))
	for _, a := range m.Analysis.Anomalies {
		anomalies = append(anomalies, a.String())
	}
	findings := m.Analysis.Findings
	if findings == nil {
		findings = []compute.Finding{}
	}
	return MeasurementResponse{
		ID:         m.Entry.ID,
		Source:     string(m.Reading.Source),
		DeviceID:   m.Reading.DeviceID,
		CapturedAt: m.Reading.CapturedAt.UTC().Format(time.RFC3339),
		LeftZones:  m.Reading.Left,
		RightZones: m.Reading.Right,
		Metrics:    met,
		Display: DisplayValues{
			AvgLeft:    compute.FormatTemp(met.AvgLeft),
			AvgRight:   compute.FormatTemp(met.AvgRight),
			AvgTotal:   compute.FormatTemp(met.AvgTotal),
			MaxTemp:    compute.FormatTemp(met.MaxTemp),
			MinTemp:    compute.FormatTemp(met.MinTemp),
			Asymmetry:  m.SignedAsymmetry,
			WarmerSide: string(m.WarmerSide),
		},
		Anomalies:    anomalies,
		Findings:     findings,
		Conclusion:   m.Analysis.Conclusion,
		ConclusionBy: m.ConclusionBy,
		Persisted:    m.Persisted,
		Alerts:       m.Alerts,
	}
}

// --- helpers ----------------------------------------------------------------

func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("query parameter %q must be a non-negative integer", name)
	}
	return n, nil
}

// writeError maps domain errors to HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, types.ErrInvalidInput):
		jsonErr(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, dashboard.ErrAnalysisSuperseded):
		jsonErr(w, http.StatusConflict, err.Error())
	case errors.Is(err, types.ErrStorageUnavailable):
		jsonErr(w, http.StatusServiceUnavailable, err.Error())
	default:
		slog.Error("api: request failed", "err", err)
		jsonErr(w, http.StatusInternalServerError, "internal error")
	}
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
