package api

import (
	"github.com/thermowatch/thermowatch/server/internal/alerts"
	"github.com/thermowatch/thermowatch/server/internal/analysis"
	"github.com/thermowatch/thermowatch/server/internal/compute"
	"github.com/thermowatch/thermowatch/server/internal/forwarder"
	"github.com/thermowatch/thermowatch/server/internal/store"
)

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	Status          string `json:"status"` // "ok" | "degraded"
	StorageDegraded bool   `json:"storage_degraded"`
	HistoryCount    int    `json:"history_count"`
	DeviceCount     int    `json:"device_count"`
	AlertCount      int    `json:"alert_count"`
	Uptime          string `json:"uptime"`
}

// DashboardResponse is the payload for GET /api/v1/dashboard and the data of
// every WebSocket broadcast.
type DashboardResponse struct {
	Status          string                    `json:"status"` // "ok" | "no_data"
	Measurement     *MeasurementResponse      `json:"measurement,omitempty"`
	RemoteAnalysis  *forwarder.RemoteAnalysis `json:"remote_analysis,omitempty"`
	Pending         *analysis.Image           `json:"pending_analysis,omitempty"`
	ActiveAlerts    int                       `json:"active_alerts"`
	Devices         []store.Device            `json:"devices"`
	HistoryCount    int                       `json:"history_count"`
	Thresholds      compute.Thresholds        `json:"thresholds"`
	StorageDegraded bool                      `json:"storage_degraded"`
	GeneratedAt     string                    `json:"generated_at"` // RFC3339
}

// MeasurementResponse is one analysed measurement as the dashboard shows it.
type MeasurementResponse struct {
	ID           string            `json:"id"`
	Source       string            `json:"source"`
	DeviceID     string            `json:"device_id,omitempty"`
	CapturedAt   string            `json:"captured_at"` // RFC3339
	LeftZones    []float64         `json:"left_zones"`
	RightZones   []float64         `json:"right_zones"`
	Metrics      compute.Metrics   `json:"metrics"`
	Display      DisplayValues     `json:"display"`
	Anomalies    []string          `json:"anomaly_zones"`
	Findings     []compute.Finding `json:"findings"`
	Conclusion   string            `json:"conclusion"`
	ConclusionBy string            `json:"conclusion_by"` // rules or the model provider name
	Persisted    bool              `json:"persisted"`
	Alerts       []alerts.Alert    `json:"alerts,omitempty"`
}

// DisplayValues are the metrics pre-formatted for display.
type DisplayValues struct {
	AvgLeft    string `json:"avg_left"`
	AvgRight   string `json:"avg_right"`
	AvgTotal   string `json:"avg_total"`
	MaxTemp    string `json:"max_temp"`
	MinTemp    string `json:"min_temp"`
	Asymmetry  string `json:"asymmetry"` // signed, "+" when the right side is warmer
	WarmerSide string `json:"warmer_side"`
}

// MeasurementRequest is the body of POST /api/v1/measurements.
type MeasurementRequest struct {
	DeviceID   string    `json:"device_id,omitempty"`
	LeftZones  []float64 `json:"left_zones"`
	RightZones []float64 `json:"right_zones"`
}

// HistoryResponse is the payload for GET /api/v1/history.
type HistoryResponse struct {
	Entries []store.Entry `json:"entries"`
	Total   int           `json:"total"`
}

// StatsResponse is the payload for GET /api/v1/history/stats.
type StatsResponse struct {
	Days int `json:"days"`
	store.Stats
}

// SettingsResponse is the payload for GET and PUT /api/v1/settings.
type SettingsResponse struct {
	APIURL         string  `json:"api_url"`
	AlertThreshold float64 `json:"alert_threshold"`
	Persisted      bool    `json:"persisted"`
}

// CancelResponse is the payload for DELETE /api/v1/images/pending.
type CancelResponse struct {
	Cancelled bool `json:"cancelled"`
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
