package api

import (
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"

	"github.com/thermowatch/thermowatch/server/internal/dashboard"
)

// Metrics serves /metrics in the Prometheus text format. Counters follow every
// measurement the controller records, whichever transport submitted it;
// gauges are read from the controller on scrape.
type Metrics struct {
	ctrl *dashboard.Controller

	mu           sync.Mutex
	measurements map[[2]string]uint64 // {source, risk} -> count
	unpersisted  uint64
}

// NewMetrics returns a Metrics reading gauges from ctrl.
func NewMetrics(ctrl *dashboard.Controller) *Metrics {
	m := &Metrics{
		ctrl:         ctrl,
		measurements: make(map[[2]string]uint64),
	}
	ctrl.OnRecord(m.observe)
	return m
}

func (m *Metrics) observe(ms dashboard.Measurement) {
	key := [2]string{string(ms.Reading.Source), string(ms.Analysis.Metrics.Risk)}
	m.mu.Lock()
	m.measurements[key]++
	if !ms.Persisted {
		m.unpersisted++
	}
	m.mu.Unlock()
}

func (m *Metrics) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	format := expfmt.NewFormat(expfmt.TypeTextPlain)
	w.Header().Set("Content-Type", string(format))
	enc := expfmt.NewEncoder(w, format)
	for _, mf := range m.Gather() {
		if err := enc.Encode(mf); err != nil {
			slog.Warn("api: metrics encode failed", "family", mf.GetName(), "err", err)
			return
		}
	}
}

// Gather returns the current metric families sorted by name.
func (m *Metrics) Gather() []*dto.MetricFamily {
	m.mu.Lock()
	keys := make([][2]string, 0, len(m.measurements))
	for k := range m.measurements {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return strings.Join(keys[i][:], "/") < strings.Join(keys[j][:], "/")
	})
	counts := make([]*dto.Metric, 0, len(keys))
	for _, k := range keys {
		counts = append(counts, &dto.Metric{
			Label: []*dto.LabelPair{
				{Name: proto.String("source"), Value: proto.String(k[0])},
				{Name: proto.String("risk"), Value: proto.String(k[1])},
			},
			Counter: &dto.Counter{Value: proto.Float64(float64(m.measurements[k]))},
		})
	}
	unpersisted := m.unpersisted
	m.mu.Unlock()

	var lastAsym, degraded float64
	if cur, ok := m.ctrl.Current(); ok {
		lastAsym = cur.Analysis.Metrics.Asymmetry
	}
	if m.ctrl.StorageDegraded() {
		degraded = 1
	}

	fams := []*dto.MetricFamily{
		{
			Name:   proto.String("thermowatch_measurements_total"),
			Help:   proto.String("Measurements recorded, by source and risk level."),
			Type:   dto.MetricType_COUNTER.Enum(),
			Metric: counts,
		},
		counter("thermowatch_measurements_unpersisted_total",
			"Measurements kept in memory only because storage was unavailable.", float64(unpersisted)),
		gauge("thermowatch_history_entries", "Entries in the measurement history.", float64(m.ctrl.HistoryLen())),
		gauge("thermowatch_devices_live", "Sensor devices that reported within the device TTL.", float64(len(m.ctrl.Devices()))),
		gauge("thermowatch_alerts_firing", "Alerts currently firing.", float64(m.ctrl.FiringAlerts())),
		gauge("thermowatch_storage_degraded", "1 when the last durable write failed.", degraded),
		gauge("thermowatch_last_asymmetry_celsius", "Asymmetry of the latest measurement.", lastAsym),
	}
	sort.Slice(fams, func(i, j int) bool { return fams[i].GetName() < fams[j].GetName() })
	return fams
}

func gauge(name, help string, v float64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   proto.String(name),
		Help:   proto.String(help),
		Type:   dto.MetricType_GAUGE.Enum(),
		Metric: []*dto.Metric{{Gauge: &dto.Gauge{Value: proto.Float64(v)}}},
	}
}

func counter(name, help string, v float64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   proto.String(name),
		Help:   proto.String(help),
		Type:   dto.MetricType_COUNTER.Enum(),
		Metric: []*dto.Metric{{Counter: &dto.Counter{Value: proto.Float64(v)}}},
	}
}
