package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/thermowatch/thermowatch/pkg/sim"
	"github.com/thermowatch/thermowatch/pkg/types"
	"github.com/thermowatch/thermowatch/server/internal/alerts"
	"github.com/thermowatch/thermowatch/server/internal/analysis"
	"github.com/thermowatch/thermowatch/server/internal/compute"
	"github.com/thermowatch/thermowatch/server/internal/conclusion"
	"github.com/thermowatch/thermowatch/server/internal/config"
	"github.com/thermowatch/thermowatch/server/internal/events"
	"github.com/thermowatch/thermowatch/server/internal/forwarder"
	"github.com/thermowatch/thermowatch/server/internal/store"
)

// ErrAnalysisSuperseded is returned for an image analysis that was cancelled
// or replaced by a newer upload before it finished.
var ErrAnalysisSuperseded = errors.New("analysis superseded")

// SimulatorDeviceID tags readings produced by Simulate.
const SimulatorDeviceID = "simulator"

const (
	publishTimeout    = 5 * time.Second
	conclusionTimeout = time.Minute
)

// Measurement is the outcome of one accepted submission.
type Measurement struct {
	Reading         types.Reading    `json:"reading"`
	Analysis        compute.Analysis `json:"analysis"`
	Entry           store.Entry      `json:"entry"`
	SignedAsymmetry string           `json:"signed_asymmetry"`
	WarmerSide      compute.Side     `json:"warmer_side"`
	Persisted       bool             `json:"persisted"`
	Alerts          []alerts.Alert   `json:"alerts,omitempty"`
	// ConclusionBy names who wrote Analysis.Conclusion.
	ConclusionBy string `json:"conclusion_by"`
}

// Deps are the collaborators a Controller drives. Engine, KV and History are
// required; the rest fall back to inert defaults when nil.
type Deps struct {
	Engine    *compute.Engine
	KV        store.KV
	History   *store.History
	Devices   *store.Devices
	Provider  analysis.Provider
	Forwarder *forwarder.Client
	Publisher events.Publisher
	Alerts    *alerts.Engine
	Sensor    *sim.Sensor

	// Conclusions, when set, rewrites the rule-based conclusion of each
	// measurement in the background.
	Conclusions conclusion.Provider

	// MaxImageBytes limits uploads (analysis.DefaultMaxImageBytes if zero).
	MaxImageBytes int
}

// Controller serializes every state mutation behind one mutex.
// All exported methods are safe for concurrent use.
type Controller struct {
	engine    *compute.Engine
	kv        store.KV
	history   *store.History
	devices   *store.Devices
	provider  analysis.Provider
	forwarder *forwarder.Client
	publisher events.Publisher
	alerts    *alerts.Engine
	sensor    *sim.Sensor
	writer    conclusion.Provider
	maxImage  int

	mu       sync.Mutex
	current  *Measurement
	settings store.Settings
	degraded bool

	gen           uint64 // image analysis generation
	pending       *analysis.Image
	cancelPending context.CancelFunc

	lmu       sync.RWMutex
	listeners []func()
	recorders []func(Measurement)

	bg  sync.WaitGroup
	now func() time.Time
}

// New builds a Controller and hydrates history and settings from storage.
// Storage failures during hydration are logged; the controller starts empty.
func New(ctx context.Context, d Deps) *Controller {
	c := &Controller{
		engine:    d.Engine,
		kv:        d.KV,
		history:   d.History,
		devices:   d.Devices,
		provider:  d.Provider,
		forwarder: d.Forwarder,
		publisher: d.Publisher,
		alerts:    d.Alerts,
		sensor:    d.Sensor,
		writer:    d.Conclusions,
		maxImage:  d.MaxImageBytes,
		now:       time.Now,
	}
	if c.devices == nil {
		c.devices = store.NewDevices(config.DefaultDeviceTTL)
	}
	if c.provider == nil {
		c.provider = analysis.NewSimulated(analysis.DefaultDelay, sim.ScenarioRandom, nil)
	}
	if c.forwarder == nil {
		c.forwarder = forwarder.New("", 0)
	}
	if c.publisher == nil {
		c.publisher = events.Noop{}
	}
	if c.sensor == nil {
		c.sensor = sim.NewSensor(nil)
	}

	entries := c.history.Load(ctx)
	// The configured forwarder URL applies until the user saves one.
	c.settings = store.LoadSettings(ctx, c.kv, store.Settings{
		APIURL:         c.forwarder.BaseURL(),
		AlertThreshold: store.DefaultAlertThreshold,
	})
	c.forwarder.SetBaseURL(c.settings.APIURL)
	if c.alerts == nil {
		c.alerts = alerts.New(config.AlertsConfig{}, c.settings.AlertThreshold)
	} else {
		c.alerts.SetAlertThreshold(c.settings.AlertThreshold)
	}

	slog.Info("dashboard: state restored",
		"history_entries", len(entries),
		"api_url", c.forwarder.BaseURL(),
		"alert_threshold", c.settings.AlertThreshold,
	)
	return c
}

// --- submissions ---

// SubmitManual records a reading typed in by the user. It is the only kind
// forwarded to the remote API.
func (c *Controller) SubmitManual(ctx context.Context, r types.Reading) (Measurement, error) {
	r.Source = types.SourceManual
	return c.submit(ctx, "", r)
}

// SubmitSensor records a reading shipped by a sensor agent and updates the
// device list.
func (c *Controller) SubmitSensor(ctx context.Context, sourceID string, r types.Reading) (Measurement, error) {
	r.Source = types.SourceSensor
	return c.submit(ctx, sourceID, r)
}

// Simulate records a reading from the built-in mock sensor.
func (c *Controller) Simulate(ctx context.Context) (Measurement, error) {
	return c.SubmitSensor(ctx, SimulatorDeviceID, c.sensor.Reading(SimulatorDeviceID))
}

// SubmitImage validates an upload, runs the analysis provider and records the
// result. A newer upload or CancelAnalysis makes this call return
// ErrAnalysisSuperseded and its result is dropped.
func (c *Controller) SubmitImage(ctx context.Context, filename, contentType string, data []byte) (Measurement, error) {
	img, err := analysis.NewImage(filename, contentType, data, c.maxImage)
	if err != nil {
		return Measurement{}, err
	}

	actx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	if c.cancelPending != nil {
		c.cancelPending()
		slog.Info("dashboard: pending analysis superseded", "image_id", c.pending.ID)
	}
	c.gen++
	gen := c.gen
	c.pending = &img
	c.cancelPending = cancel
	c.mu.Unlock()
	c.notify()

	slog.Debug("dashboard: analysis started", "image_id", img.ID, "generation", gen)
	r, err := c.provider.Analyze(actx, img)

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		slog.Debug("dashboard: stale analysis discarded", "image_id", img.ID, "generation", gen)
		return Measurement{}, ErrAnalysisSuperseded
	}
	c.pending = nil
	c.cancelPending = nil

	if err != nil {
		c.mu.Unlock()
		c.notify()
		if errors.Is(err, context.Canceled) {
			return Measurement{}, ErrAnalysisSuperseded
		}
		return Measurement{}, fmt.Errorf("analyse image: %w", err)
	}

	r.Source = types.SourceImage
	m, err := c.recordLocked(ctx, "", r)
	c.mu.Unlock()
	if err != nil {
		c.notify()
		return Measurement{}, err
	}
	c.afterRecord(m)
	return m, nil
}

// CancelAnalysis abandons the pending image analysis, if any.
// It reports whether one was pending.
func (c *Controller) CancelAnalysis() bool {
	c.mu.Lock()
	if c.cancelPending == nil {
		c.mu.Unlock()
		return false
	}
	c.cancelPending()
	c.gen++
	id := c.pending.ID
	c.pending = nil
	c.cancelPending = nil
	c.mu.Unlock()

	slog.Info("dashboard: analysis cancelled", "image_id", id)
	c.notify()
	return true
}

func (c *Controller) submit(ctx context.Context, sourceID string, r types.Reading) (Measurement, error) {
	c.mu.Lock()
	m, err := c.recordLocked(ctx, sourceID, r)
	c.mu.Unlock()
	if err != nil {
		return Measurement{}, err
	}
	c.afterRecord(m)
	return m, nil
}

// recordLocked runs the engine, appends history and evaluates alerts.
// Caller must hold c.mu.
func (c *Controller) recordLocked(ctx context.Context, sourceID string, r types.Reading) (Measurement, error) {
	if r.CapturedAt.IsZero() {
		r.CapturedAt = c.now().UTC()
	}
	a, err := c.engine.Analyze(r)
	if err != nil {
		return Measurement{}, err
	}
	if err := r.CheckRange(types.MinZoneTemp, types.MaxZoneTemp); err != nil {
		return Measurement{}, err
	}

	entry, err := c.history.Append(ctx, a.Metrics, r.Source)
	persisted := err == nil
	if err != nil && !errors.Is(err, types.ErrStorageUnavailable) {
		return Measurement{}, err
	}
	if c.degraded != !persisted {
		slog.Warn("dashboard: storage health changed", "degraded", !persisted)
	}
	c.degraded = !persisted

	if r.Source == types.SourceSensor && r.DeviceID != "" {
		c.devices.Put(sourceID, r, a.Metrics.Risk)
	}

	key := r.DeviceID
	if key == "" {
		key = string(r.Source)
	}
	fired := c.alerts.Evaluate(key, a.Metrics)

	m := Measurement{
		Reading:         r,
		Analysis:        a,
		Entry:           entry,
		SignedAsymmetry: compute.SignedAsymmetry(a.Metrics),
		WarmerSide:      compute.WarmerSide(a.Metrics),
		Persisted:       persisted,
		Alerts:          fired,
		ConclusionBy:    conclusion.RuleBasedName,
	}
	c.current = &m

	slog.Info("dashboard: measurement recorded",
		"source", r.Source,
		"device", r.DeviceID,
		"risk", a.Metrics.Risk,
		"asymmetry", a.Metrics.Asymmetry,
		"persisted", persisted,
	)
	return m, nil
}

// afterRecord fires the side effects that must not hold c.mu.
func (c *Controller) afterRecord(m Measurement) {
	ev := events.Event{
		ID:        m.Entry.ID,
		Type:      events.TypeMeasurementRecorded,
		DeviceID:  m.Reading.DeviceID,
		Source:    m.Reading.Source,
		Timestamp: m.Entry.Timestamp,
		Metrics:   m.Analysis.Metrics,
		Persisted: m.Persisted,
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	c.bg.Add(1)
	go func() {
		defer c.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := c.publisher.Publish(ctx, ev); err != nil {
			slog.Warn("dashboard: event not published", "id", ev.ID, "err", err)
		}
	}()

	if m.Reading.Source == types.SourceManual {
		c.forwarder.Forward(m.Reading)
	}
	if c.writer != nil {
		c.bg.Add(1)
		go func() {
			defer c.bg.Done()
			c.rewriteConclusion(m)
		}()
	}

	c.lmu.RLock()
	rs := c.recorders
	c.lmu.RUnlock()
	for _, fn := range rs {
		fn(m)
	}
	c.notify()
}

// rewriteConclusion asks the conclusion provider for new text and applies it
// if m is still the current measurement. On failure the rule-based text stays.
func (c *Controller) rewriteConclusion(m Measurement) {
	ctx, cancel := context.WithTimeout(context.Background(), conclusionTimeout)
	defer cancel()

	text, err := c.writer.Conclude(ctx, m.Analysis)
	if err != nil {
		slog.Warn("dashboard: conclusion provider failed, keeping rule-based text",
			"provider", c.writer.Name(), "id", m.Entry.ID, "err", err)
		return
	}

	c.mu.Lock()
	applied := c.current != nil && c.current.Entry.ID == m.Entry.ID
	if applied {
		c.current.Analysis.Conclusion = text
		c.current.ConclusionBy = c.writer.Name()
	}
	c.mu.Unlock()

	slog.Debug("dashboard: conclusion written", "provider", c.writer.Name(), "id", m.Entry.ID, "applied", applied)
	if applied {
		c.notify()
	}
}

// --- reads ---

// Current returns the latest measurement of this process, if any.
func (c *Controller) Current() (Measurement, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return Measurement{}, false
	}
	return *c.current, true
}

// Pending returns the image whose analysis is in flight, if any.
func (c *Controller) Pending() (analysis.Image, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return analysis.Image{}, false
	}
	return *c.pending, true
}

// History returns entries newest first. days > 0 keeps entries from the last
// days days; limit > 0 caps the count.
func (c *Controller) History(days, limit int) []store.Entry {
	var out []store.Entry
	if days > 0 {
		out = c.history.Since(c.now().Add(-time.Duration(days) * 24 * time.Hour))
	} else {
		out = c.history.All()
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Stats aggregates the history of the last days days.
func (c *Controller) Stats(days int) store.Stats {
	return c.history.Stats(c.now().Add(-time.Duration(days) * 24 * time.Hour))
}

// HistoryLen returns the total number of history entries.
func (c *Controller) HistoryLen() int {
	return c.history.Len()
}

// ClearHistory empties the history. The in-memory log is cleared even when
// the durable write fails; that failure is returned and marks storage degraded.
func (c *Controller) ClearHistory(ctx context.Context) error {
	c.mu.Lock()
	err := c.history.Clear(ctx)
	c.degraded = err != nil
	c.mu.Unlock()

	slog.Info("dashboard: history cleared", "persisted", err == nil)
	c.notify()
	return err
}

// Devices lists sensor devices that reported within the device TTL.
func (c *Controller) Devices() []store.Device {
	return c.devices.List()
}

// Alerts returns firing and recently resolved alerts.
func (c *Controller) Alerts() []*alerts.Alert {
	return c.alerts.Active()
}

// FiringAlerts returns the number of alerts currently firing.
func (c *Controller) FiringAlerts() int {
	return c.alerts.FiringCount()
}

// RemoteAnalysis returns the last analysis received from the remote API.
func (c *Controller) RemoteAnalysis() (forwarder.RemoteAnalysis, bool) {
	return c.forwarder.Last()
}

// Thresholds returns the active classification thresholds.
func (c *Controller) Thresholds() compute.Thresholds {
	return c.engine.Thresholds()
}

// StorageDegraded reports whether the last durable write failed.
func (c *Controller) StorageDegraded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.degraded
}

// --- settings ---

// Settings returns the active settings.
func (c *Controller) Settings() store.Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

// UpdateSettings validates and applies s. Invalid settings wrap
// types.ErrInvalidInput and change nothing. A storage failure still applies
// s in memory and is returned wrapping types.ErrStorageUnavailable.
// Concurrent updates are applied in the order they were saved.
func (c *Controller) UpdateSettings(ctx context.Context, s store.Settings) (store.Settings, error) {
	c.mu.Lock()
	err := store.SaveSettings(ctx, c.kv, s)
	if err != nil && !errors.Is(err, types.ErrStorageUnavailable) {
		cur := c.settings
		c.mu.Unlock()
		return cur, err
	}
	s = s.Normalized()
	c.settings = s
	c.degraded = err != nil
	c.forwarder.SetBaseURL(s.APIURL)
	c.alerts.SetAlertThreshold(s.AlertThreshold)
	c.mu.Unlock()

	c.notify()
	return s, err
}

// SetThresholds swaps the classification thresholds used for new measurements.
// Existing history keeps the risk it was recorded with.
func (c *Controller) SetThresholds(t compute.Thresholds) error {
	return c.engine.SetThresholds(t)
}

// ApplyAlertConfig replaces alert rules and webhooks.
func (c *Controller) ApplyAlertConfig(cfg config.AlertsConfig) {
	c.alerts.SetConfig(cfg)
}

// --- lifecycle ---

// OnChange registers fn to run after every state change. fn runs on the
// goroutine that made the change and must not block.
func (c *Controller) OnChange(fn func()) {
	c.lmu.Lock()
	c.listeners = append(c.listeners, fn)
	c.lmu.Unlock()
}

// OnRecord registers fn to run with every recorded measurement, whatever
// its source. fn runs without the state lock held and must not block.
func (c *Controller) OnRecord(fn func(Measurement)) {
	c.lmu.Lock()
	c.recorders = append(c.recorders, fn)
	c.lmu.Unlock()
}

func (c *Controller) notify() {
	c.lmu.RLock()
	ls := c.listeners
	c.lmu.RUnlock()
	for _, fn := range ls {
		fn()
	}
}

// Run evicts quiet sensor devices until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) {
	c.devices.Run(ctx)
}

// Close cancels any pending analysis and waits for background deliveries.
func (c *Controller) Close() {
	c.CancelAnalysis()
	c.bg.Wait()
	c.forwarder.Wait()
}
