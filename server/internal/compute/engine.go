package compute

import (
	"log/slog"
	"sync"

	"github.com/thermowatch/thermowatch/pkg/types"
)

// Analysis is the full result of analysing one reading.
type Analysis struct {
	Metrics    Metrics       `json:"metrics"`
	Anomalies  []ZoneAnomaly `json:"anomaly_zones"`
	Findings   []Finding     `json:"findings"`
	Conclusion string        `json:"conclusion"`
}

// Engine holds the active thresholds and analyses readings against them.
//
// All exported methods are safe for concurrent use.
type Engine struct {
	mu         sync.RWMutex
	thresholds Thresholds
}

// NewEngine returns an Engine using t, or DefaultThresholds if t is invalid.
func NewEngine(t Thresholds) *Engine {
	if err := t.Validate(); err != nil {
		slog.Warn("compute: invalid thresholds, using defaults", "err", err)
		t = DefaultThresholds()
	}
	return &Engine{thresholds: t}
}

// Thresholds returns the active thresholds.
func (e *Engine) Thresholds() Thresholds {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.thresholds
}

// SetThresholds swaps the active thresholds. Invalid values are rejected and
// the previous thresholds stay in effect.
func (e *Engine) SetThresholds(t Thresholds) error {
	if err := t.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	e.thresholds = t
	e.mu.Unlock()
	slog.Info("compute: thresholds updated",
		"asymmetry_elevated", t.AsymmetryElevated,
		"asymmetry_high", t.AsymmetryHigh,
		"temp_elevated", t.TempElevated,
		"temp_high", t.TempHigh,
	)
	return nil
}

// Compute derives Metrics using the active thresholds.
func (e *Engine) Compute(left, right []float64) (Metrics, error) {
	return e.Thresholds().Compute(left, right)
}

// Analyze computes metrics for r and derives anomalies, findings and the conclusion.
func (e *Engine) Analyze(r types.Reading) (Analysis, error) {
	t := e.Thresholds()
	m, err := t.Compute(r.Left, r.Right)
	if err != nil {
		return Analysis{}, err
	}
	anomalies := AnomalyZones(r)
	findings := Findings(m, t)
	return Analysis{
		Metrics:    m,
		Anomalies:  anomalies,
		Findings:   findings,
		Conclusion: Conclusion(m, findings, anomalies),
	}, nil
}
