package compute

import (
	"errors"
	"sync"
	"testing"

	"github.com/thermowatch/thermowatch/pkg/types"
)

func TestEngine_InvalidThresholdsFallBackToDefaults(t *testing.T) {
	e := NewEngine(Thresholds{})
	if got := e.Thresholds(); got != DefaultThresholds() {
		t.Errorf("Thresholds: got %+v, want defaults", got)
	}
}

func TestEngine_SetThresholds(t *testing.T) {
	e := NewEngine(DefaultThresholds())
	r := mustReading(t, uniform(36.0), uniform(36.4))

	a, err := e.Analyze(r)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if a.Metrics.Risk != RiskNormal {
		t.Fatalf("Risk with defaults: got %q, want normal", a.Metrics.Risk)
	}

	if err := e.SetThresholds(Thresholds{AsymmetryElevated: 0.3, AsymmetryHigh: 0.8, TempElevated: 37.5, TempHigh: 38}); err != nil {
		t.Fatalf("SetThresholds: %v", err)
	}
	a, _ = e.Analyze(r)
	if a.Metrics.Risk != RiskElevated {
		t.Errorf("Risk after tightening: got %q, want elevated", a.Metrics.Risk)
	}
	if len(a.Findings) != 1 || a.Findings[0].Key != "asymmetry_moderate" {
		t.Errorf("Findings: got %+v", a.Findings)
	}
	if a.Conclusion == "" {
		t.Error("Conclusion: empty")
	}
}

func TestEngine_SetThresholds_RejectsInvalid(t *testing.T) {
	e := NewEngine(DefaultThresholds())
	err := e.SetThresholds(Thresholds{AsymmetryElevated: 2, AsymmetryHigh: 1, TempElevated: 37, TempHigh: 38})
	if !errors.Is(err, types.ErrInvalidInput) {
		t.Fatalf("err: got %v, want ErrInvalidInput", err)
	}
	if e.Thresholds() != DefaultThresholds() {
		t.Error("invalid thresholds were applied")
	}
}

func TestEngine_Analyze_InvalidReading(t *testing.T) {
	e := NewEngine(DefaultThresholds())
	_, err := e.Analyze(types.Reading{})
	if !errors.Is(err, types.ErrInvalidInput) {
		t.Errorf("err: got %v, want ErrInvalidInput", err)
	}
}

func TestEngine_ConcurrentUse(t *testing.T) {
	e := NewEngine(DefaultThresholds())
	r := mustReading(t, uniform(36.1), uniform(36.9))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if _, err := e.Analyze(r); err != nil {
					t.Error(err)
					return
				}
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = e.SetThresholds(DefaultThresholds())
			}
		}()
	}
	wg.Wait()
}
