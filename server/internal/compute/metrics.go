package compute

import (
	"fmt"
	"math"

	"github.com/thermowatch/thermowatch/pkg/types"
)

// RiskLevel is the three-tier classification of a measurement.
type RiskLevel string

const (
	RiskNormal   RiskLevel = "normal"
	RiskElevated RiskLevel = "elevated"
	RiskHigh     RiskLevel = "high"
)

// Valid reports whether r is one of the three known tiers.
func (r RiskLevel) Valid() bool {
	switch r {
	case RiskNormal, RiskElevated, RiskHigh:
		return true
	}
	return false
}

// Default classification thresholds in °C.
const (
	DefaultAsymmetryElevated = 0.5
	DefaultAsymmetryHigh     = 1.0
	DefaultTempElevated      = 37.5
	DefaultTempHigh          = 38.0
)

// Thresholds are the inclusive lower bounds of each risk tier.
type Thresholds struct {
	AsymmetryElevated float64 `yaml:"asymmetry_elevated" json:"asymmetry_elevated"`
	AsymmetryHigh     float64 `yaml:"asymmetry_high"     json:"asymmetry_high"`
	TempElevated      float64 `yaml:"temp_elevated"      json:"temp_elevated"`
	TempHigh          float64 `yaml:"temp_high"          json:"temp_high"`
}

// DefaultThresholds returns the stock clinical-screening thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		AsymmetryElevated: DefaultAsymmetryElevated,
		AsymmetryHigh:     DefaultAsymmetryHigh,
		TempElevated:      DefaultTempElevated,
		TempHigh:          DefaultTempHigh,
	}
}

// Validate checks that every bound is positive and elevated < high on both axes.
func (t Thresholds) Validate() error {
	if t.AsymmetryElevated <= 0 || t.AsymmetryHigh <= 0 || t.TempElevated <= 0 || t.TempHigh <= 0 {
		return fmt.Errorf("%w: thresholds must be positive", types.ErrInvalidInput)
	}
	if t.AsymmetryElevated >= t.AsymmetryHigh {
		return fmt.Errorf("%w: asymmetry_elevated (%.2f) must be below asymmetry_high (%.2f)",
			types.ErrInvalidInput, t.AsymmetryElevated, t.AsymmetryHigh)
	}
	if t.TempElevated >= t.TempHigh {
		return fmt.Errorf("%w: temp_elevated (%.2f) must be below temp_high (%.2f)",
			types.ErrInvalidInput, t.TempElevated, t.TempHigh)
	}
	return nil
}

// Metrics is the derived summary of one measurement. Values are unrounded.
type Metrics struct {
	AvgLeft   float64   `json:"avg_left"`
	AvgRight  float64   `json:"avg_right"`
	Asymmetry float64   `json:"asymmetry"`
	AvgTotal  float64   `json:"avg_total"`
	MaxTemp   float64   `json:"max_temp"`
	MinTemp   float64   `json:"min_temp"`
	Risk      RiskLevel `json:"risk"`
}

// Compute derives Metrics from the two zone sequences using DefaultThresholds.
func Compute(left, right []float64) (Metrics, error) {
	return DefaultThresholds().Compute(left, right)
}

// Compute derives Metrics from the two zone sequences and classifies them
// against t. Both sequences must be non-empty and finite.
//
//	avg_left  = mean(left)     avg_right = mean(right)
//	asymmetry = |avg_left - avg_right|
//	avg_total = (avg_left + avg_right) / 2
//	max_temp  = max(left ∪ right)
func (t Thresholds) Compute(left, right []float64) (Metrics, error) {
	avgL, err := mean("left", left)
	if err != nil {
		return Metrics{}, err
	}
	avgR, err := mean("right", right)
	if err != nil {
		return Metrics{}, err
	}

	maxT, minT := math.Inf(-1), math.Inf(1)
	for _, side := range [][]float64{left, right} {
		for _, v := range side {
			maxT = math.Max(maxT, v)
			minT = math.Min(minT, v)
		}
	}

	asym := math.Abs(avgL - avgR)
	return Metrics{
		AvgLeft:   avgL,
		AvgRight:  avgR,
		Asymmetry: asym,
		AvgTotal:  (avgL + avgR) / 2,
		MaxTemp:   maxT,
		MinTemp:   minT,
		Risk:      t.Classify(asym, maxT),
	}, nil
}

// Classify maps asymmetry and max temperature to a RiskLevel.
// Bounds are inclusive and high is checked first.
func (t Thresholds) Classify(asymmetry, maxTemp float64) RiskLevel {
	switch {
	case asymmetry >= t.AsymmetryHigh || maxTemp >= t.TempHigh:
		return RiskHigh
	case asymmetry >= t.AsymmetryElevated || maxTemp >= t.TempElevated:
		return RiskElevated
	default:
		return RiskNormal
	}
}

func mean(side string, zones []float64) (float64, error) {
	if len(zones) == 0 {
		return 0, fmt.Errorf("%w: %s zones are empty", types.ErrInvalidInput, side)
	}
	var sum float64
	for i, v := range zones {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("%w: %s zone %d is not a finite number", types.ErrInvalidInput, side, i+1)
		}
		sum += v
	}
	return sum / float64(len(zones)), nil
}
