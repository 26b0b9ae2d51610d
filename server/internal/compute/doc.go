// Package compute derives thermography metrics and a risk tier from zone temperatures.
//
// metrics.go provides the pure Compute(left, right) function: per-side means,
// absolute asymmetry, overall mean, max and min temperature. Thresholds.Classify
// maps asymmetry and max temperature to a RiskLevel, first match wins:
//
//	high     asymmetry >= 1.0 °C  or  max >= 38.0 °C
//	elevated asymmetry >= 0.5 °C  or  max >= 37.5 °C
//	normal   otherwise
//
// The numbers above are DefaultThresholds; the server config can override them.
// No rounding happens here. format.go holds the display helpers (1 decimal for
// temperatures, 2 for asymmetry) and the signed asymmetry shown in the UI.
//
// findings.go turns a reading and its metrics into per-zone anomalies,
// findings and a plain-text conclusion. engine.go wraps the thresholds in a
// concurrency-safe Engine so config reloads can swap them at runtime.
package compute
