package compute

import (
	"fmt"
	"strings"

	"github.com/thermowatch/thermowatch/pkg/types"
)

// AnomalyDeviation is how far above the all-zone mean a zone must read
// before it is reported.
const AnomalyDeviation = 0.8

// ZoneAnomaly is one zone reading noticeably warmer than the rest.
type ZoneAnomaly struct {
	// Index is the 0-based sensor position (0-3 left, 4-7 right).
	Index     int     `json:"index"`
	Zone      string  `json:"zone"`
	Temp      float64 `json:"temp"`
	Deviation float64 `json:"deviation"`
}

// String renders the anomaly the way it appears in a conclusion.
func (a ZoneAnomaly) String() string {
	return fmt.Sprintf("%s: +%s°C", a.Zone, FormatTemp(a.Deviation))
}

// AnomalyZones returns zones whose temperature exceeds the mean of every zone
// by more than AnomalyDeviation, in sensor order.
func AnomalyZones(r types.Reading) []ZoneAnomaly {
	temps := r.Sensors()
	if len(temps) == 0 {
		return nil
	}
	var sum float64
	for _, v := range temps {
		sum += v
	}
	avg := sum / float64(len(temps))

	var out []ZoneAnomaly
	for i, v := range temps {
		dev := v - avg
		if dev <= AnomalyDeviation {
			continue
		}
		name := fmt.Sprintf("zone %d", i+1)
		if i < len(types.ZoneNames) {
			name = types.ZoneNames[i]
		}
		out = append(out, ZoneAnomaly{Index: i, Zone: name, Temp: v, Deviation: dev})
	}
	return out
}

// Finding is one human-readable observation about a measurement.
type Finding struct {
	// Key is a stable machine-readable identifier.
	Key string `json:"key"`
	// Level is "warning" | "critical".
	Level string `json:"level"`
	// Title is a short label.
	Title string `json:"title"`
	// Detail is the full sentence shown in the report.
	Detail string `json:"detail"`
	// Value is the measured quantity behind the finding.
	Value *float64 `json:"value,omitempty"`
}

// Findings derives the asymmetry and temperature observations for m.
// Critical findings come before warnings.
func Findings(m Metrics, t Thresholds) []Finding {
	var out []Finding

	// ── Asymmetry ─────────────────────────────────────────────────────────────
	asym := m.Asymmetry
	switch {
	case asym >= t.AsymmetryHigh:
		out = append(out, Finding{
			Key:    "asymmetry_significant",
			Level:  "critical",
			Title:  "Significant asymmetry",
			Detail: fmt.Sprintf("Significant asymmetry: %s°C", FormatAsymmetry(asym)),
			Value:  &asym,
		})
	case asym >= t.AsymmetryElevated:
		out = append(out, Finding{
			Key:    "asymmetry_moderate",
			Level:  "warning",
			Title:  "Moderate asymmetry",
			Detail: fmt.Sprintf("Moderate asymmetry: %s°C", FormatAsymmetry(asym)),
			Value:  &asym,
		})
	}

	// ── Peak temperature ──────────────────────────────────────────────────────
	maxT := m.MaxTemp
	switch {
	case maxT >= t.TempHigh:
		out = append(out, Finding{
			Key:    "temp_elevated",
			Level:  "critical",
			Title:  "Elevated temperature",
			Detail: fmt.Sprintf("Elevated temperature: %s°C", FormatTemp(maxT)),
			Value:  &maxT,
		})
	case maxT >= t.TempElevated:
		out = append(out, Finding{
			Key:    "temp_above_normal",
			Level:  "warning",
			Title:  "Above normal",
			Detail: fmt.Sprintf("Temperature above normal: %s°C", FormatTemp(maxT)),
			Value:  &maxT,
		})
	}

	// Stable order: critical first.
	if len(out) == 2 && out[0].Level != "critical" && out[1].Level == "critical" {
		out[0], out[1] = out[1], out[0]
	}
	return out
}

// Conclusion renders the rule-based plain-text report for a measurement.
func Conclusion(m Metrics, findings []Finding, anomalies []ZoneAnomaly) string {
	var b strings.Builder

	switch m.Risk {
	case RiskNormal:
		b.WriteString("All readings are within normal limits.\n\n")
	case RiskElevated:
		b.WriteString("Minor deviations detected.\n\n")
	default:
		b.WriteString("Significant deviations from normal detected.\n\n")
	}

	fmt.Fprintf(&b, "Average left breast temperature: %s°C\n", FormatTemp(m.AvgLeft))
	fmt.Fprintf(&b, "Average right breast temperature: %s°C\n", FormatTemp(m.AvgRight))
	fmt.Fprintf(&b, "Asymmetry: %s°C\n\n", FormatAsymmetry(m.Asymmetry))

	if m.Risk == RiskNormal {
		b.WriteString("Temperature distribution is symmetric, no signs of anomalies found.")
		return b.String()
	}

	b.WriteString("Deviations found:\n")
	for _, f := range findings {
		fmt.Fprintf(&b, "• %s\n", f.Detail)
	}
	for _, a := range anomalies {
		fmt.Fprintf(&b, "• %s\n", a)
	}

	if m.Risk == RiskElevated {
		b.WriteString("\nRecommendation: repeat the measurement in 24-48 hours. " +
			"If the asymmetry persists, consult a specialist.")
		return b.String()
	}

	b.WriteString("\nIMPORTANT: a visit to a mammologist is recommended for further examination.\n\n" +
		"This system is not a medical diagnostic device and does not replace a specialist consultation.")
	return b.String()
}
