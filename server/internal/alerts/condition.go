package alerts

import (
	"strconv"
	"strings"

	"github.com/thermowatch/thermowatch/server/internal/compute"
)

// evalCondition evaluates a rule condition string against measurement metrics.
//
// Supported expressions (field operator value):
//
//	asymmetry >= 0.8
//	max_temp > 37.8
//	min_temp < 35
//	avg_left > 37
//	avg_right > 37
//	avg_total >= 37.2
//	risk == high
//	risk != normal
//
// Returns (fires bool, triggering value float64).
// Returns (false, 0) if the expression cannot be parsed or the field is unknown.
func evalCondition(cond string, m compute.Metrics) (bool, float64) {
	parts := strings.Fields(cond)
	if len(parts) != 3 {
		return false, 0
	}
	field, op, rhs := parts[0], parts[1], parts[2]

	if field == "risk" {
		switch op {
		case "==":
			return string(m.Risk) == rhs, riskRank(m.Risk)
		case "!=":
			return string(m.Risk) != rhs, riskRank(m.Risk)
		}
		return false, 0
	}

	v, ok := numericField(field, m)
	if !ok {
		return false, 0
	}
	threshold, err := strconv.ParseFloat(rhs, 64)
	if err != nil {
		return false, 0
	}
	return compareFloat(v, op, threshold), v
}

// validCondition reports whether cond parses to a known field and operator.
func validCondition(cond string) bool {
	parts := strings.Fields(cond)
	if len(parts) != 3 {
		return false
	}
	if parts[0] == "risk" {
		return (parts[1] == "==" || parts[1] == "!=") && compute.RiskLevel(parts[2]).Valid()
	}
	if _, ok := numericField(parts[0], compute.Metrics{}); !ok {
		return false
	}
	if _, err := strconv.ParseFloat(parts[2], 64); err != nil {
		return false
	}
	switch parts[1] {
	case ">", ">=", "<", "<=", "==":
		return true
	}
	return false
}

// numericField maps a field name to its value in the metrics.
func numericField(field string, m compute.Metrics) (float64, bool) {
	switch field {
	case "asymmetry":
		return m.Asymmetry, true
	case "max_temp":
		return m.MaxTemp, true
	case "min_temp":
		return m.MinTemp, true
	case "avg_left":
		return m.AvgLeft, true
	case "avg_right":
		return m.AvgRight, true
	case "avg_total":
		return m.AvgTotal, true
	default:
		return 0, false
	}
}

// riskRank orders risk tiers for the alert value: 0 normal, 1 elevated, 2 high.
func riskRank(r compute.RiskLevel) float64 {
	switch r {
	case compute.RiskHigh:
		return 2
	case compute.RiskElevated:
		return 1
	default:
		return 0
	}
}

// compareFloat applies a comparison operator to two float64 values.
func compareFloat(v float64, op string, threshold float64) bool {
	switch op {
	case ">":
		return v > threshold
	case ">=":
		return v >= threshold
	case "<":
		return v < threshold
	case "<=":
		return v <= threshold
	case "==":
		return v == threshold
	default:
		return false
	}
}
