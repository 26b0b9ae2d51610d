package types

import (
	"fmt"
	"math"
	"time"
)

// ZonesPerSide is the number of sensor zones on each breast.
const ZonesPerSide = 4

// MinZoneTemp and MaxZoneTemp bound a physically plausible skin temperature
// in °C. Readings outside them come from a faulty sensor or a typo.
const (
	MinZoneTemp = 30.0
	MaxZoneTemp = 45.0
)

// Source is the provenance tag of a reading and of the history entry built from it.
type Source string

const (
	SourceManual Source = "manual"
	SourceImage  Source = "image"
	SourceSensor Source = "sensor"
)

// Valid reports whether s is one of the known provenance tags.
func (s Source) Valid() bool {
	switch s {
	case SourceManual, SourceImage, SourceSensor:
		return true
	}
	return false
}

// ZoneNames lists zone labels in sensor order: sensors 1-4 are the left side,
// sensors 5-8 the right side.
var ZoneNames = [2 * ZonesPerSide]string{
	"left upper inner",
	"left upper outer",
	"left lower inner",
	"left lower outer",
	"right upper inner",
	"right upper outer",
	"right lower inner",
	"right lower outer",
}

// Reading is one set of zone temperatures in °C.
// Build it with NewReading or FromSensors so the zone invariants hold.
type Reading struct {
	DeviceID   string    `json:"device_id,omitempty"`
	Source     Source    `json:"source"`
	Left       []float64 `json:"left_zones"`
	Right      []float64 `json:"right_zones"`
	CapturedAt time.Time `json:"captured_at"`
}

// NewReading validates and copies the two zone sequences.
// Each side must hold exactly ZonesPerSide finite values.
func NewReading(left, right []float64) (Reading, error) {
	if err := validateZones("left", left); err != nil {
		return Reading{}, err
	}
	if err := validateZones("right", right); err != nil {
		return Reading{}, err
	}
	return Reading{
		Left:  append([]float64(nil), left...),
		Right: append([]float64(nil), right...),
	}, nil
}

// FromSensors builds a Reading from the flat eight-sensor form used by the
// remote API and by sensor devices.
func FromSensors(sensors []float64) (Reading, error) {
	if len(sensors) != 2*ZonesPerSide {
		return Reading{}, fmt.Errorf("%w: want %d sensors, got %d", ErrInvalidInput, 2*ZonesPerSide, len(sensors))
	}
	return NewReading(sensors[:ZonesPerSide], sensors[ZonesPerSide:])
}

// Sensors flattens the reading into sensor order (left 1-4, right 5-8).
func (r Reading) Sensors() []float64 {
	out := make([]float64, 0, len(r.Left)+len(r.Right))
	out = append(out, r.Left...)
	return append(out, r.Right...)
}

// CheckRange rejects the first zone outside [min, max] with ErrInvalidInput.
func (r Reading) CheckRange(min, max float64) error {
	for i, v := range r.Sensors() {
		if !(v >= min && v <= max) {
			name := fmt.Sprintf("sensor %d", i+1)
			if i < len(ZoneNames) {
				name = ZoneNames[i]
			}
			return fmt.Errorf("%w: %s is %.1f °C, outside [%.0f, %.0f]",
				ErrInvalidInput, name, v, min, max)
		}
	}
	return nil
}

func validateZones(side string, zones []float64) error {
	if len(zones) != ZonesPerSide {
		return fmt.Errorf("%w: %s side needs %d zones, got %d", ErrInvalidInput, side, ZonesPerSide, len(zones))
	}
	for i, v := range zones {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s zone %d is not a finite number", ErrInvalidInput, side, i+1)
		}
	}
	return nil
}
