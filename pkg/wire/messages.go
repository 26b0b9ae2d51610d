package wire

import (
	"github.com/thermowatch/thermowatch/pkg/types"
)

// ReadingMessage is one device reading as sent by the agent.
type ReadingMessage struct {
	DeviceID      string    `json:"device_id"`
	SourceID      string    `json:"source_id"`
	TimestampUnix int64     `json:"timestamp_unix"`
	LeftZones     []float64 `json:"left_zones"`
	RightZones    []float64 `json:"right_zones"`
}

// SendResponse acknowledges a ReadingMessage and carries the computed risk tier.
type SendResponse struct {
	Ok      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
	Risk    string `json:"risk,omitempty"`
}

// FromReading builds the wire form of r.
func FromReading(sourceID string, r types.Reading) *ReadingMessage {
	return &ReadingMessage{
		DeviceID:      r.DeviceID,
		SourceID:      sourceID,
		TimestampUnix: r.CapturedAt.Unix(),
		LeftZones:     append([]float64(nil), r.Left...),
		RightZones:    append([]float64(nil), r.Right...),
	}
}
