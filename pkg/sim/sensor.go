package sim

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/thermowatch/thermowatch/pkg/types"
)

const (
	baseTemp     = 36.6
	baseSpread   = 0.2
	sensorSpread = 0.15
)

// Sensor is a mock eight-zone device. Safe for concurrent use.
type Sensor struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSensor returns a Sensor seeded from rng.
// A nil rng seeds from the current time.
func NewSensor(rng *rand.Rand) *Sensor {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Sensor{rng: rng}
}

// Read returns eight temperatures in sensor order: 1-4 left, 5-8 right.
func (s *Sensor) Read() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	base := baseTemp + spread(s.rng, baseSpread)
	out := make([]float64, 2*types.ZonesPerSide)
	for i := range out {
		out[i] = round1(base + spread(s.rng, sensorSpread))
	}
	return out
}

// Reading wraps Read into a validated reading tagged as a sensor source.
func (s *Sensor) Reading(deviceID string) types.Reading {
	r, err := types.FromSensors(s.Read())
	if err != nil {
		// Read always yields eight finite values.
		panic(err)
	}
	r.DeviceID = deviceID
	r.Source = types.SourceSensor
	return r
}

// spread returns a uniform value in [-w, w).
func spread(rng *rand.Rand, w float64) float64 {
	return rng.Float64()*2*w - w
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
