package scraper

import (
	"context"
	"math/rand"
	"time"

	"github.com/thermowatch/thermowatch/agent/internal/config"
	"github.com/thermowatch/thermowatch/pkg/sim"
	"github.com/thermowatch/thermowatch/pkg/types"
)

// simScraper stands in for a device on benches without hardware.
type simScraper struct {
	src    config.Source
	sensor *sim.Sensor
}

func newSimScraper(src config.Source, rng *rand.Rand) *simScraper {
	return &simScraper{src: src, sensor: sim.NewSensor(rng)}
}

func (s *simScraper) Scrape(ctx context.Context) (types.Reading, error) {
	if err := ctx.Err(); err != nil {
		return types.Reading{}, err
	}
	r := s.sensor.Reading(s.src.DeviceID)
	r.CapturedAt = time.Now().UTC()
	return r, nil
}
