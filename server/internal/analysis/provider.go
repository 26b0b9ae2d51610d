package analysis

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/thermowatch/thermowatch/pkg/sim"
	"github.com/thermowatch/thermowatch/pkg/types"
)

// DefaultDelay mirrors the time a real analysis backend takes to respond.
const DefaultDelay = 2 * time.Second

// Provider extracts zone temperatures from an image. Implementations must
// return ctx.Err() promptly once ctx is done.
type Provider interface {
	Analyze(ctx context.Context, img Image) (types.Reading, error)
}

// Simulated fabricates a plausible reading after a fixed delay.
type Simulated struct {
	delay    time.Duration
	scenario sim.Scenario

	mu  sync.Mutex // guards gen
	gen *sim.Generator
}

// NewSimulated returns a Simulated provider. ScenarioRandom picks the tier
// from the image bytes, so re-uploading the same file lands in the same tier.
// A nil rng seeds from the current time.
func NewSimulated(delay time.Duration, scenario sim.Scenario, rng *rand.Rand) *Simulated {
	if scenario == "" {
		scenario = sim.ScenarioRandom
	}
	return &Simulated{
		delay:    delay,
		scenario: scenario,
		gen:      sim.NewGenerator(rng),
	}
}

// Analyze waits for the configured delay and returns a generated reading
// tagged as an image source.
func (s *Simulated) Analyze(ctx context.Context, img Image) (types.Reading, error) {
	if s.delay > 0 {
		t := time.NewTimer(s.delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			slog.Debug("analysis: abandoned", "image_id", img.ID, "err", ctx.Err())
			return types.Reading{}, ctx.Err()
		case <-t.C:
		}
	} else if err := ctx.Err(); err != nil {
		return types.Reading{}, err
	}

	sc := sim.Pick(s.scenario, img.Data)

	s.mu.Lock()
	r := s.gen.Generate(sc)
	s.mu.Unlock()

	r.CapturedAt = time.Now().UTC()
	slog.Debug("analysis: image analysed", "image_id", img.ID, "scenario", sc)
	return r, nil
}
