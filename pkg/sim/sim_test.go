package sim

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/thermowatch/thermowatch/pkg/types"
)

func mean(v []float64) float64 {
	var s float64
	for _, x := range v {
		s += x
	}
	return s / float64(len(v))
}

func TestSensor_ReadRange(t *testing.T) {
	s := NewSensor(rand.New(rand.NewSource(1)))
	for i := 0; i < 200; i++ {
		got := s.Read()
		if len(got) != 8 {
			t.Fatalf("len: got %d, want 8", len(got))
		}
		for _, v := range got {
			if v < 36.2 || v > 37.0 {
				t.Fatalf("reading %v out of [36.2, 37.0]", v)
			}
			if math.Abs(v*10-math.Round(v*10)) > 1e-9 {
				t.Fatalf("reading %v not rounded to 0.1", v)
			}
		}
	}
}

func TestSensor_Deterministic(t *testing.T) {
	a := NewSensor(rand.New(rand.NewSource(42))).Read()
	b := NewSensor(rand.New(rand.NewSource(42))).Read()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("sensor %d: %v != %v with same seed", i, a[i], b[i])
		}
	}
}

func TestSensor_Reading(t *testing.T) {
	r := NewSensor(rand.New(rand.NewSource(3))).Reading("dev-1")
	if r.Source != types.SourceSensor {
		t.Errorf("Source: got %q, want sensor", r.Source)
	}
	if r.DeviceID != "dev-1" {
		t.Errorf("DeviceID: got %q", r.DeviceID)
	}
}

func TestGenerate_Tiers(t *testing.T) {
	g := NewGenerator(rand.New(rand.NewSource(7)))
	tests := []struct {
		sc           Scenario
		minAsym      float64
		maxAsym      float64
		maxTempLimit float64
	}{
		{ScenarioNormal, 0, 0.5, 37.5},
		{ScenarioElevated, 0.5, 1.0, 37.5},
		{ScenarioHigh, 1.0, 99, 99},
	}
	for _, tc := range tests {
		t.Run(string(tc.sc), func(t *testing.T) {
			for i := 0; i < 100; i++ {
				r := g.Generate(tc.sc)
				asym := math.Abs(mean(r.Left) - mean(r.Right))
				if asym < tc.minAsym || asym >= tc.maxAsym {
					t.Fatalf("asymmetry %.3f outside [%v, %v)", asym, tc.minAsym, tc.maxAsym)
				}
				for _, v := range r.Sensors() {
					if v >= tc.maxTempLimit {
						t.Fatalf("temp %.2f >= %v", v, tc.maxTempLimit)
					}
				}
				if r.Source != types.SourceImage {
					t.Fatalf("Source: got %q, want image", r.Source)
				}
			}
		})
	}
}

func TestParseScenario(t *testing.T) {
	tests := []struct {
		in   string
		want Scenario
	}{
		{"normal", ScenarioNormal},
		{" HIGH ", ScenarioHigh},
		{"", ScenarioRandom},
		{"Elevated", ScenarioElevated},
	}
	for _, tc := range tests {
		got, err := ParseScenario(tc.in)
		if err != nil || got != tc.want {
			t.Errorf("ParseScenario(%q): got %q, %v; want %q", tc.in, got, err, tc.want)
		}
	}
	if _, err := ParseScenario("storm"); !errors.Is(err, types.ErrInvalidInput) {
		t.Errorf("unknown scenario: got %v, want ErrInvalidInput", err)
	}
}

func TestPick_StableForKey(t *testing.T) {
	key := []byte("thermogram-01.png")
	first := Pick(ScenarioRandom, key)
	for i := 0; i < 10; i++ {
		if got := Pick(ScenarioRandom, key); got != first {
			t.Fatalf("Pick not stable: %q then %q", first, got)
		}
	}
	if got := Pick(ScenarioHigh, key); got != ScenarioHigh {
		t.Errorf("fixed scenario changed: got %q", got)
	}
}
