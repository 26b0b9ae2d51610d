package types

import (
	"errors"
	"math"
	"testing"
)

func TestNewReading_Valid(t *testing.T) {
	left := []float64{36.4, 36.3, 36.5, 36.4}
	right := []float64{36.6, 36.5, 36.7, 36.6}

	r, err := NewReading(left, right)
	if err != nil {
		t.Fatalf("NewReading: %v", err)
	}

	// The reading must not alias the caller's slices.
	left[0] = 99
	if r.Left[0] != 36.4 {
		t.Errorf("Left[0]: got %v, want 36.4 (slice aliased)", r.Left[0])
	}
}

func TestNewReading_Invalid(t *testing.T) {
	four := []float64{36, 36, 36, 36}
	tests := []struct {
		name        string
		left, right []float64
	}{
		{"empty left", nil, four},
		{"short right", four, []float64{36, 36, 36}},
		{"long left", []float64{36, 36, 36, 36, 36}, four},
		{"NaN", []float64{36, math.NaN(), 36, 36}, four},
		{"+Inf", four, []float64{36, 36, math.Inf(1), 36}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewReading(tc.left, tc.right)
			if !errors.Is(err, ErrInvalidInput) {
				t.Errorf("err: got %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestFromSensors_SplitsSides(t *testing.T) {
	r, err := FromSensors([]float64{1, 2, 3, 4, 5, 6, 7, 8})
	if err != nil {
		t.Fatalf("FromSensors: %v", err)
	}
	if r.Left[3] != 4 || r.Right[0] != 5 {
		t.Errorf("split: left=%v right=%v", r.Left, r.Right)
	}
	got := r.Sensors()
	for i, v := range got {
		if v != float64(i+1) {
			t.Errorf("Sensors()[%d]: got %v, want %d", i, v, i+1)
		}
	}
}

func TestFromSensors_WrongCount(t *testing.T) {
	if _, err := FromSensors([]float64{1, 2, 3}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("err: got %v, want ErrInvalidInput", err)
	}
}

func TestSource_Valid(t *testing.T) {
	for _, s := range []Source{SourceManual, SourceImage, SourceSensor} {
		if !s.Valid() {
			t.Errorf("%q: want valid", s)
		}
	}
	if Source("fax").Valid() {
		t.Error(`"fax": want invalid`)
	}
}

func TestReading_CheckRange(t *testing.T) {
	tests := []struct {
		name        string
		left, right []float64
		ok          bool
	}{
		{"typical", []float64{36.4, 36.3, 36.5, 36.4}, []float64{36.4, 36.3, 36.5, 36.4}, true},
		{"bounds inclusive", []float64{30, 30, 30, 30}, []float64{45, 45, 45, 45}, true},
		{"cold zone", []float64{0, 0, 0, 0}, []float64{36, 36, 36, 36}, false},
		{"hot zone", []float64{36, 36, 36, 36}, []float64{36, 36, 36, 100}, false},
		{"just below", []float64{29.9, 36, 36, 36}, []float64{36, 36, 36, 36}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r, err := NewReading(tc.left, tc.right)
			if err != nil {
				t.Fatalf("NewReading: %v", err)
			}
			err = r.CheckRange(MinZoneTemp, MaxZoneTemp)
			if tc.ok && err != nil {
				t.Errorf("CheckRange: unexpected error %v", err)
			}
			if !tc.ok && !errors.Is(err, ErrInvalidInput) {
				t.Errorf("CheckRange: got %v, want ErrInvalidInput", err)
			}
		})
	}
}
