package store

import (
	"sync"
	"testing"
	"time"

	"github.com/thermowatch/thermowatch/pkg/types"
	"github.com/thermowatch/thermowatch/server/internal/compute"
)

func reading(id string) types.Reading {
	r, _ := types.NewReading([]float64{36, 36, 36, 36}, []float64{36, 36, 36, 36})
	r.DeviceID = id
	r.Source = types.SourceSensor
	return r
}

// fixedClock returns a func() time.Time that always returns t.
func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func TestDevices_PutAndGet(t *testing.T) {
	st := NewDevices(5 * time.Minute)
	st.Put("bench", reading("dev-1"), compute.RiskNormal)

	d, ok := st.Get("dev-1")
	if !ok {
		t.Fatal("Get: expected device, got none")
	}
	if d.SourceID != "bench" || d.Risk != compute.RiskNormal {
		t.Errorf("device: got %+v", d)
	}
}

func TestDevices_PutReplaces(t *testing.T) {
	st := NewDevices(5 * time.Minute)
	st.Put("a", reading("dev-1"), compute.RiskNormal)
	st.Put("a", reading("dev-1"), compute.RiskHigh)

	if st.Count() != 1 {
		t.Errorf("Count: got %d, want 1", st.Count())
	}
	d, _ := st.Get("dev-1")
	if d.Risk != compute.RiskHigh {
		t.Errorf("Risk: got %q, want high", d.Risk)
	}
}

func TestDevices_ListExcludesStale(t *testing.T) {
	st := NewDevices(time.Minute)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	st.now = fixedClock(base)
	st.Put("a", reading("old"), compute.RiskNormal)
	st.now = fixedClock(base.Add(50 * time.Second))
	st.Put("a", reading("new"), compute.RiskNormal)

	st.now = fixedClock(base.Add(90 * time.Second))
	list := st.List()
	if len(list) != 1 || list[0].DeviceID != "new" {
		t.Errorf("List: got %+v, want only 'new'", list)
	}
	if st.Count() != 2 {
		t.Errorf("Count: got %d, want 2 (stale not yet evicted)", st.Count())
	}
}

func TestDevices_Evict(t *testing.T) {
	st := NewDevices(time.Minute)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	st.now = fixedClock(base)
	st.Put("a", reading("d1"), compute.RiskNormal)
	st.Put("a", reading("d2"), compute.RiskNormal)

	if n := st.Evict(base.Add(30 * time.Second)); n != 0 {
		t.Errorf("Evict early: removed %d, want 0", n)
	}
	if n := st.Evict(base.Add(2 * time.Minute)); n != 2 {
		t.Errorf("Evict late: removed %d, want 2", n)
	}
	if st.Count() != 0 {
		t.Errorf("Count: got %d, want 0", st.Count())
	}
}

func TestDevices_ConcurrentPut(t *testing.T) {
	st := NewDevices(time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			st.Put("a", reading(string(rune('a'+i%26))), compute.RiskNormal)
			_ = st.List()
		}(i)
	}
	wg.Wait()
	if st.Count() != 26 {
		t.Errorf("Count: got %d, want 26", st.Count())
	}
}
