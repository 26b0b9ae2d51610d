package store

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/thermowatch/thermowatch/pkg/types"
	"github.com/thermowatch/thermowatch/server/internal/compute"
)

// Device is the latest reading from one sensor device together with the time
// it was received.
type Device struct {
	DeviceID  string            `json:"device_id"`
	SourceID  string            `json:"source_id,omitempty"`
	Reading   types.Reading     `json:"reading"`
	Risk      compute.RiskLevel `json:"risk"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Devices is a thread-safe latest-reading store keyed by device ID.
// A background goroutine (Run) periodically evicts devices that have not
// reported within the configured TTL.
type Devices struct {
	mu   sync.RWMutex
	data map[string]*Device
	ttl  time.Duration
	now  func() time.Time // injectable for deterministic tests
}

// NewDevices creates a Devices store with the given TTL.
func NewDevices(ttl time.Duration) *Devices {
	return &Devices{
		data: make(map[string]*Device),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Put stores or replaces the latest reading for r.DeviceID.
func (s *Devices) Put(sourceID string, r types.Reading, risk compute.RiskLevel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[r.DeviceID] = &Device{
		DeviceID:  r.DeviceID,
		SourceID:  sourceID,
		Reading:   r,
		Risk:      risk,
		UpdatedAt: s.now(),
	}
}

// Get returns the device and whether it was found. The entry may be stale if
// TTL has elapsed but Evict has not run yet.
func (s *Devices) Get(deviceID string) (Device, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.data[deviceID]
	if !ok {
		return Device{}, false
	}
	return *d, true
}

// List returns every device updated within the TTL, sorted by device ID.
func (s *Devices) List() []Device {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cutoff := s.now().Add(-s.ttl)
	out := make([]Device, 0, len(s.data))
	for _, d := range s.data {
		if d.UpdatedAt.After(cutoff) {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out
}

// Count returns the number of devices held, including stale ones.
func (s *Devices) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Evict removes devices whose UpdatedAt is older than now minus TTL.
// It returns the number of devices removed.
func (s *Devices) Evict(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := now.Add(-s.ttl)
	removed := 0
	for id, d := range s.data {
		if !d.UpdatedAt.After(cutoff) {
			delete(s.data, id)
			removed++
		}
	}
	return removed
}

// Run starts the background eviction loop. It ticks at half the TTL interval
// (minimum 1 second). Run blocks until ctx is cancelled.
func (s *Devices) Run(ctx context.Context) {
	interval := s.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := s.Evict(now); n > 0 {
				slog.Debug("store: evicted quiet devices", "count", n)
			}
		}
	}
}
