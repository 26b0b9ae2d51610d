package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/thermowatch/thermowatch/pkg/types"
	"github.com/thermowatch/thermowatch/server/internal/compute"
)

// Entry is one immutable history record. Numeric fields are rounded for
// display when the entry is created; Risk is copied from the metrics at that
// moment and never recomputed.
type Entry struct {
	ID        string            `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	AvgLeft   float64           `json:"avg_left"`
	AvgRight  float64           `json:"avg_right"`
	Asymmetry float64           `json:"asymmetry"`
	MaxTemp   float64           `json:"max_temp"`
	Risk      compute.RiskLevel `json:"risk"`
	Source    types.Source      `json:"source"`
}

// History is the newest-first measurement log.
// All exported methods are safe for concurrent use.
type History struct {
	mu      sync.RWMutex
	kv      KV
	entries []Entry // entries[0] is the newest
	now     func() time.Time
	newID   func() string
}

// NewHistory returns an empty History persisted to kv. Call Load to hydrate it.
func NewHistory(kv KV) *History {
	return &History{
		kv:    kv,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// Load replaces the in-memory log with the durable snapshot and returns a copy.
// Missing, unreadable or corrupt data yields an empty log, never an error.
func (h *History) Load(ctx context.Context) []Entry {
	raw, ok, err := h.kv.Get(ctx, HistoryKey)

	var entries []Entry
	switch {
	case err != nil:
		slog.Warn("store: history unreadable, starting empty", "err", err)
	case !ok || raw == "":
	default:
		if err := json.Unmarshal([]byte(raw), &entries); err != nil {
			slog.Warn("store: history snapshot corrupt, starting empty", "err", err)
			entries = nil
		}
	}

	h.mu.Lock()
	h.entries = entries
	out := h.copyLocked()
	h.mu.Unlock()

	slog.Debug("store: history loaded", "entries", len(out))
	return out
}

// Append records m as the newest entry and persists the whole log.
// The returned entry is always valid for a known source; a persistence failure
// is returned alongside it, wrapping types.ErrStorageUnavailable, and the
// in-memory insert stands.
func (h *History) Append(ctx context.Context, m compute.Metrics, src types.Source) (Entry, error) {
	if !src.Valid() {
		return Entry{}, fmt.Errorf("%w: unknown source %q", types.ErrInvalidInput, src)
	}

	e := Entry{
		ID:        h.newID(),
		Timestamp: h.now().UTC().Round(0),
		AvgLeft:   round(m.AvgLeft, 1),
		AvgRight:  round(m.AvgRight, 1),
		Asymmetry: round(m.Asymmetry, 2),
		MaxTemp:   round(m.MaxTemp, 1),
		Risk:      m.Risk,
		Source:    src,
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries = append(h.entries, Entry{})
	copy(h.entries[1:], h.entries)
	h.entries[0] = e

	if err := h.persistLocked(ctx); err != nil {
		return e, err
	}
	return e, nil
}

// Clear empties the log and persists the empty snapshot. The in-memory log is
// cleared even when persisting fails.
func (h *History) Clear(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = nil
	return h.persistLocked(ctx)
}

// All returns a copy of the log, newest first.
func (h *History) All() []Entry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.copyLocked()
}

// Latest returns the newest entry, if any.
func (h *History) Latest() (Entry, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.entries) == 0 {
		return Entry{}, false
	}
	return h.entries[0], true
}

// Len returns the number of entries.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

// Since returns entries with Timestamp at or after t, newest first.
func (h *History) Since(t time.Time) []Entry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Entry, 0, len(h.entries))
	for _, e := range h.entries {
		if e.Timestamp.Before(t) {
			// Entries are newest first, so everything after is older too.
			break
		}
		out = append(out, e)
	}
	return out
}

// Stats summarizes a set of history entries. Averages and the maximum are
// rounded to two decimals; an empty period yields zero values.
type Stats struct {
	TotalMeasurements int                       `json:"total_measurements"`
	AvgAsymmetry      float64                   `json:"avg_asymmetry"`
	MaxAsymmetry      float64                   `json:"max_asymmetry"`
	AvgLeftTemp       float64                   `json:"avg_left_temp"`
	AvgRightTemp      float64                   `json:"avg_right_temp"`
	RiskDistribution  map[compute.RiskLevel]int `json:"risk_distribution"`
}

// Stats aggregates the entries with Timestamp at or after since.
func (h *History) Stats(since time.Time) Stats {
	entries := h.Since(since)

	st := Stats{
		TotalMeasurements: len(entries),
		RiskDistribution: map[compute.RiskLevel]int{
			compute.RiskNormal:   0,
			compute.RiskElevated: 0,
			compute.RiskHigh:     0,
		},
	}
	if len(entries) == 0 {
		return st
	}

	var sumAsym, sumL, sumR, maxAsym decimal.Decimal
	for i, e := range entries {
		a := decimal.NewFromFloat(e.Asymmetry)
		sumAsym = sumAsym.Add(a)
		sumL = sumL.Add(decimal.NewFromFloat(e.AvgLeft))
		sumR = sumR.Add(decimal.NewFromFloat(e.AvgRight))
		if i == 0 || a.GreaterThan(maxAsym) {
			maxAsym = a
		}
		st.RiskDistribution[e.Risk]++
	}
	n := decimal.NewFromInt(int64(len(entries)))
	st.AvgAsymmetry = sumAsym.Div(n).Round(2).InexactFloat64()
	st.MaxAsymmetry = maxAsym.Round(2).InexactFloat64()
	st.AvgLeftTemp = sumL.Div(n).Round(2).InexactFloat64()
	st.AvgRightTemp = sumR.Div(n).Round(2).InexactFloat64()
	return st
}

func (h *History) copyLocked() []Entry {
	out := make([]Entry, len(h.entries))
	copy(out, h.entries)
	return out
}

func (h *History) persistLocked(ctx context.Context) error {
	entries := h.entries
	if entries == nil {
		entries = []Entry{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("%w: encode history: %v", types.ErrStorageUnavailable, err)
	}
	if err := h.kv.Set(ctx, HistoryKey, string(data)); err != nil {
		err = asUnavailable(err)
		slog.Warn("store: history not persisted, keeping in memory",
			"entries", len(h.entries), "err", err)
		return fmt.Errorf("persist history: %w", err)
	}
	slog.Debug("store: history persisted", "entries", len(h.entries), "bytes", len(data))
	return nil
}

// asUnavailable makes sure err matches types.ErrStorageUnavailable.
func asUnavailable(err error) error {
	if errors.Is(err, types.ErrStorageUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", types.ErrStorageUnavailable, err)
}

// round rounds v half away from zero to places decimals.
func round(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}
