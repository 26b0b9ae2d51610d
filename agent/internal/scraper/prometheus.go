package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/thermowatch/thermowatch/agent/internal/config"
	"github.com/thermowatch/thermowatch/pkg/types"
)

// Metric names exposed by a networked thermography device.
const (
	// One sample per zone, labelled side="left|right" and zone="1".."4".
	zoneTemperature = "thermowatch_zone_temperature_celsius"

	// Optional capture time of the current frame, in Unix seconds.
	captureTimestamp = "thermowatch_capture_timestamp_seconds"
)

type promScraper struct {
	src    config.Source
	client *http.Client
}

// Scrape fetches the device's /metrics page and assembles a reading from the
// zone gauges. Every one of the eight zones must be present.
func (s *promScraper) Scrape(ctx context.Context) (types.Reading, error) {
	mfs, err := fetchMetrics(ctx, s.client, s.src.Endpoint)
	if err != nil {
		slog.Warn("scraper: prometheus fetch failed", "source", s.src.ID, "err", err)
		return types.Reading{}, fmt.Errorf("prometheus scrape %q: %w", s.src.ID, err)
	}

	mf := mfs[zoneTemperature]
	if mf == nil {
		return types.Reading{}, fmt.Errorf("prometheus scrape %q: %s not exposed", s.src.ID, zoneTemperature)
	}

	left := make([]float64, types.ZonesPerSide)
	right := make([]float64, types.ZonesPerSide)
	var seen [2][types.ZonesPerSide]bool

	for _, m := range mf.GetMetric() {
		v, ok := metricValue(m)
		if !ok {
			continue
		}
		zone, err := strconv.Atoi(label(m, "zone"))
		if err != nil || zone < 1 || zone > types.ZonesPerSide {
			continue
		}
		switch label(m, "side") {
		case "left":
			left[zone-1], seen[0][zone-1] = v, true
		case "right":
			right[zone-1], seen[1][zone-1] = v, true
		}
	}
	for side, name := range [2]string{"left", "right"} {
		for z, ok := range seen[side] {
			if !ok {
				return types.Reading{}, fmt.Errorf("prometheus scrape %q: %s zone %d missing", s.src.ID, name, z+1)
			}
		}
	}

	r, err := types.NewReading(left, right)
	if err != nil {
		return types.Reading{}, fmt.Errorf("prometheus scrape %q: %w", s.src.ID, err)
	}
	r.DeviceID = s.src.DeviceID
	r.Source = types.SourceSensor
	r.CapturedAt = time.Now().UTC()
	if ts := mfs[captureTimestamp]; ts != nil && len(ts.GetMetric()) > 0 {
		if v, ok := metricValue(ts.GetMetric()[0]); ok && v > 0 {
			r.CapturedAt = time.Unix(int64(v), 0).UTC()
		}
	}
	return r, nil
}
