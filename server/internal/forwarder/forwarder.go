package forwarder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/thermowatch/thermowatch/pkg/types"
)

const (
	measurementsPath = "/api/measurements"
	defaultTimeout   = 10 * time.Second
	maxResponseBytes = 1 << 20
)

// RemoteAnalysis is the analysis the remote API returned for a forwarded reading.
type RemoteAnalysis struct {
	MeasurementID json.RawMessage    `json:"measurement_id,omitempty"`
	RiskLevel     string             `json:"risk_level"`
	Conclusion    string             `json:"conclusion"`
	Metrics       map[string]float64 `json:"metrics,omitempty"`
	Anomalies     []string           `json:"anomalies,omitempty"`
	ReceivedAt    time.Time          `json:"received_at"`
}

// Client posts readings to {baseURL}/api/measurements.
// All exported methods are safe for concurrent use.
type Client struct {
	mu      sync.RWMutex
	baseURL string
	last    *RemoteAnalysis

	http    *http.Client
	timeout time.Duration
	wg      sync.WaitGroup
	now     func() time.Time
}

// New returns a Client for baseURL. An empty baseURL disables forwarding
// until SetBaseURL is called. timeout <= 0 uses 10s.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: normalize(baseURL),
		http:    &http.Client{Timeout: timeout},
		timeout: timeout,
		now:     time.Now,
	}
}

// SetBaseURL changes the remote API location. Empty disables forwarding.
func (c *Client) SetBaseURL(u string) {
	c.mu.Lock()
	c.baseURL = normalize(u)
	c.mu.Unlock()
}

// BaseURL returns the current remote API location.
func (c *Client) BaseURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL
}

// Last returns the most recent remote analysis, if any.
func (c *Client) Last() (RemoteAnalysis, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.last == nil {
		return RemoteAnalysis{}, false
	}
	return *c.last, true
}

// Forward sends r in the background. Errors are logged, never returned.
func (c *Client) Forward(r types.Reading) {
	if c.BaseURL() == "" {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()
		if _, err := c.Send(ctx, r); err != nil {
			slog.Warn("forwarder: remote API unavailable, reading kept locally", "err", err)
		}
	}()
}

// Wait blocks until every in-flight Forward has finished.
func (c *Client) Wait() {
	c.wg.Wait()
}

// Send posts r and returns the remote analysis. Transport failures and
// non-2xx responses wrap types.ErrNetworkUnavailable. A 2xx response without
// an analysis body returns a zero RemoteAnalysis and no error.
func (c *Client) Send(ctx context.Context, r types.Reading) (RemoteAnalysis, error) {
	base := c.BaseURL()
	if base == "" {
		return RemoteAnalysis{}, fmt.Errorf("%w: remote API not configured", types.ErrNetworkUnavailable)
	}

	body, err := json.Marshal(payload(r))
	if err != nil {
		return RemoteAnalysis{}, fmt.Errorf("encode reading: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+measurementsPath, bytes.NewReader(body))
	if err != nil {
		return RemoteAnalysis{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return RemoteAnalysis{}, fmt.Errorf("%w: post %s: %v", types.ErrNetworkUnavailable, base, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return RemoteAnalysis{}, fmt.Errorf("%w: remote API returned HTTP %d", types.ErrNetworkUnavailable, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return RemoteAnalysis{}, fmt.Errorf("%w: read response: %v", types.ErrNetworkUnavailable, err)
	}

	var ra RemoteAnalysis
	if len(bytes.TrimSpace(data)) == 0 || json.Unmarshal(data, &ra) != nil || ra.RiskLevel == "" {
		slog.Debug("forwarder: reading accepted without analysis", "status", resp.StatusCode)
		return RemoteAnalysis{}, nil
	}
	ra.ReceivedAt = c.now().UTC()

	c.mu.Lock()
	c.last = &ra
	c.mu.Unlock()

	slog.Debug("forwarder: remote analysis received", "risk_level", ra.RiskLevel)
	return ra, nil
}

// payload builds the flat sensor_1..sensor_8 body the remote API expects.
func payload(r types.Reading) map[string]interface{} {
	out := make(map[string]interface{}, 2*types.ZonesPerSide+1)
	for i, v := range r.Sensors() {
		out[fmt.Sprintf("sensor_%d", i+1)] = v
	}
	out["source"] = string(types.SourceManual)
	return out
}

func normalize(u string) string {
	return strings.TrimRight(strings.TrimSpace(u), "/")
}
