package scraper

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/thermowatch/thermowatch/agent/internal/config"
	"github.com/thermowatch/thermowatch/pkg/types"
)

const (
	defaultScrapeTimeout = 10 * time.Second
	defaultAPIKeyHeader  = "X-API-Key"
)

// Scraper reads one set of zone temperatures from a device.
// A returned reading always satisfies types.NewReading.
type Scraper interface {
	Scrape(ctx context.Context) (types.Reading, error)
}

// New returns the Scraper for src. The HTTP client is built once and reused.
func New(src config.Source) (Scraper, error) {
	switch src.Type {
	case config.TypePrometheus:
		return &promScraper{src: src, client: buildHTTPClient(src)}, nil
	case config.TypeSimulated:
		return newSimScraper(src, nil), nil
	default:
		return nil, fmt.Errorf("scraper: unsupported type %q", src.Type)
	}
}

// authRoundTripper injects device credentials into every outgoing request.
type authRoundTripper struct {
	base http.RoundTripper
	auth config.AuthConfig
}

func (t *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	switch t.auth.Mode {
	case "apikey":
		header := t.auth.Header
		if header == "" {
			header = defaultAPIKeyHeader
		}
		req = req.Clone(req.Context())
		req.Header.Set(header, t.auth.Key())
	case "bearer":
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+t.auth.Token())
	case "basic":
		req = req.Clone(req.Context())
		req.SetBasicAuth(t.auth.Username, t.auth.Password())
	}
	return t.base.RoundTrip(req)
}

func buildHTTPClient(src config.Source) *http.Client {
	base := &http.Transport{
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: src.TLS.InsecureSkipVerify, //nolint:gosec // user-configured
		},
	}
	return &http.Client{
		Transport: &authRoundTripper{base: base, auth: src.Auth},
		Timeout:   defaultScrapeTimeout,
	}
}

// fetchMetrics performs an HTTP GET to url and returns parsed metric families.
func fetchMetrics(ctx context.Context, client *http.Client, url string) (map[string]*dto.MetricFamily, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", string(expfmt.NewFormat(expfmt.TypeTextPlain)))

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return parseMetrics(resp.Body)
}

// parseMetrics decodes a Prometheus text exposition. A partial parse that
// still produced families is treated as success.
func parseMetrics(r io.Reader) (map[string]*dto.MetricFamily, error) {
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(r)
	if err != nil && len(mfs) == 0 {
		return nil, fmt.Errorf("parse prometheus text: %w", err)
	}
	return mfs, nil
}

// metricValue returns the gauge or untyped value of m.
func metricValue(m *dto.Metric) (float64, bool) {
	switch {
	case m.Gauge != nil:
		return m.Gauge.GetValue(), true
	case m.Untyped != nil:
		return m.Untyped.GetValue(), true
	}
	return 0, false
}

func label(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}
