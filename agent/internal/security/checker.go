package security

import (
	"context"
	"crypto/tls"
	"log/slog"
	"math"
	"net"
	"net/url"
	"time"

	"github.com/thermowatch/thermowatch/agent/internal/config"
)

// ExpiryWarning is how close to NotAfter a device certificate is reported as expiring.
const ExpiryWarning = 30 * 24 * time.Hour

const dialTimeout = 10 * time.Second

// Certificate states.
const (
	StatusValid       = "valid"
	StatusExpiring    = "expiring"
	StatusExpired     = "expired"
	StatusUnreachable = "unreachable"
)

// CertStatus describes the leaf certificate a device presents.
type CertStatus struct {
	SourceID string
	Endpoint string
	Status   string
	Issuer   string
	NotAfter time.Time
	DaysLeft int
}

// Check dials the device's HTTPS endpoint and inspects its leaf certificate.
// It returns nil for plain-HTTP, simulated or unparseable endpoints.
func Check(ctx context.Context, src config.Source) *CertStatus {
	if src.Type != config.TypePrometheus {
		return nil
	}
	u, err := url.Parse(src.Endpoint)
	if err != nil || u.Scheme != "https" {
		return nil
	}

	cs := &CertStatus{SourceID: src.ID, Endpoint: src.Endpoint}

	host := u.Host
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, "443")
	}

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{},
		Config: &tls.Config{
			InsecureSkipVerify: src.TLS.InsecureSkipVerify, //nolint:gosec // user-configured
		},
	}
	netConn, err := dialer.DialContext(dialCtx, "tcp", host)
	if err != nil {
		cs.Status = StatusUnreachable
		return cs
	}
	conn := netConn.(*tls.Conn)
	defer conn.Close()

	peers := conn.ConnectionState().PeerCertificates
	if len(peers) == 0 {
		cs.Status = StatusUnreachable
		return cs
	}

	leaf := peers[0]
	left := time.Until(leaf.NotAfter)
	cs.NotAfter = leaf.NotAfter.UTC()
	cs.Issuer = leaf.Issuer.CommonName
	cs.DaysLeft = int(math.Floor(left.Hours() / 24))

	switch {
	case left <= 0:
		cs.Status = StatusExpired
	case left <= ExpiryWarning:
		cs.Status = StatusExpiring
	default:
		cs.Status = StatusValid
	}
	return cs
}

// CheckAll runs Check for every source and logs anything other than a valid
// certificate. It returns the statuses that were produced.
func CheckAll(ctx context.Context, sources []config.Source) []*CertStatus {
	var out []*CertStatus
	for _, src := range sources {
		cs := Check(ctx, src)
		if cs == nil {
			continue
		}
		out = append(out, cs)
		switch cs.Status {
		case StatusValid:
			slog.Debug("security: device certificate ok", "source", cs.SourceID, "days_left", cs.DaysLeft)
		case StatusUnreachable:
			slog.Warn("security: device tls unreachable", "source", cs.SourceID, "endpoint", cs.Endpoint)
		default:
			slog.Warn("security: device certificate "+cs.Status,
				"source", cs.SourceID, "issuer", cs.Issuer, "not_after", cs.NotAfter, "days_left", cs.DaysLeft)
		}
	}
	return out
}
