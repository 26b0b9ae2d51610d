package shipper

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/thermowatch/thermowatch/agent/internal/config"
	"github.com/thermowatch/thermowatch/pkg/types"
	"github.com/thermowatch/thermowatch/pkg/wire"
)

const (
	backoffInitial    = 1 * time.Second
	backoffMax        = 60 * time.Second
	backoffMultiplier = 2.0
)

// Shipper buffers readings and ships them to thermowatch-server via gRPC.
// Ship is non-blocking; when the buffer is full the oldest reading is evicted.
// Run must be called in a goroutine to drain the buffer.
type Shipper struct {
	cfg    config.AgentConfig
	buf    chan *wire.ReadingMessage
	dialFn dialFunc
}

// dialFunc opens the connection to the server. Tests swap it for a local listener.
type dialFunc func(ctx context.Context, endpoint string, cfg config.AgentConfig) (*grpc.ClientConn, error)

// New creates a Shipper using the given agent config.
func New(cfg config.AgentConfig) *Shipper {
	size := cfg.BufferSize
	if size <= 0 {
		size = config.DefaultBufferSize
	}
	return &Shipper{
		cfg:    cfg,
		buf:    make(chan *wire.ReadingMessage, size),
		dialFn: defaultDial,
	}
}

// Ship enqueues r as read from sourceID.
func (s *Shipper) Ship(sourceID string, r types.Reading) {
	msg := wire.FromReading(sourceID, r)
	select {
	case s.buf <- msg:
	default:
		select {
		case <-s.buf:
			slog.Warn("shipper: buffer full, evicted oldest reading",
				"source", sourceID, "buffer_cap", cap(s.buf))
		default:
		}
		s.buf <- msg
	}
}

// Pending returns the number of buffered readings.
func (s *Shipper) Pending() int { return len(s.buf) }

// Run drains the buffer, reconnecting with exponential backoff when the
// connection is lost. It blocks until ctx is cancelled.
func (s *Shipper) Run(ctx context.Context) {
	bo := newBackoff()

	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := s.dialFn(ctx, s.cfg.ServerEndpoint, s.cfg)
		if err != nil {
			wait := bo.next()
			slog.Error("shipper: dial failed, will retry",
				"endpoint", s.cfg.ServerEndpoint,
				"err", err,
				"retry_in", wait)
			if !sleep(ctx, wait) {
				return
			}
			continue
		}

		slog.Info("shipper: connected", "endpoint", s.cfg.ServerEndpoint)
		bo.reset()

		err = s.drain(ctx, wire.NewReadingServiceClient(conn))
		conn.Close()

		if ctx.Err() != nil {
			return
		}

		wait := bo.next()
		slog.Warn("shipper: connection lost, will reconnect",
			"endpoint", s.cfg.ServerEndpoint,
			"err", err,
			"retry_in", wait)
		if !sleep(ctx, wait) {
			return
		}
	}
}

// drain sends buffered readings until a transient send error or ctx ends.
func (s *Shipper) drain(ctx context.Context, client wire.ReadingServiceClient) error {
	timeout := s.cfg.SendTimeout
	if timeout <= 0 {
		timeout = config.DefaultSendTimeout
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case msg := <-s.buf:
			sendCtx, cancel := context.WithTimeout(ctx, timeout)
			resp, err := client.SendReading(sendCtx, msg)
			cancel()

			if err != nil {
				if isPermanentError(err) {
					slog.Error("shipper: reading rejected, discarding",
						"device", msg.DeviceID, "err", err)
					continue
				}
				// Requeue unless newer readings already filled the buffer.
				select {
				case s.buf <- msg:
				default:
				}
				return fmt.Errorf("send: %w", err)
			}

			if resp.Message != "" {
				slog.Warn("shipper: server accepted with warning",
					"device", msg.DeviceID, "message", resp.Message)
			}
			slog.Debug("shipper: reading delivered", "device", msg.DeviceID, "risk", resp.Risk)
		}
	}
}

// isPermanentError reports whether retrying err cannot succeed.
func isPermanentError(err error) bool {
	switch status.Code(err) {
	case codes.InvalidArgument, codes.Unauthenticated, codes.PermissionDenied:
		return true
	}
	return false
}

func defaultDial(ctx context.Context, endpoint string, cfg config.AgentConfig) (*grpc.ClientConn, error) {
	opts, err := dialOptions(cfg)
	if err != nil {
		return nil, err
	}
	return grpc.DialContext(ctx, endpoint, opts...) //nolint:staticcheck // DialContext kept for grpc 1.62
}

func dialOptions(cfg config.AgentConfig) ([]grpc.DialOption, error) {
	if !cfg.ServerTLS.Enabled {
		return []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, nil
	}
	creds, err := buildTLSCreds(cfg.ServerTLS)
	if err != nil {
		return nil, fmt.Errorf("shipper: build tls creds: %w", err)
	}
	return []grpc.DialOption{grpc.WithTransportCredentials(creds)}, nil
}

// buildTLSCreds uses the system roots unless a CA bundle is configured.
func buildTLSCreds(c config.ServerTLSConfig) (credentials.TransportCredentials, error) {
	tlsCfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: c.InsecureSkipVerify, //nolint:gosec // user-configured
	}
	if c.CAFile != "" {
		caPEM, err := os.ReadFile(c.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read ca file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("no valid certs in ca file %q", c.CAFile)
		}
		tlsCfg.RootCAs = pool
	}
	return credentials.NewTLS(tlsCfg), nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// backoff implements truncated exponential backoff with jitter.
type backoff struct {
	current time.Duration
}

func newBackoff() *backoff {
	return &backoff{current: backoffInitial}
}

// next returns the current wait with ±25% jitter and doubles the base.
func (b *backoff) next() time.Duration {
	d := b.current
	d += time.Duration(float64(b.current) * 0.25 * (rand.Float64()*2 - 1)) //nolint:gosec // not crypto
	if d < 0 {
		d = 0
	}

	b.current = time.Duration(float64(b.current) * backoffMultiplier)
	if b.current > backoffMax {
		b.current = backoffMax
	}
	return d
}

func (b *backoff) reset() {
	b.current = backoffInitial
}
