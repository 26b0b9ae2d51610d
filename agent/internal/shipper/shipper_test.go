package shipper

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/thermowatch/thermowatch/agent/internal/config"
	"github.com/thermowatch/thermowatch/pkg/types"
	"github.com/thermowatch/thermowatch/pkg/wire"
)

// mockServer implements wire.ReadingServiceServer for testing.
type mockServer struct {
	wire.UnimplementedReadingServiceServer
	mu       sync.Mutex
	received []*wire.ReadingMessage
	failN    int        // fail the first N calls with failCode
	failCode codes.Code // defaults to Unavailable
	calls    int
}

func (m *mockServer) SendReading(_ context.Context, msg *wire.ReadingMessage) (*wire.SendResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++

	if m.failN > 0 {
		m.failN--
		code := m.failCode
		if code == codes.OK {
			code = codes.Unavailable
		}
		return nil, status.Error(code, "mock failure")
	}

	m.received = append(m.received, msg)
	return &wire.SendResponse{Ok: true, Risk: "low"}, nil
}

func (m *mockServer) readings() []*wire.ReadingMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*wire.ReadingMessage(nil), m.received...)
}

func (m *mockServer) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// startTestServer serves srv on a random port and returns a dial function
// pointing at it.
func startTestServer(t *testing.T, srv *mockServer) dialFunc {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	gs := grpc.NewServer()
	wire.RegisterReadingServiceServer(gs, srv)
	go gs.Serve(lis) //nolint:errcheck
	t.Cleanup(gs.Stop)

	addr := lis.Addr().String()
	return func(ctx context.Context, _ string, _ config.AgentConfig) (*grpc.ClientConn, error) {
		return grpc.DialContext(ctx, addr, //nolint:staticcheck
			grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
}

func reading(device string, v float64) types.Reading {
	r, _ := types.NewReading([]float64{v, v, v, v}, []float64{v, v, v, v})
	r.DeviceID = device
	r.Source = types.SourceSensor
	r.CapturedAt = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	return r
}

func agentCfg() config.AgentConfig {
	return config.AgentConfig{
		ServerEndpoint: "unused-overridden-by-dialFn",
		BufferSize:     10,
		SendTimeout:    time.Second,
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
}

// --- Tests ---

func TestShipper_DeliversReading(t *testing.T) {
	srv := &mockServer{}
	s := New(agentCfg())
	s.dialFn = startTestServer(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	go s.Run(ctx)

	s.Ship("bench", reading("cam-1", 36.4))
	waitFor(t, func() bool { return len(srv.readings()) > 0 })

	got := srv.readings()
	if len(got) != 1 {
		t.Fatalf("server received %d readings, want 1", len(got))
	}
	if got[0].DeviceID != "cam-1" || got[0].SourceID != "bench" {
		t.Errorf("ids = %q/%q, want cam-1/bench", got[0].DeviceID, got[0].SourceID)
	}
	if got[0].LeftZones[0] != 36.4 || len(got[0].RightZones) != 4 {
		t.Errorf("zones = %v / %v", got[0].LeftZones, got[0].RightZones)
	}
	if got[0].TimestampUnix != time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC).Unix() {
		t.Errorf("TimestampUnix = %d", got[0].TimestampUnix)
	}
}

func TestShipper_MultipleReadings(t *testing.T) {
	srv := &mockServer{}
	s := New(agentCfg())
	s.dialFn = startTestServer(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	go s.Run(ctx)

	for i := 0; i < 5; i++ {
		s.Ship("bench", reading("cam-1", 36+float64(i)/10))
	}
	waitFor(t, func() bool { return len(srv.readings()) >= 5 })

	if got := len(srv.readings()); got != 5 {
		t.Errorf("server received %d readings, want 5", got)
	}
}

func TestShipper_BufferEvictsOldest(t *testing.T) {
	s := New(config.AgentConfig{BufferSize: 3})

	for i := 0; i < 5; i++ {
		s.Ship("bench", reading("cam", float64(30+i)))
	}
	if s.Pending() != 3 {
		t.Fatalf("Pending = %d, want 3", s.Pending())
	}

	var firsts []float64
	for len(s.buf) > 0 {
		firsts = append(firsts, (<-s.buf).LeftZones[0])
	}
	for i, want := range []float64{32, 33, 34} {
		if firsts[i] != want {
			t.Errorf("buffer[%d] = %.0f, want %.0f", i, firsts[i], want)
		}
	}
}

func TestShipper_TransientErrorRetries(t *testing.T) {
	srv := &mockServer{failN: 1}
	s := New(agentCfg())
	s.dialFn = startTestServer(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go s.Run(ctx)

	s.Ship("bench", reading("cam-1", 36.4))

	// One failed call, a ~1s backoff, then delivery on reconnect.
	deadline := time.Now().Add(4 * time.Second)
	for time.Now().Before(deadline) && len(srv.readings()) == 0 {
		time.Sleep(50 * time.Millisecond)
	}
	if got := len(srv.readings()); got != 1 {
		t.Fatalf("server received %d readings after retry, want 1", got)
	}
}

func TestShipper_PermanentErrorDiscards(t *testing.T) {
	srv := &mockServer{failN: 1, failCode: codes.InvalidArgument}
	s := New(agentCfg())
	s.dialFn = startTestServer(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	go s.Run(ctx)

	s.Ship("bench", reading("bad", 36))
	s.Ship("bench", reading("good", 36))
	waitFor(t, func() bool { return len(srv.readings()) >= 1 })

	got := srv.readings()
	if len(got) != 1 || got[0].DeviceID != "good" {
		t.Fatalf("received %+v, want only the good reading", got)
	}
	if n := srv.callCount(); n != 2 {
		t.Errorf("calls = %d, want 2 (rejected reading not retried)", n)
	}
}

func TestIsPermanentError(t *testing.T) {
	cases := map[codes.Code]bool{
		codes.InvalidArgument:  true,
		codes.Unauthenticated:  true,
		codes.PermissionDenied: true,
		codes.Unavailable:      false,
		codes.DeadlineExceeded: false,
		codes.Internal:         false,
	}
	for code, want := range cases {
		if got := isPermanentError(status.Error(code, "x")); got != want {
			t.Errorf("isPermanentError(%v) = %v, want %v", code, got, want)
		}
	}
}

func TestDialOptions(t *testing.T) {
	if _, err := dialOptions(config.AgentConfig{}); err != nil {
		t.Errorf("plaintext: %v", err)
	}
	if _, err := dialOptions(config.AgentConfig{ServerTLS: config.ServerTLSConfig{Enabled: true}}); err != nil {
		t.Errorf("tls with system roots: %v", err)
	}

	missing := config.ServerTLSConfig{Enabled: true, CAFile: filepath.Join(t.TempDir(), "nope.pem")}
	if _, err := dialOptions(config.AgentConfig{ServerTLS: missing}); err == nil {
		t.Error("missing ca file: want error")
	}

	garbage := filepath.Join(t.TempDir(), "garbage.pem")
	if err := os.WriteFile(garbage, []byte("not a cert"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := dialOptions(config.AgentConfig{ServerTLS: config.ServerTLSConfig{Enabled: true, CAFile: garbage}}); err == nil {
		t.Error("invalid ca file: want error")
	}

	ca := writeTestCA(t)
	if _, err := dialOptions(config.AgentConfig{ServerTLS: config.ServerTLSConfig{Enabled: true, CAFile: ca}}); err != nil {
		t.Errorf("valid ca file: %v", err)
	}
}

// writeTestCA writes a throwaway self-signed certificate as PEM.
func writeTestCA(t *testing.T) string {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "thermowatch test ca"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "ca.pem")
	if err := os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestShipper_BackoffResets(t *testing.T) {
	b := newBackoff()
	if first := b.next(); first > 2*time.Second {
		t.Errorf("first backoff too large: %v", first)
	}
	for i := 0; i < 10; i++ {
		b.next()
	}
	b.reset()
	if after := b.next(); after > 2*time.Second {
		t.Errorf("backoff after reset too large: %v", after)
	}
}

func TestBackoff_NeverExceedsMax(t *testing.T) {
	b := newBackoff()
	for i := 0; i < 50; i++ {
		if d := b.next(); d > backoffMax*5/4 {
			t.Errorf("backoff[%d] = %v, exceeds max plus jitter", i, d)
		}
	}
}

func TestShipper_GracefulShutdown(t *testing.T) {
	s := New(agentCfg())
	s.dialFn = startTestServer(t, &mockServer{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after context cancellation")
	}
}
