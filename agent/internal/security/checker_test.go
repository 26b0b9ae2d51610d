package security

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/thermowatch/thermowatch/agent/internal/config"
)

func TestCheck_SkipsNonTLS(t *testing.T) {
	cases := []config.Source{
		{ID: "plain", Type: config.TypePrometheus, Endpoint: "http://10.0.0.7:9100/metrics"},
		{ID: "sim", Type: config.TypeSimulated},
		{ID: "bad", Type: config.TypePrometheus, Endpoint: "://nope"},
	}
	for _, src := range cases {
		if cs := Check(context.Background(), src); cs != nil {
			t.Errorf("%s: got %+v, want nil", src.ID, cs)
		}
	}
}

func TestCheck_TLSDevice(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	defer srv.Close()

	src := config.Source{
		ID:       "cam",
		Type:     config.TypePrometheus,
		Endpoint: srv.URL + "/metrics",
		TLS:      config.TLSConfig{InsecureSkipVerify: true},
	}
	cs := Check(context.Background(), src)
	if cs == nil {
		t.Fatal("Check() = nil, want a status")
	}
	// httptest certificates are long-lived.
	if cs.Status != StatusValid {
		t.Errorf("Status = %q, want valid", cs.Status)
	}
	if cs.DaysLeft <= 30 {
		t.Errorf("DaysLeft = %d", cs.DaysLeft)
	}
}

func TestCheck_Unreachable(t *testing.T) {
	src := config.Source{ID: "down", Type: config.TypePrometheus, Endpoint: "https://127.0.0.1:1/metrics"}
	cs := Check(context.Background(), src)
	if cs == nil || cs.Status != StatusUnreachable {
		t.Errorf("Check() = %+v, want unreachable", cs)
	}
}

func TestCheckAll(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	defer srv.Close()

	got := CheckAll(context.Background(), []config.Source{
		{ID: "sim", Type: config.TypeSimulated},
		{ID: "cam", Type: config.TypePrometheus, Endpoint: srv.URL, TLS: config.TLSConfig{InsecureSkipVerify: true}},
	})
	if len(got) != 1 || got[0].SourceID != "cam" {
		t.Errorf("CheckAll() = %+v, want one status for cam", got)
	}
}
