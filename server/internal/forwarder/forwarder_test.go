package forwarder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thermowatch/thermowatch/pkg/types"
)

func testReading(t *testing.T) types.Reading {
	t.Helper()
	r, err := types.FromSensors([]float64{36.1, 36.2, 36.3, 36.4, 36.5, 36.6, 36.7, 36.8})
	require.NoError(t, err)
	r.Source = types.SourceManual
	return r
}

func TestSend_PostsSensorPayload(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/measurements", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"measurement_id": 7, "risk_level": "NORMAL", "conclusion": "ok", "metrics": {"asymmetry": 0.4}}`))
	}))
	defer srv.Close()

	c := New(srv.URL+"/", 0)
	ra, err := c.Send(context.Background(), testReading(t))
	require.NoError(t, err)

	assert.Equal(t, 36.1, got["sensor_1"])
	assert.Equal(t, 36.8, got["sensor_8"])
	assert.Equal(t, "manual", got["source"])
	assert.Len(t, got, 9)

	assert.Equal(t, "NORMAL", ra.RiskLevel)
	assert.Equal(t, 0.4, ra.Metrics["asymmetry"])

	last, ok := c.Last()
	require.True(t, ok)
	assert.Equal(t, "ok", last.Conclusion)
}

func TestSend_EmptyBodyIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := New(srv.URL, 0)
	_, err := c.Send(context.Background(), testReading(t))
	require.NoError(t, err)
	_, ok := c.Last()
	assert.False(t, ok)
}

func TestSend_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := New(srv.URL, 0).Send(context.Background(), testReading(t))
	assert.ErrorIs(t, err, types.ErrNetworkUnavailable)
}

func TestSend_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(url, 0).Send(context.Background(), testReading(t))
	assert.ErrorIs(t, err, types.ErrNetworkUnavailable)
}

func TestSend_NotConfigured(t *testing.T) {
	_, err := New("", 0).Send(context.Background(), testReading(t))
	assert.ErrorIs(t, err, types.ErrNetworkUnavailable)
}

func TestForward_BackgroundDelivery(t *testing.T) {
	hits := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits <- struct{}{}
		_, _ = w.Write([]byte(`{"risk_level": "HIGH", "conclusion": "see a doctor"}`))
	}))
	defer srv.Close()

	c := New("", 0)
	c.Forward(testReading(t)) // disabled: no request
	c.SetBaseURL(srv.URL)
	c.Forward(testReading(t))
	c.Wait()

	assert.Len(t, hits, 1)
	last, ok := c.Last()
	require.True(t, ok)
	assert.Equal(t, "HIGH", last.RiskLevel)
}
