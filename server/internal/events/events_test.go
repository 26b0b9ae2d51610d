package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thermowatch/thermowatch/pkg/types"
	"github.com/thermowatch/thermowatch/server/internal/compute"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafka_Publish(t *testing.T) {
	fw := &fakeWriter{}
	k := &Kafka{w: fw, topic: "t"}

	ts := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	e := Event{
		ID:        "e1",
		Type:      TypeMeasurementRecorded,
		DeviceID:  "bench-2",
		Source:    types.SourceSensor,
		Timestamp: ts,
		Metrics:   compute.Metrics{Asymmetry: 0.4, Risk: compute.RiskNormal},
		Persisted: true,
	}
	require.NoError(t, k.Publish(context.Background(), e))
	require.Len(t, fw.msgs, 1)

	m := fw.msgs[0]
	assert.Equal(t, "bench-2", string(m.Key))
	assert.Equal(t, ts, m.Time)
	assert.Equal(t, "type", m.Headers[0].Key)

	var got Event
	require.NoError(t, json.Unmarshal(m.Value, &got))
	assert.Equal(t, e.Metrics, got.Metrics)
	assert.True(t, got.Persisted)

	require.NoError(t, k.Close())
	assert.True(t, fw.closed)
}

func TestKafka_PublishError(t *testing.T) {
	k := &Kafka{w: &fakeWriter{err: errors.New("broker down")}, topic: "t"}
	err := k.Publish(context.Background(), Event{Source: types.SourceManual})
	assert.ErrorIs(t, err, types.ErrNetworkUnavailable)
}

func TestEvent_Key(t *testing.T) {
	assert.Equal(t, "dev", Event{DeviceID: "dev", Source: types.SourceSensor}.Key())
	assert.Equal(t, "manual", Event{Source: types.SourceManual}.Key())
}

func TestNoop(t *testing.T) {
	var p Publisher = Noop{}
	assert.NoError(t, p.Publish(context.Background(), Event{}))
	assert.NoError(t, p.Close())
}
