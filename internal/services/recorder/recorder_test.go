package recorder

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/projectplant/etkc/internal/model"
)

type fakeWriter struct {
	mu     sync.Mutex
	err    error
	points []*write.Point
}

func (f *fakeWriter) WritePoint(_ context.Context, point ...*write.Point) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.points = append(f.points, point...)
	return nil
}

type fakeTransport struct {
	mu        sync.Mutex
	handler   func(topic string, payload []byte)
	connected bool
}

func (f *fakeTransport) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = handler
	return nil
}

func (f *fakeTransport) Unsubscribe(topic string) error { return nil }

func (f *fakeTransport) Publish(topic string, qos byte, payload []byte) error { return nil }

func (f *fakeTransport) Connected() bool { return f.connected }

func tagValue(t *testing.T, p *write.Point, key string) string {
	t.Helper()
	for _, tag := range p.TagList() {
		if tag.Key == key {
			return tag.Value
		}
	}
	return ""
}

func fieldValue(t *testing.T, p *write.Point, key string) any {
	t.Helper()
	for _, f := range p.FieldList() {
		if f.Key == key {
			return f.Value
		}
	}
	return nil
}

func sampleResult() model.StepResult {
	obs := 0.21
	return model.StepResult{
		ET0MM:       0.24,
		ETcModelMM:  0.19,
		ETcObsMM:    &obs,
		KcbStruct:   0.8,
		KcbEff:      0.84,
		Ke:          0.11,
		Ks:          1.0,
		DeMM:        1.6,
		DrMM:        2.2,
		TauEH:       10,
		NeedIrrig:   true,
		RecommendMM: 1.5,
		Meta:        map[string]string{"env_source": "payload_local"},
	}
}

func TestResultPoint(t *testing.T) {
	ts := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	p := ResultPoint("p1", ts, sampleResult())

	assert.Equal(t, measurement, p.Name())
	assert.Equal(t, ts, p.Time())
	assert.Equal(t, "p1", tagValue(t, p, "plant_id"))
	assert.Equal(t, "payload_local", tagValue(t, p, "env_source"))
	assert.Equal(t, 0.24, fieldValue(t, p, "ET0_mm"))
	assert.Equal(t, 0.21, fieldValue(t, p, "ETc_obs_mm"))
	assert.EqualValues(t, 1, fieldValue(t, p, "need_irrigation"))
}

func TestResultPointOmitsMissingObservation(t *testing.T) {
	res := sampleResult()
	res.ETcObsMM = nil
	res.Meta = nil
	p := ResultPoint("p1", time.Now(), res)
	assert.Nil(t, fieldValue(t, p, "ETc_obs_mm"))
	assert.Equal(t, "", tagValue(t, p, "env_source"))
}

func envelopeBody(t *testing.T, plantID string, ts float64) []byte {
	t.Helper()
	b, err := json.Marshal(metricEnvelope{PlantID: plantID, Timestamp: ts, Result: sampleResult()})
	require.NoError(t, err)
	return b
}

func TestHandleWritesPoint(t *testing.T) {
	fw := &fakeWriter{}
	rec := New(&fakeTransport{}, fw)

	rec.handle(context.Background(), "plant/p1/et/metrics", envelopeBody(t, "p1", 1756200000.5))

	require.Len(t, fw.points, 1)
	assert.Equal(t, "p1", tagValue(t, fw.points[0], "plant_id"))
	assert.Equal(t, time.Unix(1756200000, 500000000).UTC(), fw.points[0].Time())
	written, dropped := rec.Counts()
	assert.EqualValues(t, 1, written)
	assert.EqualValues(t, 0, dropped)
}

func TestHandlePlantIDFallsBackToTopic(t *testing.T) {
	fw := &fakeWriter{}
	rec := New(&fakeTransport{}, fw)

	rec.handle(context.Background(), "plant/x7/et/metrics", envelopeBody(t, "", 0))

	require.Len(t, fw.points, 1)
	assert.Equal(t, "x7", tagValue(t, fw.points[0], "plant_id"))
}

func TestHandleDropsMalformed(t *testing.T) {
	fw := &fakeWriter{}
	rec := New(&fakeTransport{}, fw)

	rec.handle(context.Background(), "plant/p1/et/metrics", []byte("not json"))
	rec.handle(context.Background(), "weird/topic", envelopeBody(t, "", 0))

	assert.Empty(t, fw.points)
	_, dropped := rec.Counts()
	assert.EqualValues(t, 2, dropped)
}

func TestBreakerShedsAfterConsecutiveFailures(t *testing.T) {
	fw := &fakeWriter{err: errors.New("influx down")}
	rec := New(&fakeTransport{}, fw)

	for i := 0; i < 6; i++ {
		rec.handle(context.Background(), "plant/p1/et/metrics", envelopeBody(t, "p1", 0))
	}

	_, dropped := rec.Counts()
	assert.EqualValues(t, 6, dropped)

	// Backend recovers but the breaker is still open: writes stay shed.
	fw.mu.Lock()
	fw.err = nil
	fw.mu.Unlock()
	rec.handle(context.Background(), "plant/p1/et/metrics", envelopeBody(t, "p1", 0))
	assert.Empty(t, fw.points)
}
