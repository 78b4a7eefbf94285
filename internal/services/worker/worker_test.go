package worker

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/projectplant/etkc/internal/model"
	"github.com/projectplant/etkc/internal/model/messages"
	"github.com/projectplant/etkc/internal/storage"
)

type publication struct {
	topic   string
	payload []byte
}

type fakeTransport struct {
	mu           sync.Mutex
	handler      func(topic string, payload []byte)
	subscribeErr error
	publishErr   error
	pubs         []publication
	unsubscribed []string
}

func (f *fakeTransport) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeErr != nil {
		return f.subscribeErr
	}
	f.handler = handler
	return nil
}

func (f *fakeTransport) Unsubscribe(topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribed = append(f.unsubscribed, topic)
	return nil
}

func (f *fakeTransport) Publish(topic string, qos byte, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.pubs = append(f.pubs, publication{topic: topic, payload: payload})
	return nil
}

func (f *fakeTransport) Connected() bool { return true }

func (f *fakeTransport) publications() []publication {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]publication, len(f.pubs))
	copy(out, f.pubs)
	return out
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func testStatic() model.PotStatic {
	return model.PotStatic{PotAreaM2: 0.0314, DepthM: 0.25, ThetaFC: 0.32, ThetaWP: 0.12, ClassName: "herb"}
}

func newTestWorker(t *testing.T, opts Options) (*Worker, *fakeTransport, *storage.SQLiteStore) {
	t.Helper()
	store, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "worker.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	ft := &fakeTransport{}
	return New(ft, store, opts), ft, store
}

const telemetryBody = `{"T_C": 26, "RH_pct": 55, "Rs_MJ_m2_h": 1.0, "u2_ms": 0.3, "dStorage_mL": 0}`

func TestProcessRunsStepAndPublishes(t *testing.T) {
	w, ft, store := newTestWorker(t, Options{})
	ctx := context.Background()
	require.NoError(t, store.UpsertPot(ctx, "p1", testStatic()))

	require.NoError(t, w.process(ctx, messages.TelemetryTopic("p1"), []byte(telemetryBody)))

	// State persisted.
	state, found, err := store.GetState(ctx, "p1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Greater(t, state.DrMM, 0.0)

	// Metric appended with provenance tag.
	recs, err := store.ListMetrics(ctx, "p1", nil, 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Greater(t, recs[0].Result.ET0MM, 0.0)
	assert.Equal(t, SourcePayloadLocal, recs[0].Result.Meta["env_source"])

	// Result published.
	pubs := ft.publications()
	require.Len(t, pubs, 1)
	assert.Equal(t, "plant/p1/et/metrics", pubs[0].topic)
	var env messages.MetricEnvelope
	require.NoError(t, json.Unmarshal(pubs[0].payload, &env))
	assert.Equal(t, "p1", env.PlantID)
}

func TestProcessDecodesAliasedKeys(t *testing.T) {
	w, ft, store := newTestWorker(t, Options{})
	ctx := context.Background()
	require.NoError(t, store.UpsertPot(ctx, "p1", testStatic()))

	body := `{"temperature": 26, "humidity": 0.55, "PAR": 1200, "inflow": 10, "drain": 2}`
	require.NoError(t, w.process(ctx, messages.TelemetryTopic("p1"), []byte(body)))

	recs, err := store.ListMetrics(ctx, "p1", nil, 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Greater(t, recs[0].Result.ET0MM, 0.0)
	assert.Len(t, ft.publications(), 1)
}

func TestProcessDropsWhenEnvironmentMissing(t *testing.T) {
	w, ft, store := newTestWorker(t, Options{})
	ctx := context.Background()
	require.NoError(t, store.UpsertPot(ctx, "p1", testStatic()))

	require.NoError(t, w.process(ctx, messages.TelemetryTopic("p1"), []byte(`{"inflow_mL": 50}`)))

	_, found, err := store.GetState(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, ft.publications())
}

func TestProcessDropsMalformedAndUnknownPot(t *testing.T) {
	w, ft, _ := newTestWorker(t, Options{})
	ctx := context.Background()

	require.NoError(t, w.process(ctx, messages.TelemetryTopic("p1"), []byte(`[1,2,3]`)))
	require.NoError(t, w.process(ctx, "garden/p1/telemetry", []byte(telemetryBody)))
	// Pot never registered.
	require.NoError(t, w.process(ctx, messages.TelemetryTopic("ghost"), []byte(telemetryBody)))

	assert.Empty(t, ft.publications())
}

func TestProcessDropsDuplicateDeliveries(t *testing.T) {
	w, ft, store := newTestWorker(t, Options{})
	ctx := context.Background()
	require.NoError(t, store.UpsertPot(ctx, "p1", testStatic()))

	require.NoError(t, w.process(ctx, messages.TelemetryTopic("p1"), []byte(telemetryBody)))
	require.NoError(t, w.process(ctx, messages.TelemetryTopic("p1"), []byte(telemetryBody)))

	recs, err := store.ListMetrics(ctx, "p1", nil, 0)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
	assert.Len(t, ft.publications(), 1)
}

func TestProcessAutoModePublishesCappedCommand(t *testing.T) {
	w, ft, store := newTestWorker(t, Options{})
	ctx := context.Background()
	require.NoError(t, store.UpsertPot(ctx, "p1", testStatic()))

	// Deep root-zone depletion forces an irrigation recommendation well
	// above the cap (TAW=50mm, threshold 25mm).
	state := model.DefaultStateFor("herb")
	state.DrMM = 45
	require.NoError(t, store.PutState(ctx, "p1", state))

	cfg := model.DefaultStepConfig()
	cfg.AutoMode = true
	cfg.MaxAutoIrrigationMM = 2.0
	require.NoError(t, store.PutConfig(ctx, "p1", cfg))

	require.NoError(t, w.process(ctx, messages.TelemetryTopic("p1"), []byte(telemetryBody)))

	pubs := ft.publications()
	require.Len(t, pubs, 2)
	assert.Equal(t, "plant/p1/irrigation/cmd", pubs[1].topic)

	var cmd messages.IrrigationCommand
	require.NoError(t, json.Unmarshal(pubs[1].payload, &cmd))
	assert.Equal(t, messages.CommandSourceETKC, cmd.Source)
	// 2 mm over 0.0314 m^2.
	assert.InDelta(t, 62.8, cmd.DoseML, 1e-9)
}

func TestProcessPublishDisconnectPropagates(t *testing.T) {
	w, ft, store := newTestWorker(t, Options{})
	ctx := context.Background()
	require.NoError(t, store.UpsertPot(ctx, "p1", testStatic()))
	ft.publishErr = errors.New("connection lost before publish")

	err := w.process(ctx, messages.TelemetryTopic("p1"), []byte(telemetryBody))
	require.Error(t, err)

	// The step itself completed before the transport failed.
	_, found, gerr := store.GetState(ctx, "p1")
	require.NoError(t, gerr)
	assert.True(t, found)
}

func TestRunBackoffDoublesAndCaps(t *testing.T) {
	clock := &fakeClock{now: time.Unix(50000, 0)}
	var notified int
	w, ft, _ := newTestWorker(t, Options{
		Clock:        clock,
		OnDisconnect: func(error) { notified++ },
	})
	cause := errors.New("connection refused")
	ft.subscribeErr = cause

	for i := 0; i < 7; i++ {
		err := w.Run(context.Background())
		assert.ErrorIs(t, err, cause)
	}

	want := []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second,
		16 * time.Second, 30 * time.Second, 30 * time.Second,
	}
	assert.Equal(t, want, clock.sleeps)
	assert.Equal(t, 7, notified)
	assert.Equal(t, StateIdle, w.State())
}

func TestRunStopsOnCancel(t *testing.T) {
	w, ft, _ := newTestWorker(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := w.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateStopped, w.State())
	assert.Equal(t, []string{messages.TelemetryFilter}, ft.unsubscribed)
}

func TestRunProcessesInboundMessage(t *testing.T) {
	w, ft, store := newTestWorker(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, store.UpsertPot(ctx, "p1", testStatic()))

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool {
		ft.mu.Lock()
		defer ft.mu.Unlock()
		return ft.handler != nil
	}, time.Second, 5*time.Millisecond)

	ft.handler(messages.TelemetryTopic("p1"), []byte(telemetryBody))

	require.Eventually(t, func() bool {
		return len(ft.publications()) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, StateStopped, w.State())
}
