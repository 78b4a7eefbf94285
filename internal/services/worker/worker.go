// Package worker drives the adaptive ET control loop from live telemetry:
// one subscription stream, one sequential consumer, per-message step
// execution with persistence and result publication.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/projectplant/etkc/internal/etkc"
	"github.com/projectplant/etkc/internal/model"
	"github.com/projectplant/etkc/internal/model/messages"
	"github.com/projectplant/etkc/internal/storage"
	"github.com/projectplant/etkc/pkg/dedup"
	"github.com/projectplant/etkc/pkg/mqttx"
)

// PAR [umol m^-2 s^-1] to shortwave radiation [MJ m^-2 h^-1].
const parToMJPerHour = 7.85e-4

const (
	backoffInitial   = time.Second
	backoffMax       = 30 * time.Second
	defaultFreshness = 15 * time.Minute
	inboxSize        = 256
)

// State names the worker's lifecycle phases.
type State string

const (
	StateIdle       State = "idle"
	StateSubscribed State = "subscribed"
	StateProcessing State = "processing"
	StateBackoff    State = "backoff"
	StateStopped    State = "stopped"
)

// Clock abstracts time for deterministic backoff tests.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Options tunes a Worker. Zero values select the defaults.
type Options struct {
	TelemetryFilter string
	QoS             byte
	FreshnessWindow time.Duration
	Clock           Clock
	Metrics         *Metrics
	// OnDisconnect is notified before the worker enters reconnect backoff.
	OnDisconnect func(error)
}

type inbound struct {
	topic   string
	payload []byte
}

// Worker consumes plant telemetry, runs the control step and publishes the
// outcome. It owns no goroutines besides the one running Run; the transport
// handler only enqueues.
type Worker struct {
	transport mqttx.Transport
	store     storage.Store
	opts      Options

	env     *EnvBuffer
	deduper *dedup.Deduper
	inbox   chan inbound

	mu      sync.Mutex
	state   State
	backoff time.Duration
}

func New(transport mqttx.Transport, store storage.Store, opts Options) *Worker {
	if opts.TelemetryFilter == "" {
		opts.TelemetryFilter = messages.TelemetryFilter
	}
	if opts.QoS == 0 {
		opts.QoS = 1
	}
	if opts.FreshnessWindow <= 0 {
		opts.FreshnessWindow = defaultFreshness
	}
	if opts.Clock == nil {
		opts.Clock = systemClock{}
	}
	if opts.Metrics == nil {
		opts.Metrics, _ = NewMetrics(nil)
	}
	return &Worker{
		transport: transport,
		store:     store,
		opts:      opts,
		env:       NewEnvBuffer(0),
		deduper:   dedup.New(10*time.Minute, 20000),
		inbox:     make(chan inbound, inboxSize),
		state:     StateIdle,
		backoff:   backoffInitial,
	}
}

// State reports the current lifecycle phase.
func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *Worker) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

// Run subscribes and processes messages strictly sequentially until ctx is
// cancelled or a transport failure occurs. On transport failure the backoff
// delay has already elapsed when Run returns, so the caller may restart
// immediately.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.transport.Subscribe(w.opts.TelemetryFilter, w.opts.QoS, w.enqueue); err != nil {
		return w.enterBackoff(ctx, err)
	}
	w.setState(StateSubscribed)
	defer func() {
		if err := w.transport.Unsubscribe(w.opts.TelemetryFilter); err != nil {
			log.Printf("worker: unsubscribe: %v", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			w.setState(StateStopped)
			return ctx.Err()
		case msg := <-w.inbox:
			w.setState(StateProcessing)
			if err := w.process(ctx, msg.topic, msg.payload); err != nil {
				return w.enterBackoff(ctx, err)
			}
			w.mu.Lock()
			w.backoff = backoffInitial
			w.mu.Unlock()
			w.setState(StateSubscribed)
		}
	}
}

func (w *Worker) enqueue(topic string, payload []byte) {
	select {
	case w.inbox <- inbound{topic: topic, payload: payload}:
	default:
		w.opts.Metrics.dropped("overflow")
		log.Printf("worker: inbox full, dropping message on %s", topic)
	}
}

// enterBackoff notifies the disconnect callback, waits the current backoff
// delay (doubling it for next time, capped) and returns the cause.
func (w *Worker) enterBackoff(ctx context.Context, cause error) error {
	if w.opts.OnDisconnect != nil {
		w.opts.OnDisconnect(cause)
	}
	w.setState(StateBackoff)
	w.opts.Metrics.BackoffEntered.Inc()

	w.mu.Lock()
	delay := w.backoff
	w.backoff = w.backoff * 2
	if w.backoff > backoffMax {
		w.backoff = backoffMax
	}
	w.mu.Unlock()

	log.Printf("worker: transport error, backing off %s: %v", delay, cause)
	if err := w.opts.Clock.Sleep(ctx, delay); err != nil {
		w.setState(StateStopped)
		return cause
	}
	w.setState(StateIdle)
	return cause
}

// process handles one telemetry message. It returns an error only for
// transport-level publish failures; every data problem is logged, counted
// and dropped so the loop keeps running.
func (w *Worker) process(ctx context.Context, topic string, payload []byte) error {
	if w.deduper.Seen(dedup.Fingerprint(topic, payload)) {
		w.opts.Metrics.dropped("duplicate")
		return nil
	}
	plantID := messages.PlantIDFromTopic(topic)
	if plantID == "" {
		w.opts.Metrics.dropped("bad_topic")
		return nil
	}
	raw, err := messages.DecodeTelemetry(payload)
	if err != nil {
		// Non-object bodies are ignored without logging.
		w.opts.Metrics.dropped("malformed")
		return nil
	}

	now := w.opts.Clock.Now()
	ts, ok := raw.Timestamp()
	if !ok {
		ts = now
	}

	env, envErr := resolveEnvironment(raw, w.env, plantID, now, w.opts.FreshnessWindow)
	w.bufferEnvironment(plantID, raw, ts)
	if envErr != nil {
		log.Printf("worker: drop telemetry for %s: %v", plantID, envErr)
		w.opts.Metrics.dropped("missing_env")
		return nil
	}

	static, err := w.store.GetPot(ctx, plantID)
	if errors.Is(err, storage.ErrPotNotFound) {
		log.Printf("worker: unknown pot %s", plantID)
		w.opts.Metrics.dropped("unknown_pot")
		return nil
	}
	if err != nil {
		log.Printf("worker: load pot %s: %v", plantID, err)
		w.opts.Metrics.dropped("storage")
		return nil
	}
	state, err := storage.StateOrDefault(ctx, w.store, plantID, static.ClassName)
	if err != nil {
		log.Printf("worker: load state %s: %v", plantID, err)
		w.opts.Metrics.dropped("storage")
		return nil
	}
	cfg, err := storage.ConfigOrDefault(ctx, w.store, plantID)
	if err != nil {
		log.Printf("worker: load config %s: %v", plantID, err)
		w.opts.Metrics.dropped("storage")
		return nil
	}

	sensors := buildSensors(raw, env)
	newState, res, err := etkc.Step(static, state, sensors, cfg)
	if err != nil {
		log.Printf("worker: step %s: %v", plantID, err)
		w.opts.Metrics.dropped("step")
		return nil
	}
	if res.Meta == nil {
		res.Meta = make(map[string]string, 1)
	}
	res.Meta["env_source"] = env.Provenance

	if err := w.store.PutState(ctx, plantID, newState); err != nil {
		log.Printf("worker: save state %s: %v", plantID, err)
		w.opts.Metrics.dropped("storage")
		return nil
	}
	if err := w.store.AppendMetric(ctx, model.MetricRecord{Timestamp: ts, PlantID: plantID, Result: res}); err != nil {
		// State is already saved; losing one history row is tolerable.
		log.Printf("worker: append metric %s: %v", plantID, err)
	}
	w.opts.Metrics.MessagesProcessed.Inc()

	if err := w.publishMetric(plantID, ts, res); err != nil {
		return err
	}
	if cfg.AutoMode && res.NeedIrrig && res.RecommendMM > 0 {
		if err := w.publishCommand(plantID, ts, res.RecommendMM, cfg, static); err != nil {
			return err
		}
	}
	return nil
}

// bufferEnvironment retains payload-embedded temperature/humidity for later
// fallback resolution.
func (w *Worker) bufferEnvironment(plantID string, raw messages.RawTelemetry, ts time.Time) {
	tC, okT := raw.Float("T_C")
	rhRaw, okRH := raw.Float("RH_pct")
	if !okT || !okRH {
		return
	}
	rh, err := messages.NormalizeRHPct(rhRaw)
	if err != nil {
		return
	}
	w.env.Add(plantID, EnvSample{TemperatureC: tC, HumidityPct: rh, Source: raw.Source(), Timestamp: ts})
}

func buildSensors(raw messages.RawTelemetry, env environment) model.StepSensors {
	rs, ok := raw.Float("Rs_MJ_m2_h")
	if !ok {
		if par, okPAR := raw.Float("PAR"); okPAR {
			rs = par * parToMJPerHour
		}
	}
	inflow, _ := raw.Float("inflow_mL")
	drain, _ := raw.Float("drain_mL")
	return model.StepSensors{
		TC:         env.TempC,
		RHPct:      env.RHPct,
		RsMJm2h:    rs,
		U2MS:       raw.FloatPtr("u2_ms"),
		Theta:      raw.FloatPtr("theta"),
		InflowML:   inflow,
		DrainML:    drain,
		DStorageML: raw.FloatPtr("dStorage_mL"),
		ACOn:       raw.ACOn(),
	}
}

func (w *Worker) publishMetric(plantID string, ts time.Time, res model.StepResult) error {
	body, err := json.Marshal(messages.MetricEnvelope{
		PlantID:   plantID,
		Timestamp: float64(ts.UnixMilli()) / 1000.0,
		Result:    res,
	})
	if err != nil {
		log.Printf("worker: encode metric %s: %v", plantID, err)
		return nil
	}
	if err := w.transport.Publish(messages.MetricsTopic(plantID), w.opts.QoS, body); err != nil {
		if mqttx.IsDisconnected(err) {
			return err
		}
		// Step already completed and persisted.
		log.Printf("worker: publish metric %s: %v", plantID, err)
		return nil
	}
	w.opts.Metrics.MetricsPublished.Inc()
	return nil
}

func (w *Worker) publishCommand(plantID string, ts time.Time, recommendMM float64, cfg model.StepConfig, static model.PotStatic) error {
	doseMM := recommendMM
	if doseMM > cfg.MaxAutoIrrigationMM {
		doseMM = cfg.MaxAutoIrrigationMM
	}
	cmd := messages.IrrigationCommand{
		DoseML:    etkc.MMToML(doseMM, static.PotAreaM2),
		Source:    messages.CommandSourceETKC,
		Timestamp: float64(ts.UnixMilli()) / 1000.0,
	}
	body, err := json.Marshal(cmd)
	if err != nil {
		log.Printf("worker: encode command %s: %v", plantID, err)
		return nil
	}
	if err := w.transport.Publish(messages.CommandTopic(plantID), w.opts.QoS, body); err != nil {
		if mqttx.IsDisconnected(err) {
			return err
		}
		log.Printf("worker: publish command %s: %v", plantID, err)
		return nil
	}
	log.Printf("worker: auto irrigation %s dose=%.1fmL", plantID, cmd.DoseML)
	w.opts.Metrics.CommandsIssued.Inc()
	return nil
}
