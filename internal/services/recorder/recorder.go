// Package recorder mirrors published step results into InfluxDB for
// dashboards and long-range analysis. It is a read-side collaborator: the
// SQLite history owned by the worker stays authoritative.
package recorder

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/sony/gobreaker"

	"github.com/projectplant/etkc/internal/model"
	"github.com/projectplant/etkc/internal/model/messages"
	"github.com/projectplant/etkc/pkg/mqttx"
)

// MetricsFilter is the subscription covering every plant's result topic.
const MetricsFilter = "plant/+/et/metrics"

const writeTimeout = 5 * time.Second

// pointWriter is the subset of the blocking Influx write API the recorder
// needs; tests substitute a fake.
type pointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

type metricEnvelope struct {
	PlantID   string           `json:"plant_id"`
	Timestamp float64          `json:"timestamp"`
	Result    model.StepResult `json:"result"`
}

// Recorder consumes plant/+/et/metrics and writes one point per result.
// Writes go through a circuit breaker so a slow or dead Influx backend
// sheds load instead of queueing forever.
type Recorder struct {
	transport mqttx.Transport
	writer    pointWriter
	breaker   *gobreaker.CircuitBreaker

	mu      sync.RWMutex
	lastErr time.Time
	written int64
	dropped int64
}

func New(transport mqttx.Transport, writer pointWriter) *Recorder {
	return &Recorder{
		transport: transport,
		writer:    writer,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "influx-write",
			Timeout: 15 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= 5
			},
		}),
		lastErr: time.Now().Add(-24 * time.Hour),
	}
}

// Run subscribes and blocks until ctx is cancelled.
func (r *Recorder) Run(ctx context.Context) error {
	if err := r.transport.Subscribe(MetricsFilter, 1, func(topic string, payload []byte) {
		r.handle(ctx, topic, payload)
	}); err != nil {
		return err
	}
	<-ctx.Done()
	if err := r.transport.Unsubscribe(MetricsFilter); err != nil {
		log.Printf("recorder: unsubscribe: %v", err)
	}
	return ctx.Err()
}

func (r *Recorder) handle(ctx context.Context, topic string, payload []byte) {
	if !mqttx.TopicMatches(MetricsFilter, topic) {
		r.markDropped()
		return
	}
	var env metricEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		r.markDropped()
		return
	}
	plantID := env.PlantID
	if plantID == "" {
		plantID = messages.PlantIDFromTopic(topic)
	}
	if plantID == "" {
		r.markDropped()
		return
	}
	ts := time.Now().UTC()
	if env.Timestamp > 0 && !math.IsNaN(env.Timestamp) {
		sec, frac := math.Modf(env.Timestamp)
		ts = time.Unix(int64(sec), int64(frac*1e9)).UTC()
	}

	p := ResultPoint(plantID, ts, env.Result)
	_, err := r.breaker.Execute(func() (any, error) {
		wctx, cancel := context.WithTimeout(ctx, writeTimeout)
		defer cancel()
		return nil, r.writer.WritePoint(wctx, p)
	})
	if err != nil {
		r.markError()
		if !errors.Is(err, gobreaker.ErrOpenState) {
			log.Printf("recorder: write %s: %v", plantID, err)
		}
		return
	}
	r.markWritten()
}

func (r *Recorder) markWritten() {
	r.mu.Lock()
	r.written++
	r.mu.Unlock()
}

func (r *Recorder) markDropped() {
	r.mu.Lock()
	r.dropped++
	r.mu.Unlock()
}

func (r *Recorder) markError() {
	r.mu.Lock()
	r.lastErr = time.Now()
	r.dropped++
	r.mu.Unlock()
}

// LastErrorAge reports how long ago the last write failure happened.
func (r *Recorder) LastErrorAge() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return time.Since(r.lastErr)
}

// Counts returns the written/dropped totals.
func (r *Recorder) Counts() (written, dropped int64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.written, r.dropped
}

// HealthHandler reports transport and write-path health as JSON.
func (r *Recorder) HealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		type status struct {
			Status          string  `json:"status"`
			MQTTConnected   bool    `json:"mqtt_connected"`
			BreakerState    string  `json:"breaker_state"`
			LastWriteErrorS float64 `json:"last_write_error_age_sec"`
			Written         int64   `json:"written"`
			Dropped         int64   `json:"dropped"`
		}
		written, dropped := r.Counts()
		st := status{
			MQTTConnected:   r.transport.Connected(),
			BreakerState:    r.breaker.State().String(),
			LastWriteErrorS: r.LastErrorAge().Seconds(),
			Written:         written,
			Dropped:         dropped,
		}
		switch {
		case st.MQTTConnected && r.breaker.State() == gobreaker.StateClosed && r.LastErrorAge() > 30*time.Second:
			st.Status = "ok"
		case st.MQTTConnected:
			st.Status = "degraded"
		default:
			st.Status = "down"
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(st)
	})
}
