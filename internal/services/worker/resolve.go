package worker

import (
	"errors"
	"strings"
	"time"

	"github.com/projectplant/etkc/internal/model/messages"
)

// ErrMissingEnvironment marks a telemetry message for which no temperature
// and humidity could be resolved from any source. The message is dropped.
var ErrMissingEnvironment = errors.New("worker: no temperature/humidity available from any source")

// Provenance tags recorded in the metric metadata.
const (
	SourcePayloadLocal = "payload_local"
	SourceBufferSensor = "buffer_sensor"
	SourcePayloadAny   = "payload_any"
	SourceBufferAny    = "buffer_any"
)

type environment struct {
	TempC      float64
	RHPct      float64
	Provenance string
}

// payloadIsLocal classifies the payload's declared source. An absent tag is
// treated as a local reading; weather-provider feeds are not.
func payloadIsLocal(source string) bool {
	src := strings.ToLower(source)
	if src == "" {
		return true
	}
	for _, remote := range []string{"weather", "hrrr", "forecast"} {
		if strings.Contains(src, remote) {
			return false
		}
	}
	return true
}

// resolveEnvironment picks temperature/humidity by source precedence:
// fresh local payload values, then a fresh buffered sensor sample, then
// payload values regardless of age, then any buffered sample.
func resolveEnvironment(raw messages.RawTelemetry, buf *EnvBuffer, plantID string, now time.Time, window time.Duration) (environment, error) {
	tC, hasT := raw.Float("T_C")
	rhRaw, hasRH := raw.Float("RH_pct")
	var rhPct float64
	if hasRH {
		v, err := messages.NormalizeRHPct(rhRaw)
		if err != nil {
			hasRH = false
		} else {
			rhPct = v
		}
	}

	if hasT && hasRH && payloadIsLocal(raw.Source()) {
		// A payload without a timestamp was just received and counts
		// as fresh.
		ts, ok := raw.Timestamp()
		if !ok || now.Sub(ts) <= window {
			return environment{TempC: tC, RHPct: rhPct, Provenance: SourcePayloadLocal}, nil
		}
	}

	if s, ok := buf.Latest(plantID, func(s EnvSample) bool {
		return s.IsSensor() && now.Sub(s.Timestamp) <= window
	}); ok {
		return environment{TempC: s.TemperatureC, RHPct: s.HumidityPct, Provenance: SourceBufferSensor}, nil
	}

	if hasT && hasRH {
		return environment{TempC: tC, RHPct: rhPct, Provenance: SourcePayloadAny}, nil
	}

	if s, ok := buf.Latest(plantID, nil); ok {
		return environment{TempC: s.TemperatureC, RHPct: s.HumidityPct, Provenance: SourceBufferAny}, nil
	}

	return environment{}, ErrMissingEnvironment
}
