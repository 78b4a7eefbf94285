package messages

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrNotObject marks payloads that are not a JSON object. Callers drop these
// silently.
var ErrNotObject = errors.New("telemetry payload is not a JSON object")

// RawTelemetry is one decoded telemetry message. Firmware revisions disagree
// on key names, so field access goes through an ordered alias table: the
// first key that coerces successfully wins.
type RawTelemetry map[string]any

var fieldAliases = map[string][]string{
	"T_C":         {"T_C", "temperature_C", "temperature"},
	"RH_pct":      {"RH_pct", "relative_humidity", "humidity_pct", "humidity"},
	"Rs_MJ_m2_h":  {"Rs_MJ_m2_h", "Rs", "solar_rad"},
	"PAR":         {"PAR_umol_m2_s", "PAR"},
	"inflow_mL":   {"inflow_mL", "inflow"},
	"drain_mL":    {"drain_mL", "drain"},
	"dStorage_mL": {"dStorage_mL", "dStorage"},
	"theta":       {"theta", "soil_theta", "moisture_theta"},
	"u2_ms":       {"u2_ms", "wind_ms"},
}

// DecodeTelemetry parses a telemetry body. Non-JSON or non-object bodies
// return ErrNotObject.
func DecodeTelemetry(payload []byte) (RawTelemetry, error) {
	var raw any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, ErrNotObject
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, ErrNotObject
	}
	return RawTelemetry(obj), nil
}

// Float returns the first coercible value among the aliases of field.
func (t RawTelemetry) Float(field string) (float64, bool) {
	keys, ok := fieldAliases[field]
	if !ok {
		keys = []string{field}
	}
	for _, k := range keys {
		v, present := t[k]
		if !present || v == nil {
			continue
		}
		if f, ok := coerceFloat(v); ok {
			return f, true
		}
	}
	return 0, false
}

// FloatPtr is Float with pointer semantics for optional sensor fields.
func (t RawTelemetry) FloatPtr(field string) *float64 {
	if f, ok := t.Float(field); ok {
		return &f
	}
	return nil
}

// ACOn resolves the indoor climate-control flag from its aliases.
func (t RawTelemetry) ACOn() bool {
	for _, k := range []string{"AC_on", "ac_on", "ac"} {
		if v, ok := t[k]; ok {
			if b, ok := coerceBool(v); ok {
				return b
			}
		}
	}
	return false
}

// Source returns the declared environment-data source tag, if any.
func (t RawTelemetry) Source() string {
	v, ok := t["source"]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

// Timestamp extracts the sample time: epoch milliseconds under
// "timestampMs"/"timestamp_ms", else an ISO-8601 "timestamp" string.
func (t RawTelemetry) Timestamp() (time.Time, bool) {
	for _, k := range []string{"timestampMs", "timestamp_ms"} {
		if v, ok := t[k]; ok {
			if ms, ok := coerceFloat(v); ok && !math.IsNaN(ms) && !math.IsInf(ms, 0) {
				return time.UnixMilli(int64(ms)).UTC(), true
			}
		}
	}
	if raw, ok := t["timestamp"].(string); ok && strings.TrimSpace(raw) != "" {
		normalized := strings.Replace(raw, "Z", "+00:00", 1)
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			return ts.UTC(), true
		} else if ts, err := time.Parse("2006-01-02T15:04:05-07:00", normalized); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}

// NormalizeRHPct maps a raw humidity reading to percent. Fractions (<= 1)
// are scaled by 100; the result is clamped to [0, 100].
func NormalizeRHPct(raw float64) (float64, error) {
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return 0, errors.New("relative humidity must be finite")
	}
	v := raw
	if v <= 1.0 {
		v *= 100.0
	}
	return math.Max(0, math.Min(v, 100)), nil
}

func coerceFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func coerceBool(v any) (bool, bool) {
	switch x := v.(type) {
	case bool:
		return x, true
	case float64:
		return x != 0, true
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "true", "1", "yes", "on":
			return true, true
		case "false", "0", "no", "off":
			return false, true
		}
	}
	return false, false
}
