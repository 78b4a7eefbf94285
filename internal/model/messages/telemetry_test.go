package messages

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeTelemetryRejectsNonObjects(t *testing.T) {
	_, err := DecodeTelemetry([]byte("not json"))
	assert.ErrorIs(t, err, ErrNotObject)

	_, err = DecodeTelemetry([]byte(`[1,2,3]`))
	assert.ErrorIs(t, err, ErrNotObject)

	_, err = DecodeTelemetry([]byte(`"plain string"`))
	assert.ErrorIs(t, err, ErrNotObject)
}

func TestFloatAliasPriority(t *testing.T) {
	raw, err := DecodeTelemetry([]byte(`{"temperature": 21.5, "T_C": 22.0}`))
	require.NoError(t, err)

	v, ok := raw.Float("T_C")
	require.True(t, ok)
	assert.Equal(t, 22.0, v, "canonical key wins over alias")

	raw, err = DecodeTelemetry([]byte(`{"temperature": "21.5"}`))
	require.NoError(t, err)
	v, ok = raw.Float("T_C")
	require.True(t, ok)
	assert.Equal(t, 21.5, v, "string numbers coerce")

	raw, err = DecodeTelemetry([]byte(`{"T_C": "garbage", "temperature": 19.0}`))
	require.NoError(t, err)
	v, ok = raw.Float("T_C")
	require.True(t, ok)
	assert.Equal(t, 19.0, v, "uncoercible value falls through to the next alias")
}

func TestFloatPtrAbsent(t *testing.T) {
	raw, err := DecodeTelemetry([]byte(`{"humidity": 55}`))
	require.NoError(t, err)
	assert.Nil(t, raw.FloatPtr("u2_ms"))
	assert.NotNil(t, raw.FloatPtr("RH_pct"))
}

func TestACOnCoercion(t *testing.T) {
	cases := map[string]bool{
		`{"AC_on": true}`:   true,
		`{"ac_on": "yes"}`:  true,
		`{"ac": 1}`:         true,
		`{"AC_on": "off"}`:  false,
		`{"AC_on": 0}`:      false,
		`{"unrelated": 42}`: false,
	}
	for body, want := range cases {
		raw, err := DecodeTelemetry([]byte(body))
		require.NoError(t, err, body)
		assert.Equal(t, want, raw.ACOn(), body)
	}
}

func TestTimestampExtraction(t *testing.T) {
	raw, err := DecodeTelemetry([]byte(`{"timestampMs": 1700000000000}`))
	require.NoError(t, err)
	ts, ok := raw.Timestamp()
	require.True(t, ok)
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), ts)

	raw, err = DecodeTelemetry([]byte(`{"timestamp": "2025-06-01T12:00:00Z"}`))
	require.NoError(t, err)
	ts, ok = raw.Timestamp()
	require.True(t, ok)
	assert.Equal(t, 12, ts.Hour())

	raw, err = DecodeTelemetry([]byte(`{"timestamp": "not a time"}`))
	require.NoError(t, err)
	_, ok = raw.Timestamp()
	assert.False(t, ok)
}

func TestNormalizeRHPct(t *testing.T) {
	v, err := NormalizeRHPct(0.55)
	require.NoError(t, err)
	assert.Equal(t, 55.0, v, "fractions scale to percent")

	v, err = NormalizeRHPct(87.0)
	require.NoError(t, err)
	assert.Equal(t, 87.0, v)

	v, err = NormalizeRHPct(140.0)
	require.NoError(t, err)
	assert.Equal(t, 100.0, v)

	_, err = NormalizeRHPct(math.NaN())
	assert.Error(t, err)
}

func TestSourceTag(t *testing.T) {
	raw, err := DecodeTelemetry([]byte(`{"source": "  weather-hrrr "}`))
	require.NoError(t, err)
	assert.Equal(t, "weather-hrrr", raw.Source())

	raw, err = DecodeTelemetry([]byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, "", raw.Source())
}
