package worker

import (
	"strings"
	"sync"
	"time"
)

// EnvSample is one buffered temperature/humidity reading with its declared
// origin, used as fallback when a telemetry payload lacks environment data.
type EnvSample struct {
	TemperatureC float64
	HumidityPct  float64
	Source       string
	Timestamp    time.Time
}

// IsSensor reports whether the sample came from a direct sensor reading
// rather than a forecast or remote weather feed.
func (s EnvSample) IsSensor() bool {
	src := strings.ToLower(s.Source)
	if src == "" || src == "local" {
		return true
	}
	return strings.Contains(src, "sensor")
}

// EnvBuffer keeps the most recent environment samples per plant.
type EnvBuffer struct {
	mu      sync.Mutex
	max     int
	samples map[string][]EnvSample
}

func NewEnvBuffer(maxPerPlant int) *EnvBuffer {
	if maxPerPlant <= 0 {
		maxPerPlant = 32
	}
	return &EnvBuffer{max: maxPerPlant, samples: make(map[string][]EnvSample)}
}

func (b *EnvBuffer) Add(plantID string, s EnvSample) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := append(b.samples[plantID], s)
	if len(list) > b.max {
		list = list[len(list)-b.max:]
	}
	b.samples[plantID] = list
}

// Latest returns the newest sample for plantID accepted by match. A nil
// match accepts every sample.
func (b *EnvBuffer) Latest(plantID string, match func(EnvSample) bool) (EnvSample, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.samples[plantID]
	for i := len(list) - 1; i >= 0; i-- {
		if match == nil || match(list[i]) {
			return list[i], true
		}
	}
	return EnvSample{}, false
}
