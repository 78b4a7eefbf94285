package messages

import "fmt"

// Topic layout of the canonical plant namespace.
const (
	TelemetryFilter = "plant/+/telemetry"
	telemetryFmt    = "plant/%s/telemetry"
	metricsFmt      = "plant/%s/et/metrics"
	commandFmt      = "plant/%s/irrigation/cmd"
)

func TelemetryTopic(plantID string) string { return fmt.Sprintf(telemetryFmt, plantID) }
func MetricsTopic(plantID string) string   { return fmt.Sprintf(metricsFmt, plantID) }
func CommandTopic(plantID string) string   { return fmt.Sprintf(commandFmt, plantID) }

// PlantIDFromTopic extracts the plant id segment from a plant/{id}/... topic.
// Returns "" when the topic does not match the namespace.
func PlantIDFromTopic(topic string) string {
	if len(topic) < len("plant/")+1 || topic[:len("plant/")] != "plant/" {
		return ""
	}
	rest := topic[len("plant/"):]
	for i := 0; i < len(rest); i++ {
		if rest[i] == '/' {
			return rest[:i]
		}
	}
	return ""
}

// MetricEnvelope frames one step outcome for publication. Result carries the
// step result struct; it is kept as any so this wire package stays free of
// dependencies on the domain model.
type MetricEnvelope struct {
	PlantID   string  `json:"plant_id"`
	Timestamp float64 `json:"timestamp"` // unix seconds
	Result    any     `json:"result"`
}
