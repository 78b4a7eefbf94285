package simulator

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/projectplant/etkc/internal/model/messages"
	"github.com/projectplant/etkc/pkg/dedup"
	"github.com/projectplant/etkc/pkg/mqttx"
)

// Publisher periodically emits telemetry for one plant and listens for
// irrigation commands, feeding them back into the generator so the loop
// closes: command -> inflow -> wetter theta on the next sample.
type Publisher struct {
	transport mqttx.Transport
	gen       *Generator
	plantID   string
	deduper   *dedup.Deduper
}

func NewPublisher(transport mqttx.Transport, gen *Generator, plantID string) *Publisher {
	return &Publisher{
		transport: transport,
		gen:       gen,
		plantID:   plantID,
		deduper:   dedup.New(2*time.Minute, 10000),
	}
}

// Start publishes one sample per interval until ctx is cancelled.
func (p *Publisher) Start(ctx context.Context, interval time.Duration) error {
	cmdTopic := messages.CommandTopic(p.plantID)
	if err := p.transport.Subscribe(cmdTopic, 1, p.handleCommand); err != nil {
		return err
	}
	defer func() {
		if err := p.transport.Unsubscribe(cmdTopic); err != nil {
			log.Printf("simulator: unsubscribe: %v", err)
		}
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			sample := p.gen.Next(now.UTC())
			body, err := json.Marshal(sample)
			if err != nil {
				log.Printf("simulator: encode: %v", err)
				continue
			}
			if err := p.transport.Publish(messages.TelemetryTopic(p.plantID), 1, body); err != nil {
				log.Printf("simulator: publish: %v", err)
			}
		}
	}
}

func (p *Publisher) handleCommand(topic string, payload []byte) {
	if p.deduper.Seen(dedup.Fingerprint(topic, payload)) {
		return
	}
	var cmd messages.IrrigationCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		log.Printf("simulator: bad command payload: %v", err)
		return
	}
	log.Printf("simulator: irrigation command %s dose=%.1fmL", p.plantID, cmd.DoseML)
	p.gen.ApplyIrrigation(cmd.DoseML)
}
