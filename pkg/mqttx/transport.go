package mqttx

import (
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Transport is the broker surface consumed by the services. Implemented by
// PahoTransport in production and by in-memory fakes in tests.
type Transport interface {
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error
	Unsubscribe(topic string) error
	Publish(topic string, qos byte, payload []byte) error
	Connected() bool
}

// PahoTransport adapts a paho client to the Transport interface.
type PahoTransport struct {
	client mqtt.Client
}

// NewTransport wraps an established paho client.
func NewTransport(client mqtt.Client) *PahoTransport {
	return &PahoTransport{client: client}
}

func (t *PahoTransport) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	token := t.client.Subscribe(topic, qos, func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	token.Wait()
	return token.Error()
}

func (t *PahoTransport) Unsubscribe(topic string) error {
	token := t.client.Unsubscribe(topic)
	token.Wait()
	return token.Error()
}

func (t *PahoTransport) Publish(topic string, qos byte, payload []byte) error {
	token := t.client.Publish(topic, qos, false, payload)
	token.Wait()
	return token.Error()
}

func (t *PahoTransport) Connected() bool {
	return t.client.IsConnectionOpen()
}

// TopicMatches reports whether topic matches an MQTT wildcard filter.
func TopicMatches(filter, topic string) bool {
	fp := strings.Split(filter, "/")
	tp := strings.Split(topic, "/")
	for i, f := range fp {
		if f == "#" {
			return true
		}
		if i >= len(tp) {
			return false
		}
		if f != "+" && f != tp[i] {
			return false
		}
	}
	return len(fp) == len(tp)
}
