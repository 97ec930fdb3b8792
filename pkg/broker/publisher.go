package broker

import (
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Publisher publishes payloads to a fixed topic.
type Publisher struct {
	client mqtt.Client
	topic  string
	qos    byte
}

func NewPublisher(client mqtt.Client, topic string, qos byte) *Publisher {
	return &Publisher{client: client, topic: topic, qos: qos}
}

// PublishMessage publishes the payload and waits for the broker to accept it.
func (p *Publisher) PublishMessage(payload []byte) error {
	token := p.client.Publish(p.topic, p.qos, false, payload)
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("failed to publish message on %s: %w", p.topic, token.Error())
	}
	return nil
}
