package broker

import (
	"context"
	"log/slog"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Handler is called for every message received on the subscribed topic.
type Handler func(topic string, message mqtt.Message) error

// Consumer holds the client, topic and handler for one subscription.
type Consumer struct {
	client  mqtt.Client
	topic   string
	qos     byte
	handler Handler
	log     *slog.Logger
}

func NewConsumer(client mqtt.Client, topic string, qos byte, handler Handler, log *slog.Logger) *Consumer {
	if log == nil {
		log = slog.Default()
	}
	return &Consumer{client: client, topic: topic, qos: qos, handler: handler, log: log}
}

func (c *Consumer) onMessage(_ mqtt.Client, message mqtt.Message) {
	if c.handler == nil {
		c.log.Warn("no handler set", "topic", c.topic)
		return
	}
	if err := c.handler(c.topic, message); err != nil {
		c.log.Debug("message handler returned error", "topic", message.Topic(), "error", err)
	}
}

// ConsumeMessage subscribes and blocks until ctx is cancelled, then unsubscribes.
func (c *Consumer) ConsumeMessage(ctx context.Context) error {
	token := c.client.Subscribe(c.topic, c.qos, c.onMessage)
	if token.Wait() && token.Error() != nil {
		c.log.Error("subscribe failed", "topic", c.topic, "error", token.Error())
		return token.Error()
	}
	c.log.Info("subscribed", "topic", c.topic, "qos", c.qos)

	<-ctx.Done()

	c.client.Unsubscribe(c.topic).Wait()
	return nil
}
