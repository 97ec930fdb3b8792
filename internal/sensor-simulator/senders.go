package sensor_simulator

import (
	"context"
	"fmt"
	"strings"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/LeonardoBeccarini/iothub_twins_relay/pkg/broker"
)

// TelemetryEventType is the Event Grid type of routed IoT Hub telemetry.
const TelemetryEventType = "Microsoft.Devices.DeviceTelemetry"

// MQTTSender publishes on one topic per device; "{device}" in the
// pattern is replaced with the device id.
type MQTTSender struct {
	client     mqtt.Client
	pattern    string
	qos        byte
	publishers map[string]*broker.Publisher
}

func NewMQTTSender(client mqtt.Client, pattern string, qos byte) *MQTTSender {
	return &MQTTSender{client: client, pattern: pattern, qos: qos, publishers: map[string]*broker.Publisher{}}
}

func (s *MQTTSender) Send(_ context.Context, deviceID string, payload []byte) error {
	p, ok := s.publishers[deviceID]
	if !ok {
		p = broker.NewPublisher(s.client, strings.ReplaceAll(s.pattern, "{device}", deviceID), s.qos)
		s.publishers[deviceID] = p
	}
	return p.PublishMessage(payload)
}

// CloudEventSender posts the message as a CloudEvent, the way Event Grid
// delivers routed telemetry to a webhook.
type CloudEventSender struct {
	client cloudevents.Client
	target string
	source string
}

func NewCloudEventSender(client cloudevents.Client, target, hub string) *CloudEventSender {
	return &CloudEventSender{client: client, target: target, source: "/iothub/" + hub}
}

func (s *CloudEventSender) Send(ctx context.Context, deviceID string, payload []byte) error {
	e := cloudevents.NewEvent()
	e.SetID(uuid.NewString())
	e.SetSource(s.source)
	e.SetType(TelemetryEventType)
	e.SetSubject("devices/" + deviceID)
	if err := e.SetData(cloudevents.ApplicationJSON, payload); err != nil {
		return err
	}

	res := s.client.Send(cloudevents.ContextWithTarget(ctx, s.target), e)
	if cloudevents.IsUndelivered(res) {
		return fmt.Errorf("event not delivered to %s: %w", s.target, res)
	}
	if !cloudevents.IsACK(res) {
		return fmt.Errorf("event rejected by %s: %w", s.target, res)
	}
	return nil
}
