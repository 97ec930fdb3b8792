package relay

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/LeonardoBeccarini/iothub_twins_relay/pkg/dedup"
)

// MQTTHandler feeds device messages bridged onto an MQTT topic into the relay.
type MQTTHandler struct {
	relay   *Relay
	deduper *dedup.Deduper // nil = nessun filtro
	log     *slog.Logger
}

func NewMQTTHandler(r *Relay, d *dedup.Deduper, log *slog.Logger) *MQTTHandler {
	if log == nil {
		log = slog.Default()
	}
	return &MQTTHandler{relay: r, deduper: d, log: log}
}

// Handle matches the broker consumer callback. Only a delivery flagged as
// duplicate whose topic, packet id and payload were already seen is dropped;
// equal payloads sent as distinct messages are always relayed.
func (h *MQTTHandler) Handle(_ string, m mqtt.Message) error {
	if h.isRedelivery(m) {
		h.log.Debug("duplicate delivery dropped", "topic", m.Topic(), "message_id", m.MessageID())
		return nil
	}

	var id string
	if m.MessageID() != 0 {
		id = fmt.Sprintf("mqtt-%d", m.MessageID())
	}
	_, err := h.relay.Handle(context.Background(), &InboundEvent{
		ID:      id,
		Subject: m.Topic(),
		Data:    m.Payload(),
	})
	return err
}

// isRedelivery records every QoS>0 delivery and reports true only for a
// DUP-flagged copy of one already recorded.
func (h *MQTTHandler) isRedelivery(m mqtt.Message) bool {
	if h.deduper == nil || m.MessageID() == 0 {
		return false
	}
	sum := sha256.Sum256(m.Payload())
	key := fmt.Sprintf("%s|%d|%s", m.Topic(), m.MessageID(), hex.EncodeToString(sum[:]))
	seen := !h.deduper.ShouldProcess(key)
	return seen && m.Duplicate()
}
