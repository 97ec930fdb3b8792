package relay

import (
	"errors"
	"testing"
	"time"

	"github.com/LeonardoBeccarini/iothub_twins_relay/pkg/dedup"
)

type fakeMessage struct {
	topic   string
	id      uint16
	dup     bool
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return m.dup }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return m.id }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

func TestMQTTHandlerRelaysMessage(t *testing.T) {
	twins := &fakeTwins{}
	r, _ := newTestRelay(twins, Options{})
	h := NewMQTTHandler(r, nil, nil)

	msg := fakeMessage{topic: "devices/Room0/messages/events", id: 7, payload: envelope("Room0", b64(`{"Temperature":20.3,"Humidity":61}`))}
	if err := h.Handle(msg.topic, msg); err != nil {
		t.Fatal(err)
	}
	if len(twins.updates) != 1 || twins.updates[0].TwinID != "Room0" {
		t.Fatalf("updates = %+v", twins.updates)
	}
}

func TestMQTTHandlerDropsRedelivery(t *testing.T) {
	twins := &fakeTwins{}
	r, _ := newTestRelay(twins, Options{})
	h := NewMQTTHandler(r, dedup.New(time.Minute, 100), nil)

	msg := fakeMessage{topic: "devices/Room1/messages/events", id: 3, payload: envelope("Room1", b64(`{"Temperature":20,"Humidity":60}`))}
	if err := h.Handle(msg.topic, msg); err != nil {
		t.Fatal(err)
	}
	msg.dup = true
	for i := 0; i < 2; i++ {
		if err := h.Handle(msg.topic, msg); err != nil {
			t.Fatal(err)
		}
	}
	if len(twins.updates) != 1 {
		t.Fatalf("updates = %d, want 1", len(twins.updates))
	}
}

func TestMQTTHandlerRelaysRepeatedReadings(t *testing.T) {
	twins := &fakeTwins{}
	r, _ := newTestRelay(twins, Options{})
	h := NewMQTTHandler(r, dedup.New(2*time.Minute, 10000), nil)

	topic := "devices/Room2/messages/events"
	a := envelope("Room2", b64(`{"Temperature":21,"Humidity":50}`))
	b := envelope("Room2", b64(`{"Temperature":22,"Humidity":55}`))
	for i, p := range [][]byte{a, b, a} {
		msg := fakeMessage{topic: topic, id: uint16(i + 1), payload: p}
		if err := h.Handle(topic, msg); err != nil {
			t.Fatal(err)
		}
	}
	if len(twins.updates) != 3 {
		t.Fatalf("updates = %d, want 3", len(twins.updates))
	}
	want := map[string]any{"/Temperature": 21.0, "/Humidity": 50.0}
	for k, v := range want {
		if got := twins.state["Room2"][k]; got != v {
			t.Fatalf("twin %s = %v, want %v", k, got, v)
		}
	}
}

func TestMQTTHandlerRelaysUnseenDuplicate(t *testing.T) {
	twins := &fakeTwins{}
	r, _ := newTestRelay(twins, Options{})
	h := NewMQTTHandler(r, dedup.New(time.Minute, 100), nil)

	// il primo invio è andato perso: la copia DUP va processata
	msg := fakeMessage{topic: "devices/Room0/messages/events", id: 9, dup: true, payload: envelope("Room0", b64(`{"Temperature":19,"Humidity":58}`))}
	if err := h.Handle(msg.topic, msg); err != nil {
		t.Fatal(err)
	}
	if len(twins.updates) != 1 {
		t.Fatalf("updates = %d, want 1", len(twins.updates))
	}
}

func TestMQTTHandlerReturnsRelayError(t *testing.T) {
	r, _ := newTestRelay(&fakeTwins{}, Options{})
	h := NewMQTTHandler(r, nil, nil)
	msg := fakeMessage{topic: "t", payload: []byte(`{"systemProperties":{},"body":"e30="}`)}
	if err := h.Handle(msg.topic, msg); !errors.Is(err, ErrMissingDeviceID) {
		t.Fatalf("err = %v", err)
	}
}
