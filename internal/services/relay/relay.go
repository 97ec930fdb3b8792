package relay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/LeonardoBeccarini/iothub_twins_relay/internal/model"
)

// InboundEvent is one trigger delivery as seen by the relay, whatever the transport.
type InboundEvent struct {
	ID      string
	Type    string
	Subject string
	Data    []byte
}

// Ack describes what Handle did with an event.
type Ack struct {
	EventID  string
	DeviceID string
	Reading  model.SensorReading
	Skipped  bool // nothing to process
}

// TwinUpdater applies a partial update to a digital twin. Replaying the
// same update must leave the twin in the same state.
type TwinUpdater interface {
	UpdateTwin(ctx context.Context, u model.TwinUpdate) error
}

// Sink receives a reading once the twin accepted it.
type Sink interface {
	Record(ctx context.Context, deviceID string, r model.SensorReading, at time.Time) error
}

type Options struct {
	// AcceptTypes, se non vuoto, limita i tipi di evento processati.
	AcceptTypes []string
	Sinks       []Sink
	Logger      *slog.Logger
	Metrics     *Metrics
	Now         func() time.Time
}

// Relay maps device telemetry events onto digital twin updates.
// It keeps no state between events and is safe for concurrent use.
type Relay struct {
	twins   TwinUpdater
	accept  map[string]struct{}
	sinks   []Sink
	log     *slog.Logger
	metrics *Metrics
	now     func() time.Time
}

func New(twins TwinUpdater, opts Options) *Relay {
	r := &Relay{
		twins:   twins,
		sinks:   opts.Sinks,
		log:     opts.Logger,
		metrics: opts.Metrics,
		now:     opts.Now,
	}
	if r.log == nil {
		r.log = slog.Default()
	}
	if r.now == nil {
		r.now = time.Now
	}
	if len(opts.AcceptTypes) > 0 {
		r.accept = make(map[string]struct{}, len(opts.AcceptTypes))
		for _, t := range opts.AcceptTypes {
			r.accept[t] = struct{}{}
		}
	}
	return r
}

// Handle processes a single event: decode, validate, map and update the twin.
// Absent or empty events are acknowledged without doing anything. Errors are
// logged and returned so the ingress can pick an acknowledgement policy.
func (r *Relay) Handle(ctx context.Context, ev *InboundEvent) (Ack, error) {
	if ev == nil || isAbsent(ev.Data) {
		r.metrics.observe("skipped")
		return Ack{Skipped: true}, nil
	}

	eventID := ev.ID
	if eventID == "" {
		eventID = uuid.NewString()
	}
	log := r.log.With("event_id", eventID)

	if !r.accepts(ev.Type) {
		log.Info("event type not accepted, skipping", "type", ev.Type)
		r.metrics.observe("skipped")
		return Ack{EventID: eventID, Skipped: true}, nil
	}

	deviceID, reading, err := Decode(ev.Data)
	if deviceID != "" {
		log = log.With("device_id", deviceID)
	}
	if err != nil {
		return Ack{EventID: eventID, DeviceID: deviceID}, r.fail(log, err)
	}

	start := r.now()
	err = r.twins.UpdateTwin(ctx, NewReadingUpdate(deviceID, reading))
	r.metrics.observeUpdate(r.now().Sub(start))
	if err != nil {
		return Ack{EventID: eventID, DeviceID: deviceID, Reading: reading},
			r.fail(log, fmt.Errorf("%w: %w", ErrStoreUpdateFailed, err))
	}

	log.Info("twin updated",
		"temperature", reading.Temperature,
		"humidity", reading.Humidity,
		"outcome", Outcome(nil))
	r.metrics.observe(Outcome(nil))

	at := r.now()
	for _, s := range r.sinks {
		if serr := s.Record(ctx, deviceID, reading, at); serr != nil {
			log.Warn("sink write failed", "sink", fmt.Sprintf("%T", s), "error", serr)
		}
	}

	return Ack{EventID: eventID, DeviceID: deviceID, Reading: reading}, nil
}

func (r *Relay) fail(log *slog.Logger, err error) error {
	outcome := Outcome(err)
	log.Error("ingest failed", "outcome", outcome, "error", err)
	r.metrics.observe(outcome)
	return err
}

func (r *Relay) accepts(eventType string) bool {
	if r.accept == nil {
		return true
	}
	_, ok := r.accept[eventType]
	return ok
}
