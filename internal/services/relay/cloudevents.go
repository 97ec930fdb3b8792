package relay

import (
	"context"
	"log/slog"
	"net/http"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	cehttp "github.com/cloudevents/sdk-go/v2/protocol/http"
)

// CloudEventsIngress receives Event Grid deliveries in the CloudEvents 1.0
// schema and turns the relay result into the HTTP status Event Grid uses to
// decide on redelivery.
type CloudEventsIngress struct {
	relay *Relay
	log   *slog.Logger
}

func NewCloudEventsIngress(r *Relay, log *slog.Logger) *CloudEventsIngress {
	if log == nil {
		log = slog.Default()
	}
	return &CloudEventsIngress{relay: r, log: log}
}

// Receive handles one CloudEvent.
//   - ok / skipped            -> ACK
//   - undecodable event       -> 400, redelivery would fail the same way
//   - twin update failure     -> 503, let the transport retry
func (in *CloudEventsIngress) Receive(ctx context.Context, e cloudevents.Event) cloudevents.Result {
	ack, err := in.relay.Handle(ctx, &InboundEvent{
		ID:      e.ID(),
		Type:    e.Type(),
		Subject: e.Subject(),
		Data:    e.Data(),
	})
	switch {
	case err == nil:
		return cloudevents.ResultACK
	case IsPermanent(err):
		in.log.Debug("event rejected", "event_id", ack.EventID, "status", http.StatusBadRequest)
		return cloudevents.NewHTTPResult(http.StatusBadRequest, "rejected: %s", Outcome(err))
	default:
		in.log.Debug("event nacked for redelivery", "event_id", ack.EventID, "status", http.StatusServiceUnavailable)
		return cloudevents.NewHTTPResult(http.StatusServiceUnavailable, "retry: %s", Outcome(err))
	}
}

// Handler builds the HTTP handler to mount on the service mux.
func (in *CloudEventsIngress) Handler(ctx context.Context, opts ...cehttp.Option) (http.Handler, error) {
	p, err := cloudevents.NewHTTP(opts...)
	if err != nil {
		return nil, err
	}
	h, err := cloudevents.NewHTTPReceiveHandler(ctx, p, in.Receive)
	if err != nil {
		return nil, err
	}
	return h, nil
}
