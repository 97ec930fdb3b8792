package relay

import (
	"encoding/json"
	"net/http"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sony/gobreaker"
)

// BreakerStater is implemented by the digital twins client.
type BreakerStater interface {
	BreakerState() gobreaker.State
}

// deps raccoglie le dipendenze osservate da /healthz e /readyz.
// mqtt e writer sono nil quando la relativa integrazione è disabilitata.
type deps struct {
	twins  BreakerStater
	mqtt   mqtt.Client
	writer *Writer
}

func (d deps) twinsOK() bool {
	return d.twins != nil && d.twins.BreakerState() != gobreaker.StateOpen
}

func (d deps) mqttOK() bool {
	return d.mqtt == nil || d.mqtt.IsConnectionOpen()
}

func (d deps) writerOK(minAge time.Duration) bool {
	return d.writer == nil || d.writer.LastErrorAge() > minAge
}

type healthHandler struct{ deps }

func NewHealthHandler(twins BreakerStater, m mqtt.Client, w *Writer) http.Handler {
	return &healthHandler{deps{twins: twins, mqtt: m, writer: w}}
}

func (h *healthHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	type status struct {
		Status        string `json:"status"`
		TwinsBreaker  string `json:"twins_breaker"`
		MQTTConnected *bool  `json:"mqtt_connected,omitempty"`
		InfluxOK      *bool  `json:"influx_ok,omitempty"`
	}
	st := status{TwinsBreaker: "unknown"}
	if h.twins != nil {
		st.TwinsBreaker = h.twins.BreakerState().String()
	}
	if h.mqtt != nil {
		ok := h.mqttOK()
		st.MQTTConnected = &ok
	}
	if h.writer != nil {
		ok := h.writerOK(30 * time.Second)
		st.InfluxOK = &ok
	}

	// il twin store è l'unica dipendenza obbligatoria
	switch {
	case !h.twinsOK():
		st.Status = "down"
	case h.mqttOK() && h.writerOK(30*time.Second):
		st.Status = "ok"
	default:
		st.Status = "degraded"
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(st)
}

// Handler /readyz: 200 solo se il twin store è raggiungibile e le ingress attive sono connesse.
type readyHandler struct {
	deps
	minError time.Duration
}

func NewReadyHandler(twins BreakerStater, m mqtt.Client, w *Writer, minOkErrorAge time.Duration) http.Handler {
	return &readyHandler{deps: deps{twins: twins, mqtt: m, writer: w}, minError: minOkErrorAge}
}

func (h *readyHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	ready := h.twinsOK() && h.mqttOK() && h.writerOK(h.minError)
	w.Header().Set("Content-Type", "application/json")
	if !ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	type resp struct {
		Ready bool `json:"ready"`
	}
	_ = json.NewEncoder(w).Encode(resp{Ready: ready})
}
