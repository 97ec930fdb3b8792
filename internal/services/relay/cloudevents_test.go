package relay

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	cehttp "github.com/cloudevents/sdk-go/v2/protocol/http"
)

func telemetryEvent(t *testing.T, data []byte) cloudevents.Event {
	t.Helper()
	e := cloudevents.NewEvent()
	e.SetID("5f2b0c7e-0001")
	e.SetType("Microsoft.Devices.DeviceTelemetry")
	e.SetSource("/SUBSCRIPTIONS/x/RESOURCEGROUPS/rg/PROVIDERS/MICROSOFT.DEVICES/IOTHUBS/hub")
	e.SetSubject("devices/sensor-42")
	if data != nil {
		e.DataEncoded = data
		e.SetDataContentType(cloudevents.ApplicationJSON)
	}
	return e
}

func statusOf(t *testing.T, res cloudevents.Result) int {
	t.Helper()
	var hr *cehttp.Result
	if !errors.As(res, &hr) {
		t.Fatalf("result %v is not an HTTP result", res)
	}
	return hr.StatusCode
}

func TestCloudEventsIngressAcksValidEvent(t *testing.T) {
	twins := &fakeTwins{}
	r, _ := newTestRelay(twins, Options{AcceptTypes: []string{"Microsoft.Devices.DeviceTelemetry"}})
	in := NewCloudEventsIngress(r, nil)

	res := in.Receive(context.Background(), telemetryEvent(t, envelope("sensor-42", b64(`{"Temperature":21.5,"Humidity":47.2}`))))
	if !cloudevents.IsACK(res) {
		t.Fatalf("result = %v, want ACK", res)
	}
	if len(twins.updates) != 1 || twins.updates[0].TwinID != "sensor-42" {
		t.Fatalf("updates = %+v", twins.updates)
	}
}

func TestCloudEventsIngressAcksEmptyEvent(t *testing.T) {
	twins := &fakeTwins{}
	r, _ := newTestRelay(twins, Options{})
	res := NewCloudEventsIngress(r, nil).Receive(context.Background(), telemetryEvent(t, nil))
	if !cloudevents.IsACK(res) {
		t.Fatalf("result = %v, want ACK", res)
	}
	if len(twins.updates) != 0 {
		t.Fatalf("update issued for empty event")
	}
}

func TestCloudEventsIngressRejectsPoisonMessage(t *testing.T) {
	r, _ := newTestRelay(&fakeTwins{}, Options{})
	res := NewCloudEventsIngress(r, nil).Receive(context.Background(), telemetryEvent(t, envelope("sensor-42", "***")))
	if got := statusOf(t, res); got != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", got)
	}
}

func TestCloudEventsIngressNacksStoreFailure(t *testing.T) {
	r, _ := newTestRelay(&fakeTwins{err: errors.New("503 from twins")}, Options{})
	res := NewCloudEventsIngress(r, nil).Receive(context.Background(), telemetryEvent(t, envelope("sensor-42", b64(`{"Temperature":1,"Humidity":2}`))))
	if got := statusOf(t, res); got != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", got)
	}
}

func TestCloudEventsIngressHandlerStatusCodes(t *testing.T) {
	valid := envelope("sensor-42", b64(`{"Temperature":21.5,"Humidity":47.2}`))
	tests := []struct {
		name    string
		twinErr error
		body    []byte
		status  int
		updates int
	}{
		{"ok", nil, valid, http.StatusOK, 1},
		{"poison", nil, envelope("sensor-42", "***"), http.StatusBadRequest, 0},
		{"store failure", errors.New("twins unavailable"), valid, http.StatusServiceUnavailable, 1},
		{"empty", nil, nil, http.StatusOK, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			twins := &fakeTwins{err: tt.twinErr}
			r, _ := newTestRelay(twins, Options{})
			h, err := NewCloudEventsIngress(r, nil).Handler(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			srv := httptest.NewServer(h)
			defer srv.Close()

			// binary content mode, come Event Grid
			req, _ := http.NewRequest(http.MethodPost, srv.URL, bytes.NewReader(tt.body))
			req.Header.Set("ce-specversion", "1.0")
			req.Header.Set("ce-id", "evt-"+tt.name)
			req.Header.Set("ce-type", "Microsoft.Devices.DeviceTelemetry")
			req.Header.Set("ce-source", "/iothub/hub")
			req.Header.Set("ce-subject", "devices/sensor-42")
			if tt.body != nil {
				req.Header.Set("Content-Type", "application/json")
			}
			resp, err := srv.Client().Do(req)
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()

			if resp.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			if len(twins.updates) != tt.updates {
				t.Fatalf("updates = %d, want %d", len(twins.updates), tt.updates)
			}
		})
	}
}
