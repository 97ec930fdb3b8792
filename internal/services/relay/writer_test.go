package relay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/LeonardoBeccarini/iothub_twins_relay/internal/model"
)

type fakeWriteAPI struct {
	mu     sync.Mutex
	points []*write.Point
	errs   chan error
}

func (f *fakeWriteAPI) WritePoint(p *write.Point) {
	f.mu.Lock()
	f.points = append(f.points, p)
	f.mu.Unlock()
}

func (f *fakeWriteAPI) Errors() <-chan error { return f.errs }

func TestReadingToPoint(t *testing.T) {
	at := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	p := ReadingToPoint("Room2", model.SensorReading{Temperature: 23.1, Humidity: 44.9}, at)

	if p.Name() != "telemetry" || !p.Time().Equal(at) {
		t.Fatalf("point = %s @ %v", p.Name(), p.Time())
	}
	tags := p.TagList()
	if len(tags) != 1 || tags[0].Key != "device_id" || tags[0].Value != "Room2" {
		t.Fatalf("tags = %+v", tags)
	}
	fields := map[string]interface{}{}
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	if fields["temperature"] != 23.1 || fields["humidity"] != 44.9 {
		t.Fatalf("fields = %v", fields)
	}
}

func TestWriterRecordsAndTracksErrors(t *testing.T) {
	api := &fakeWriteAPI{errs: make(chan error, 1)}
	w := NewWriter(api, nil)

	if err := w.Record(context.Background(), "Room0", model.SensorReading{Temperature: 1, Humidity: 2}, time.Now()); err != nil {
		t.Fatal(err)
	}
	api.mu.Lock()
	n := len(api.points)
	api.mu.Unlock()
	if n != 1 {
		t.Fatalf("points = %d", n)
	}
	if w.LastErrorAge() < time.Hour {
		t.Fatalf("fresh writer reports a recent error")
	}

	api.errs <- errors.New("bucket not found")
	deadline := time.Now().Add(2 * time.Second)
	for w.LastErrorAge() > time.Minute {
		if time.Now().After(deadline) {
			t.Fatal("write error not observed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	close(api.errs)
}

func TestLastValueLayout(t *testing.T) {
	if got := lastValueKey("Room1"); got != "twin:last:Room1" {
		t.Fatalf("key = %s", got)
	}
	at := time.Date(2024, 3, 1, 9, 30, 0, 0, time.FixedZone("CET", 3600))
	f := lastValueFields(model.SensorReading{Temperature: 19.5, Humidity: 70}, at)
	want := []interface{}{"temperature", 19.5, "humidity", 70.0, "updated_at", "2024-03-01T08:30:00Z"}
	if len(f) != len(want) {
		t.Fatalf("fields = %v", f)
	}
	for i := range want {
		if f[i] != want[i] {
			t.Fatalf("fields[%d] = %v, want %v", i, f[i], want[i])
		}
	}
}
