package relay

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/LeonardoBeccarini/iothub_twins_relay/internal/model"
)

// pointWriter is the part of influx api.WriteAPI the writer needs.
type pointWriter interface {
	WritePoint(point *write.Point)
	Errors() <-chan error
}

// Writer keeps a telemetry history in InfluxDB and remembers when the last
// asynchronous write error happened, for /healthz and /readyz.
type Writer struct {
	api     pointWriter
	log     *slog.Logger
	mu      sync.RWMutex
	lastErr time.Time
}

// NewWriter inizializza il writer e attiva il listener degli errori asincroni di Influx.
func NewWriter(w pointWriter, log *slog.Logger) *Writer {
	if log == nil {
		log = slog.Default()
	}
	ww := &Writer{
		api:     w,
		log:     log,
		lastErr: time.Now().Add(-24 * time.Hour), // di default "lontano nel tempo"
	}
	go func() {
		for err := range w.Errors() {
			if err != nil {
				ww.mu.Lock()
				ww.lastErr = time.Now()
				ww.mu.Unlock()
				ww.log.Error("influx write error", "error", err)
			}
		}
	}()
	return ww
}

// Record queues the point; write errors surface later through Errors().
func (w *Writer) Record(_ context.Context, deviceID string, r model.SensorReading, at time.Time) error {
	w.api.WritePoint(ReadingToPoint(deviceID, r, at))
	return nil
}

// LastErrorAge ritorna da quanto tempo non si verificano errori di scrittura.
func (w *Writer) LastErrorAge() time.Duration {
	if w == nil {
		return 99999 * time.Hour
	}
	w.mu.RLock()
	t := w.lastErr
	w.mu.RUnlock()
	return time.Since(t)
}
