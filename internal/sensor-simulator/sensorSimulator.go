package sensor_simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/LeonardoBeccarini/iothub_twins_relay/internal/model"
	"github.com/LeonardoBeccarini/iothub_twins_relay/internal/model/messages"
)

// Sender delivers one device message to the cloud side.
type Sender interface {
	Send(ctx context.Context, deviceID string, payload []byte) error
}

// DefaultDevices sono le stanze simulate di default.
func DefaultDevices(n int) []model.Device {
	devices := make([]model.Device, 0, n)
	for i := 0; i < n; i++ {
		devices = append(devices, model.Device{
			ID:              fmt.Sprintf("Room%d", i),
			BaseTemperature: 20,
			BaseHumidity:    60,
		})
	}
	return devices
}

type SensorSimulator struct {
	devices   []model.Device
	generator *DataGenerator
	sender    Sender
	log       *slog.Logger
}

func NewSensorSimulator(devices []model.Device, gen *DataGenerator, sender Sender, log *slog.Logger) *SensorSimulator {
	if log == nil {
		log = slog.Default()
	}
	return &SensorSimulator{devices: devices, generator: gen, sender: sender, log: log}
}

// Start publishes a reading for every device at each interval until ctx is done.
func (s *SensorSimulator) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *SensorSimulator) tick(ctx context.Context) {
	for _, d := range s.devices {
		r := s.generator.Next(d)
		payload, err := encode(d.ID, r)
		if err != nil {
			s.log.Error("encode failed", "device_id", d.ID, "error", err)
			continue
		}
		if err := s.sender.Send(ctx, d.ID, payload); err != nil {
			s.log.Warn("send failed", "device_id", d.ID, "error", err)
			continue
		}
		s.log.Info("reading sent", "device_id", d.ID,
			"temperature", r.Temperature, "humidity", r.Humidity)
	}
}

func encode(deviceID string, r model.SensorReading) ([]byte, error) {
	msg, err := messages.NewDeviceMessage(deviceID, r)
	if err != nil {
		return nil, err
	}
	return json.Marshal(msg)
}
