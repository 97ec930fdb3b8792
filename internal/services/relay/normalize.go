package relay

import (
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/LeonardoBeccarini/iothub_twins_relay/internal/model"
)

const telemetryMeasurement = "telemetry"

// ReadingToPoint normalizza una lettura in un *write.Point per InfluxDB.
func ReadingToPoint(deviceID string, r model.SensorReading, at time.Time) *write.Point {
	return influxdb2.NewPoint(telemetryMeasurement,
		map[string]string{"device_id": deviceID},
		map[string]interface{}{
			"temperature": r.Temperature,
			"humidity":    r.Humidity,
		},
		at)
}
