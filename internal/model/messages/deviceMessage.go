package messages

import (
	"encoding/base64"
	"encoding/json"
)

// DeviceIDProperty is the system property IoT Hub stamps on every device-to-cloud message.
const DeviceIDProperty = "iothub-connection-device-id"

// DeviceMessage is the IoT Hub routed message carried as event data.
// Values are kept raw so the relay can tell a missing key from a wrong type.
type DeviceMessage struct {
	SystemProperties map[string]json.RawMessage `json:"systemProperties"`
	Properties       map[string]json.RawMessage `json:"properties,omitempty"`
	Body             json.RawMessage            `json:"body"`
}

// NewDeviceMessage wraps a reading the same way IoT Hub routes a device
// message: the JSON reading base64-encoded in body and the device id in systemProperties.
func NewDeviceMessage(deviceID string, r SensorReading) (DeviceMessage, error) {
	reading, err := json.Marshal(r)
	if err != nil {
		return DeviceMessage{}, err
	}
	id, err := json.Marshal(deviceID)
	if err != nil {
		return DeviceMessage{}, err
	}
	body, err := json.Marshal(base64.StdEncoding.EncodeToString(reading))
	if err != nil {
		return DeviceMessage{}, err
	}
	return DeviceMessage{
		SystemProperties: map[string]json.RawMessage{
			DeviceIDProperty:          id,
			"iothub-message-source":   json.RawMessage(`"Telemetry"`),
			"iothub-content-type":     json.RawMessage(`"application/json"`),
			"iothub-content-encoding": json.RawMessage(`"utf-8"`),
		},
		Body: body,
	}, nil
}
