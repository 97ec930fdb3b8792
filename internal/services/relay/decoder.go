package relay

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/LeonardoBeccarini/iothub_twins_relay/internal/model"
	"github.com/LeonardoBeccarini/iothub_twins_relay/internal/model/entities"
	"github.com/LeonardoBeccarini/iothub_twins_relay/internal/model/messages"
)

// strictReading distingue un campo assente da uno a zero.
type strictReading struct {
	Temperature *float64 `json:"Temperature"`
	Humidity    *float64 `json:"Humidity"`
}

// Decode turns the raw event data into the device id and the reading it carries.
// Every failure is wrapped in one of the outcome errors.
func Decode(data []byte) (string, model.SensorReading, error) {
	var msg messages.DeviceMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return "", model.SensorReading{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}

	deviceID, err := deviceIDOf(msg)
	if err != nil {
		return "", model.SensorReading{}, err
	}

	body, err := decodeBody(msg.Body)
	if err != nil {
		return deviceID, model.SensorReading{}, err
	}

	reading, err := decodeReading(body)
	if err != nil {
		return deviceID, model.SensorReading{}, err
	}
	return deviceID, reading, nil
}

func deviceIDOf(msg messages.DeviceMessage) (string, error) {
	raw, ok := msg.SystemProperties[messages.DeviceIDProperty]
	if !ok {
		return "", fmt.Errorf("%w: systemProperties[%q] not present", ErrMissingDeviceID, messages.DeviceIDProperty)
	}
	var id string
	if err := json.Unmarshal(raw, &id); err != nil {
		return "", fmt.Errorf("%w: systemProperties[%q] is not a string", ErrMissingDeviceID, messages.DeviceIDProperty)
	}
	if strings.TrimSpace(id) == "" {
		return "", fmt.Errorf("%w: systemProperties[%q] is empty", ErrMissingDeviceID, messages.DeviceIDProperty)
	}
	return id, nil
}

func decodeBody(raw json.RawMessage) ([]byte, error) {
	if isAbsent(raw) {
		return nil, fmt.Errorf("%w: body not present", ErrInvalidEncoding)
	}
	var encoded string
	if err := json.Unmarshal(raw, &encoded); err != nil {
		return nil, fmt.Errorf("%w: body is not a string", ErrInvalidEncoding)
	}
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
	}
	if !utf8.Valid(decoded) {
		return nil, fmt.Errorf("%w: body is not valid UTF-8", ErrInvalidEncoding)
	}
	return decoded, nil
}

func decodeReading(body []byte) (model.SensorReading, error) {
	var sr strictReading
	if err := json.Unmarshal(body, &sr); err != nil {
		return model.SensorReading{}, fmt.Errorf("%w: %v", ErrInvalidReading, err)
	}
	if sr.Temperature == nil {
		return model.SensorReading{}, fmt.Errorf("%w: Temperature missing", ErrInvalidReading)
	}
	if sr.Humidity == nil {
		return model.SensorReading{}, fmt.Errorf("%w: Humidity missing", ErrInvalidReading)
	}
	return model.SensorReading{Temperature: *sr.Temperature, Humidity: *sr.Humidity}, nil
}

// NewReadingUpdate builds the patch that replaces both telemetry properties of the twin.
func NewReadingUpdate(deviceID string, r model.SensorReading) model.TwinUpdate {
	return entities.TwinUpdate{TwinID: deviceID}.
		Replace(entities.PathTemperature, r.Temperature).
		Replace(entities.PathHumidity, r.Humidity)
}

func isAbsent(raw []byte) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}
