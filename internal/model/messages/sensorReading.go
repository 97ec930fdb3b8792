package messages

// SensorReading is the JSON document a device puts in the message body.
type SensorReading struct {
	Temperature float64 `json:"Temperature"`
	Humidity    float64 `json:"Humidity"`
}
