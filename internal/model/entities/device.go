package entities

// Device is a simulated room sensor registered in IoT Hub.
type Device struct {
	ID              string  `json:"id"`               // IoT Hub device id, also the twin id
	BaseTemperature float64 `json:"base_temperature"` // °C
	BaseHumidity    float64 `json:"base_humidity"`    // %RH
}
