package model

import (
	"github.com/LeonardoBeccarini/iothub_twins_relay/internal/model/entities"
	"github.com/LeonardoBeccarini/iothub_twins_relay/internal/model/messages"
)

// Alias per esporre tipi comuni ai servizi

type (
	DeviceMessage  = messages.DeviceMessage
	SensorReading  = messages.SensorReading
	TwinUpdate     = entities.TwinUpdate
	PatchOperation = entities.PatchOperation
	Device         = entities.Device
)

const DeviceIDProperty = messages.DeviceIDProperty
