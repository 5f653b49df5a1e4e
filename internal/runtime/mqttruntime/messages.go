package mqttruntime

import (
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/mapping"
)

// Announcement is the retained payload of the bridge topic.
type Announcement struct {
	BridgeID    string `json:"bridgeId"`
	Name        string `json:"name"`
	Port        int    `json:"port"`
	DeviceCount int    `json:"deviceCount"`
	Timestamp   string `json:"timestamp"`
}

// DeviceConfig is the retained payload of a device config topic.
type DeviceConfig struct {
	Endpoint uint32                 `json:"endpoint"`
	Device   mapping.Representation `json:"device"`
}

// DeviceState is the retained payload of a device state topic.
type DeviceState struct {
	Endpoint  uint32         `json:"endpoint"`
	Fields    mapping.Fields `json:"fields"`
	Timestamp string         `json:"timestamp"`
}

// RuntimeStatus is published by the runtime on the status topic.
type RuntimeStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// StatusError is the runtime-reported status that fails a context.
const StatusError = "error"

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
