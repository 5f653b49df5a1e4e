package mapping

import (
	"context"
	"math"

	"github.com/nerrad567/gray-logic-hub/internal/entity"
)

// Tag identifies a Variant.
type Tag string

// The closed set of representations.
const (
	TagOnOffLight            Tag = "on_off_light"
	TagDimmableLight         Tag = "dimmable_light"
	TagColorTemperatureLight Tag = "color_temperature_light"
	TagOnOffPlugInUnit       Tag = "on_off_plug_in_unit"
	TagFan                   Tag = "fan"
	TagTemperatureSensor     Tag = "temperature_sensor"
	TagHumiditySensor        Tag = "humidity_sensor"
	TagLightSensor           Tag = "light_sensor"
	TagAirQualitySensor      Tag = "air_quality_sensor"
	TagContactSensor         Tag = "contact_sensor"
	TagOccupancySensor       Tag = "occupancy_sensor"
	TagSmokeAlarm            Tag = "smoke_alarm"
	TagCOAlarm               Tag = "co_alarm"
	TagWaterLeakDetector     Tag = "water_leak_detector"
	TagWindowCovering        Tag = "window_covering"
	TagDoorLock              Tag = "door_lock"
)

// DeviceType is a protocol device type.
type DeviceType struct {
	Code uint32 `json:"code"`
	Name string `json:"name"`
}

// Fields are projected protocol attribute values keyed "cluster.attribute".
// A nil value means "unknown" (null on the wire).
type Fields map[string]any

// Clone returns a shallow copy; values are scalars.
func (f Fields) Clone() Fields {
	if f == nil {
		return nil
	}
	cpy := make(Fields, len(f))
	for k, v := range f {
		cpy[k] = v
	}
	return cpy
}

// Config is the per-entity mapping configuration of a bridge. It is fixed
// once the bridge is built.
type Config struct {
	// CustomName overrides the device label.
	CustomName string `json:"customName,omitempty" yaml:"custom_name,omitempty"`

	// BatteryEntity adds a power source reporting that entity's percentage.
	BatteryEntity string `json:"batteryEntity,omitempty" yaml:"battery_entity,omitempty"`

	// HumidityEntity adds relative humidity to a temperature sensor.
	HumidityEntity string `json:"humidityEntity,omitempty" yaml:"humidity_entity,omitempty"`
}

// BasicInformation is the identity a device presents to controllers.
type BasicInformation struct {
	NodeLabel       string `json:"nodeLabel"`
	VendorName      string `json:"vendorName"`
	ProductName     string `json:"productName"`
	SerialNumber    string `json:"serialNumber"`
	UniqueID        string `json:"uniqueId"`
	SoftwareVersion string `json:"softwareVersion,omitempty"`
}

// Representation is what a DeviceMapping publishes to the protocol runtime.
type Representation struct {
	EntityID         string           `json:"entityId"`
	Tag              Tag              `json:"tag"`
	DeviceType       DeviceType       `json:"deviceType"`
	Clusters         []string         `json:"clusters"`
	BasicInformation BasicInformation `json:"basicInformation"`
	Fields           Fields           `json:"fields"`

	// Related lists other entities whose changes must re-project this one.
	Related []string `json:"related,omitempty"`
}

// CommandKind names an inbound protocol command.
type CommandKind string

// Command kinds understood by at least one variant.
const (
	CommandTurnOn              CommandKind = "turn_on"
	CommandTurnOff             CommandKind = "turn_off"
	CommandToggle              CommandKind = "toggle"
	CommandSetLevel            CommandKind = "set_level"
	CommandSetColorTemperature CommandKind = "set_color_temperature"
	CommandSetSpeed            CommandKind = "set_speed"
	CommandOpen                CommandKind = "open"
	CommandClose               CommandKind = "close"
	CommandStop                CommandKind = "stop"
	CommandSetPosition         CommandKind = "set_position"
	CommandLock                CommandKind = "lock"
	CommandUnlock              CommandKind = "unlock"
)

// Command is an inbound protocol command for one device.
type Command struct {
	Kind CommandKind    `json:"kind"`
	Args map[string]any `json:"args,omitempty"`
}

// Float returns a numeric argument.
func (c Command) Float(key string) (float64, bool) {
	switch v := c.Args[key].(type) {
	case float64:
		return v, !math.IsNaN(v) && !math.IsInf(v, 0)
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// Invoker performs one platform action on the mapped entity. The caller
// binds the target entity; data holds only the action's own arguments.
type Invoker func(ctx context.Context, domain, service string, data map[string]any) error

// Reader is read access to the Entity State Store.
type Reader interface {
	Get(entityID string) (entity.Snapshot, bool)
}
