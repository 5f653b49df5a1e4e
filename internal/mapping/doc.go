// Package mapping is the Domain Mapping Registry: it decides how a platform
// entity is represented as a protocol device and translates in both
// directions.
//
// The set of representations is closed. Each one is a Variant identified by
// a Tag (on_off_light, temperature_sensor, door_lock, ...). Select inspects a
// snapshot once, by domain and then by attributes.device_class or
// supported_color_modes, and returns the Variant or false when the entity is
// not mappable.
//
// A Variant has three operations:
//
//   - Build produces the Representation published to the protocol runtime
//     (device type, clusters, basic information, initial fields).
//   - Project maps a snapshot to protocol Fields. It is a pure function of the
//     snapshot (and, for composite devices, the related entities' current
//     snapshots) so re-projecting the same state yields identical fields.
//   - OnCommand translates an inbound protocol Command into exactly one
//     platform action through an Invoker. Kinds the variant does not handle
//     return ErrUnsupportedCommand without invoking anything.
//
// # Field names
//
// Fields are keyed "cluster.attribute" (for example "onOff.onOff" or
// "fanControl.speedSetting"). Keys are defined as constants in fields.go.
package mapping
