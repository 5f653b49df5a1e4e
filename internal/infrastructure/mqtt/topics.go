package mqtt

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultTopicPrefix is the root of every grayhub topic.
const DefaultTopicPrefix = "grayhub"

// Leaf names under a device endpoint.
const (
	DeviceLeafConfig  = "config"
	DeviceLeafState   = "state"
	DeviceLeafCommand = "command"
)

// Topics provides builders for grayhub MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
// The runtime hierarchy for one bridge is:
//
//	grayhub/runtime/{bridgeId}/bridge
//	grayhub/runtime/{bridgeId}/status
//	grayhub/runtime/{bridgeId}/fabrics
//	grayhub/runtime/{bridgeId}/device/{endpoint}/config
//	grayhub/runtime/{bridgeId}/device/{endpoint}/state
//	grayhub/runtime/{bridgeId}/device/{endpoint}/command
type Topics struct {
	Prefix string
}

// NewTopics returns builders rooted at prefix, or DefaultTopicPrefix when
// prefix is empty. Trailing slashes are trimmed.
func NewTopics(prefix string) Topics {
	prefix = strings.TrimRight(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{Prefix: prefix}
}

func (t Topics) root() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return t.Prefix
}

// =============================================================================
// System Topics
// =============================================================================

// SystemStatus returns the hub's online/offline topic.
//
// Example: grayhub/system/status
func (t Topics) SystemStatus() string {
	return fmt.Sprintf("%s/system/status", t.root())
}

// =============================================================================
// Runtime Topics
// =============================================================================

// RuntimeRoot returns the base topic for one bridge.
//
// Example: grayhub/runtime/3f2a
func (t Topics) RuntimeRoot(bridgeID string) string {
	return fmt.Sprintf("%s/runtime/%s", t.root(), bridgeID)
}

// RuntimeBridge returns the retained bridge announcement topic.
//
// Example: grayhub/runtime/3f2a/bridge
func (t Topics) RuntimeBridge(bridgeID string) string {
	return t.RuntimeRoot(bridgeID) + "/bridge"
}

// RuntimeStatus returns the topic the runtime reports its health on.
//
// Example: grayhub/runtime/3f2a/status
func (t Topics) RuntimeStatus(bridgeID string) string {
	return t.RuntimeRoot(bridgeID) + "/status"
}

// RuntimeFabrics returns the topic carrying the commissioned fabric list.
//
// Example: grayhub/runtime/3f2a/fabrics
func (t Topics) RuntimeFabrics(bridgeID string) string {
	return t.RuntimeRoot(bridgeID) + "/fabrics"
}

// DeviceConfig returns the retained endpoint description topic.
//
// Example: grayhub/runtime/3f2a/device/2/config
func (t Topics) DeviceConfig(bridgeID string, endpoint uint32) string {
	return t.device(bridgeID, endpoint, DeviceLeafConfig)
}

// DeviceState returns the retained endpoint state topic.
//
// Example: grayhub/runtime/3f2a/device/2/state
func (t Topics) DeviceState(bridgeID string, endpoint uint32) string {
	return t.device(bridgeID, endpoint, DeviceLeafState)
}

// DeviceCommand returns the topic controllers send endpoint commands on.
//
// Example: grayhub/runtime/3f2a/device/2/command
func (t Topics) DeviceCommand(bridgeID string, endpoint uint32) string {
	return t.device(bridgeID, endpoint, DeviceLeafCommand)
}

func (t Topics) device(bridgeID string, endpoint uint32, leaf string) string {
	return fmt.Sprintf("%s/device/%d/%s", t.RuntimeRoot(bridgeID), endpoint, leaf)
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// AllDeviceCommands returns a pattern matching every command for one bridge.
//
// Pattern: grayhub/runtime/3f2a/device/+/command
func (t Topics) AllDeviceCommands(bridgeID string) string {
	return fmt.Sprintf("%s/device/+/%s", t.RuntimeRoot(bridgeID), DeviceLeafCommand)
}

// AllTopics returns a pattern matching all grayhub topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: grayhub/#
func (t Topics) AllTopics() string {
	return t.root() + "/#"
}

// ParseDeviceTopic splits a device topic into its bridge ID, endpoint and
// leaf. ok is false when topic is not a device topic under this prefix.
func (t Topics) ParseDeviceTopic(topic string) (bridgeID string, endpoint uint32, leaf string, ok bool) {
	rest, found := strings.CutPrefix(topic, t.root()+"/runtime/")
	if !found {
		return "", 0, "", false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 4 || parts[1] != "device" || parts[0] == "" {
		return "", 0, "", false
	}
	n, err := strconv.ParseUint(parts[2], 10, 32)
	if err != nil {
		return "", 0, "", false
	}
	return parts[0], uint32(n), parts[3], true
}

// ValidSegment reports whether s can be used as a single topic level.
func ValidSegment(s string) bool {
	return s != "" && !strings.ContainsAny(s, "/+#\x00")
}
