package entity

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Well-known platform states.
const (
	StateOn          = "on"
	StateOff         = "off"
	StateUnavailable = "unavailable"
	StateUnknown     = "unknown"
)

// Attributes is the free-form attribute map of an entity state.
type Attributes map[string]any

// Snapshot is the state of one entity at one point in time.
//
// Registry and Device are attached by the store from the platform's entity
// and device registries; either may be nil.
type Snapshot struct {
	EntityID    string         `json:"entity_id"`
	State       string         `json:"state"`
	Attributes  Attributes     `json:"attributes"`
	LastChanged time.Time      `json:"last_changed"`
	LastUpdated time.Time      `json:"last_updated"`
	Registry    *RegistryEntry `json:"registry,omitempty"`
	Device      *DeviceEntry   `json:"device,omitempty"`
}

// RegistryEntry is the platform's entity registry record.
type RegistryEntry struct {
	EntityID       string `json:"entity_id"`
	DeviceID       string `json:"device_id,omitempty"`
	Platform       string `json:"platform,omitempty"`
	Name           string `json:"name,omitempty"`
	OriginalName   string `json:"original_name,omitempty"`
	EntityCategory string `json:"entity_category,omitempty"`
	DisabledBy     string `json:"disabled_by,omitempty"`
	HiddenBy       string `json:"hidden_by,omitempty"`
}

// DeviceEntry is the platform's device registry record.
type DeviceEntry struct {
	ID           string `json:"id"`
	Name         string `json:"name,omitempty"`
	NameByUser   string `json:"name_by_user,omitempty"`
	Manufacturer string `json:"manufacturer,omitempty"`
	Model        string `json:"model,omitempty"`
	SWVersion    string `json:"sw_version,omitempty"`
	HWVersion    string `json:"hw_version,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`
}

// DisplayName prefers the user-assigned name.
func (d *DeviceEntry) DisplayName() string {
	if d.NameByUser != "" {
		return d.NameByUser
	}
	return d.Name
}

// SplitID splits "light.kitchen" into ("light", "kitchen").
func SplitID(entityID string) (domain, objectID string, ok bool) {
	domain, objectID, ok = strings.Cut(entityID, ".")
	if !ok || domain == "" || objectID == "" || strings.ContainsAny(entityID, " /#+") {
		return "", "", false
	}
	return domain, objectID, true
}

// ValidateID returns ErrInvalidEntityID unless entityID is domain.object_id.
func ValidateID(entityID string) error {
	if _, _, ok := SplitID(entityID); !ok {
		return ErrInvalidEntityID
	}
	return nil
}

// Domain returns the domain part of the snapshot's entity id.
func (s *Snapshot) Domain() string {
	domain, _, _ := SplitID(s.EntityID)
	return domain
}

// IsAvailable reports whether the platform considers the entity reachable.
func (s *Snapshot) IsAvailable() bool {
	return s.State != StateUnavailable
}

// FriendlyName returns attributes.friendly_name, or "" when absent.
func (s *Snapshot) FriendlyName() string {
	return s.String("friendly_name")
}

// DeviceClass returns attributes.device_class, or "" when absent.
func (s *Snapshot) DeviceClass() string {
	return s.String("device_class")
}

// String returns a string attribute, or "" if missing or not a string.
func (s *Snapshot) String(key string) string {
	v, _ := s.Attributes[key].(string)
	return v
}

// Float returns a numeric attribute. JSON numbers decode as float64; ints
// and numeric strings are accepted too.
func (s *Snapshot) Float(key string) (float64, bool) {
	return toFloat(s.Attributes[key])
}

// StateFloat parses the state itself as a number.
func (s *Snapshot) StateFloat() (float64, bool) {
	return toFloat(s.State)
}

// Strings returns a list-of-strings attribute such as supported_color_modes.
func (s *Snapshot) Strings(key string) []string {
	switch v := s.Attributes[key].(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if str, ok := e.(string); ok {
				out = append(out, str)
			}
		}
		return out
	default:
		return nil
	}
}

// DeepCopy returns a copy that shares no mutable state with s.
func (s *Snapshot) DeepCopy() *Snapshot {
	if s == nil {
		return nil
	}
	cpy := *s
	cpy.Attributes = deepCopyMap(s.Attributes)
	if s.Registry != nil {
		reg := *s.Registry
		cpy.Registry = &reg
	}
	if s.Device != nil {
		dev := *s.Device
		cpy.Device = &dev
	}
	return &cpy
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func deepCopyMap(m Attributes) Attributes {
	if m == nil {
		return nil
	}
	cpy := make(Attributes, len(m))
	for k, v := range m {
		cpy[k] = deepCopyValue(v)
	}
	return cpy
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return map[string]any(deepCopyMap(val))
	case Attributes:
		return deepCopyMap(val)
	case []any:
		cpy := make([]any, len(val))
		for i, elem := range val {
			cpy[i] = deepCopyValue(elem)
		}
		return cpy
	case []string:
		return append([]string(nil), val...)
	default:
		return v
	}
}
