package mapping

import (
	"context"
	"fmt"
	"slices"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-hub/internal/entity"
)

const (
	defaultVendorName = "Gray Logic Hub"
	maxLabelLength    = 32
)

// uniqueIDNamespace seeds stable per-entity unique ids.
var uniqueIDNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/nerrad567/gray-logic-hub"))

type projectFunc func(snap entity.Snapshot) Fields

type commandFunc func(ctx context.Context, entityID string, cmd Command, invoke Invoker) error

// Variant is one member of the closed set of device representations.
type Variant struct {
	tag        Tag
	deviceType DeviceType
	clusters   []string
	project    projectFunc
	command    commandFunc
}

// Tag returns the variant's tag.
func (v Variant) Tag() Tag { return v.tag }

// DeviceType returns the protocol device type.
func (v Variant) DeviceType() DeviceType { return v.deviceType }

// Clusters returns the clusters the representation exposes, excluding
// composite additions.
func (v Variant) Clusters() []string { return slices.Clone(v.clusters) }

// Commandable reports whether the variant accepts any command.
func (v Variant) Commandable() bool { return v.command != nil }

var variants = map[Tag]Variant{}

func register(v Variant) Variant {
	if _, dup := variants[v.tag]; dup {
		panic("mapping: duplicate variant " + string(v.tag))
	}
	variants[v.tag] = v
	return v
}

// Lookup returns the variant for a tag.
func Lookup(tag Tag) (Variant, bool) {
	v, ok := variants[tag]
	return v, ok
}

// Tags returns every registered tag, sorted.
func Tags() []Tag {
	tags := make([]Tag, 0, len(variants))
	for t := range variants {
		tags = append(tags, t)
	}
	slices.Sort(tags)
	return tags
}

// Select picks the variant for a snapshot. It returns false when the entity's
// domain or device class has no representation.
func Select(snap entity.Snapshot) (Variant, bool) {
	switch snap.Domain() {
	case "light":
		return selectLight(snap), true
	case "switch", "input_boolean":
		return plugInUnit, true
	case "fan":
		return fan, true
	case "sensor":
		return selectSensor(snap)
	case "binary_sensor":
		return selectBinarySensor(snap)
	case "cover":
		return windowCovering, true
	case "lock":
		return doorLock, true
	default:
		return Variant{}, false
	}
}

// Build produces the representation of snap under cfg.
//
// Parameters:
//   - snap: Initial snapshot of the entity
//   - cfg: Per-entity mapping configuration
//   - states: Store reader for composite entities (battery, humidity)
//
// Returns:
//   - Representation: Ready to publish
//   - error: ErrProjectionFailed if the initial projection failed
func (v Variant) Build(snap entity.Snapshot, cfg Config, states Reader) (Representation, error) {
	fields, err := v.Project(snap, cfg, states)
	if err != nil {
		return Representation{}, err
	}

	clusters := v.Clusters()
	if cfg.BatteryEntity != "" {
		clusters = append(clusters, "powerSource")
	}
	if v.tag == TagTemperatureSensor && cfg.HumidityEntity != "" {
		clusters = append(clusters, "relativeHumidityMeasurement")
	}

	return Representation{
		EntityID:         snap.EntityID,
		Tag:              v.tag,
		DeviceType:       v.deviceType,
		Clusters:         clusters,
		BasicInformation: basicInformation(snap, cfg),
		Fields:           fields,
		Related:          v.related(cfg),
	}, nil
}

// Project maps snap, and any composite entities, to protocol fields.
func (v Variant) Project(snap entity.Snapshot, cfg Config, states Reader) (fields Fields, err error) {
	defer func() {
		if r := recover(); r != nil {
			fields = nil
			err = fmt.Errorf("%w: %s: %v", ErrProjectionFailed, v.tag, r)
		}
	}()

	fields = v.project(snap)
	fields[FieldReachable] = snap.IsAvailable()
	projectComposite(v.tag, fields, cfg, states)
	return fields, nil
}

// OnCommand translates cmd into one platform action on entityID.
//
// Returns:
//   - error: ErrUnsupportedCommand or ErrInvalidCommand when nothing was
//     invoked; otherwise the invoker's error
func (v Variant) OnCommand(ctx context.Context, entityID string, cmd Command, invoke Invoker) error {
	if v.command == nil {
		return fmt.Errorf("%w: %s on %s", ErrUnsupportedCommand, cmd.Kind, v.tag)
	}
	return v.command(ctx, entityID, cmd, invoke)
}

func (v Variant) related(cfg Config) []string {
	var ids []string
	if cfg.BatteryEntity != "" {
		ids = append(ids, cfg.BatteryEntity)
	}
	if v.tag == TagTemperatureSensor && cfg.HumidityEntity != "" {
		ids = append(ids, cfg.HumidityEntity)
	}
	return ids
}

func unsupported(cmd Command) error {
	return fmt.Errorf("%w: %s", ErrUnsupportedCommand, cmd.Kind)
}

// UniqueID returns the stable unique id of the device mapped from entityID.
func UniqueID(entityID string) string {
	return uuid.NewSHA1(uniqueIDNamespace, []byte(entityID)).String()
}

func basicInformation(snap entity.Snapshot, cfg Config) BasicInformation {
	label := cfg.CustomName
	if label == "" {
		label = snap.FriendlyName()
	}
	if label == "" && snap.Registry != nil {
		label = snap.Registry.Name
	}
	if label == "" {
		label = snap.EntityID
	}

	info := BasicInformation{
		NodeLabel:    truncate(label, maxLabelLength),
		VendorName:   defaultVendorName,
		ProductName:  snap.Domain(),
		SerialNumber: UniqueID(snap.EntityID)[:8],
		UniqueID:     UniqueID(snap.EntityID),
	}
	if d := snap.Device; d != nil {
		if d.Manufacturer != "" {
			info.VendorName = truncate(d.Manufacturer, maxLabelLength)
		}
		if d.Model != "" {
			info.ProductName = truncate(d.Model, maxLabelLength)
		}
		if d.SerialNumber != "" {
			info.SerialNumber = truncate(d.SerialNumber, maxLabelLength)
		}
		info.SoftwareVersion = d.SWVersion
	}
	return info
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
