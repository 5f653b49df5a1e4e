package mapping

import (
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/nerrad567/gray-logic-hub/internal/entity"
)

const (
	maxBrightness = 255
	maxLevel      = 254
	minLevel      = 1
)

var (
	onOffLight = register(Variant{
		tag:        TagOnOffLight,
		deviceType: DeviceType{Code: 0x0100, Name: "OnOffLight"},
		clusters:   []string{"onOff"},
		project:    projectOnOff,
		command:    lightCommand,
	})

	dimmableLight = register(Variant{
		tag:        TagDimmableLight,
		deviceType: DeviceType{Code: 0x0101, Name: "DimmableLight"},
		clusters:   []string{"onOff", "levelControl"},
		project:    projectDimmable,
		command:    lightCommand,
	})

	colorTemperatureLight = register(Variant{
		tag:        TagColorTemperatureLight,
		deviceType: DeviceType{Code: 0x010C, Name: "ColorTemperatureLight"},
		clusters:   []string{"onOff", "levelControl", "colorControl"},
		project:    projectColorTemperature,
		command:    lightCommand,
	})
)

var dimmableColorModes = []string{"brightness", "white", "hs", "xy", "rgb", "rgbw", "rgbww", "color_temp"}

// selectLight picks the light variant from supported_color_modes.
func selectLight(snap entity.Snapshot) Variant {
	modes := snap.Strings("supported_color_modes")
	if slices.Contains(modes, "color_temp") {
		return colorTemperatureLight
	}
	for _, m := range modes {
		if slices.Contains(dimmableColorModes, m) {
			return dimmableLight
		}
	}
	return onOffLight
}

// isOn treats anything but an available "on" as off.
func isOn(snap entity.Snapshot) bool {
	return snap.IsAvailable() && snap.State == entity.StateOn
}

func projectOnOff(snap entity.Snapshot) Fields {
	return Fields{FieldOnOff: isOn(snap)}
}

func projectDimmable(snap entity.Snapshot) Fields {
	f := projectOnOff(snap)
	f[FieldCurrentLevel] = nil
	if b, ok := snap.Float("brightness"); ok && isOn(snap) {
		f[FieldCurrentLevel] = BrightnessToLevel(b)
	}
	return f
}

func projectColorTemperature(snap entity.Snapshot) Fields {
	f := projectDimmable(snap)

	f[FieldColorTempMireds] = nil
	if k, ok := snap.Float("color_temp_kelvin"); ok && k > 0 {
		f[FieldColorTempMireds] = KelvinToMireds(k)
	} else if m, ok := snap.Float("color_temp"); ok && m > 0 {
		f[FieldColorTempMireds] = int(math.Round(m))
	}

	// The warmest kelvin is the largest mired value and vice versa.
	if k, ok := snap.Float("max_color_temp_kelvin"); ok && k > 0 {
		f[FieldColorTempMinMireds] = KelvinToMireds(k)
	} else if m, ok := snap.Float("min_mireds"); ok {
		f[FieldColorTempMinMireds] = int(math.Round(m))
	}
	if k, ok := snap.Float("min_color_temp_kelvin"); ok && k > 0 {
		f[FieldColorTempMaxMireds] = KelvinToMireds(k)
	} else if m, ok := snap.Float("max_mireds"); ok {
		f[FieldColorTempMaxMireds] = int(math.Round(m))
	}
	return f
}

func lightCommand(ctx context.Context, _ string, cmd Command, invoke Invoker) error {
	switch cmd.Kind {
	case CommandTurnOn:
		return invoke(ctx, "light", "turn_on", nil)
	case CommandTurnOff:
		return invoke(ctx, "light", "turn_off", nil)
	case CommandToggle:
		return invoke(ctx, "light", "toggle", nil)
	case CommandSetLevel:
		level, ok := cmd.Float("level")
		if !ok {
			return fmt.Errorf("%w: set_level requires level", ErrInvalidCommand)
		}
		return invoke(ctx, "light", "turn_on", map[string]any{"brightness": LevelToBrightness(level)})
	case CommandSetColorTemperature:
		mireds, ok := cmd.Float("mireds")
		if !ok || mireds <= 0 {
			return fmt.Errorf("%w: set_color_temperature requires mireds", ErrInvalidCommand)
		}
		return invoke(ctx, "light", "turn_on", map[string]any{"color_temp_kelvin": MiredsToKelvin(mireds)})
	default:
		return unsupported(cmd)
	}
}

// BrightnessToLevel converts a 0-255 platform brightness to a 1-254 level.
func BrightnessToLevel(brightness float64) int {
	level := int(math.Round(brightness * maxLevel / maxBrightness))
	return clamp(level, minLevel, maxLevel)
}

// LevelToBrightness converts a 0-254 level to a 0-255 platform brightness.
func LevelToBrightness(level float64) int {
	b := int(math.Round(level * maxBrightness / maxLevel))
	return clamp(b, 0, maxBrightness)
}

// KelvinToMireds converts a colour temperature.
func KelvinToMireds(kelvin float64) int {
	return int(math.Round(1_000_000 / kelvin))
}

// MiredsToKelvin converts a colour temperature.
func MiredsToKelvin(mireds float64) int {
	return int(math.Round(1_000_000 / mireds))
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
