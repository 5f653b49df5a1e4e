package mapping

import (
	"context"
	"fmt"
	"math"

	"github.com/nerrad567/gray-logic-hub/internal/entity"
)

var (
	plugInUnit = register(Variant{
		tag:        TagOnOffPlugInUnit,
		deviceType: DeviceType{Code: 0x010A, Name: "OnOffPlugInUnit"},
		clusters:   []string{"onOff"},
		project:    projectOnOff,
		command:    switchCommand,
	})

	fan = register(Variant{
		tag:        TagFan,
		deviceType: DeviceType{Code: 0x002B, Name: "Fan"},
		clusters:   []string{"onOff", "fanControl"},
		project:    projectFan,
		command:    fanCommand,
	})
)

// switchCommand calls the entity's own domain, so input_boolean.x receives
// input_boolean.turn_on.
func switchCommand(ctx context.Context, entityID string, cmd Command, invoke Invoker) error {
	domain, _, _ := entity.SplitID(entityID)
	switch cmd.Kind {
	case CommandTurnOn:
		return invoke(ctx, domain, "turn_on", nil)
	case CommandTurnOff:
		return invoke(ctx, domain, "turn_off", nil)
	case CommandToggle:
		return invoke(ctx, domain, "toggle", nil)
	default:
		return unsupported(cmd)
	}
}

// projectFan: a fan is on unless it reports off or unavailable. A missing
// percentage is 0; speed fields carry the rounded percentage.
func projectFan(snap entity.Snapshot) Fields {
	on := snap.State != entity.StateOff && snap.State != entity.StateUnavailable

	percentage, ok := snap.Float("percentage")
	if !ok {
		percentage = 0
	}
	speed := int(math.Round(percentage))

	mode := FanModeOff
	if on {
		mode = FanModeOn
	}

	return Fields{
		FieldOnOff:          on,
		FieldFanMode:        mode,
		FieldPercentCurrent: percentage,
		FieldPercentSetting: percentage,
		FieldSpeedCurrent:   speed,
		FieldSpeedSetting:   speed,
	}
}

func fanCommand(ctx context.Context, _ string, cmd Command, invoke Invoker) error {
	switch cmd.Kind {
	case CommandTurnOn:
		return invoke(ctx, "fan", "turn_on", nil)
	case CommandTurnOff:
		return invoke(ctx, "fan", "turn_off", nil)
	case CommandSetSpeed:
		speed, ok := cmd.Float("speed")
		if !ok {
			return fmt.Errorf("%w: set_speed requires speed", ErrInvalidCommand)
		}
		return invoke(ctx, "fan", "set_percentage", map[string]any{"percentage": speed})
	default:
		return unsupported(cmd)
	}
}
