package mapping

import (
	"context"
	"fmt"
	"math"

	"github.com/nerrad567/gray-logic-hub/internal/entity"
)

const fullyClosed100ths = 10000

var (
	windowCovering = register(Variant{
		tag:        TagWindowCovering,
		deviceType: DeviceType{Code: 0x0202, Name: "WindowCovering"},
		clusters:   []string{"windowCovering"},
		project:    projectCover,
		command:    coverCommand,
	})

	doorLock = register(Variant{
		tag:        TagDoorLock,
		deviceType: DeviceType{Code: 0x000A, Name: "DoorLock"},
		clusters:   []string{"doorLock"},
		project:    projectLock,
		command:    lockCommand,
	})
)

// projectCover inverts the platform's 0 (closed) .. 100 (open) position into
// lift percent100ths, where 0 is fully open.
func projectCover(snap entity.Snapshot) Fields {
	var lift any
	if pos, ok := snap.Float("current_position"); ok && snap.IsAvailable() {
		lift = PositionToLift100ths(pos)
	} else {
		switch snap.State {
		case "open":
			lift = 0
		case "closed":
			lift = fullyClosed100ths
		}
	}

	status := CoveringStopped
	switch snap.State {
	case "opening":
		status = CoveringOpening
	case "closing":
		status = CoveringClosing
	}

	return Fields{
		FieldLiftPercent100ths:       lift,
		FieldTargetLiftPercent100ths: lift,
		FieldOperationalStatus:       status,
	}
}

func coverCommand(ctx context.Context, _ string, cmd Command, invoke Invoker) error {
	switch cmd.Kind {
	case CommandOpen:
		return invoke(ctx, "cover", "open_cover", nil)
	case CommandClose:
		return invoke(ctx, "cover", "close_cover", nil)
	case CommandStop:
		return invoke(ctx, "cover", "stop_cover", nil)
	case CommandSetPosition:
		lift, ok := cmd.Float("percent100ths")
		if !ok || lift < 0 || lift > fullyClosed100ths {
			return fmt.Errorf("%w: set_position requires percent100ths in 0..10000", ErrInvalidCommand)
		}
		return invoke(ctx, "cover", "set_cover_position", map[string]any{"position": Lift100thsToPosition(lift)})
	default:
		return unsupported(cmd)
	}
}

// PositionToLift100ths converts a platform position (100 = open).
func PositionToLift100ths(position float64) int {
	return clamp(int(math.Round((100-position)*100)), 0, fullyClosed100ths)
}

// Lift100thsToPosition converts lift percent100ths (0 = open) to a platform position.
func Lift100thsToPosition(lift float64) int {
	return clamp(100-int(math.Round(lift/100)), 0, 100)
}

func projectLock(snap entity.Snapshot) Fields {
	var state any
	switch snap.State {
	case "locked":
		state = LockLocked
	case "unlocked", "open":
		state = LockUnlocked
	case "jammed":
		state = LockNotFullyLocked
	}
	return Fields{FieldLockState: state}
}

func lockCommand(ctx context.Context, _ string, cmd Command, invoke Invoker) error {
	var data map[string]any
	if code, ok := cmd.Args["code"].(string); ok && code != "" {
		data = map[string]any{"code": code}
	}
	switch cmd.Kind {
	case CommandLock:
		return invoke(ctx, "lock", "lock", data)
	case CommandUnlock:
		return invoke(ctx, "lock", "unlock", data)
	default:
		return unsupported(cmd)
	}
}
