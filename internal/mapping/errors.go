package mapping

import "errors"

var (
	// ErrMappingSkipped means the entity has no representation. It is a
	// policy outcome, not a failure.
	ErrMappingSkipped = errors.New("mapping: entity not mappable")

	// ErrProjectionDeferred means projected fields could not be applied
	// because the published representation is not ready. The update is
	// dropped; the next state change re-projects.
	ErrProjectionDeferred = errors.New("mapping: projection deferred")

	// ErrProjectionFailed wraps an unexpected failure inside a projection.
	ErrProjectionFailed = errors.New("mapping: projection failed")

	// ErrUnsupportedCommand is returned for command kinds a variant ignores.
	ErrUnsupportedCommand = errors.New("mapping: unsupported command")

	// ErrInvalidCommand is returned when a command lacks required arguments.
	ErrInvalidCommand = errors.New("mapping: invalid command arguments")
)
