package bridge

import "errors"

var (
	// ErrBridgeNotFound is returned for an unknown bridge id.
	ErrBridgeNotFound = errors.New("bridge: not found")

	// ErrBridgeRunning is returned when starting a bridge that is already
	// starting or running, or editing one that is not stopped.
	ErrBridgeRunning = errors.New("bridge: already running")

	// ErrStartupFailed wraps a publishing context that could not be opened.
	ErrStartupFailed = errors.New("bridge: startup failed")

	// ErrInvalidConfig is returned when a bridge configuration is invalid.
	ErrInvalidConfig = errors.New("bridge: invalid configuration")

	// ErrPortInUse is returned when another bridge already owns the port.
	ErrPortInUse = errors.New("bridge: port already in use")

	// ErrDuplicateID is returned when creating a bridge whose id exists.
	ErrDuplicateID = errors.New("bridge: duplicate id")

	// ErrNoSnapshot means the store has no initial state for an entity, so
	// its mapping cannot be built.
	ErrNoSnapshot = errors.New("bridge: no initial snapshot")

	// ErrContextLost marks a running bridge whose publishing context failed.
	ErrContextLost = errors.New("bridge: publishing context lost")

	// ErrManagerClosed is returned by operations on a closed manager.
	ErrManagerClosed = errors.New("bridge: manager closed")
)
