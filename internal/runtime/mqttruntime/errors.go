package mqttruntime

import "errors"

var (
	// ErrContextClosed is returned by operations on a closed context.
	ErrContextClosed = errors.New("mqttruntime: publishing context closed")

	// ErrInvalidBridgeID is returned when a bridge ID cannot be a topic level.
	ErrInvalidBridgeID = errors.New("mqttruntime: invalid bridge id")

	// ErrRuntimeFailed wraps an error reported by the runtime process.
	ErrRuntimeFailed = errors.New("mqttruntime: runtime reported failure")
)
