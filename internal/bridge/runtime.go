package bridge

import (
	"context"

	"github.com/nerrad567/gray-logic-hub/internal/mapping"
)

// Identity is what a publishing context is opened with.
type Identity struct {
	BridgeID string
	Name     string
	Port     int
}

// Handle identifies a published representation within a publishing context.
type Handle uint32

// Runtime is the External Protocol Runtime: it opens one publishing context
// per bridge.
type Runtime interface {
	OpenContext(ctx context.Context, id Identity) (PublishingContext, error)
}

// PublishingContext is one bridge's live presence on the device protocol.
//
// SetState returns an error wrapping mapping.ErrProjectionDeferred when the
// representation is not ready to accept state. Done is closed when the
// context fails or is closed; Err then reports why (nil after Close).
type PublishingContext interface {
	Publish(ctx context.Context, rep mapping.Representation) (Handle, error)
	SetState(ctx context.Context, h Handle, fields mapping.Fields) error
	Commands(h Handle) <-chan mapping.Command
	Detach(h Handle)
	Fabrics() []Fabric
	Done() <-chan struct{}
	Err() error
	Close() error
}

// Platform is the part of the platform client the bridges use.
type Platform interface {
	Connected() bool
	CallService(ctx context.Context, domain, service string, data map[string]any) error
}

// Observer receives bridge events, e.g. for dashboards and telemetry.
// Implementations must not block.
type Observer interface {
	BridgeStatusChanged(s Summary)
	DeviceStateChanged(bridgeID, entityID string, tag mapping.Tag, fields mapping.Fields)
}

// Logger defines the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type noopObserver struct{}

func (noopObserver) BridgeStatusChanged(Summary)                                    {}
func (noopObserver) DeviceStateChanged(string, string, mapping.Tag, mapping.Fields) {}

// Observers fans events out to several observers.
type Observers []Observer

// BridgeStatusChanged implements Observer.
func (o Observers) BridgeStatusChanged(s Summary) {
	for _, obs := range o {
		obs.BridgeStatusChanged(s)
	}
}

// DeviceStateChanged implements Observer.
func (o Observers) DeviceStateChanged(bridgeID, entityID string, tag mapping.Tag, fields mapping.Fields) {
	for _, obs := range o {
		obs.DeviceStateChanged(bridgeID, entityID, tag, fields)
	}
}
