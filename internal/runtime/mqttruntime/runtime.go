// Package mqttruntime implements bridge.Runtime over MQTT.
//
// Each bridge gets a topic subtree under {prefix}/runtime/{bridgeId}. The
// hub publishes a retained announcement and one retained config and state
// document per endpoint; the Matter runtime process subscribes to those,
// hosts the commissionable bridge, and feeds controller commands and
// fabric changes back on the command and fabrics topics.
package mqttruntime

import (
	"context"
	"fmt"
	"sync"

	"github.com/nerrad567/gray-logic-hub/internal/bridge"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/mqtt"
)

// firstEndpoint is the first device endpoint; 0 is the root node and 1 the
// aggregator.
const firstEndpoint = 2

// commandBuffer is the per-endpoint inbound command queue length.
const commandBuffer = 16

// Broker is the part of the MQTT client the runtime uses.
type Broker interface {
	PublishJSON(topic string, v any, retained bool) error
	ClearRetained(topic string) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	IsConnected() bool
	QoS() byte
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

// Runtime opens MQTT publishing contexts.
type Runtime struct {
	broker Broker
	topics mqtt.Topics

	mu       sync.Mutex
	contexts map[string]*pubContext

	logger   Logger
	loggerMu sync.RWMutex
}

// New creates a runtime publishing through broker.
func New(broker Broker, topics mqtt.Topics) *Runtime {
	return &Runtime{
		broker:   broker,
		topics:   topics,
		contexts: make(map[string]*pubContext),
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for runtime events.
func (r *Runtime) SetLogger(logger Logger) {
	r.loggerMu.Lock()
	defer r.loggerMu.Unlock()
	if logger == nil {
		logger = noopLogger{}
	}
	r.logger = logger
}

func (r *Runtime) getLogger() Logger {
	r.loggerMu.RLock()
	defer r.loggerMu.RUnlock()
	return r.logger
}

// OpenContext implements bridge.Runtime.
func (r *Runtime) OpenContext(ctx context.Context, id bridge.Identity) (bridge.PublishingContext, error) {
	if !mqtt.ValidSegment(id.BridgeID) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBridgeID, id.BridgeID)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	if _, open := r.contexts[id.BridgeID]; open {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s already has an open context", bridge.ErrBridgeRunning, id.BridgeID)
	}
	pc := newPubContext(r, id)
	r.contexts[id.BridgeID] = pc
	r.mu.Unlock()

	if err := pc.open(); err != nil {
		pc.Close() //nolint:errcheck
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		pc.Close() //nolint:errcheck
		return nil, err
	}

	r.getLogger().Info("runtime context opened", "bridge_id", id.BridgeID, "port", id.Port)
	return pc, nil
}

// Republish re-sends every open context's retained documents. Wire it to
// the broker's on-connect callback so a broker restart without persistence
// does not leave runtimes with an empty picture.
func (r *Runtime) Republish() {
	r.mu.Lock()
	open := make([]*pubContext, 0, len(r.contexts))
	for _, pc := range r.contexts {
		open = append(open, pc)
	}
	r.mu.Unlock()

	for _, pc := range open {
		pc.republish()
	}
}

// OpenCount returns the number of open publishing contexts.
func (r *Runtime) OpenCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.contexts)
}

func (r *Runtime) release(pc *pubContext) {
	r.mu.Lock()
	if r.contexts[pc.id.BridgeID] == pc {
		delete(r.contexts, pc.id.BridgeID)
	}
	r.mu.Unlock()
}
