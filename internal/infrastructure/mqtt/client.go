package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/config"
)

// Client is the hub's connection to the broker that links it with the
// protocol runtimes.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Subscriptions are restored after every reconnect.
//   - Callbacks run on paho's goroutines and must not block.
type Client struct {
	client pahomqtt.Client
	cfg    config.MQTTConfig
	topics Topics

	connected atomic.Bool

	subMu         sync.RWMutex
	subscriptions map[string]subscription

	// mu guards the callbacks and the logger.
	mu           sync.RWMutex
	onConnect    func()
	onDisconnect func(err error)
	logger       Logger

	published  atomic.Uint64
	received   atomic.Uint64
	reconnects atomic.Uint64
	// attempts counts reconnect attempts since the connection was lost.
	attempts atomic.Int64
}

// Logger is satisfied by logging.Logger and *slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Stats is a snapshot of connection and traffic counters.
type Stats struct {
	Connected     bool   `json:"connected"`
	Subscriptions int    `json:"subscriptions"`
	Published     uint64 `json:"published"`
	Received      uint64 `json:"received"`
	Reconnects    uint64 `json:"reconnects"`
}

// Connect dials the broker and waits for the first CONNACK.
//
// It performs the following setup:
//  1. Builds connection options from config (broker URL, auth, keepalive)
//  2. Registers a retained Last Will on topics.SystemStatus()
//  3. Installs connect, connection-lost and reconnecting handlers
//  4. Waits up to defaultConnectTimeout for the initial connection
//
// The online status is republished after every (re)connect.
//
// Parameters:
//   - cfg: MQTT section of the hub configuration
//   - topics: Topic namespace shared with the protocol runtimes
//
// Returns:
//   - *Client: Connected client ready for use
//   - error: ErrConnectionFailed wrapping the timeout or broker error;
//     paho's background retry is stopped before returning
func Connect(cfg config.MQTTConfig, topics Topics) (*Client, error) {
	c := &Client{
		cfg:           cfg,
		topics:        topics,
		subscriptions: make(map[string]subscription),
	}

	opts := buildClientOptions(cfg)
	configureLWT(opts, topics, cfg.Broker.ClientID)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.handleConnect() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.handleConnectionLost(err) })
	opts.SetReconnectingHandler(func(pahomqtt.Client, *pahomqtt.ClientOptions) { c.handleReconnecting() })

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()

	var err error
	switch {
	case !token.WaitTimeout(defaultConnectTimeout):
		err = fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	case token.Error() != nil:
		err = fmt.Errorf("%w: %w", ErrConnectionFailed, token.Error())
	}
	if err != nil {
		// Stop paho's background connect retry.
		c.client.Disconnect(0)
		return nil, err
	}

	// The OnConnect handler runs asynchronously and may not have fired yet.
	c.connected.Store(true)
	return c, nil
}

func (c *Client) handleConnect() {
	c.connected.Store(true)
	if c.attempts.Swap(0) > 0 {
		c.reconnects.Add(1)
	}

	c.resubscribe()
	c.announce(buildOnlinePayload(c.cfg.Broker.ClientID))

	c.mu.RLock()
	callback := c.onConnect
	c.mu.RUnlock()
	if callback != nil {
		callback()
	}
}

func (c *Client) handleConnectionLost(err error) {
	c.connected.Store(false)
	c.logWarn("MQTT connection lost", "broker", c.cfg.Broker.Host, "error", err)

	c.mu.RLock()
	callback := c.onDisconnect
	c.mu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

// handleReconnecting logs each attempt. Past reconnect.max_attempts it
// escalates to an error once; paho keeps retrying regardless.
func (c *Client) handleReconnecting() {
	n := c.attempts.Add(1)
	c.logWarn("MQTT reconnecting", "broker", c.cfg.Broker.Host, "attempt", n)
	if limit := int64(c.cfg.Reconnect.MaxAttempts); limit > 0 && n == limit {
		c.logError("MQTT broker still unreachable", "broker", c.cfg.Broker.Host, "attempts", n)
	}
}

func (c *Client) announce(payload string) pahomqtt.Token {
	return c.client.Publish(c.topics.SystemStatus(), byte(c.cfg.QoS), true, payload)
}

// Close gracefully disconnects from the broker.
//
// It performs:
//  1. Publishes a graceful offline status (distinct from the Last Will)
//  2. Disconnects, letting in-flight work quiesce
//
// Returns:
//   - error: Always nil; closing a nil or never-connected client is a no-op
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	if c.IsConnected() {
		c.announce(buildOfflinePayload(c.cfg.Broker.ClientID)).WaitTimeout(defaultPublishTimeout)
	}
	c.client.Disconnect(defaultDisconnectQuiesce)
	c.connected.Store(false)
	return nil
}

// HealthCheck reports ErrNotConnected while the broker is unreachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected returns the current connection state.
func (c *Client) IsConnected() bool {
	return c.client != nil && c.connected.Load() && c.client.IsConnected()
}

// Stats returns the current counters.
func (c *Client) Stats() Stats {
	return Stats{
		Connected:     c.IsConnected(),
		Subscriptions: c.SubscriptionCount(),
		Published:     c.published.Load(),
		Received:      c.received.Load(),
		Reconnects:    c.reconnects.Load(),
	}
}

// SetOnConnect sets a callback run after the initial connect and every
// reconnect, once subscriptions are restored.
func (c *Client) SetOnConnect(callback func()) {
	c.mu.Lock()
	c.onConnect = callback
	c.mu.Unlock()
}

// SetOnDisconnect sets a callback run when the connection is lost.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.mu.Lock()
	c.onDisconnect = callback
	c.mu.Unlock()
}

// SetLogger sets the logger. Without one, handler errors are dropped.
func (c *Client) SetLogger(logger Logger) {
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

func (c *Client) logWarn(msg string, args ...any) {
	c.mu.RLock()
	logger := c.logger
	c.mu.RUnlock()
	if logger != nil {
		logger.Warn(msg, args...)
	}
}

func (c *Client) logError(msg string, args ...any) {
	c.mu.RLock()
	logger := c.logger
	c.mu.RUnlock()
	if logger != nil {
		logger.Error(msg, args...)
	}
}
