package homeassistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-hub/internal/entity"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/config"
)

// Default timings, used when the configuration leaves them at zero.
const (
	defaultRequestTimeout  = 10 * time.Second
	defaultReconnectDelay  = 1 * time.Second
	defaultMaxReconnect    = 30 * time.Second
	defaultPingInterval    = 30 * time.Second
	reconnectBackoffFactor = 2
)

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

var errClientClosed = errors.New("client closed")

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Stats holds operational counters.
type Stats struct {
	Connected      bool      `json:"connected"`
	Version        string    `json:"version,omitempty"`
	EventsRx       uint64    `json:"eventsRx"`
	ActionsTotal   uint64    `json:"actionsTotal"`
	ActionErrors   uint64    `json:"actionErrors"`
	Reconnects     uint64    `json:"reconnects"`
	Resyncs        uint64    `json:"resyncs"`
	LastEvent      time.Time `json:"lastEvent,omitzero"`
	LastResyncSize int       `json:"lastResyncSize"`
}

// Client is the websocket platform client.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Events are applied to the store on the connection's read loop.
type Client struct {
	wsURL          string
	token          string
	requestTimeout time.Duration
	initialDelay   time.Duration
	maxDelay       time.Duration
	pingInterval   time.Duration
	dialer         *websocket.Dialer
	store          *entity.Store

	sessMu sync.RWMutex
	sess   *session

	connected atomic.Bool

	onResync   func()
	callbackMu sync.RWMutex

	logger   Logger
	loggerMu sync.RWMutex

	done *closeOnce
	up   *closeOnce // closed on the first successful connect
	wg   sync.WaitGroup

	eventsRx       atomic.Uint64
	actionsTotal   atomic.Uint64
	actionErrors   atomic.Uint64
	reconnects     atomic.Uint64
	resyncs        atomic.Uint64
	lastEvent      atomic.Int64
	lastResyncSize atomic.Int64
}

// Connect opens the platform connection and performs the initial resync.
//
// Parameters:
//   - ctx: Bounds the initial connection
//   - cfg: Home Assistant connection settings
//   - store: Entity store the client feeds
//
// Returns:
//   - *Client: Connected and synced client; it reconnects on its own
//   - error: ErrConnectionFailed (wrapping ErrAuthFailed for a bad token)
func Connect(ctx context.Context, cfg config.HomeAssistantConfig, store *entity.Store) (*Client, error) {
	c, err := newClient(cfg, store)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	if err := c.connect(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c.wg.Add(1)
	go c.superviseLoop()
	return c, nil
}

// Start is Connect for a long-running process: an unreachable platform is
// not fatal. The client starts disconnected and the supervisor makes the
// first connection with the usual reconnect backoff. A rejected token is
// still returned, since retrying cannot fix it.
//
// Parameters:
//   - ctx: Bounds the first connection attempt only
//   - cfg: Home Assistant connection settings
//   - store: Entity store the client feeds
//
// Returns:
//   - *Client: Connected, or disconnected and retrying; see WaitConnected
//   - error: ErrConnectionFailed for an invalid URL, a nil store or
//     ErrAuthFailed
func Start(ctx context.Context, cfg config.HomeAssistantConfig, store *entity.Store) (*Client, error) {
	c, err := newClient(cfg, store)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	if err := c.connect(ctx); err != nil {
		if errors.Is(err, ErrAuthFailed) {
			return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
		}
		c.log().Warn("home assistant unreachable, retrying in background", "url", c.wsURL, "error", err)
	}

	c.wg.Add(1)
	go c.superviseLoop()
	return c, nil
}

// WaitConnected blocks until the client has connected and synced at least
// once. It returns ErrNotConnected if the client is closed first.
func (c *Client) WaitConnected(ctx context.Context) error {
	select {
	case <-c.up.Done():
		return nil
	case <-c.done.Done():
		return ErrNotConnected
	case <-ctx.Done():
		return ctx.Err()
	}
}

func newClient(cfg config.HomeAssistantConfig, store *entity.Store) (*Client, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	wsURL, err := WebsocketURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	c := &Client{
		wsURL:          wsURL,
		token:          cfg.Token,
		requestTimeout: seconds(cfg.RequestTimeout, defaultRequestTimeout),
		initialDelay:   seconds(cfg.ReconnectInitialDelay, defaultReconnectDelay),
		maxDelay:       seconds(cfg.ReconnectMaxDelay, defaultMaxReconnect),
		pingInterval:   defaultPingInterval,
		dialer:         &websocket.Dialer{HandshakeTimeout: seconds(cfg.RequestTimeout, defaultRequestTimeout)},
		store:          store,
		logger:         noopLogger{},
		done:           newCloseOnce(),
		up:             newCloseOnce(),
	}
	if c.maxDelay < c.initialDelay {
		c.maxDelay = c.initialDelay
	}
	return c, nil
}

func seconds(n int, def time.Duration) time.Duration {
	if n <= 0 {
		return def
	}
	return time.Duration(n) * time.Second
}

// WebsocketURL derives the websocket endpoint from a Home Assistant base
// URL. The supervisor proxy (http://supervisor/core) serves it at
// /core/websocket, a direct instance at /api/websocket.
func WebsocketURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parsing url %q: %w", base, err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("url %q has no host", base)
	}

	path := strings.TrimSuffix(u.Path, "/")
	switch {
	case strings.HasSuffix(path, "/websocket"):
	case strings.HasSuffix(path, "/core"):
		path += "/websocket"
	default:
		path += "/api/websocket"
	}
	u.Path = path
	return u.String(), nil
}

// SetLogger sets the logger. Thread-safe.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	defer c.loggerMu.Unlock()
	if logger == nil {
		logger = noopLogger{}
	}
	c.logger = logger
}

func (c *Client) log() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

// SetOnResync sets a callback invoked after every resync that follows a
// reconnection.
func (c *Client) SetOnResync(callback func()) {
	c.callbackMu.Lock()
	c.onResync = callback
	c.callbackMu.Unlock()
}

// Connected reports whether the client holds a live, synced connection.
func (c *Client) Connected() bool {
	return c.connected.Load()
}

// HealthCheck reports ErrNotConnected while disconnected.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("home assistant health check: %w", err)
	}
	if !c.Connected() {
		return ErrNotConnected
	}
	return nil
}

// Stats returns operational counters.
func (c *Client) Stats() Stats {
	s := Stats{
		Connected:      c.Connected(),
		EventsRx:       c.eventsRx.Load(),
		ActionsTotal:   c.actionsTotal.Load(),
		ActionErrors:   c.actionErrors.Load(),
		Reconnects:     c.reconnects.Load(),
		Resyncs:        c.resyncs.Load(),
		LastResyncSize: int(c.lastResyncSize.Load()),
	}
	if ts := c.lastEvent.Load(); ts > 0 {
		s.LastEvent = time.Unix(0, ts)
	}
	if sess := c.session(); sess != nil {
		s.Version = sess.version
	}
	return s
}

// CallService invokes one Home Assistant service. An entity_id in data is
// sent as the call's target.
//
// Returns:
//   - error: wraps ErrActionFailed (and ErrNotConnected or *ResultError)
func (c *Client) CallService(ctx context.Context, domain, service string, data map[string]any) error {
	c.actionsTotal.Add(1)
	err := c.callService(ctx, domain, service, data)
	if err != nil {
		c.actionErrors.Add(1)
		return fmt.Errorf("%w: %s.%s: %w", ErrActionFailed, domain, service, err)
	}
	return nil
}

func (c *Client) callService(ctx context.Context, domain, service string, data map[string]any) error {
	sess := c.session()
	if sess == nil || !c.Connected() {
		return ErrNotConnected
	}

	payload := map[string]any{
		"type":    "call_service",
		"domain":  domain,
		"service": service,
	}
	serviceData := make(map[string]any, len(data))
	for k, v := range data {
		if k == "entity_id" {
			payload["target"] = map[string]any{"entity_id": v}
			continue
		}
		serviceData[k] = v
	}
	if len(serviceData) > 0 {
		payload["service_data"] = serviceData
	}

	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()
	_, err := sess.call(ctx, payload, nil, nil)
	return err
}

// Close stops reconnecting and closes the connection.
func (c *Client) Close() error {
	c.done.Close()
	c.connected.Store(false)
	if sess := c.session(); sess != nil {
		sess.fail(errClientClosed)
	}
	c.wg.Wait()
	return nil
}

func (c *Client) session() *session {
	c.sessMu.RLock()
	defer c.sessMu.RUnlock()
	return c.sess
}

// connect dials, authenticates and resyncs. The connection is only
// published to callers once the resync has been applied.
func (c *Client) connect(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	sess, err := dialSession(ctx, c.dialer, c.wsURL, c.token)
	if err != nil {
		return err
	}
	if err := c.sync(ctx, sess); err != nil {
		sess.fail(err)
		return err
	}

	c.sessMu.Lock()
	c.sess = sess
	c.sessMu.Unlock()
	c.connected.Store(true)
	c.up.Close()
	c.log().Info("connected to home assistant", "url", c.wsURL, "version", sess.version)
	return nil
}

// sync subscribes to state changes, loads the registries and installs the
// full state snapshot.
func (c *Client) sync(ctx context.Context, sess *session) error {
	subscribe := map[string]any{"type": "subscribe_events", "event_type": "state_changed"}
	if _, err := sess.call(ctx, subscribe, nil, c.handleStateChanged); err != nil {
		return fmt.Errorf("subscribing to state_changed: %w", err)
	}

	c.loadRegistries(ctx, sess)

	inline := func(raw json.RawMessage) error {
		var snaps []entity.Snapshot
		if err := json.Unmarshal(raw, &snaps); err != nil {
			return fmt.Errorf("decoding states: %w", err)
		}
		n := c.store.Replace(snaps)
		c.resyncs.Add(1)
		c.lastResyncSize.Store(int64(len(snaps)))
		c.log().Debug("states resynced", "entities", len(snaps), "notified", n)
		return nil
	}
	if _, err := sess.call(ctx, map[string]any{"type": "get_states"}, inline, nil); err != nil {
		return fmt.Errorf("fetching states: %w", err)
	}
	return nil
}

// loadRegistries installs entity and device registry metadata. The
// registries are optional; a token without admin rights cannot read them.
func (c *Client) loadRegistries(ctx context.Context, sess *session) {
	var (
		entities []entity.RegistryEntry
		devices  []entity.DeviceEntry
	)

	raw, err := sess.call(ctx, map[string]any{"type": "config/entity_registry/list"}, nil, nil)
	if err == nil {
		err = json.Unmarshal(raw, &entities)
	}
	if err != nil {
		c.log().Warn("entity registry unavailable", "error", err)
		return
	}

	raw, err = sess.call(ctx, map[string]any{"type": "config/device_registry/list"}, nil, nil)
	if err == nil {
		err = json.Unmarshal(raw, &devices)
	}
	if err != nil {
		c.log().Warn("device registry unavailable", "error", err)
	}

	c.store.SetRegistry(entities, devices)
}

type stateChangedEvent struct {
	EventType string `json:"event_type"`
	Data      struct {
		EntityID string           `json:"entity_id"`
		NewState *entity.Snapshot `json:"new_state"`
	} `json:"data"`
}

// handleStateChanged runs on the read loop.
func (c *Client) handleStateChanged(raw json.RawMessage) {
	var ev stateChangedEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		c.log().Debug("undecodable state_changed event", "error", err)
		return
	}
	c.eventsRx.Add(1)
	c.lastEvent.Store(time.Now().UnixNano())

	if ev.Data.NewState == nil {
		c.store.Remove(ev.Data.EntityID)
		return
	}
	if err := c.store.Apply(*ev.Data.NewState); err != nil {
		c.log().Debug("state change rejected", "entity_id", ev.Data.EntityID, "error", err)
	}
}

// superviseLoop keeps the connection alive: it pings the live session and
// reconnects with backoff when it ends. Without a session it connects
// first.
func (c *Client) superviseLoop() {
	defer c.wg.Done()
	defer func() {
		if sess := c.session(); sess != nil {
			sess.fail(errClientClosed)
		}
	}()

	if c.session() == nil && !c.reconnect() {
		return
	}

	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		sess := c.session()
		select {
		case <-c.done.Done():
			return
		case <-ticker.C:
			c.ping(sess)
			continue
		case <-sess.done.Done():
		}

		c.connected.Store(false)
		c.log().Warn("home assistant connection lost", "error", sess.Err())

		if !c.reconnect() {
			return
		}
	}
}

func (c *Client) ping(sess *session) {
	ctx, cancel := c.closeContext()
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, c.requestTimeout)
	defer cancelTimeout()
	if _, err := sess.call(ctx, map[string]any{"type": "ping"}, nil, nil); err != nil {
		c.log().Warn("home assistant ping failed", "error", err)
		sess.fail(fmt.Errorf("ping: %w", err))
	}
}

// closeContext returns a context cancelled when the client closes.
func (c *Client) closeContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-c.done.Done():
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// reconnect retries until connected or closed. Returns false on close.
func (c *Client) reconnect() bool {
	backoff := c.initialDelay
	for attempt := 1; ; attempt++ {
		select {
		case <-c.done.Done():
			return false
		case <-time.After(backoff):
		}

		ctx, cancel := c.closeContext()
		err := c.connect(ctx)
		cancel()

		if err == nil {
			c.reconnects.Add(1)
			c.log().Info("reconnected to home assistant", "attempt", attempt)
			c.callbackMu.RLock()
			callback := c.onResync
			c.callbackMu.RUnlock()
			if callback != nil {
				callback()
			}
			return true
		}

		c.log().Warn("home assistant reconnect failed", "attempt", attempt, "error", err, "retry_in", backoff)
		backoff *= reconnectBackoffFactor
		if backoff > c.maxDelay {
			backoff = c.maxDelay
		}
	}
}
