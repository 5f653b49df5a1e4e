package homeassistant

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// writeTimeout bounds one websocket write.
const writeTimeout = 5 * time.Second

// maxMessageSize caps inbound messages; get_states on a large install can
// run to several megabytes.
const maxMessageSize = 64 << 20

// inbound is the envelope of every message Home Assistant sends.
type inbound struct {
	ID      int             `json:"id"`
	Type    string          `json:"type"`
	Success *bool           `json:"success,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ResultError    `json:"error,omitempty"`
	Event   json.RawMessage `json:"event,omitempty"`
	Message string          `json:"message,omitempty"`
	Version string          `json:"ha_version,omitempty"`
}

type callResult struct {
	result json.RawMessage
	err    error
}

// pendingCall is an outstanding command. inline, if set, runs on the read
// loop before any later message is handled.
type pendingCall struct {
	inline func(json.RawMessage) error
	ch     chan callResult
}

// session is one authenticated websocket connection.
type session struct {
	conn    *websocket.Conn
	version string

	writeMu sync.Mutex

	mu      sync.Mutex
	nextID  int
	pending map[int]*pendingCall
	events  map[int]func(json.RawMessage)
	err     error

	done *closeOnce
}

// dialSession connects and authenticates.
func dialSession(ctx context.Context, dialer *websocket.Dialer, wsURL, token string) (*session, error) {
	conn, resp, err := dialer.DialContext(ctx, wsURL, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close() //nolint:errcheck
	}
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", wsURL, err)
	}
	conn.SetReadLimit(maxMessageSize)

	version, err := authenticate(ctx, conn, token)
	if err != nil {
		conn.Close() //nolint:errcheck
		return nil, err
	}

	s := &session{
		conn:    conn,
		version: version,
		pending: make(map[int]*pendingCall),
		events:  make(map[int]func(json.RawMessage)),
		done:    newCloseOnce(),
	}
	go s.readLoop()
	return s, nil
}

func authenticate(ctx context.Context, conn *websocket.Conn, token string) (string, error) {
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)  //nolint:errcheck
		conn.SetWriteDeadline(deadline) //nolint:errcheck
		defer func() {
			conn.SetReadDeadline(time.Time{})  //nolint:errcheck
			conn.SetWriteDeadline(time.Time{}) //nolint:errcheck
		}()
	}

	var msg inbound
	if err := conn.ReadJSON(&msg); err != nil {
		return "", fmt.Errorf("reading auth_required: %w", err)
	}
	if msg.Type != "auth_required" {
		return "", fmt.Errorf("%w: expected auth_required, got %q", ErrProtocol, msg.Type)
	}

	if err := conn.WriteJSON(map[string]string{"type": "auth", "access_token": token}); err != nil {
		return "", fmt.Errorf("sending auth: %w", err)
	}

	msg = inbound{}
	if err := conn.ReadJSON(&msg); err != nil {
		return "", fmt.Errorf("reading auth result: %w", err)
	}
	switch msg.Type {
	case "auth_ok":
		return msg.Version, nil
	case "auth_invalid":
		return "", fmt.Errorf("%w: %s", ErrAuthFailed, msg.Message)
	default:
		return "", fmt.Errorf("%w: unexpected auth reply %q", ErrProtocol, msg.Type)
	}
}

// call sends one command and waits for its result. onEvent, if set,
// receives the subscription's events; it is registered before the command
// is sent so no event is missed.
func (s *session) call(ctx context.Context, payload map[string]any, inline func(json.RawMessage) error, onEvent func(json.RawMessage)) (json.RawMessage, error) {
	pc := &pendingCall{inline: inline, ch: make(chan callResult, 1)}

	s.mu.Lock()
	if s.err != nil {
		err := s.err
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %w", ErrNotConnected, err)
	}
	s.nextID++
	id := s.nextID
	s.pending[id] = pc
	if onEvent != nil {
		s.events[id] = onEvent
	}
	s.mu.Unlock()

	msg := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		msg[k] = v
	}
	msg["id"] = id

	if err := s.write(msg); err != nil {
		s.forget(id)
		s.fail(err)
		return nil, fmt.Errorf("%w: %w", ErrNotConnected, err)
	}

	select {
	case res := <-pc.ch:
		if res.err != nil && onEvent != nil {
			s.forgetEvents(id)
		}
		return res.result, res.err
	case <-ctx.Done():
		s.forget(id)
		return nil, ctx.Err()
	case <-s.done.Done():
		return nil, fmt.Errorf("%w: %w", ErrNotConnected, s.Err())
	}
}

func (s *session) write(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)) //nolint:errcheck
	return s.conn.WriteJSON(v)
}

func (s *session) forget(id int) {
	s.mu.Lock()
	delete(s.pending, id)
	delete(s.events, id)
	s.mu.Unlock()
}

func (s *session) forgetEvents(id int) {
	s.mu.Lock()
	delete(s.events, id)
	s.mu.Unlock()
}

// readLoop dispatches inbound messages in arrival order until the
// connection fails.
func (s *session) readLoop() {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.fail(err)
			return
		}
		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		s.dispatch(msg)
	}
}

func (s *session) dispatch(msg inbound) {
	switch msg.Type {
	case "result", "pong":
		s.mu.Lock()
		pc, ok := s.pending[msg.ID]
		delete(s.pending, msg.ID)
		s.mu.Unlock()
		if !ok {
			return
		}

		var res callResult
		switch {
		case msg.Type == "pong":
		case msg.Success != nil && *msg.Success:
			res.result = msg.Result
			if pc.inline != nil {
				res.err = pc.inline(msg.Result)
			}
		case msg.Error != nil:
			res.err = msg.Error
		default:
			res.err = fmt.Errorf("%w: unsuccessful result without error", ErrProtocol)
		}
		pc.ch <- res

	case "event":
		s.mu.Lock()
		handler := s.events[msg.ID]
		s.mu.Unlock()
		if handler != nil {
			handler(msg.Event)
		}
	}
}

// fail closes the session once, failing every pending call.
func (s *session) fail(err error) {
	s.mu.Lock()
	if s.err != nil {
		s.mu.Unlock()
		return
	}
	s.err = err
	s.pending = make(map[int]*pendingCall)
	s.events = make(map[int]func(json.RawMessage))
	s.mu.Unlock()

	s.conn.Close() //nolint:errcheck
	s.done.Close()
}

// Err reports why the session ended.
func (s *session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// closeOnce wraps a channel with sync.Once to prevent double-close panics.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}
