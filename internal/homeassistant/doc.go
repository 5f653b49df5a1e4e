// Package homeassistant is the hub's platform client: a websocket
// connection to Home Assistant that feeds the entity state store and
// executes service calls for inbound device commands.
//
// On every (re)connection the client authenticates, subscribes to
// state_changed events, loads the entity and device registries and installs
// a full get_states snapshot into the store as one resync burst. The
// snapshot is applied on the read loop, in message order, so no event
// received after it is overwritten by older state.
//
// When the connection drops the client reconnects with exponential
// backoff. Nothing is torn down while disconnected; the next resync heals
// the store.
package homeassistant
