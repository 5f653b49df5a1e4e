package homeassistant

import (
	"errors"
	"fmt"
)

var (
	// ErrConnectionFailed is returned when the initial connection fails.
	ErrConnectionFailed = errors.New("homeassistant: connection failed")

	// ErrAuthFailed is returned when the access token is rejected.
	ErrAuthFailed = errors.New("homeassistant: authentication failed")

	// ErrNotConnected is returned when no live connection exists.
	ErrNotConnected = errors.New("homeassistant: not connected")

	// ErrActionFailed wraps every failed service call.
	ErrActionFailed = errors.New("homeassistant: action failed")

	// ErrProtocol is returned for unexpected websocket messages.
	ErrProtocol = errors.New("homeassistant: protocol error")
)

// ResultError is an unsuccessful command result reported by Home Assistant.
type ResultError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ResultError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}
