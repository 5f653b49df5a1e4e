package entity

import "errors"

var (
	// ErrInvalidEntityID is returned when an id is not of the form domain.object_id.
	ErrInvalidEntityID = errors.New("entity: invalid entity id")

	// ErrEntityNotFound is returned when the store holds no snapshot for an id.
	ErrEntityNotFound = errors.New("entity: not found")

	// ErrSubscriptionClosed is returned by Next after Close.
	ErrSubscriptionClosed = errors.New("entity: subscription closed")
)
