package store

import "errors"

var (
	// ErrInvalidCapacity is returned when a store is created with capacity below 1
	ErrInvalidCapacity = errors.New("capacity must be at least 1")
)
