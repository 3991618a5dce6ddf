package store

import "time"

// Entry represents a single cached key/value pair
type Entry struct {
	Key        string
	Value      string
	InsertedAt time.Time // set on every Put, including overwrites
}
