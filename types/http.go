package types

import (
	"time"

	"github.com/himakhaitan/wscache/store"
)

type BaseResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// SessionStats describes the connection side of the server
type SessionStats struct {
	Active      int   `json:"active"`
	Accepted    int64 `json:"accepted"`
	Outstanding int   `json:"outstanding"`
	TimedOut    int64 `json:"timed_out"`
}

type StatsResponse struct {
	BaseResponse
	Cache    store.Stats  `json:"cache"`
	Sessions SessionStats `json:"sessions"`
}

// SessionInfo describes one live session
type SessionInfo struct {
	ID          string    `json:"id"`
	Remote      string    `json:"remote"`
	ConnectedAt time.Time `json:"connected_at"`
	Outstanding int       `json:"outstanding"`
}

type SessionsResponse struct {
	BaseResponse
	IDs      []string      `json:"ids"`
	Sessions []SessionInfo `json:"sessions"`
}

// KeysResponse lists cached keys from least to most recently used
type KeysResponse struct {
	BaseResponse
	Keys []string `json:"keys"`
}
