package engine

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/himakhaitan/wscache/store"
	"github.com/himakhaitan/wscache/types"
	"go.uber.org/zap"
)

// Cache is the part of the store the router needs
type Cache interface {
	Put(key, value string)
	Get(key string) (string, bool)
	Snapshot() store.Stats
}

// Router decodes requests, runs them against the cache and builds the
// correlated response. It is safe for concurrent use.
type Router struct {
	cache  Cache
	logger *zap.Logger
}

func NewRouter(cache Cache, logger *zap.Logger) *Router {
	return &Router{cache: cache, logger: logger}
}

// envelope keeps every field raw so a bad field can be named precisely and
// the id recovered even when the rest of the frame is unusable. Keys match
// exactly, so "ID" is not "id".
type envelope map[string]json.RawMessage

// Handle decodes one frame and dispatches it
func (r *Router) Handle(frame []byte) types.Response {
	req, err := Decode(frame)
	if err != nil {
		r.logger.Debug("Rejected malformed frame", zap.Error(err))
		return Reject(err)
	}
	return r.Dispatch(req)
}

// Reject turns a Decode error into an error response, keeping the
// recovered id when there is one.
func Reject(err error) types.Response {
	var perr *ProtocolError
	if errors.As(err, &perr) {
		return types.Failure(perr.ID, perr.Message)
	}
	return types.Failure(nil, err.Error())
}

// Decode parses a frame into a Request
func Decode(frame []byte) (types.Request, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return types.Request{}, malformed(nil, "frame is not a json object")
	}

	if isAbsent(env["id"]) {
		return types.Request{}, malformed(nil, "missing required field: id")
	}
	var id string
	if err := json.Unmarshal(env["id"], &id); err != nil {
		return types.Request{}, malformed(nil, "field id must be a string")
	}

	if isAbsent(env["method"]) {
		return types.Request{}, malformed(&id, "missing required field: method")
	}
	var method string
	if err := json.Unmarshal(env["method"], &method); err != nil {
		return types.Request{}, malformed(&id, "field method must be a string")
	}

	var params json.RawMessage
	if !isAbsent(env["params"]) {
		params = env["params"]
	}

	return types.Request{ID: id, Method: method, Params: params}, nil
}

// Dispatch runs a decoded request. The response id is always req.ID.
func (r *Router) Dispatch(req types.Request) types.Response {
	id := req.ID

	var (
		result json.RawMessage
		err    error
	)
	switch req.Method {
	case types.MethodAdd:
		result, err = r.add(req.Params)
	case types.MethodGet:
		result, err = r.get(req.Params)
	case types.MethodStats:
		result, err = r.stats()
	default:
		err = fmt.Errorf("%w: %s", ErrUnknownMethod, req.Method)
	}

	if err != nil {
		r.logger.Debug("Request failed",
			zap.String("id", id),
			zap.String("method", req.Method),
			zap.Error(err),
		)
		return types.Failure(&id, err.Error())
	}
	return types.Success(id, result)
}

func (r *Router) add(raw json.RawMessage) (json.RawMessage, error) {
	fields, err := paramFields(raw)
	if err != nil {
		return nil, err
	}
	key, err := stringField(fields, "key")
	if err != nil {
		return nil, err
	}
	value, err := stringField(fields, "value")
	if err != nil {
		return nil, err
	}

	r.cache.Put(key, value)
	return nil, nil
}

func (r *Router) get(raw json.RawMessage) (json.RawMessage, error) {
	fields, err := paramFields(raw)
	if err != nil {
		return nil, err
	}
	key, err := stringField(fields, "key")
	if err != nil {
		return nil, err
	}

	value, ok := r.cache.Get(key)
	if !ok {
		// null only ever means "not found": the cache cannot hold a null value
		return nil, nil
	}
	return json.Marshal(value)
}

func (r *Router) stats() (json.RawMessage, error) {
	return json.Marshal(r.cache.Snapshot())
}

func paramFields(raw json.RawMessage) (map[string]json.RawMessage, error) {
	if isAbsent(raw) {
		return nil, fmt.Errorf("%w: missing required field: params", ErrMalformedRequest)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("%w: field params must be an object", ErrMalformedRequest)
	}
	return fields, nil
}

func stringField(fields map[string]json.RawMessage, name string) (string, error) {
	raw, ok := fields[name]
	if !ok || isAbsent(raw) {
		return "", fmt.Errorf("%w: missing required field: params.%s", ErrMalformedRequest, name)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("%w: field params.%s must be a string", ErrMalformedRequest, name)
	}
	return s, nil
}

// isAbsent treats a missing field and an explicit null the same way
func isAbsent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
