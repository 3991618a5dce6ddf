package types

import (
	"bytes"
	"encoding/json"
)

const (
	MethodAdd   = "add"
	MethodGet   = "get"
	MethodStats = "stats"
)

// Request is one client call. ID is echoed back untouched.
type Request struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// ErrorBody is the payload of a failed call
type ErrorBody struct {
	Message string `json:"message"`
}

// Response answers exactly one Request. A nil ID is sent as null when the
// originating frame carried no usable id.
type Response struct {
	ID     *string         `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *ErrorBody      `json:"error,omitempty"`
}

// AddParams is the payload of "add"
type AddParams struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// GetParams is the payload of "get"
type GetParams struct {
	Key string `json:"key"`
}

var null = json.RawMessage("null")

// Success builds a result response for id
func Success(id string, result json.RawMessage) Response {
	return Response{ID: &id, Result: result}
}

// Failure builds an error response; id may be nil
func Failure(id *string, message string) Response {
	return Response{ID: id, Error: &ErrorBody{Message: message}}
}

// MarshalJSON always emits "result" on success, even when it is null,
// and never emits it next to "error".
func (r Response) MarshalJSON() ([]byte, error) {
	if r.Error != nil {
		return json.Marshal(struct {
			ID    *string    `json:"id"`
			Error *ErrorBody `json:"error"`
		}{r.ID, r.Error})
	}
	result := r.Result
	if len(result) == 0 {
		result = null
	}
	return json.Marshal(struct {
		ID     *string         `json:"id"`
		Result json.RawMessage `json:"result"`
	}{r.ID, result})
}

// IsError reports whether the response carries an error
func (r Response) IsError() bool {
	return r.Error != nil
}

// IsNull reports whether a successful response has a null result
func (r Response) IsNull() bool {
	trimmed := bytes.TrimSpace(r.Result)
	return len(trimmed) == 0 || bytes.Equal(trimmed, null)
}

// IDString returns the id or "" when it was null
func (r Response) IDString() string {
	if r.ID == nil {
		return ""
	}
	return *r.ID
}
