package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/himakhaitan/wscache/types"
)

const (
	// EnvURL overrides the WebSocket endpoint the CLI talks to
	EnvURL = "CACHE_URL"

	defaultURL     = "ws://localhost:8090/cache/websocket"
	requestTimeout = 10 * time.Second
)

var errNoResponse = errors.New("connection closed before a response arrived")

func serverURL() string {
	if url := os.Getenv(EnvURL); url != "" {
		return url
	}
	return defaultURL
}

// client holds one WebSocket connection for the duration of a command
type client struct {
	conn    *websocket.Conn
	timeout time.Duration
}

func dial(url string) (*client, error) {
	dialer := websocket.Dialer{HandshakeTimeout: requestTimeout}
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}
	return &client{conn: conn, timeout: requestTimeout}, nil
}

// call sends one request and waits for the response carrying its id.
// Responses for other ids are skipped.
func (c *client) call(method string, params interface{}) (types.Response, error) {
	req := types.Request{ID: uuid.NewString(), Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return types.Response{}, fmt.Errorf("failed to encode params: %w", err)
		}
		req.Params = raw
	}

	deadline := time.Now().Add(c.timeout)
	_ = c.conn.SetWriteDeadline(deadline)
	if err := c.conn.WriteJSON(req); err != nil {
		return types.Response{}, fmt.Errorf("failed to send request: %w", err)
	}

	_ = c.conn.SetReadDeadline(deadline)
	for {
		var resp types.Response
		if err := c.conn.ReadJSON(&resp); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return types.Response{}, errNoResponse
			}
			return types.Response{}, fmt.Errorf("failed to read response: %w", err)
		}
		if resp.IDString() == req.ID {
			return resp, nil
		}
		// the server could not read our id back
		if resp.ID == nil && resp.IsError() {
			return resp, nil
		}
	}
}

func (c *client) close() {
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	_ = c.conn.Close()
}

// roundTrip dials, performs one call and hangs up
func roundTrip(method string, params interface{}) (types.Response, error) {
	c, err := dial(serverURL())
	if err != nil {
		return types.Response{}, fmt.Errorf("failed to connect to server at %s: %w", serverURL(), err)
	}
	defer c.close()
	return c.call(method, params)
}
