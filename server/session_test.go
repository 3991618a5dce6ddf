package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/himakhaitan/wscache/engine"
	"github.com/himakhaitan/wscache/pkg/config"
	"github.com/himakhaitan/wscache/store"
	"github.com/himakhaitan/wscache/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type testServer struct {
	ts      *httptest.Server
	store   *store.Store
	manager *Manager
	cfg     *config.Config
	gate    *gatedDispatcher
}

// gatedDispatcher holds requests whose id starts with "slow" until release
type gatedDispatcher struct {
	inner Dispatcher
	gate  chan struct{}
	once  sync.Once
}

func (d *gatedDispatcher) Dispatch(req types.Request) types.Response {
	if strings.HasPrefix(req.ID, "slow") {
		<-d.gate
	}
	return d.inner.Dispatch(req)
}

func (d *gatedDispatcher) release() {
	d.once.Do(func() { close(d.gate) })
}

func setupIntegrationServer(t *testing.T, tweak func(cfg *config.Config)) *testServer {
	logger := zaptest.NewLogger(t)
	cfg := config.Default()
	cfg.Capacity = 64
	if tweak != nil {
		tweak(cfg)
	}
	require.NoError(t, cfg.Validate())

	s, err := store.New(logger, cfg)
	require.NoError(t, err)

	gate := &gatedDispatcher{inner: engine.NewRouter(s, logger), gate: make(chan struct{})}
	manager := NewManager(gate, cfg, logger)
	ts := httptest.NewServer(NewMux(manager, s, cfg, logger))

	t.Cleanup(func() {
		gate.release()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, manager.Close(ctx))
		ts.Close()
	})

	return &testServer{ts: ts, store: s, manager: manager, cfg: cfg, gate: gate}
}

func (s *testServer) dial(t *testing.T) *websocket.Conn {
	url := "ws" + strings.TrimPrefix(s.ts.URL, "http") + s.cfg.Path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, frame string) {
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))
}

func receive(t *testing.T, conn *websocket.Conn) types.Response {
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var resp types.Response
	require.NoError(t, json.Unmarshal(data, &resp))
	return resp
}

func call(t *testing.T, conn *websocket.Conn, frame string) types.Response {
	send(t, conn, frame)
	return receive(t, conn)
}

func TestSession_AddGetStats(t *testing.T) {
	srv := setupIntegrationServer(t, nil)
	conn := srv.dial(t)

	resp := call(t, conn, `{"id":"1","method":"add","params":{"key":"foo","value":"bar"}}`)
	assert.Equal(t, "1", resp.IDString())
	assert.False(t, resp.IsError())
	assert.True(t, resp.IsNull())

	resp = call(t, conn, `{"id":"2","method":"get","params":{"key":"foo"}}`)
	assert.Equal(t, "2", resp.IDString())
	assert.JSONEq(t, `"bar"`, string(resp.Result))

	resp = call(t, conn, `{"id":"3","method":"get","params":{"key":"zzz"}}`)
	assert.True(t, resp.IsNull(), "absent key reads as null")

	resp = call(t, conn, `{"id":"4","method":"stats","params":null}`)
	var stats store.Stats
	require.NoError(t, json.Unmarshal(resp.Result, &stats))
	assert.Equal(t, store.Stats{Hits: 1, Misses: 1, Inserts: 1, Size: 1}, stats)
}

func TestSession_MalformedKeepsConnectionOpen(t *testing.T) {
	srv := setupIntegrationServer(t, nil)
	conn := srv.dial(t)
	srv.store.Put("a", "1")
	before := srv.store.Snapshot()

	resp := call(t, conn, `{"method":"get"}`)
	require.True(t, resp.IsError())
	assert.Nil(t, resp.ID, "no parseable id means a null id")

	resp = call(t, conn, `{"id":"g","method":"get"}`)
	require.True(t, resp.IsError())
	assert.Equal(t, "g", resp.IDString())
	assert.Contains(t, resp.Error.Message, "params")

	resp = call(t, conn, `not json at all`)
	require.True(t, resp.IsError())
	assert.Nil(t, resp.ID)

	resp = call(t, conn, `{"id":"u","method":"remove","params":{"key":"a"}}`)
	require.True(t, resp.IsError())
	assert.Equal(t, "unknown method: remove", resp.Error.Message)

	assert.Equal(t, before, srv.store.Snapshot(), "Store must be untouched by bad requests")

	resp = call(t, conn, `{"id":"ok","method":"get","params":{"key":"a"}}`)
	assert.Equal(t, "ok", resp.IDString())
	assert.JSONEq(t, `"1"`, string(resp.Result), "connection still serves requests")
}

func TestSession_BinaryFrameRejected(t *testing.T) {
	srv := setupIntegrationServer(t, nil)
	conn := srv.dial(t)

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte(`{"id":"b","method":"stats"}`)))
	resp := receive(t, conn)
	require.True(t, resp.IsError())
	assert.Nil(t, resp.ID)
	assert.Equal(t, msgBinaryFrame, resp.Error.Message)

	resp = call(t, conn, `{"id":"t","method":"stats"}`)
	assert.False(t, resp.IsError())
}

func TestSession_ProtocolErrorsOvertakeQueuedRequests(t *testing.T) {
	srv := setupIntegrationServer(t, nil)
	conn := srv.dial(t)

	send(t, conn, `{"id":"slow-1","method":"add","params":{"key":"k","value":"v"}}`)
	send(t, conn, `{"id":"queued-1","method":"get","params":{"key":"k"}}`)
	send(t, conn, `{"id":"bad-1","method":"get"}`)

	first := receive(t, conn)
	assert.Equal(t, "bad-1", first.IDString(), "decode error answered while slow-1 is blocked")
	assert.True(t, first.IsError())

	srv.gate.release()
	second := receive(t, conn)
	assert.Equal(t, "slow-1", second.IDString())
	assert.False(t, second.IsError())

	third := receive(t, conn)
	assert.Equal(t, "queued-1", third.IDString())
	assert.JSONEq(t, `"v"`, string(third.Result), "queued get runs after the add before it")
}

func TestSession_PipelinedAddThenGet(t *testing.T) {
	srv := setupIntegrationServer(t, func(cfg *config.Config) {
		cfg.Capacity = 1024
	})
	conn := srv.dial(t)

	const rounds = 300
	for i := 0; i < rounds; i++ {
		send(t, conn, fmt.Sprintf(`{"id":"a%d","method":"add","params":{"key":"k%d","value":"v%d"}}`, i, i, i))
		send(t, conn, fmt.Sprintf(`{"id":"g%d","method":"get","params":{"key":"k%d"}}`, i, i))
	}

	results := make(map[string]types.Response, 2*rounds)
	for len(results) < 2*rounds {
		resp := receive(t, conn)
		results[resp.IDString()] = resp
	}

	for i := 0; i < rounds; i++ {
		resp := results[fmt.Sprintf("g%d", i)]
		require.False(t, resp.IsError())
		assert.JSONEq(t, fmt.Sprintf(`"v%d"`, i), string(resp.Result), "get must observe the add sent before it")
	}
	stats := srv.store.Snapshot()
	assert.Equal(t, uint64(rounds), stats.Hits)
	assert.Zero(t, stats.Misses)
}

func TestSession_DeadPeerClosed(t *testing.T) {
	srv := setupIntegrationServer(t, func(cfg *config.Config) {
		cfg.PingInterval = 20 * time.Millisecond
		cfg.PongWait = 100 * time.Millisecond
	})

	// never reads, so pings go unanswered
	srv.dial(t)
	require.Eventually(t, func() bool {
		return srv.manager.Stats().Active == 1
	}, 2*time.Second, 5*time.Millisecond)

	assert.Eventually(t, func() bool {
		return srv.manager.Stats().Active == 0
	}, 2*time.Second, 10*time.Millisecond, "session without pongs must be closed")
}

func TestSession_LivePeerKeptAlive(t *testing.T) {
	srv := setupIntegrationServer(t, func(cfg *config.Config) {
		cfg.PingInterval = 20 * time.Millisecond
		cfg.PongWait = 100 * time.Millisecond
	})

	conn := srv.dial(t)
	// reading lets the default ping handler answer with pongs
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	time.Sleep(400 * time.Millisecond)
	assert.Equal(t, 1, srv.manager.Stats().Active, "pongs keep the session open past pong_wait")
}

func TestSession_DuplicateInFlightID(t *testing.T) {
	srv := setupIntegrationServer(t, nil)
	conn := srv.dial(t)

	send(t, conn, `{"id":"slow-dup","method":"add","params":{"key":"k","value":"v"}}`)
	send(t, conn, `{"id":"slow-dup","method":"add","params":{"key":"k","value":"w"}}`)

	resp := receive(t, conn)
	require.True(t, resp.IsError())
	assert.Equal(t, "slow-dup", resp.IDString())
	assert.Equal(t, msgDuplicateID, resp.Error.Message)

	srv.gate.release()
	resp = receive(t, conn)
	assert.Equal(t, "slow-dup", resp.IDString())
	assert.False(t, resp.IsError())

	value, ok := srv.store.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "v", value, "rejected duplicate must not reach the store")
}

func TestSession_RequestTimeoutAbandonsResponse(t *testing.T) {
	srv := setupIntegrationServer(t, func(cfg *config.Config) {
		cfg.RequestTimeout = 50 * time.Millisecond
		cfg.ReapInterval = 10 * time.Millisecond
	})
	conn := srv.dial(t)

	send(t, conn, `{"id":"slow-t","method":"add","params":{"key":"k","value":"v"}}`)

	assert.Eventually(t, func() bool {
		return srv.manager.Stats().TimedOut == 1
	}, 2*time.Second, 10*time.Millisecond)

	srv.gate.release()

	// the store operation still completes
	assert.Eventually(t, func() bool {
		_, ok := srv.store.Peek("k")
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	resp := call(t, conn, `{"id":"after","method":"stats"}`)
	assert.Equal(t, "after", resp.IDString(), "late response for slow-t is never delivered")
	assert.Zero(t, srv.manager.Stats().Outstanding)
}

func TestSession_ConcurrentSessionsKeepCorrelation(t *testing.T) {
	srv := setupIntegrationServer(t, nil)

	const (
		numSessions = 8
		numRequests = 40
	)

	var wg sync.WaitGroup
	for i := 0; i < numSessions; i++ {
		conn := srv.dial(t)
		wg.Add(1)
		go func(n int, conn *websocket.Conn) {
			defer wg.Done()

			// pipeline every request before reading any response
			sent := make(map[string]bool, numRequests)
			for j := 0; j < numRequests; j++ {
				id := fmt.Sprintf("s%d-r%d", n, j)
				sent[id] = true
				var frame string
				switch j % 3 {
				case 0:
					frame = fmt.Sprintf(`{"id":%q,"method":"add","params":{"key":"k%d","value":%q}}`, id, j, id)
				case 1:
					frame = fmt.Sprintf(`{"id":%q,"method":"get","params":{"key":"k%d"}}`, id, j-1)
				default:
					frame = fmt.Sprintf(`{"id":%q,"method":"stats"}`, id)
				}
				if !assert.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame))) {
					return
				}
			}

			for j := 0; j < numRequests; j++ {
				_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
				_, data, err := conn.ReadMessage()
				if !assert.NoError(t, err) {
					return
				}
				var resp types.Response
				if !assert.NoError(t, json.Unmarshal(data, &resp)) {
					return
				}
				assert.False(t, resp.IsError())
				assert.True(t, sent[resp.IDString()], "unexpected id %q", resp.IDString())
				delete(sent, resp.IDString())
			}
			assert.Empty(t, sent, "every request answered exactly once")
		}(i, conn)
	}
	wg.Wait()

	stats := srv.store.Snapshot()
	assert.Equal(t, uint64(numSessions*((numRequests+2)/3)), stats.Inserts)
	assert.LessOrEqual(t, stats.Size, srv.cfg.Capacity)
}

func TestSession_ConcurrentPutSameKey(t *testing.T) {
	srv := setupIntegrationServer(t, nil)
	c1 := srv.dial(t)
	c2 := srv.dial(t)

	var wg sync.WaitGroup
	for i, conn := range []*websocket.Conn{c1, c2} {
		wg.Add(1)
		go func(value string, conn *websocket.Conn) {
			defer wg.Done()
			send(t, conn, fmt.Sprintf(`{"id":"p","method":"add","params":{"key":"k","value":%q}}`, value))
			resp := receive(t, conn)
			assert.False(t, resp.IsError())
		}(fmt.Sprintf("v%d", i+1), conn)
	}
	wg.Wait()

	value, ok := srv.store.Get("k")
	assert.True(t, ok)
	assert.Contains(t, []string{"v1", "v2"}, value)
	assert.Equal(t, uint64(2), srv.store.Snapshot().Inserts)
	assert.Equal(t, 1, srv.store.Len())
}

func TestSession_DisconnectRemovesSession(t *testing.T) {
	srv := setupIntegrationServer(t, nil)
	conn := srv.dial(t)

	call(t, conn, `{"id":"1","method":"stats"}`)
	assert.Equal(t, 1, srv.manager.Stats().Active)
	assert.Len(t, srv.manager.Sessions(), 1)

	id := srv.manager.Sessions()[0]
	session, ok := srv.manager.Session(id)
	require.True(t, ok)
	assert.NotEmpty(t, session.RemoteAddr())

	require.NoError(t, conn.Close())

	assert.Eventually(t, func() bool {
		return srv.manager.Stats().Active == 0
	}, 2*time.Second, 10*time.Millisecond)
	_, ok = srv.manager.Session(id)
	assert.False(t, ok)
	assert.Equal(t, int64(1), srv.manager.Stats().Accepted)
}

func TestSession_OversizedFrameClosesSession(t *testing.T) {
	srv := setupIntegrationServer(t, func(cfg *config.Config) {
		cfg.MaxFrameBytes = 64
	})
	conn := srv.dial(t)

	big := fmt.Sprintf(`{"id":"big","method":"add","params":{"key":"k","value":%q}}`, strings.Repeat("x", 256))
	send(t, conn, big)

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "server closes the connection on broken framing")

	assert.Eventually(t, func() bool {
		return srv.manager.Stats().Active == 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Zero(t, srv.store.Len())
}

func TestSession_OtherSessionsSurviveClose(t *testing.T) {
	srv := setupIntegrationServer(t, nil)
	c1 := srv.dial(t)
	c2 := srv.dial(t)

	call(t, c1, `{"id":"1","method":"add","params":{"key":"a","value":"1"}}`)
	require.NoError(t, c1.Close())

	resp := call(t, c2, `{"id":"2","method":"get","params":{"key":"a"}}`)
	assert.JSONEq(t, `"1"`, string(resp.Result))
}

func TestManager_CloseEndsSessions(t *testing.T) {
	srv := setupIntegrationServer(t, nil)
	conn := srv.dial(t)
	call(t, conn, `{"id":"1","method":"stats"}`)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.manager.Close(ctx))

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "expected normal close, got %v", err)
	assert.Zero(t, srv.manager.Stats().Active)

	resp, err := http.Get(srv.ts.URL + srv.cfg.Path)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestManager_CloseWaitsForSessionsAcceptedDuringShutdown(t *testing.T) {
	srv := setupIntegrationServer(t, nil)
	url := "ws" + strings.TrimPrefix(srv.ts.URL, "http") + srv.cfg.Path

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				conn, _, err := websocket.DefaultDialer.Dial(url, nil)
				if err == nil {
					conn.Close()
				}
			}
		}()
	}

	time.Sleep(50 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.manager.Close(ctx))
	assert.Zero(t, srv.manager.Stats().Active, "every accepted session has ended once Close returns")

	close(stop)
	wg.Wait()
	assert.Zero(t, srv.manager.Stats().Active, "no session is accepted after Close")
}

func TestManager_PlainHTTPRejected(t *testing.T) {
	srv := setupIntegrationServer(t, nil)

	resp, err := http.Get(srv.ts.URL + srv.cfg.Path)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Zero(t, srv.manager.Stats().Accepted)
}
