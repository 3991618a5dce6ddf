package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/himakhaitan/wscache/pkg/config"
	"github.com/himakhaitan/wscache/types"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// Manager accepts WebSocket connections and runs one Session per connection
// against a shared Dispatcher.
type Manager struct {
	router   Dispatcher
	cfg      *config.Config
	logger   *zap.Logger
	registry *Registry
	upgrader websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc
	// mu orders wg.Add against Close so Wait never races an Add
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup

	accepted atomic.Int64
	timedOut atomic.Int64
}

func NewManager(router Dispatcher, cfg *config.Config, logger *zap.Logger) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		router:   router,
		cfg:      cfg,
		logger:   logger,
		registry: NewRegistry(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// the panel is served from anywhere; there is no auth to protect
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

// ServeHTTP upgrades the request and serves the session until it ends.
// The handler goroutine is the session's worker.
func (m *Manager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !m.acquire() {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	defer m.wg.Done()

	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		m.logger.Debug("WebSocket upgrade failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}

	session := newSession(m.ctx, uuid.NewString(), conn, m.router, m.cfg, m.logger, &m.timedOut)
	m.registry.Put(session)
	m.accepted.Inc()
	defer m.registry.Delete(session.ID())

	m.logger.Info("Session opened",
		zap.String("session", session.ID()),
		zap.String("remote", session.RemoteAddr()),
		zap.Int("active", m.registry.Len()),
	)

	err = session.serve()

	fields := []zap.Field{
		zap.String("session", session.ID()),
		zap.Duration("duration", time.Since(session.connectedAt)),
	}
	if err != nil && !isExpectedClose(err) {
		fields = append(fields, zap.Error(err))
	}
	m.logger.Info("Session closed", fields...)
}

// acquire counts a handler in, unless Close has started
func (m *Manager) acquire() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false
	}
	m.wg.Add(1)
	return true
}

// Session looks up a live session
func (m *Manager) Session(id string) (*Session, bool) {
	return m.registry.Get(id)
}

// Sessions returns the ids of live sessions, sorted
func (m *Manager) Sessions() []string {
	return m.registry.List()
}

// Stats reports session counters
func (m *Manager) Stats() types.SessionStats {
	outstanding := 0
	for _, s := range m.registry.Snapshot() {
		outstanding += s.Outstanding()
	}
	return types.SessionStats{
		Active:      m.registry.Len(),
		Accepted:    m.accepted.Load(),
		Outstanding: outstanding,
		TimedOut:    m.timedOut.Load(),
	}
}

// Close ends every live session and refuses new ones. It waits for session
// workers to exit or ctx to expire.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func isExpectedClose(err error) bool {
	if errors.Is(err, context.Canceled) {
		return true
	}
	return websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	)
}
