package server

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/himakhaitan/wscache/engine"
	"github.com/himakhaitan/wscache/pkg/config"
	"github.com/himakhaitan/wscache/types"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

const (
	closeGracePeriod = time.Second

	msgBinaryFrame = "malformed request: binary frames are not supported"
	msgDuplicateID = "malformed request: duplicate request id"
)

// Dispatcher runs a decoded request and returns its response
type Dispatcher interface {
	Dispatch(req types.Request) types.Response
}

// queuedCall is a decoded request waiting for the executor
type queuedCall struct {
	req types.Request
	seq uint64
}

// Session is the server side of one WebSocket connection. Requests are
// executed one at a time in arrival order, so a pipelined get observes every
// earlier add on the same connection. Protocol errors are answered by the
// reader straight away and may overtake queued requests.
type Session struct {
	id          string
	remote      string
	connectedAt time.Time

	conn     *websocket.Conn
	router   Dispatcher
	cfg      *config.Config
	logger   *zap.Logger
	pending  *pending
	inflight *semaphore.Weighted
	queue    chan queuedCall
	out      chan types.Response
	timedOut *atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
}

func newSession(ctx context.Context, id string, conn *websocket.Conn, router Dispatcher, cfg *config.Config, logger *zap.Logger, timedOut *atomic.Int64) *Session {
	ctx, cancel := context.WithCancel(ctx)
	return &Session{
		id:          id,
		remote:      conn.RemoteAddr().String(),
		connectedAt: time.Now(),
		conn:        conn,
		router:      router,
		cfg:         cfg,
		logger:      logger.With(zap.String("session", id)),
		pending:     newPending(),
		inflight:    semaphore.NewWeighted(cfg.MaxInFlight),
		queue:       make(chan queuedCall, cfg.MaxInFlight),
		out:         make(chan types.Response, cfg.MaxInFlight),
		timedOut:    timedOut,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// ID returns the session id
func (s *Session) ID() string {
	return s.id
}

// RemoteAddr returns the peer address
func (s *Session) RemoteAddr() string {
	return s.remote
}

// Outstanding returns the number of unanswered requests
func (s *Session) Outstanding() int {
	return s.pending.len()
}

// Close ends the session. In-flight store operations finish, their
// responses are discarded.
func (s *Session) Close() {
	s.cancel()
}

// serve runs until the connection fails, the peer closes it, or Close is
// called. It returns the error that ended the session.
func (s *Session) serve() error {
	g, ctx := errgroup.WithContext(s.ctx)

	g.Go(func() error {
		defer s.cancel()
		return s.readLoop(ctx)
	})
	g.Go(func() error {
		return s.execLoop(ctx)
	})
	g.Go(func() error {
		return s.writeLoop(ctx)
	})
	g.Go(func() error {
		return s.reapLoop(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeGracePeriod))
		// unblocks readLoop
		_ = s.conn.Close()
		return nil
	})

	err := g.Wait()
	s.cancel()
	s.pending.clear()
	return err
}

func (s *Session) readLoop(ctx context.Context) error {
	s.conn.SetReadLimit(s.cfg.MaxFrameBytes)
	_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	})

	for {
		kind, frame, err := s.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))

		if kind != websocket.TextMessage {
			if !s.enqueue(ctx, types.Failure(nil, msgBinaryFrame)) {
				return ctx.Err()
			}
			continue
		}

		req, err := engine.Decode(frame)
		if err != nil {
			s.logger.Debug("Malformed frame", zap.Error(err))
			if !s.enqueue(ctx, engine.Reject(err)) {
				return ctx.Err()
			}
			continue
		}

		seq, ok := s.pending.track(req.ID, time.Now().Add(s.cfg.RequestTimeout))
		if !ok {
			id := req.ID
			if !s.enqueue(ctx, types.Failure(&id, msgDuplicateID)) {
				return ctx.Err()
			}
			continue
		}

		// blocks this reader only once max_in_flight requests are outstanding
		if err := s.inflight.Acquire(ctx, 1); err != nil {
			return err
		}
		select {
		case s.queue <- queuedCall{req: req, seq: seq}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// execLoop runs queued requests in arrival order
func (s *Session) execLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case c := <-s.queue:
			s.execute(ctx, c.req, c.seq)
		}
	}
}

func (s *Session) execute(ctx context.Context, req types.Request, seq uint64) {
	defer s.inflight.Release(1)

	resp := s.router.Dispatch(req)
	if !s.pending.complete(req.ID, seq) {
		s.logger.Warn("Dropped response for abandoned request",
			zap.String("id", req.ID),
			zap.String("method", req.Method),
		)
		return
	}
	s.enqueue(ctx, resp)
}

func (s *Session) enqueue(ctx context.Context, resp types.Response) bool {
	select {
	case s.out <- resp:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Session) writeLoop(ctx context.Context) error {
	ping := time.NewTicker(s.cfg.PingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case resp := <-s.out:
			data, err := json.Marshal(resp)
			if err != nil {
				s.logger.Error("Failed to encode response", zap.String("id", resp.IDString()), zap.Error(err))
				continue
			}
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return fmt.Errorf("failed to write response: %w", err)
			}
		case <-ping.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.cfg.WriteTimeout)); err != nil {
				return fmt.Errorf("failed to write ping: %w", err)
			}
		}
	}
}

func (s *Session) reapLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			for _, id := range s.pending.expire(now) {
				s.timedOut.Inc()
				s.logger.Warn("Request timed out", zap.String("id", id), zap.Duration("timeout", s.cfg.RequestTimeout))
			}
		}
	}
}
