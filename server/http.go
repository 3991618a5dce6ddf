package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/himakhaitan/wscache/pkg/config"
	"github.com/himakhaitan/wscache/store"
	"github.com/himakhaitan/wscache/types"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// CacheView is the read-only part of the store the diagnostics routes use
type CacheView interface {
	Snapshot() store.Stats
	Keys() []string
}

// NewMux constructs the HTTP mux with the WebSocket endpoint and the
// plain HTTP diagnostics routes
func NewMux(manager *Manager, cache CacheView, cfg *config.Config, logger *zap.Logger) *http.ServeMux {
	mux := http.NewServeMux()

	// Health Check Route
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// Cache protocol
	mux.Handle(cfg.Path, manager)

	// GET /v1/stats
	mux.HandleFunc("/v1/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			_ = json.NewEncoder(w).Encode(types.BaseResponse{Success: false, Message: "Method not allowed", Timestamp: time.Now().Unix()})
			return
		}
		_ = json.NewEncoder(w).Encode(types.StatsResponse{
			Cache:    cache.Snapshot(),
			Sessions: manager.Stats(),
			BaseResponse: types.BaseResponse{
				Success:   true,
				Timestamp: time.Now().Unix(),
				Message:   "stats fetched successfully",
			},
		})
	})

	// GET /v1/sessions
	mux.HandleFunc("/v1/sessions", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			_ = json.NewEncoder(w).Encode(types.BaseResponse{Success: false, Message: "Method not allowed", Timestamp: time.Now().Unix()})
			return
		}
		ids := manager.Sessions()
		infos := make([]types.SessionInfo, 0, len(ids))
		for _, id := range ids {
			// the session may have closed since Sessions was read
			if s, ok := manager.Session(id); ok {
				infos = append(infos, types.SessionInfo{
					ID:          s.ID(),
					Remote:      s.RemoteAddr(),
					ConnectedAt: s.connectedAt,
					Outstanding: s.Outstanding(),
				})
			}
		}
		_ = json.NewEncoder(w).Encode(types.SessionsResponse{
			IDs:      ids,
			Sessions: infos,
			BaseResponse: types.BaseResponse{
				Success:   true,
				Timestamp: time.Now().Unix(),
				Message:   "sessions fetched successfully",
			},
		})
	})

	// GET /v1/keys
	mux.HandleFunc("/v1/keys", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			_ = json.NewEncoder(w).Encode(types.BaseResponse{Success: false, Message: "Method not allowed", Timestamp: time.Now().Unix()})
			return
		}
		_ = json.NewEncoder(w).Encode(types.KeysResponse{
			Keys: cache.Keys(),
			BaseResponse: types.BaseResponse{
				Success:   true,
				Timestamp: time.Now().Unix(),
				Message:   "keys fetched successfully",
			},
		})
	})

	logger.Debug("Routes registered", zap.String("websocket", cfg.Path))
	return mux
}

// NewHTTPServer constructs the http.Server with configured addr
func NewHTTPServer(mux *http.ServeMux, cfg *config.Config) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// RegisterHooks starts and stops the server using fx Lifecycle
func RegisterHooks(lc fx.Lifecycle, server *http.Server, manager *Manager, cfg *config.Config, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", server.Addr)
			if err != nil {
				return err
			}
			logger.Info("Starting WebSocket cache server",
				zap.String("addr", ln.Addr().String()),
				zap.String("path", cfg.Path),
				zap.Int("capacity", cfg.Capacity),
			)
			go func() {
				if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
					logger.Fatal("Server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Stopping WebSocket cache server")
			// Shutdown leaves hijacked WebSocket connections alone
			if err := server.Shutdown(ctx); err != nil {
				return err
			}
			return manager.Close(ctx)
		},
	})
}
