package server

import (
	"net/http"

	"github.com/himakhaitan/wscache/engine"
	"github.com/himakhaitan/wscache/pkg/config"
	"github.com/himakhaitan/wscache/store"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module provides the WebSocket cache server wired with fx
func Module() fx.Option {
	return fx.Options(
		fx.Provide(func(r *engine.Router, cfg *config.Config, logger *zap.Logger) *Manager {
			return NewManager(r, cfg, logger)
		}),
		fx.Provide(func(m *Manager, s *store.Store, cfg *config.Config, logger *zap.Logger) *http.ServeMux {
			return NewMux(m, s, cfg, logger)
		}),
		fx.Provide(NewHTTPServer),
		fx.Invoke(RegisterHooks),
		engine.Module(),
	)
}
