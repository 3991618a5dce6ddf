package engine

import (
	"github.com/himakhaitan/wscache/store"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func Module() fx.Option {
	return fx.Options(
		store.Module,
		fx.Provide(func(s *store.Store, logger *zap.Logger) *Router {
			return NewRouter(s, logger)
		}),
	)
}
