package transport

import (
	"context"

	"go.uber.org/fx"
)

// Params 传输模块依赖
type Params struct {
	fx.In

	Config *Config `optional:"true"`
}

// Module 返回 Fx 模块
func Module() fx.Option {
	return fx.Module("transport",
		fx.Provide(ProvideManager),
		fx.Invoke(registerLifecycle),
	)
}

// ProvideManager 提供传输管理器
func ProvideManager(p Params) *Manager {
	cfg := DefaultConfig()
	if p.Config != nil {
		cfg = *p.Config
	}
	return NewManager(cfg)
}

func registerLifecycle(lc fx.Lifecycle, m *Manager) {
	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			return m.Close()
		},
	})
}
