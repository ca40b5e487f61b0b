package connmgr

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-meshnode/internal/core/metrics"
	"github.com/dep2p/go-meshnode/internal/core/swarm"
	pkgif "github.com/dep2p/go-meshnode/pkg/interfaces"
)

// Params 连接管理器依赖参数
type Params struct {
	fx.In

	Swarm   *swarm.Swarm
	Config  *Config          `optional:"true"`
	Metrics *metrics.Metrics `optional:"true"`
}

// Output 模块输出
type Output struct {
	fx.Out

	ConnManager pkgif.ConnManager
	Manager     *Manager
}

// ProvideManager 提供连接管理器
func ProvideManager(p Params) (Output, error) {
	cfg := DefaultConfig()
	if p.Config != nil {
		cfg = *p.Config
	}
	var opts []Option
	if p.Metrics != nil {
		opts = append(opts, WithTrimHook(p.Metrics.ObserveTrim))
	}
	m, err := New(cfg, p.Swarm, opts...)
	if err != nil {
		return Output{}, err
	}
	return Output{ConnManager: m, Manager: m}, nil
}

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("connmgr",
		fx.Provide(ProvideManager),
		fx.Invoke(registerLifecycle),
	)
}

func registerLifecycle(lc fx.Lifecycle, m *Manager) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			return m.Start()
		},
		OnStop: func(_ context.Context) error {
			return m.Close()
		},
	})
}
