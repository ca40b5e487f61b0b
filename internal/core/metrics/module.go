package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/dep2p/go-meshnode/internal/core/swarm"
)

// Params 指标模块依赖参数
type Params struct {
	fx.In

	Swarm *swarm.Swarm `optional:"true"`
}

// ProvideParams 指标构造参数
type ProvideParams struct {
	fx.In

	Registry *prometheus.Registry `optional:"true"`
}

// ProvideMetrics 提供指标集合，未注入注册表时使用私有注册表
func ProvideMetrics(p ProvideParams) *Metrics {
	return NewWithRegistry(p.Registry)
}

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("metrics",
		fx.Provide(ProvideMetrics),
		fx.Invoke(registerLifecycle),
	)
}

func registerLifecycle(lc fx.Lifecycle, m *Metrics, p Params) {
	if p.Swarm == nil {
		return
	}
	n := m.Notifier()
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			p.Swarm.Notify(n)
			return nil
		},
		OnStop: func(_ context.Context) error {
			p.Swarm.StopNotify(n)
			return nil
		},
	})
}
