package pubsub

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-meshnode/internal/core/host"
	"github.com/dep2p/go-meshnode/internal/core/identity"
	"github.com/dep2p/go-meshnode/internal/core/metrics"
	pkgif "github.com/dep2p/go-meshnode/pkg/interfaces"
)

// Params pubsub 依赖参数
type Params struct {
	fx.In

	Host        *host.Host
	Identity    *identity.Identity
	Config      *Config           `optional:"true"`
	ConnManager pkgif.ConnManager `optional:"true"`
	Metrics     *metrics.Metrics  `optional:"true"`
}

// Output 模块输出
type Output struct {
	fx.Out

	PubSub  *PubSub
	Service pkgif.PubSub
}

// ProvidePubSub 提供 pubsub 服务
func ProvidePubSub(p Params) (Output, error) {
	cfg := DefaultConfig()
	if p.Config != nil {
		cfg = *p.Config
	}
	opts := []Option{WithMetrics(p.Metrics)}
	if p.ConnManager != nil {
		opts = append(opts, WithConnManager(p.ConnManager))
	}
	ps, err := New(p.Host, p.Identity.PrivateKey(), cfg, opts...)
	if err != nil {
		return Output{}, err
	}
	return Output{PubSub: ps, Service: ps}, nil
}

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("pubsub",
		fx.Provide(ProvidePubSub),
		fx.Invoke(registerLifecycle),
	)
}

func registerLifecycle(lc fx.Lifecycle, ps *PubSub) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			return ps.Start()
		},
		OnStop: func(_ context.Context) error {
			return ps.Close()
		},
	})
}
