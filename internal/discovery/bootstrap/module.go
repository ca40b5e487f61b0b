package bootstrap

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-meshnode/internal/core/host"
	"github.com/dep2p/go-meshnode/internal/core/metrics"
	"github.com/dep2p/go-meshnode/internal/core/protocol/system/identify"
	"github.com/dep2p/go-meshnode/internal/discovery/dnsaddr"
	pkgif "github.com/dep2p/go-meshnode/pkg/interfaces"
)

// Params 引导服务依赖参数
type Params struct {
	fx.In

	Host        *host.Host
	Config      *Config           `optional:"true"`
	Resolver    *dnsaddr.Resolver `optional:"true"`
	DHT         pkgif.DHT         `optional:"true"`
	ConnManager pkgif.ConnManager `optional:"true"`
	Identify    *identify.Service `optional:"true"`
	Metrics     *metrics.Metrics  `optional:"true"`
}

// Output 模块输出
type Output struct {
	fx.Out

	Service      *Service
	Bootstrapper pkgif.Bootstrapper
}

// ProvideService 提供引导服务
func ProvideService(p Params) (Output, error) {
	cfg := DefaultConfig()
	if p.Config != nil {
		cfg = *p.Config
	}

	opts := []Option{WithMetrics(p.Metrics), WithResolver(p.Resolver)}
	if p.DHT != nil {
		opts = append(opts, WithDHT(p.DHT))
	}
	if p.ConnManager != nil {
		opts = append(opts, WithConnManager(p.ConnManager))
	}
	if p.Identify != nil {
		opts = append(opts, WithIdentifier(p.Identify))
	}

	s, err := New(p.Host, cfg, opts...)
	if err != nil {
		return Output{}, err
	}
	return Output{Service: s, Bootstrapper: s}, nil
}

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("bootstrap",
		fx.Provide(ProvideService),
		fx.Invoke(registerLifecycle),
	)
}

func registerLifecycle(lc fx.Lifecycle, s *Service) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			return s.Start()
		},
		OnStop: func(_ context.Context) error {
			return s.Close()
		},
	})
}
