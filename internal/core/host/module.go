package host

import (
	"context"

	"go.uber.org/fx"

	pkgif "github.com/dep2p/go-meshnode/pkg/interfaces"
)

// Params Host 依赖参数
type Params struct {
	fx.In

	Swarm     pkgif.Swarm
	Peerstore pkgif.Peerstore
	EventBus  pkgif.EventBus `optional:"true"`
	Config    *Config        `optional:"true"`
}

// Output Host 模块输出
type Output struct {
	fx.Out

	Host    pkgif.Host
	HostRaw *Host
}

// ProvideHost 提供 Host
func ProvideHost(p Params) (Output, error) {
	cfg := DefaultConfig()
	if p.Config != nil {
		cfg = *p.Config
	}
	h, err := New(p.Swarm, p.Peerstore, p.EventBus, cfg)
	if err != nil {
		return Output{}, err
	}
	return Output{Host: h, HostRaw: h}, nil
}

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("host",
		fx.Provide(ProvideHost),
		fx.Invoke(registerLifecycle),
	)
}

func registerLifecycle(lc fx.Lifecycle, h *Host) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			if err := h.Listen(); err != nil {
				return err
			}
			logger.Info("主机已启动", "peerID", h.ID().ShortString(), "addrs", len(h.Addrs()))
			return nil
		},
		OnStop: func(_ context.Context) error {
			return h.Close()
		},
	})
}
