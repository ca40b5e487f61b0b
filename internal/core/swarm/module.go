package swarm

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-meshnode/internal/core/identity"
	"github.com/dep2p/go-meshnode/internal/core/transport"
	pkgif "github.com/dep2p/go-meshnode/pkg/interfaces"
)

// Params Swarm 依赖参数
type Params struct {
	fx.In

	Identity   *identity.Identity
	Transports *transport.Manager
	Upgrader   pkgif.Upgrader
	Peerstore  pkgif.Peerstore
	EventBus   pkgif.EventBus `optional:"true"`
	Config     *Config        `optional:"true"`
}

// Output Swarm 模块输出
type Output struct {
	fx.Out

	Swarm    pkgif.Swarm
	SwarmRaw *Swarm
}

// ProvideSwarm 提供 Swarm
func ProvideSwarm(p Params) (Output, error) {
	opts := []Option{WithEventBus(p.EventBus)}
	if p.Config != nil {
		opts = append(opts, WithConfig(*p.Config))
	}
	s, err := New(p.Identity.PeerID(), p.Transports, p.Upgrader, p.Peerstore, opts...)
	if err != nil {
		return Output{}, err
	}
	return Output{Swarm: s, SwarmRaw: s}, nil
}

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("swarm",
		fx.Provide(ProvideSwarm),
		fx.Invoke(registerLifecycle),
	)
}

func registerLifecycle(lc fx.Lifecycle, s *Swarm) {
	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			return s.Close()
		},
	})
}
