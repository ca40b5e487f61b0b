package peerstore

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-meshnode/internal/core/storage"
	pkgif "github.com/dep2p/go-meshnode/pkg/interfaces"
)

// Params Peerstore 依赖参数
type Params struct {
	fx.In

	Config *Config         `optional:"true"`
	Engine *storage.Engine `optional:"true"`
}

// Output Peerstore 模块输出
type Output struct {
	fx.Out

	Peerstore pkgif.Peerstore
	Store     *Peerstore
}

// Module 返回 Fx 模块
func Module() fx.Option {
	return fx.Module("peerstore",
		fx.Provide(ProvidePeerstore),
		fx.Invoke(registerLifecycle),
	)
}

// ProvidePeerstore 提供 Peerstore
func ProvidePeerstore(p Params) (Output, error) {
	opts := []Option{}
	if p.Config != nil {
		opts = append(opts, WithConfig(*p.Config))
	}
	if p.Engine != nil {
		opts = append(opts, WithStorage(p.Engine))
	}
	ps, err := New(opts...)
	if err != nil {
		return Output{}, err
	}
	return Output{Peerstore: ps, Store: ps}, nil
}

func registerLifecycle(lc fx.Lifecycle, ps *Peerstore) {
	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			return ps.Close()
		},
	})
}
