package muxer

import (
	"go.uber.org/fx"

	pkgif "github.com/dep2p/go-meshnode/pkg/interfaces"
)

// Params 多路复用器依赖参数
type Params struct {
	fx.In

	Config *Config `optional:"true"`
}

// ProvideMuxer 提供 yamux 多路复用器
func ProvideMuxer(p Params) pkgif.StreamMuxer {
	cfg := DefaultConfig()
	if p.Config != nil {
		cfg = *p.Config
	}
	return NewTransport(cfg)
}

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("muxer",
		fx.Provide(ProvideMuxer),
	)
}
