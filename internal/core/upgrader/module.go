package upgrader

import (
	"go.uber.org/fx"

	pkgif "github.com/dep2p/go-meshnode/pkg/interfaces"
)

// ModuleInput 定义模块输入依赖
type ModuleInput struct {
	fx.In

	SecureTransport pkgif.SecureTransport
	StreamMuxer     pkgif.StreamMuxer
	Config          *Config `optional:"true"`
}

// ProvideUpgrader 提供连接升级器
func ProvideUpgrader(input ModuleInput) (pkgif.Upgrader, error) {
	cfg := DefaultConfig()
	if input.Config != nil {
		cfg = *input.Config
	}
	return New(
		[]pkgif.SecureTransport{input.SecureTransport},
		[]pkgif.StreamMuxer{input.StreamMuxer},
		cfg,
	)
}

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("upgrader",
		fx.Provide(ProvideUpgrader),
	)
}
