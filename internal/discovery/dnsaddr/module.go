package dnsaddr

import (
	"go.uber.org/fx"
)

// Params 模块依赖参数
type Params struct {
	fx.In

	Config *Config `optional:"true"`
}

// ProvideResolver 提供解析器
//
// 没有可用的名称服务器时返回 nil，/dnsaddr 引导地址将被跳过。
func ProvideResolver(p Params) *Resolver {
	cfg := DefaultConfig()
	if p.Config != nil {
		cfg = *p.Config
	}
	r, err := NewResolver(cfg)
	if err != nil {
		logger.Warn("dnsaddr 解析器不可用", "err", err)
		return nil
	}
	return r
}

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("dnsaddr",
		fx.Provide(ProvideResolver),
	)
}
