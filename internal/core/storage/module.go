package storage

import (
	"context"

	"go.uber.org/fx"
)

// Params Storage 模块依赖参数
type Params struct {
	fx.In

	Config *Config `optional:"true"`
}

// Module 返回 Storage Fx 模块
//
// 仅在配置了数据目录时由节点装配。
func Module() fx.Option {
	return fx.Module("storage",
		fx.Provide(ProvideEngine),
		fx.Invoke(registerLifecycle),
	)
}

// ProvideEngine 提供存储引擎
func ProvideEngine(p Params) (*Engine, error) {
	cfg := DefaultConfig()
	if p.Config != nil {
		cfg = *p.Config
	}
	return Open(cfg)
}

func registerLifecycle(lc fx.Lifecycle, eng *Engine) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			logger.Info("正在启动存储引擎")
			return eng.Start()
		},
		OnStop: func(_ context.Context) error {
			logger.Info("正在关闭存储引擎")
			if err := eng.Close(); err != nil {
				logger.Warn("存储引擎关闭失败", "error", err)
				return err
			}
			return nil
		},
	})
}
