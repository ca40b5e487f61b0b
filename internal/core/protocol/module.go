package protocol

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-meshnode/internal/core/host"
	"github.com/dep2p/go-meshnode/internal/core/identity"
	"github.com/dep2p/go-meshnode/internal/core/protocol/system/identify"
	"github.com/dep2p/go-meshnode/internal/core/protocol/system/ping"
)

// Params 系统协议依赖参数
type Params struct {
	fx.In

	Host     *host.Host
	Identity *identity.Identity
}

// ProvideIdentify 提供 Identify 服务，代理版本取自 Host 配置
func ProvideIdentify(p Params) (*identify.Service, error) {
	hc := p.Host.Config()
	cfg := identify.DefaultConfig()
	cfg.AgentVersion = hc.UserAgent
	cfg.ProtocolVersion = hc.ProtocolVersion
	return identify.NewService(p.Host, p.Identity.PublicKey(), cfg)
}

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("protocol",
		fx.Provide(
			ping.NewService,
			ProvideIdentify,
		),
		fx.Invoke(registerSystemProtocols),
	)
}

func registerSystemProtocols(lc fx.Lifecycle, h *host.Host, ps *ping.Service, ids *identify.Service) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			ps.Register(h)
			return ids.Start()
		},
		OnStop: func(_ context.Context) error {
			h.RemoveStreamHandler(ping.ProtocolID)
			return ids.Stop()
		},
	})
}
