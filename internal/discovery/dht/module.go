package dht

import (
	"context"
	"slices"

	"go.uber.org/fx"

	"github.com/dep2p/go-meshnode/internal/core/host"
	"github.com/dep2p/go-meshnode/internal/core/metrics"
	"github.com/dep2p/go-meshnode/internal/core/protocol/system/identify"
	pkgif "github.com/dep2p/go-meshnode/pkg/interfaces"
	"github.com/dep2p/go-meshnode/pkg/types"
)

// Params DHT 依赖参数
type Params struct {
	fx.In

	Host        *host.Host
	Config      *Config           `optional:"true"`
	Identify    *identify.Service `optional:"true"`
	ConnManager pkgif.ConnManager `optional:"true"`
	Metrics     *metrics.Metrics  `optional:"true"`
}

// Output 模块输出
type Output struct {
	fx.Out

	DHT     *DHT
	Routing pkgif.DHT
}

// ProvideDHT 提供 DHT
func ProvideDHT(p Params) (Output, error) {
	cfg := DefaultConfig()
	if p.Config != nil {
		cfg = *p.Config
	}
	opts := []Option{WithMetrics(p.Metrics)}
	if p.ConnManager != nil {
		opts = append(opts, WithConnManager(p.ConnManager))
	}
	d, err := New(p.Host, cfg, opts...)
	if err != nil {
		return Output{}, err
	}
	if p.Identify != nil {
		p.Identify.OnIdentified(d.peerIdentified)
	}
	return Output{DHT: d, Routing: d}, nil
}

// peerIdentified 识别到支持 DHT 协议的节点时加入路由表
func (d *DHT) peerIdentified(info *identify.Info) {
	if !slices.Contains(info.Protocols, ProtocolID) {
		return
	}
	inbound := true
	for _, c := range d.host.Network().ConnsToPeer(info.PeerID) {
		if c.Direction() == types.DirOutbound {
			inbound = false
			break
		}
	}
	d.AddPeer(info.PeerID, info.ListenAddrs, inbound)
}

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("dht",
		fx.Provide(ProvideDHT),
		fx.Invoke(registerLifecycle),
	)
}

func registerLifecycle(lc fx.Lifecycle, d *DHT) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			return d.Start()
		},
		OnStop: func(_ context.Context) error {
			return d.Close()
		},
	})
}
