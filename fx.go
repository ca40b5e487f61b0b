package meshnode

import (
	"fmt"
	"log/slog"
	"math"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/dep2p/go-meshnode/config"
	"github.com/dep2p/go-meshnode/pkg/lib/log"

	// Core Layer
	"github.com/dep2p/go-meshnode/internal/core/connmgr"
	"github.com/dep2p/go-meshnode/internal/core/eventbus"
	"github.com/dep2p/go-meshnode/internal/core/host"
	"github.com/dep2p/go-meshnode/internal/core/identity"
	"github.com/dep2p/go-meshnode/internal/core/metrics"
	"github.com/dep2p/go-meshnode/internal/core/muxer"
	"github.com/dep2p/go-meshnode/internal/core/peerstore"
	"github.com/dep2p/go-meshnode/internal/core/protocol"
	"github.com/dep2p/go-meshnode/internal/core/security"
	"github.com/dep2p/go-meshnode/internal/core/storage"
	"github.com/dep2p/go-meshnode/internal/core/swarm"
	"github.com/dep2p/go-meshnode/internal/core/transport"
	"github.com/dep2p/go-meshnode/internal/core/upgrader"

	// Discovery Layer
	"github.com/dep2p/go-meshnode/internal/discovery/bootstrap"
	"github.com/dep2p/go-meshnode/internal/discovery/dht"
	"github.com/dep2p/go-meshnode/internal/discovery/dnsaddr"

	// Protocol Layer
	"github.com/dep2p/go-meshnode/internal/protocol/pubsub"

	pkgif "github.com/dep2p/go-meshnode/pkg/interfaces"
	ma "github.com/dep2p/go-meshnode/pkg/lib/multiaddr"
	"github.com/dep2p/go-meshnode/pkg/types"
)

var fxLogger = log.Logger("meshnode/fx")

// buildFxApp 构建 Fx 应用
//
// 加载顺序（按依赖）：
//  1. Core Layer: Identity → EventBus → Storage → Peerstore → Transport →
//     Security → Muxer → Upgrader → Swarm → Host → Protocol → ConnMgr
//  2. Discovery Layer: DNSAddr → DHT → Bootstrap
//  3. Protocol Layer: PubSub
//
// fx 按注册的逆序执行 OnStop，PubSub 先于 Host 关闭。
func buildFxApp(cfg *nodeConfig, node *Node) (*fx.App, error) {
	// ════════════════════════════════════════════════════════════════════════
	// 1. 配置验证（前置）
	// ════════════════════════════════════════════════════════════════════════
	if err := cfg.config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	c := cfg.config

	hostCfg, err := hostConfig(c)
	if err != nil {
		return nil, err
	}
	dhtCfg, err := dhtConfig(c)
	if err != nil {
		return nil, err
	}
	bootstrapCfg, err := bootstrapConfig(c)
	if err != nil {
		return nil, err
	}

	// ════════════════════════════════════════════════════════════════════════
	// 2. 核心模块（必须加载）
	// ════════════════════════════════════════════════════════════════════════
	modules := []fx.Option{
		fx.Supply(
			&identity.Config{KeyFile: c.Identity.KeyFile, PrivateKey: cfg.privateKey},
			peerstoreConfig(),
		),

		identity.Module(), // 身份
		eventbus.Module(), // 事件总线
	}

	// ════════════════════════════════════════════════════════════════════════
	// 3. 持久化（配置了数据目录时加载）
	// ════════════════════════════════════════════════════════════════════════
	if c.Storage.Enabled() {
		modules = append(modules,
			fx.Supply(storageConfig(c)),
			storage.Module(),
		)
	}
	modules = append(modules, peerstore.Module())

	// ════════════════════════════════════════════════════════════════════════
	// 4. 指标（条件加载）
	// ════════════════════════════════════════════════════════════════════════
	if c.Metrics.Enabled {
		if cfg.registry != nil {
			modules = append(modules, fx.Supply(cfg.registry))
		}
		modules = append(modules, metrics.Module())
	}

	// ════════════════════════════════════════════════════════════════════════
	// 5. 传输层
	// ════════════════════════════════════════════════════════════════════════
	modules = append(modules,
		fx.Supply(
			transportConfig(c),
			&security.Config{HandshakeTimeout: c.Security.HandshakeTimeout.Duration()},
			muxerConfig(c),
			&upgrader.Config{NegotiateTimeout: c.Security.NegotiateTimeout.Duration()},
			swarmConfig(c),
			hostCfg,
		),
		transport.Module(), // TCP/WebSocket
		security.Module(),  // Noise
		muxer.Module(),     // yamux
		upgrader.Module(),  // 连接升级
		swarm.Module(),     // 连接池
		host.Module(),      // 协议路由
		protocol.Module(),  // identify + ping
	)

	// ════════════════════════════════════════════════════════════════════════
	// 6. 连接管理
	// ════════════════════════════════════════════════════════════════════════
	modules = append(modules,
		fx.Supply(connmgrConfig(c)),
		connmgr.Module(),
	)

	// ════════════════════════════════════════════════════════════════════════
	// 7. 发现层
	// ════════════════════════════════════════════════════════════════════════
	modules = append(modules,
		fx.Supply(dnsaddrConfig(c)),
		dnsaddr.Module(),
	)
	if c.Discovery.DHT.Enabled {
		modules = append(modules,
			fx.Supply(dhtCfg),
			dht.Module(),
		)
	}
	modules = append(modules,
		fx.Supply(bootstrapCfg),
		bootstrap.Module(),
	)

	// ════════════════════════════════════════════════════════════════════════
	// 8. 协议层
	// ════════════════════════════════════════════════════════════════════════
	modules = append(modules,
		fx.Supply(pubsubConfig(c)),
		pubsub.Module(),
	)

	// ════════════════════════════════════════════════════════════════════════
	// 9. 用户扩展（Fx Options）
	// ════════════════════════════════════════════════════════════════════════
	if len(cfg.userFxOptions) > 0 {
		modules = append(modules, cfg.userFxOptions...)
	}

	// ════════════════════════════════════════════════════════════════════════
	// 10. Node 组件注入
	// ════════════════════════════════════════════════════════════════════════
	modules = append(modules, fx.Invoke(injectNodeComponents(node)))

	// ════════════════════════════════════════════════════════════════════════
	// 11. Fx 日志
	// ════════════════════════════════════════════════════════════════════════
	modules = append(modules, fx.WithLogger(newFxEventLogger(c.Log)))

	app := fx.New(modules...)
	if err := app.Err(); err != nil {
		return nil, err
	}
	return app, nil
}

// newFxEventLogger fx 事件日志，仅在 meshnode/fx 组件为 debug 级别时输出
func newFxEventLogger(lc config.LogConfig) func() fxevent.Logger {
	return func() fxevent.Logger {
		lv, err := lc.Levels()
		if err != nil || lv.For("meshnode/fx") > slog.LevelDebug {
			return &fxevent.ZapLogger{Logger: zap.NewNop()}
		}
		zl, err := zap.NewDevelopment()
		if err != nil {
			fxLogger.Warn("创建 zap logger 失败", "error", err)
			return &fxevent.ZapLogger{Logger: zap.NewNop()}
		}
		return &fxevent.ZapLogger{Logger: zl}
	}
}

// ════════════════════════════════════════════════════════════════════════════
// 组件注入辅助函数
// ════════════════════════════════════════════════════════════════════════════

// nodeInjectParams Node 组件注入参数
type nodeInjectParams struct {
	fx.In

	// 核心组件（必需）
	Identity    *identity.Identity
	Host        *host.Host
	EventBus    pkgif.EventBus
	ConnManager *connmgr.Manager
	PubSub      *pubsub.PubSub
	Bootstrap   *bootstrap.Service

	// 可选组件
	DHT     *dht.DHT         `optional:"true"`
	Metrics *metrics.Metrics `optional:"true"`
}

// injectNodeComponents 创建 Node 组件注入函数
func injectNodeComponents(node *Node) interface{} {
	return func(p nodeInjectParams) {
		node.identity = p.Identity
		node.host = p.Host
		node.eventbus = p.EventBus
		node.connmgr = p.ConnManager
		node.pubsub = p.PubSub
		node.bootstrap = p.Bootstrap

		node.dht = p.DHT
		node.metrics = p.Metrics
	}
}

// ════════════════════════════════════════════════════════════════════════════
// 配置转换函数
// ════════════════════════════════════════════════════════════════════════════

func peerstoreConfig() *peerstore.Config {
	cfg := peerstore.DefaultConfig()
	return &cfg
}

func storageConfig(c *config.Config) *storage.Config {
	cfg := storage.DefaultConfig()
	cfg.Path = c.Storage.DBPath()
	cfg.SyncWrites = c.Storage.SyncWrites
	return &cfg
}

func transportConfig(c *config.Config) *transport.Config {
	return &transport.Config{
		EnableTCP:       c.Transport.EnableTCP,
		EnableWebSocket: c.Transport.EnableWebSocket,
		DialTimeout:     c.Transport.DialTimeout.Duration(),
	}
}

func muxerConfig(c *config.Config) *muxer.Config {
	cfg := muxer.DefaultConfig()
	cfg.MaxStreamWindowSize = c.Muxer.MaxStreamWindowSize
	cfg.KeepAliveInterval = c.Muxer.KeepAliveInterval.Duration()
	cfg.MaxIncomingStreams = math.MaxUint32
	if c.Muxer.MaxIncomingStreams > 0 {
		cfg.MaxIncomingStreams = c.Muxer.MaxIncomingStreams
	}
	return &cfg
}

func swarmConfig(c *config.Config) *swarm.Config {
	cfg := swarm.DefaultConfig()
	cfg.DialTimeout = c.Transport.DialTimeout.Duration()
	cfg.MaxParallelDials = c.Transport.MaxParallelDials
	return &cfg
}

// hostConfig 解析监听地址，跳过未启用传输的地址
func hostConfig(c *config.Config) (*host.Config, error) {
	cfg := host.DefaultConfig()
	cfg.UserAgent = "meshnode/" + Version
	cfg.NegotiationTimeout = c.Security.NegotiateTimeout.Duration()
	cfg.ListenAddrs = nil
	for _, s := range c.Transport.ListenAddrs {
		m, err := ma.NewMultiaddr(s)
		if err != nil {
			return nil, fmt.Errorf("listen address %q: %w", s, err)
		}
		ws := ma.IsWebSocket(m)
		if (ws && !c.Transport.EnableWebSocket) || (!ws && !c.Transport.EnableTCP) {
			fxLogger.Warn("传输未启用，跳过监听地址", "addr", s)
			continue
		}
		cfg.ListenAddrs = append(cfg.ListenAddrs, m)
	}
	return &cfg, nil
}

func connmgrConfig(c *config.Config) *connmgr.Config {
	return &connmgr.Config{
		LowWater:     c.ConnMgr.LowWater,
		HighWater:    c.ConnMgr.HighWater,
		GracePeriod:  c.ConnMgr.GracePeriod.Duration(),
		TrimInterval: c.ConnMgr.TrimInterval.Duration(),
	}
}

func dnsaddrConfig(c *config.Config) *dnsaddr.Config {
	cfg := dnsaddr.DefaultConfig()
	cfg.Nameservers = c.Discovery.DNSAddr.Nameservers
	cfg.Timeout = c.Discovery.DNSAddr.Timeout.Duration()
	return &cfg
}

func dhtConfig(c *config.Config) (*dht.Config, error) {
	cfg := dht.DefaultConfig()
	mode, err := types.ParseDHTMode(c.Discovery.DHT.Mode)
	if err != nil {
		return nil, err
	}
	d := c.Discovery.DHT
	cfg.Mode = mode
	cfg.BucketSize = d.BucketSize
	cfg.Alpha = d.Alpha
	cfg.QueryTimeout = d.QueryTimeout.Duration()
	cfg.LookupTimeout = d.LookupTimeout.Duration()
	cfg.RefreshInterval = d.RefreshInterval.Duration()
	return &cfg, nil
}

// bootstrapConfig 解析引导地址，/dnsaddr 地址留给解析器在运行时展开
func bootstrapConfig(c *config.Config) (*bootstrap.Config, error) {
	peers, dnsaddrs, err := types.ParseAddrInfos(c.Discovery.BootstrapPeers)
	if err != nil {
		return nil, fmt.Errorf("bootstrap peers: %w", err)
	}
	b := c.Discovery.Bootstrap
	cfg := bootstrap.DefaultConfig()
	cfg.Peers = peers
	cfg.DNSAddrs = dnsaddrs
	cfg.MinPeers = b.MinPeers
	cfg.DialTimeout = b.DialTimeout.Duration()
	cfg.Concurrency = b.Concurrency
	cfg.RetryInterval = b.RetryInterval.Duration()
	cfg.UsePersistedPeers = b.UsePersistedPeers && c.Storage.Enabled()
	return &cfg, nil
}

func pubsubConfig(c *config.Config) *pubsub.Config {
	p := c.PubSub
	cfg := pubsub.DefaultConfig()
	cfg.D = p.D
	cfg.Dlo = p.Dlo
	cfg.Dhi = p.Dhi
	cfg.Dlazy = p.Dlazy
	cfg.HeartbeatInterval = p.HeartbeatInterval.Duration()
	cfg.FanoutTTL = p.FanoutTTL.Duration()
	cfg.SeenTTL = p.SeenTTL.Duration()
	cfg.MaxMessageSize = p.MaxMessageSize
	cfg.FloodPublish = p.FloodPublish
	cfg.SignMessages = p.SignMessages
	return &cfg
}
