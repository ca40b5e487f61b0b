package meshnode

import (
	"errors"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/dep2p/go-meshnode/config"
	"github.com/dep2p/go-meshnode/pkg/lib/crypto"
	"github.com/dep2p/go-meshnode/pkg/types"
)

// Option 节点配置选项
type Option func(*nodeConfig) error

// nodeConfig 选项应用后的节点配置
type nodeConfig struct {
	// config 可序列化的配置
	config *config.Config

	// privateKey 直接注入的私钥，优先于 Identity.KeyFile
	privateKey crypto.PrivateKey

	// registry 外部 Prometheus 注册表
	registry *prometheus.Registry

	// userFxOptions 用户追加的 fx 选项
	userFxOptions []fx.Option
}

func newNodeConfig() *nodeConfig {
	return &nodeConfig{config: config.NewConfig()}
}

// ════════════════════════════════════════════════════════════════════════════
//                              整体配置
// ════════════════════════════════════════════════════════════════════════════

// WithConfig 使用完整配置替换默认值
//
// 应作为第一个选项传入，后续选项在其基础上修改。
func WithConfig(cfg *config.Config) Option {
	return func(nc *nodeConfig) error {
		if cfg == nil {
			return errors.New("config is nil")
		}
		nc.config = cfg.Clone()
		return nil
	}
}

// WithFxOptions 追加 fx 选项，用于注入或替换组件
func WithFxOptions(opts ...fx.Option) Option {
	return func(nc *nodeConfig) error {
		nc.userFxOptions = append(nc.userFxOptions, opts...)
		return nil
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              身份
// ════════════════════════════════════════════════════════════════════════════

// WithIdentityKeyFile 从 PEM 文件加载身份，文件不存在时生成并写入
func WithIdentityKeyFile(path string) Option {
	return func(nc *nodeConfig) error {
		if path == "" {
			return errors.New("identity key file path is empty")
		}
		nc.config.Identity.KeyFile = path
		return nil
	}
}

// WithPrivateKey 使用给定私钥
func WithPrivateKey(priv crypto.PrivateKey) Option {
	return func(nc *nodeConfig) error {
		if priv == nil {
			return crypto.ErrNilPrivateKey
		}
		nc.privateKey = priv
		return nil
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              网络
// ════════════════════════════════════════════════════════════════════════════

// WithListenAddrs 设置监听地址，替换默认值
//
//	meshnode.WithListenAddrs("/ip4/0.0.0.0/tcp/4001", "/ip4/0.0.0.0/tcp/4002/ws")
func WithListenAddrs(addrs ...string) Option {
	return func(nc *nodeConfig) error {
		for _, a := range addrs {
			if !strings.HasPrefix(a, "/") {
				return fmt.Errorf("invalid listen address %q", a)
			}
		}
		nc.config.Transport.ListenAddrs = append([]string(nil), addrs...)
		return nil
	}
}

// WithBootstrapPeers 设置引导节点
//
// 支持 /…/p2p/<id> 与 /dnsaddr/<domain> 两种形式。
func WithBootstrapPeers(addrs ...string) Option {
	return func(nc *nodeConfig) error {
		if _, _, err := types.ParseAddrInfos(addrs); err != nil {
			return err
		}
		nc.config.Discovery.BootstrapPeers = append([]string(nil), addrs...)
		return nil
	}
}

// WithConnectionLimits 设置连接数上下限
func WithConnectionLimits(low, high int) Option {
	return func(nc *nodeConfig) error {
		if low < 0 || high <= 0 || low > high {
			return fmt.Errorf("invalid connection limits [%d, %d]", low, high)
		}
		nc.config.ConnMgr.LowWater = low
		nc.config.ConnMgr.HighWater = high
		return nil
	}
}

// WithDHTMode 设置 DHT 模式并启用 DHT
func WithDHTMode(mode types.DHTMode) Option {
	return func(nc *nodeConfig) error {
		switch mode {
		case types.DHTModeServer, types.DHTModeClient:
		default:
			return fmt.Errorf("invalid dht mode %d", mode)
		}
		nc.config.Discovery.DHT.Enabled = true
		nc.config.Discovery.DHT.Mode = mode.String()
		return nil
	}
}

// WithoutDHT 禁用 DHT，仅依赖引导节点
func WithoutDHT() Option {
	return func(nc *nodeConfig) error {
		nc.config.Discovery.DHT.Enabled = false
		return nil
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              发布订阅
// ════════════════════════════════════════════════════════════════════════════

// WithPubSubParams 设置 mesh 参数
func WithPubSubParams(p config.PubSubConfig) Option {
	return func(nc *nodeConfig) error {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("pubsub params: %w", err)
		}
		nc.config.PubSub = p
		return nil
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              存储与指标
// ════════════════════════════════════════════════════════════════════════════

// WithDataDir 启用持久化，已知节点地址写入 dir 下的 BadgerDB
func WithDataDir(dir string) Option {
	return func(nc *nodeConfig) error {
		if dir == "" {
			return errors.New("data dir is empty")
		}
		nc.config.Storage.DataDir = dir
		return nil
	}
}

// WithMetricsRegistry 把指标注册到给定注册表
func WithMetricsRegistry(reg *prometheus.Registry) Option {
	return func(nc *nodeConfig) error {
		if reg == nil {
			return errors.New("metrics registry is nil")
		}
		nc.config.Metrics.Enabled = true
		nc.registry = reg
		return nil
	}
}

// WithoutMetrics 不收集指标
func WithoutMetrics() Option {
	return func(nc *nodeConfig) error {
		nc.config.Metrics.Enabled = false
		nc.config.Metrics.ListenAddr = ""
		nc.registry = nil
		return nil
	}
}
