package host

import (
	"errors"
	"time"

	ma "github.com/dep2p/go-meshnode/pkg/lib/multiaddr"
)

// Config Host 配置
type Config struct {
	// ListenAddrs 启动时监听的地址
	ListenAddrs []ma.Multiaddr

	// UserAgent 用户代理标识，通过 identify 协议告知对端
	UserAgent string

	// ProtocolVersion 协议版本
	ProtocolVersion string

	// NegotiationTimeout 协议协商超时
	NegotiationTimeout time.Duration

	// AddrsFactory 对外地址过滤器
	AddrsFactory AddrsFactory
}

// AddrsFactory 地址工厂函数，用于过滤或转换对外地址
type AddrsFactory func([]ma.Multiaddr) []ma.Multiaddr

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		ListenAddrs: []ma.Multiaddr{
			ma.StringCast("/ip4/0.0.0.0/tcp/4001"),
			ma.StringCast("/ip4/0.0.0.0/tcp/4002/ws"),
		},
		UserAgent:          "meshnode/0.1.0",
		ProtocolVersion:    "meshnode/1.0.0",
		NegotiationTimeout: 10 * time.Second,
		AddrsFactory:       DefaultAddrsFactory,
	}
}

// DefaultAddrsFactory 默认地址工厂（不过滤）
func DefaultAddrsFactory(addrs []ma.Multiaddr) []ma.Multiaddr {
	return addrs
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.UserAgent == "" {
		return errors.New("host: UserAgent cannot be empty")
	}
	if c.ProtocolVersion == "" {
		return errors.New("host: ProtocolVersion cannot be empty")
	}
	if c.NegotiationTimeout < 0 {
		return errors.New("host: NegotiationTimeout cannot be negative")
	}
	if c.AddrsFactory == nil {
		c.AddrsFactory = DefaultAddrsFactory
	}
	return nil
}
