package bootstrap

import (
	"errors"
	"time"

	ma "github.com/dep2p/go-meshnode/pkg/lib/multiaddr"
	"github.com/dep2p/go-meshnode/pkg/types"
)

// Config 引导配置
type Config struct {
	// Peers 引导节点
	Peers []types.AddrInfo

	// DNSAddrs 待解析的 /dnsaddr 地址
	DNSAddrs []ma.Multiaddr

	// MinPeers 连接数低于该值时重新引导
	MinPeers int

	// DialTimeout 单个节点拨号超时
	DialTimeout time.Duration

	// Concurrency 并行拨号数
	Concurrency int

	// RetryInterval 重试检查间隔，0 表示不重试
	RetryInterval time.Duration

	// UsePersistedPeers 是否尝试 Peerstore 中已知的节点
	UsePersistedPeers bool

	// MaxPersistedPeers 每次最多尝试的已知节点数
	MaxPersistedPeers int
}

// DefaultConfig 返回默认配置（不含任何引导节点）
func DefaultConfig() Config {
	return Config{
		MinPeers:          1,
		DialTimeout:       15 * time.Second,
		Concurrency:       8,
		RetryInterval:     30 * time.Second,
		UsePersistedPeers: true,
		MaxPersistedPeers: 16,
	}
}

// Validate 验证配置
func (c Config) Validate() error {
	if c.MinPeers < 0 {
		return errors.New("bootstrap: min peers cannot be negative")
	}
	if c.DialTimeout <= 0 {
		return errors.New("bootstrap: dial timeout must be positive")
	}
	if c.Concurrency <= 0 {
		return errors.New("bootstrap: concurrency must be positive")
	}
	if c.RetryInterval < 0 {
		return errors.New("bootstrap: retry interval cannot be negative")
	}
	if c.MaxPersistedPeers < 0 {
		return errors.New("bootstrap: max persisted peers cannot be negative")
	}
	for _, p := range c.Peers {
		if p.ID.IsEmpty() {
			return errors.New("bootstrap: peer ID cannot be empty")
		}
		if len(p.Addrs) == 0 {
			return errors.New("bootstrap: peer " + p.ID.ShortString() + " has no addresses")
		}
	}
	for _, a := range c.DNSAddrs {
		if !ma.HasProtocol(a, ma.P_DNSADDR) {
			return errors.New("bootstrap: " + a.String() + " is not a /dnsaddr address")
		}
	}
	return nil
}
