package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DiscoveryConfig 节点发现配置
//
// 引导节点没有内置默认值，必须由配置文件、环境变量或命令行提供。
type DiscoveryConfig struct {
	// BootstrapPeers 引导节点地址
	// 形如 /ip4/1.2.3.4/tcp/4001/p2p/<id> 或 /dnsaddr/bootstrap.example.org
	BootstrapPeers []string `json:"bootstrap_peers"`

	// Bootstrap 引导参数
	Bootstrap BootstrapConfig `json:"bootstrap"`

	// DHT Kademlia 配置
	DHT DHTConfig `json:"dht"`

	// DNSAddr /dnsaddr 解析配置
	DNSAddr DNSAddrConfig `json:"dnsaddr"`
}

// BootstrapConfig 引导参数
type BootstrapConfig struct {
	// MinPeers 连接数低于该值时重新引导
	MinPeers int `json:"min_peers"`

	// DialTimeout 单个引导节点拨号超时
	DialTimeout Duration `json:"dial_timeout"`

	// Concurrency 并行拨号数
	Concurrency int `json:"concurrency"`

	// RetryInterval 重试间隔，0 不重试
	RetryInterval Duration `json:"retry_interval"`

	// UsePersistedPeers 是否尝试持久化的已知节点
	UsePersistedPeers bool `json:"use_persisted_peers"`
}

// DHTConfig DHT 配置
type DHTConfig struct {
	// Enabled 是否启用 DHT
	Enabled bool `json:"enabled"`

	// Mode 运行模式："server" 或 "client"
	Mode string `json:"mode"`

	// BucketSize K 桶容量
	BucketSize int `json:"bucket_size"`

	// Alpha 每轮并发查询数
	Alpha int `json:"alpha"`

	// QueryTimeout 单个 RPC 超时
	QueryTimeout Duration `json:"query_timeout"`

	// LookupTimeout 单次查找超时，超时返回部分结果
	LookupTimeout Duration `json:"lookup_timeout"`

	// RefreshInterval 路由表刷新间隔，0 不刷新
	RefreshInterval Duration `json:"refresh_interval"`
}

// DNSAddrConfig /dnsaddr 解析配置
type DNSAddrConfig struct {
	// Nameservers DNS 服务器（"ip:port"），为空时读取 /etc/resolv.conf
	Nameservers []string `json:"nameservers,omitempty"`

	// Timeout 单次 TXT 查询超时
	Timeout Duration `json:"timeout"`
}

// DefaultDiscoveryConfig 返回默认发现配置
func DefaultDiscoveryConfig() DiscoveryConfig {
	return DiscoveryConfig{
		Bootstrap: BootstrapConfig{
			MinPeers:          1,
			DialTimeout:       Duration(15 * time.Second),
			Concurrency:       8,
			RetryInterval:     Duration(30 * time.Second),
			UsePersistedPeers: true,
		},
		DHT: DHTConfig{
			Enabled:         true,
			Mode:            "server",
			BucketSize:      20,
			Alpha:           3,
			QueryTimeout:    Duration(10 * time.Second),
			LookupTimeout:   Duration(30 * time.Second),
			RefreshInterval: Duration(10 * time.Minute),
		},
		DNSAddr: DNSAddrConfig{
			Timeout: Duration(5 * time.Second),
		},
	}
}

// Validate 验证发现配置
func (c DiscoveryConfig) Validate() error {
	for _, p := range c.BootstrapPeers {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("invalid bootstrap peer %q", p)
		}
	}

	b := c.Bootstrap
	if b.MinPeers < 0 {
		return errors.New("bootstrap min peers cannot be negative")
	}
	if b.DialTimeout <= 0 {
		return errors.New("bootstrap dial timeout must be positive")
	}
	if b.Concurrency <= 0 {
		return errors.New("bootstrap concurrency must be positive")
	}
	if b.RetryInterval < 0 {
		return errors.New("bootstrap retry interval cannot be negative")
	}

	if c.DHT.Enabled {
		switch strings.ToLower(c.DHT.Mode) {
		case "", "server", "client":
		default:
			return fmt.Errorf("unknown dht mode %q", c.DHT.Mode)
		}
		if c.DHT.BucketSize <= 0 || c.DHT.Alpha <= 0 {
			return errors.New("dht bucket size and alpha must be positive")
		}
		if c.DHT.QueryTimeout <= 0 || c.DHT.LookupTimeout <= 0 {
			return errors.New("dht timeouts must be positive")
		}
		if c.DHT.RefreshInterval < 0 {
			return errors.New("dht refresh interval cannot be negative")
		}
	}

	if c.DNSAddr.Timeout <= 0 {
		return errors.New("dnsaddr timeout must be positive")
	}
	return nil
}
