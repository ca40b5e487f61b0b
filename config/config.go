// Package config 提供 meshnode 的统一配置
//
// 主 Config 结构体嵌入所有子配置，每个子配置在独立文件中定义：
//   - 支持从 JSON 文件加载与保存
//   - 支持 MESHNODE_ 前缀的环境变量覆盖
//   - 不包含任何内置引导节点，引导地址必须由配置提供
//
// 使用示例：
//
//	cfg, err := config.LoadFile("meshnode.json")
//	if err != nil {
//	    return err
//	}
//	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
//	    return err
//	}
//	cfg.ConnMgr.HighWater = 20
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Config 是 meshnode 的完整配置结构
type Config struct {
	// Identity 身份配置
	Identity IdentityConfig `json:"identity"`

	// Transport 传输层配置
	Transport TransportConfig `json:"transport"`

	// Security 安全通道配置
	Security SecurityConfig `json:"security"`

	// Muxer 多路复用配置
	Muxer MuxerConfig `json:"muxer"`

	// ConnMgr 连接管理配置
	ConnMgr ConnManagerConfig `json:"conn_mgr"`

	// Discovery 节点发现配置（引导、DHT、dnsaddr）
	Discovery DiscoveryConfig `json:"discovery"`

	// PubSub 发布订阅配置
	PubSub PubSubConfig `json:"pubsub"`

	// Storage 持久化配置
	Storage StorageConfig `json:"storage"`

	// Metrics 指标配置
	Metrics MetricsConfig `json:"metrics"`

	// Log 日志配置
	Log LogConfig `json:"log"`
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	return &Config{
		Identity:  DefaultIdentityConfig(),
		Transport: DefaultTransportConfig(),
		Security:  DefaultSecurityConfig(),
		Muxer:     DefaultMuxerConfig(),
		ConnMgr:   DefaultConnManagerConfig(),
		Discovery: DefaultDiscoveryConfig(),
		PubSub:    DefaultPubSubConfig(),
		Storage:   DefaultStorageConfig(),
		Metrics:   DefaultMetricsConfig(),
		Log:       DefaultLogConfig(),
	}
}

// subConfig 可独立验证的子配置
type subConfig interface {
	Validate() error
}

// Validate 验证配置的有效性
//
// 返回第一个无效子配置的错误，错误信息带有子配置名。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	subs := []struct {
		name string
		cfg  subConfig
	}{
		{"identity", c.Identity},
		{"transport", c.Transport},
		{"security", c.Security},
		{"muxer", c.Muxer},
		{"conn_mgr", c.ConnMgr},
		{"discovery", c.Discovery},
		{"pubsub", c.PubSub},
		{"storage", c.Storage},
		{"metrics", c.Metrics},
		{"log", c.Log},
	}
	for _, s := range subs {
		if err := s.cfg.Validate(); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return nil
}

// Clone 深拷贝配置
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	out := *c
	out.Transport.ListenAddrs = append([]string(nil), c.Transport.ListenAddrs...)
	out.Discovery.BootstrapPeers = append([]string(nil), c.Discovery.BootstrapPeers...)
	out.Discovery.DNSAddr.Nameservers = append([]string(nil), c.Discovery.DNSAddr.Nameservers...)
	return &out
}

// ============================================================================
//                              JSON 读写
// ============================================================================

// FromJSON 从 JSON 数据创建配置
//
// 未出现的字段保留默认值。
//
// 示例 JSON:
//
//	{
//	  "transport": {"listen_addrs": ["/ip4/0.0.0.0/tcp/4001"]},
//	  "discovery": {"bootstrap_peers": ["/ip4/10.0.0.1/tcp/4001/p2p/..."]},
//	  "conn_mgr": {"low_water": 5, "high_water": 10}
//	}
func FromJSON(data []byte) (*Config, error) {
	cfg := NewConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

// ToJSON 序列化配置
func (c *Config) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// LoadFile 从 JSON 文件加载配置
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	cfg, err := FromJSON(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// SaveFile 把配置写入 JSON 文件
func (c *Config) SaveFile(path string) error {
	data, err := c.ToJSON()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
