package dnsaddr

import (
	"errors"
	"time"
)

// Config dnsaddr 解析器配置
type Config struct {
	// Nameservers DNS 服务器地址（"ip:port"），为空时读取 ResolvConf
	Nameservers []string

	// ResolvConf resolv.conf 路径
	ResolvConf string

	// Timeout 单次 TXT 查询超时
	Timeout time.Duration

	// MaxDepth 嵌套 /dnsaddr 最大递归深度
	MaxDepth int

	// CacheSize 缓存的域名数量
	CacheSize int

	// CacheTTL 缓存 TTL，0 表示不缓存
	CacheTTL time.Duration
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		ResolvConf: "/etc/resolv.conf",
		Timeout:    5 * time.Second,
		MaxDepth:   4,
		CacheSize:  128,
		CacheTTL:   5 * time.Minute,
	}
}

// Validate 验证配置
func (c Config) Validate() error {
	if c.Timeout <= 0 {
		return errors.New("dnsaddr: timeout must be positive")
	}
	if c.MaxDepth < 1 || c.MaxDepth > 10 {
		return errors.New("dnsaddr: max depth must be in [1, 10]")
	}
	if c.CacheTTL < 0 {
		return errors.New("dnsaddr: cache TTL must be non-negative")
	}
	if c.CacheTTL > 0 && c.CacheSize <= 0 {
		return errors.New("dnsaddr: cache size must be positive when caching")
	}
	if len(c.Nameservers) == 0 && c.ResolvConf == "" {
		return errors.New("dnsaddr: no nameservers and no resolv.conf")
	}
	return nil
}
