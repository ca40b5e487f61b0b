package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// TransportConfig 传输层配置
//
// 支持 TCP 和 WebSocket 两种传输，至少启用一种。
type TransportConfig struct {
	// ListenAddrs 监听地址（multiaddr 文本形式）
	ListenAddrs []string `json:"listen_addrs"`

	// EnableTCP 是否启用 TCP
	EnableTCP bool `json:"enable_tcp"`

	// EnableWebSocket 是否启用 WebSocket（/ws）
	EnableWebSocket bool `json:"enable_websocket"`

	// DialTimeout 单次拨号超时
	DialTimeout Duration `json:"dial_timeout"`

	// MaxParallelDials 单个节点的并发地址拨号数
	MaxParallelDials int `json:"max_parallel_dials"`
}

// DefaultTransportConfig 返回默认传输配置
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		ListenAddrs: []string{
			"/ip4/0.0.0.0/tcp/4001",
			"/ip4/0.0.0.0/tcp/4002/ws",
		},
		EnableTCP:        true,
		EnableWebSocket:  true,
		DialTimeout:      Duration(15 * time.Second),
		MaxParallelDials: 8,
	}
}

// Validate 验证传输配置
func (c TransportConfig) Validate() error {
	if !c.EnableTCP && !c.EnableWebSocket {
		return errors.New("at least one transport must be enabled")
	}
	if c.DialTimeout <= 0 {
		return errors.New("dial timeout must be positive")
	}
	if c.MaxParallelDials <= 0 {
		return errors.New("max parallel dials must be positive")
	}
	for _, a := range c.ListenAddrs {
		if !strings.HasPrefix(a, "/") {
			return fmt.Errorf("invalid listen address %q", a)
		}
	}
	return nil
}
