package dht

import (
	"errors"
	"time"

	"github.com/dep2p/go-meshnode/pkg/protocolids"
	"github.com/dep2p/go-meshnode/pkg/types"
)

// ============================================================================
//                              常量定义
// ============================================================================

const (
	// ProtocolID DHT 协议
	ProtocolID = protocolids.DHT

	// KeySize ID 位数，也是桶的数量
	KeySize = 256

	// BucketSize 默认桶容量 K
	BucketSize = 20

	// Alpha 默认查找并发度
	Alpha = 3

	// maxMessageSize 单条 DHT 消息上限
	maxMessageSize = 1 << 20
)

// Config DHT 配置
type Config struct {
	// Mode 运行模式
	Mode types.DHTMode

	// BucketSize 每个桶的容量 K
	BucketSize int

	// Alpha 每轮并行查询数
	Alpha int

	// MaxRounds 单次查找的最大轮数
	MaxRounds int

	// QueryTimeout 单个 RPC 超时
	QueryTimeout time.Duration

	// LookupTimeout 调用方未设置截止时间时的查找超时
	LookupTimeout time.Duration

	// RefreshInterval 路由表刷新间隔，0 表示不刷新
	RefreshInterval time.Duration

	// MaxRefreshLookups 每次刷新最多查找的桶数
	MaxRefreshLookups int
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Mode:              types.DHTModeServer,
		BucketSize:        BucketSize,
		Alpha:             Alpha,
		MaxRounds:         20,
		QueryTimeout:      10 * time.Second,
		LookupTimeout:     30 * time.Second,
		RefreshInterval:   10 * time.Minute,
		MaxRefreshLookups: 16,
	}
}

// Validate 验证配置
func (c Config) Validate() error {
	if c.Mode != types.DHTModeServer && c.Mode != types.DHTModeClient {
		return errors.New("dht: invalid mode")
	}
	if c.BucketSize <= 0 {
		return errors.New("dht: bucket size must be positive")
	}
	if c.Alpha <= 0 {
		return errors.New("dht: alpha must be positive")
	}
	if c.MaxRounds <= 0 {
		return errors.New("dht: max rounds must be positive")
	}
	if c.QueryTimeout <= 0 || c.LookupTimeout <= 0 {
		return errors.New("dht: timeouts must be positive")
	}
	if c.RefreshInterval < 0 {
		return errors.New("dht: refresh interval must be non-negative")
	}
	return nil
}
