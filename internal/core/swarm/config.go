package swarm

import (
	"time"

	pkgif "github.com/dep2p/go-meshnode/pkg/interfaces"
)

// Config Swarm 配置
type Config struct {
	// DialTimeout 单次拨号（含升级）超时
	DialTimeout time.Duration

	// NewStreamTimeout 打开流超时
	NewStreamTimeout time.Duration

	// MaxParallelDials 单个节点的最大并发地址拨号数
	MaxParallelDials int
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		DialTimeout:      15 * time.Second,
		NewStreamTimeout: 15 * time.Second,
		MaxParallelDials: 8,
	}
}

// Validate 验证配置
func (c Config) Validate() error {
	if c.DialTimeout <= 0 || c.NewStreamTimeout <= 0 || c.MaxParallelDials <= 0 {
		return ErrInvalidConfig
	}
	return nil
}

// Option Swarm 选项
type Option func(*Swarm) error

// WithConfig 设置配置
func WithConfig(cfg Config) Option {
	return func(s *Swarm) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		s.config = cfg
		return nil
	}
}

// WithEventBus 设置事件总线
func WithEventBus(bus pkgif.EventBus) Option {
	return func(s *Swarm) error {
		s.eventbus = bus
		return nil
	}
}
