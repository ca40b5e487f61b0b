package connmgr

import (
	"fmt"
	"time"
)

// Config 连接管理器配置
type Config struct {
	// LowWater 低水位（目标连接数）
	LowWater int

	// HighWater 高水位（触发回收）
	HighWater int

	// GracePeriod 新连接保护期
	GracePeriod time.Duration

	// TrimInterval 裁剪检查间隔
	TrimInterval time.Duration
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		LowWater:     5,
		HighWater:    10,
		GracePeriod:  20 * time.Second,
		TrimInterval: time.Minute,
	}
}

// Validate 验证配置
func (c Config) Validate() error {
	if c.LowWater < 0 {
		return fmt.Errorf("%w: LowWater must be >= 0", ErrInvalidConfig)
	}
	if c.HighWater <= 0 || c.HighWater < c.LowWater {
		return fmt.Errorf("%w: HighWater must be > 0 and >= LowWater", ErrInvalidConfig)
	}
	if c.GracePeriod < 0 {
		return fmt.Errorf("%w: GracePeriod must be >= 0", ErrInvalidConfig)
	}
	if c.TrimInterval <= 0 {
		return fmt.Errorf("%w: TrimInterval must be > 0", ErrInvalidConfig)
	}
	return nil
}

// WithLimits 设置水位
func (c Config) WithLimits(low, high int) Config {
	c.LowWater = low
	c.HighWater = high
	return c
}

// WithGracePeriod 设置保护期
func (c Config) WithGracePeriod(period time.Duration) Config {
	c.GracePeriod = period
	return c
}
