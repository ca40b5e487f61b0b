package config

import (
	"errors"
	"time"
)

// ConnManagerConfig 连接管理配置
type ConnManagerConfig struct {
	// LowWater 低水位（最少连接数）
	// 低于此值时引导服务重新拨号
	LowWater int `json:"low_water"`

	// HighWater 高水位（最多连接数）
	// 超过此值时裁剪回 LowWater
	HighWater int `json:"high_water"`

	// GracePeriod 新连接保护期
	GracePeriod Duration `json:"grace_period"`

	// TrimInterval 周期裁剪间隔
	TrimInterval Duration `json:"trim_interval"`
}

// DefaultConnManagerConfig 返回默认连接管理配置
func DefaultConnManagerConfig() ConnManagerConfig {
	return ConnManagerConfig{
		LowWater:     5,
		HighWater:    10,
		GracePeriod:  Duration(20 * time.Second),
		TrimInterval: Duration(time.Minute),
	}
}

// Validate 验证连接管理配置
func (c ConnManagerConfig) Validate() error {
	if c.LowWater < 0 {
		return errors.New("low water cannot be negative")
	}
	if c.HighWater <= 0 {
		return errors.New("high water must be positive")
	}
	if c.LowWater > c.HighWater {
		return errors.New("low water must not exceed high water")
	}
	if c.GracePeriod < 0 {
		return errors.New("grace period cannot be negative")
	}
	if c.TrimInterval <= 0 {
		return errors.New("trim interval must be positive")
	}
	return nil
}
