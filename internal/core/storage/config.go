package storage

import (
	"errors"
	"time"
)

// Config Storage 模块配置
type Config struct {
	// Path BadgerDB 数据库目录，InMemory 为 false 时必需
	Path string

	// InMemory 内存模式（测试用）
	InMemory bool

	// SyncWrites 是否同步写入
	SyncWrites bool

	// GCInterval 值日志垃圾回收间隔，0 禁用
	GCInterval time.Duration

	// GCDiscardRatio 垃圾回收丢弃比例
	GCDiscardRatio float64
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		GCInterval:     10 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// Validate 验证配置
func (c Config) Validate() error {
	if !c.InMemory && c.Path == "" {
		return errors.New("storage: path is required unless in-memory")
	}
	if c.GCDiscardRatio < 0 || c.GCDiscardRatio >= 1 {
		return errors.New("storage: gc discard ratio must be in [0, 1)")
	}
	return nil
}
