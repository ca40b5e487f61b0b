package config

import (
	"path/filepath"
)

// StorageConfig 存储配置
//
// 配置了 DataDir 时，已知节点地址持久化到 BadgerDB：
//
//	${DataDir}/
//	└── peers.db/        # BadgerDB 数据库
//
// DataDir 为空时节点不落盘。
type StorageConfig struct {
	// DataDir 数据目录
	DataDir string `json:"data_dir"`

	// SyncWrites 是否同步写入
	SyncWrites bool `json:"sync_writes,omitempty"`
}

// DefaultStorageConfig 返回默认存储配置（不持久化）
func DefaultStorageConfig() StorageConfig {
	return StorageConfig{}
}

// Validate 验证存储配置
func (c StorageConfig) Validate() error {
	return nil
}

// Enabled 是否启用持久化
func (c StorageConfig) Enabled() bool {
	return c.DataDir != ""
}

// DBPath 返回 BadgerDB 数据库路径
func (c StorageConfig) DBPath() string {
	return filepath.Join(c.DataDir, "peers.db")
}
