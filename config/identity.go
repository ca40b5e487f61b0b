package config

import (
	"errors"
	"path/filepath"
)

// IdentityConfig 身份配置
type IdentityConfig struct {
	// KeyFile PEM 私钥文件路径
	//
	// 文件不存在时生成新密钥并写入；为空时使用临时身份，每次启动 PeerID 都会变化。
	KeyFile string `json:"key_file"`
}

// DefaultIdentityConfig 返回默认身份配置
func DefaultIdentityConfig() IdentityConfig {
	return IdentityConfig{}
}

// Validate 验证身份配置
func (c IdentityConfig) Validate() error {
	if c.KeyFile != "" && filepath.Base(c.KeyFile) == "." {
		return errors.New("invalid key file path")
	}
	return nil
}

// Ephemeral 是否使用临时身份
func (c IdentityConfig) Ephemeral() bool {
	return c.KeyFile == ""
}
