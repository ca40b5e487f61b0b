package config

import (
	"errors"
	"net"

	"github.com/dep2p/go-meshnode/pkg/lib/log"
)

// MetricsConfig 指标配置
type MetricsConfig struct {
	// Enabled 是否收集 Prometheus 指标
	Enabled bool `json:"enabled"`

	// ListenAddr /metrics HTTP 监听地址（如 "127.0.0.1:9090"），为空不暴露
	ListenAddr string `json:"listen_addr,omitempty"`
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{Enabled: true}
}

// Validate 验证指标配置
func (c MetricsConfig) Validate() error {
	if c.ListenAddr == "" {
		return nil
	}
	if !c.Enabled {
		return errors.New("listen_addr set but metrics disabled")
	}
	if _, _, err := net.SplitHostPort(c.ListenAddr); err != nil {
		return err
	}
	return nil
}

// LogConfig 日志配置
type LogConfig struct {
	// Level 级别规格，如 "info" 或 "dht=debug,info"
	Level string `json:"level"`

	// Format 输出格式："text" 或 "json"
	Format string `json:"format"`
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{Level: "info", Format: "text"}
}

// Validate 验证日志配置
func (c LogConfig) Validate() error {
	switch c.Format {
	case "", "text", "json":
	default:
		return errors.New("log format must be text or json")
	}
	_, err := log.ParseLevels(c.Level)
	return err
}

// Levels 解析级别规格
func (c LogConfig) Levels() (log.Levels, error) {
	return log.ParseLevels(c.Level)
}
