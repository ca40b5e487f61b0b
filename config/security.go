package config

import (
	"errors"
	"time"
)

// SecurityConfig 安全通道配置
//
// 所有连接都使用 Noise XX 握手，这里只调整超时。
type SecurityConfig struct {
	// HandshakeTimeout Noise 握手超时
	HandshakeTimeout Duration `json:"handshake_timeout"`

	// NegotiateTimeout multistream 协商超时（安全协议、多路复用器、应用协议）
	NegotiateTimeout Duration `json:"negotiate_timeout"`
}

// DefaultSecurityConfig 返回默认安全配置
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		HandshakeTimeout: Duration(10 * time.Second),
		NegotiateTimeout: Duration(10 * time.Second),
	}
}

// Validate 验证安全配置
func (c SecurityConfig) Validate() error {
	if c.HandshakeTimeout <= 0 {
		return errors.New("handshake timeout must be positive")
	}
	if c.NegotiateTimeout <= 0 {
		return errors.New("negotiate timeout must be positive")
	}
	return nil
}

// MuxerConfig yamux 配置
type MuxerConfig struct {
	// MaxStreamWindowSize 单流最大接收窗口（字节）
	MaxStreamWindowSize uint32 `json:"max_stream_window_size"`

	// KeepAliveInterval 心跳间隔，0 关闭
	KeepAliveInterval Duration `json:"keep_alive_interval"`

	// MaxIncomingStreams 单连接最大入站流数，0 不限制
	MaxIncomingStreams uint32 `json:"max_incoming_streams,omitempty"`
}

// DefaultMuxerConfig 返回默认多路复用配置
func DefaultMuxerConfig() MuxerConfig {
	return MuxerConfig{
		MaxStreamWindowSize: 16 << 20,
		KeepAliveInterval:   Duration(30 * time.Second),
	}
}

// Validate 验证多路复用配置
func (c MuxerConfig) Validate() error {
	if c.MaxStreamWindowSize < 256<<10 {
		return errors.New("stream window must be at least 256KiB")
	}
	if c.KeepAliveInterval < 0 {
		return errors.New("keep-alive interval cannot be negative")
	}
	return nil
}
