package config

import (
	"errors"
	"time"
)

// PubSubConfig 发布订阅配置
//
// mesh 度数约束：0 < Dlo <= D <= Dhi。
type PubSubConfig struct {
	// D 目标 mesh 度数
	D int `json:"d"`
	// Dlo mesh 度数下限，低于时心跳 GRAFT
	Dlo int `json:"dlo"`
	// Dhi mesh 度数上限，高于时心跳 PRUNE
	Dhi int `json:"dhi"`
	// Dlazy 每次心跳 IHAVE 的目标节点数
	Dlazy int `json:"dlazy"`

	// HeartbeatInterval 心跳间隔
	HeartbeatInterval Duration `json:"heartbeat_interval"`

	// FanoutTTL 未订阅主题的 fanout 保留时间
	FanoutTTL Duration `json:"fanout_ttl"`

	// SeenTTL 去重缓存保留时间
	SeenTTL Duration `json:"seen_ttl"`

	// MaxMessageSize 单条消息负载上限
	MaxMessageSize int `json:"max_message_size"`

	// FloodPublish 自己发布的消息发给所有订阅节点而非只发 mesh
	FloodPublish bool `json:"flood_publish"`

	// SignMessages 是否签名并校验消息
	SignMessages bool `json:"sign_messages"`
}

// DefaultPubSubConfig 返回默认发布订阅配置
func DefaultPubSubConfig() PubSubConfig {
	return PubSubConfig{
		D:                 6,
		Dlo:               4,
		Dhi:               12,
		Dlazy:             6,
		HeartbeatInterval: Duration(time.Second),
		FanoutTTL:         Duration(time.Minute),
		SeenTTL:           Duration(2 * time.Minute),
		MaxMessageSize:    1 << 20,
		FloodPublish:      true,
		SignMessages:      true,
	}
}

// Validate 验证发布订阅配置
func (c PubSubConfig) Validate() error {
	if c.Dlo <= 0 || c.Dlo > c.D || c.D > c.Dhi {
		return errors.New("mesh degree must satisfy 0 < dlo <= d <= dhi")
	}
	if c.Dlazy < 0 {
		return errors.New("dlazy cannot be negative")
	}
	if c.HeartbeatInterval <= 0 {
		return errors.New("heartbeat interval must be positive")
	}
	if c.FanoutTTL <= 0 || c.SeenTTL <= 0 {
		return errors.New("fanout and seen TTL must be positive")
	}
	if c.MaxMessageSize <= 0 {
		return errors.New("max message size must be positive")
	}
	return nil
}
