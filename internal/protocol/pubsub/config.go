package pubsub

import (
	"errors"
	"time"

	"golang.org/x/time/rate"

	"github.com/dep2p/go-meshnode/pkg/protocolids"
)

// ProtocolID pubsub 协议 ID
const ProtocolID = protocolids.PubSub

// maxRPCSize 单个 RPC 帧上限
const maxRPCSize = 10 << 20

// ============================================================================
//                              配置
// ============================================================================

// Config pubsub 配置
type Config struct {
	// ==================== Mesh 参数 ====================

	// D 目标 mesh 度数
	D int

	// Dlo mesh 度数下限，低于此值心跳触发 GRAFT
	Dlo int

	// Dhi mesh 度数上限，超过此值心跳触发 PRUNE
	Dhi int

	// Dlazy 每次心跳发送 IHAVE 的节点数
	Dlazy int

	// ==================== 时间参数 ====================

	// HeartbeatInterval 心跳间隔
	HeartbeatInterval time.Duration

	// HeartbeatInitialDelay 首次心跳延迟
	HeartbeatInitialDelay time.Duration

	// FanoutTTL 未再发布的 fanout 主题保留时长
	FanoutTTL time.Duration

	// SeenTTL 已见消息 ID 保留时长
	SeenTTL time.Duration

	// PruneBackoff PRUNE 后不再 GRAFT 的时长
	PruneBackoff time.Duration

	// UnsubscribeBackoff 取消订阅时 PRUNE 携带的退避
	UnsubscribeBackoff time.Duration

	// SendTimeout 单个 RPC 的发送超时
	SendTimeout time.Duration

	// ==================== 消息缓存 ====================

	// HistoryLength 消息缓存保留的心跳窗口数
	HistoryLength int

	// HistoryGossip IHAVE 覆盖的最近窗口数
	HistoryGossip int

	// SeenCacheSize 已见消息缓存容量
	SeenCacheSize int

	// MaxIHaveLength 单个 IHAVE 携带的消息 ID 上限
	MaxIHaveLength int

	// ==================== 消息参数 ====================

	// MaxMessageSize 负载上限
	MaxMessageSize int

	// FloodPublish 本地发布的消息发给所有订阅了主题的节点
	FloodPublish bool

	// AllowPublishToZeroPeers 没有节点时发布不报错
	AllowPublishToZeroPeers bool

	// SignMessages 签名本地消息并拒绝未签名的消息
	SignMessages bool

	// ==================== 资源限制 ====================

	// SubscriptionBuffer 每个订阅的消息缓冲，满时丢弃
	SubscriptionBuffer int

	// PeerQueueSize 每个节点的发送队列长度，满时丢弃
	PeerQueueSize int

	// InboundRPCRate 每个节点每秒接收的 RPC 数，0 表示不限
	InboundRPCRate rate.Limit

	// InboundRPCBurst 入站 RPC 突发上限
	InboundRPCBurst int
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		D:     6,
		Dlo:   4,
		Dhi:   12,
		Dlazy: 6,

		HeartbeatInterval:     time.Second,
		HeartbeatInitialDelay: 100 * time.Millisecond,
		FanoutTTL:             60 * time.Second,
		SeenTTL:               2 * time.Minute,
		PruneBackoff:          time.Minute,
		UnsubscribeBackoff:    10 * time.Second,
		SendTimeout:           10 * time.Second,

		HistoryLength:  5,
		HistoryGossip:  3,
		SeenCacheSize:  100000,
		MaxIHaveLength: 5000,

		MaxMessageSize:          1 << 20,
		FloodPublish:            true,
		AllowPublishToZeroPeers: true,
		SignMessages:            true,

		SubscriptionBuffer: 32,
		PeerQueueSize:      64,
		InboundRPCRate:     100,
		InboundRPCBurst:    200,
	}
}

// Validate 验证配置
func (c Config) Validate() error {
	if c.D <= 0 {
		return errors.New("pubsub: D must be positive")
	}
	if c.Dlo > c.D || c.Dhi < c.D {
		return errors.New("pubsub: require Dlo <= D <= Dhi")
	}
	if c.Dlo < 0 || c.Dlazy < 0 {
		return errors.New("pubsub: Dlo and Dlazy cannot be negative")
	}
	if c.HeartbeatInterval <= 0 {
		return errors.New("pubsub: heartbeat interval must be positive")
	}
	if c.HeartbeatInitialDelay < 0 {
		return errors.New("pubsub: heartbeat initial delay cannot be negative")
	}
	if c.SeenTTL <= 0 || c.SeenCacheSize <= 0 {
		return errors.New("pubsub: seen cache TTL and size must be positive")
	}
	if c.HistoryLength <= 0 || c.HistoryGossip <= 0 || c.HistoryGossip > c.HistoryLength {
		return errors.New("pubsub: require 0 < HistoryGossip <= HistoryLength")
	}
	if c.MaxMessageSize <= 0 || c.MaxMessageSize > maxRPCSize {
		return errors.New("pubsub: max message size out of range")
	}
	if c.SendTimeout <= 0 {
		return errors.New("pubsub: send timeout must be positive")
	}
	if c.SubscriptionBuffer <= 0 || c.PeerQueueSize <= 0 {
		return errors.New("pubsub: buffer sizes must be positive")
	}
	if c.InboundRPCRate < 0 || (c.InboundRPCRate > 0 && c.InboundRPCBurst <= 0) {
		return errors.New("pubsub: invalid inbound rate limit")
	}
	return nil
}
