package pubsub

import "errors"

// 错误定义
var (
	// ErrClosed 服务已关闭
	ErrClosed = errors.New("pubsub: closed")

	// ErrEmptyTopic 主题名为空
	ErrEmptyTopic = errors.New("pubsub: empty topic")

	// ErrMessageTooLarge 消息超过 MaxMessageSize
	ErrMessageTooLarge = errors.New("pubsub: message too large")

	// ErrNoPeers 没有可发送的节点（仅在 AllowPublishToZeroPeers=false 时返回）
	ErrNoPeers = errors.New("pubsub: no peers to publish to")

	// ErrSubscriptionCancelled 订阅已取消
	ErrSubscriptionCancelled = errors.New("pubsub: subscription cancelled")

	// ErrInvalidSignature 签名无效或缺失
	ErrInvalidSignature = errors.New("pubsub: invalid signature")

	// ErrInvalidMessage 消息字段无效
	ErrInvalidMessage = errors.New("pubsub: invalid message")
)
