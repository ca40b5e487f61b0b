// Package interfaces 定义 meshnode 公共接口
//
// 本文件定义发布订阅接口。
package interfaces

import (
	"context"

	"github.com/dep2p/go-meshnode/pkg/types"
)

// TopicSubscription 主题订阅
type TopicSubscription interface {
	// Topic 返回主题名
	Topic() string

	// Next 阻塞直到下一条消息
	Next(ctx context.Context) (*types.Message, error)

	// Cancel 取消订阅
	Cancel()
}

// PubSub 发布订阅服务
type PubSub interface {
	// Subscribe 订阅主题并向已连接节点宣告
	Subscribe(topic string) (TopicSubscription, error)

	// Publish 发布消息，零个对端不是错误
	Publish(ctx context.Context, topic string, data []byte) (types.PublishResult, error)

	// Topics 返回本地订阅的主题
	Topics() []string

	// ListPeers 返回订阅了主题的对端
	ListPeers(topic string) []types.PeerID
}
