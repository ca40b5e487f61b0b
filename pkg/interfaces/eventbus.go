// Package interfaces 定义 meshnode 公共接口
//
// 本文件定义类型化事件总线接口。
package interfaces

import "github.com/dep2p/go-meshnode/pkg/types"

// Subscription 事件订阅
type Subscription interface {
	// Out 返回事件通道，Close 后关闭
	Out() <-chan types.Event

	// Close 取消订阅
	Close() error
}

// EventBus 事件总线
//
// 事件类型是封闭枚举 types.EventType。Emit 不阻塞，
// 慢订阅者的事件会被丢弃。
type EventBus interface {
	// Subscribe 订阅事件，不指定类型时订阅全部
	Subscribe(eventTypes ...types.EventType) (Subscription, error)

	// Emit 发布事件
	Emit(evt types.Event)

	// Close 关闭总线及所有订阅
	Close() error
}
