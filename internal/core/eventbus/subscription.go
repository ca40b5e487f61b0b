package eventbus

import (
	"sync"

	pkgif "github.com/dep2p/go-meshnode/pkg/interfaces"
	"github.com/dep2p/go-meshnode/pkg/types"
)

// ============================================================================
// Subscription 实现
// ============================================================================

// Subscription 订阅
type Subscription struct {
	bus       *Bus
	types     []types.EventType
	out       chan types.Event
	closeOnce sync.Once
}

var _ pkgif.Subscription = (*Subscription)(nil)

// Out 返回事件通道
func (s *Subscription) Out() <-chan types.Event {
	return s.out
}

// Types 返回订阅的事件类型
func (s *Subscription) Types() []types.EventType {
	return append([]types.EventType(nil), s.types...)
}

// Close 取消订阅
//
// 并发安全，可多次调用。移除订阅与 Emit 互斥，关闭后不会再有事件写入。
func (s *Subscription) Close() error {
	s.bus.removeSub(s)
	return nil
}
