package eventbus

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	pkgif "github.com/dep2p/go-meshnode/pkg/interfaces"
	"github.com/dep2p/go-meshnode/pkg/lib/log"
	"github.com/dep2p/go-meshnode/pkg/types"
)

var logger = log.Logger("core/eventbus")

// ============================================================================
// 错误定义
// ============================================================================

var (
	// ErrClosed 事件总线已关闭
	ErrClosed = errors.New("eventbus closed")
	// ErrInvalidEventType 无效的事件类型
	ErrInvalidEventType = errors.New("invalid event type")
)

// DefaultBufferSize 订阅默认缓冲区大小
const DefaultBufferSize = 64

// ============================================================================
// Bus 实现
// ============================================================================

// Bus 事件总线
type Bus struct {
	mu     sync.RWMutex
	sinks  map[types.EventType][]*Subscription
	closed bool

	bufSize   int
	dropCount atomic.Int64
	onDrop    func(types.EventType)
}

var _ pkgif.EventBus = (*Bus)(nil)

// Option 总线选项
type Option func(*Bus)

// WithBufferSize 设置订阅缓冲区大小
func WithBufferSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.bufSize = n
		}
	}
}

// WithDropHook 设置丢弃回调（用于指标）
func WithDropHook(fn func(types.EventType)) Option {
	return func(b *Bus) {
		b.onDrop = fn
	}
}

// NewBus 创建新的事件总线
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		sinks:   make(map[types.EventType][]*Subscription),
		bufSize: DefaultBufferSize,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe 订阅事件，不指定类型时订阅全部类型
func (b *Bus) Subscribe(eventTypes ...types.EventType) (pkgif.Subscription, error) {
	return b.SubscribeBuffered(b.bufSize, eventTypes...)
}

// SubscribeBuffered 以指定缓冲区大小订阅
func (b *Bus) SubscribeBuffered(bufSize int, eventTypes ...types.EventType) (*Subscription, error) {
	if len(eventTypes) == 0 {
		eventTypes = types.AllEventTypes
	}
	for _, t := range eventTypes {
		if !t.Valid() {
			return nil, fmt.Errorf("%w: %d", ErrInvalidEventType, int(t))
		}
	}
	if bufSize <= 0 {
		bufSize = b.bufSize
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	sub := &Subscription{
		bus:   b,
		types: dedupTypes(eventTypes),
		out:   make(chan types.Event, bufSize),
	}
	for _, t := range sub.types {
		b.sinks[t] = append(b.sinks[t], sub)
	}
	return sub, nil
}

// Emit 发布事件到该类型的所有订阅者
func (b *Bus) Emit(evt types.Event) {
	if evt == nil {
		return
	}
	t := evt.Type()

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	for _, sub := range b.sinks[t] {
		select {
		case sub.out <- evt:
		default:
			dropped := b.dropCount.Add(1)
			if b.onDrop != nil {
				b.onDrop(t)
			}
			// 每丢弃 100 个事件警告一次，避免日志泛滥
			if dropped%100 == 1 {
				logger.Warn("慢消费者检测",
					"dropped", dropped,
					"type", t.String(),
					"reason", "subscriber buffer full")
			}
		}
	}
}

// Dropped 返回累计丢弃的事件数
func (b *Bus) Dropped() int64 {
	return b.dropCount.Load()
}

// Close 关闭总线，关闭所有订阅通道
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	seen := make(map[*Subscription]struct{})
	for _, subs := range b.sinks {
		for _, sub := range subs {
			if _, ok := seen[sub]; ok {
				continue
			}
			seen[sub] = struct{}{}
			sub.closeOnce.Do(func() { close(sub.out) })
		}
	}
	b.sinks = nil
	return nil
}

// removeSub 移除订阅
func (b *Bus) removeSub(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range sub.types {
		subs := b.sinks[t]
		for i, s := range subs {
			if s == sub {
				b.sinks[t] = append(subs[:i:i], subs[i+1:]...)
				break
			}
		}
		if len(b.sinks[t]) == 0 {
			delete(b.sinks, t)
		}
	}
	sub.closeOnce.Do(func() { close(sub.out) })
}

func dedupTypes(in []types.EventType) []types.EventType {
	out := make([]types.EventType, 0, len(in))
	seen := make(map[types.EventType]struct{}, len(in))
	for _, t := range in {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
