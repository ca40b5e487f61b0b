package pubsub

import (
	"context"
	"sync"

	pkgif "github.com/dep2p/go-meshnode/pkg/interfaces"
	"github.com/dep2p/go-meshnode/pkg/types"
)

// Subscription 主题订阅
type Subscription struct {
	topic string
	ps    *PubSub
	ch    chan *types.Message

	once sync.Once
	done chan struct{}
}

var _ pkgif.TopicSubscription = (*Subscription)(nil)

func newSubscription(ps *PubSub, topic string, buffer int) *Subscription {
	return &Subscription{
		topic: topic,
		ps:    ps,
		ch:    make(chan *types.Message, buffer),
		done:  make(chan struct{}),
	}
}

// Topic 返回主题名
func (s *Subscription) Topic() string {
	return s.topic
}

// Next 阻塞直到下一条消息，取消后返回 ErrSubscriptionCancelled
func (s *Subscription) Next(ctx context.Context) (*types.Message, error) {
	// 先检查取消，避免 select 随机选中缓冲中的旧消息
	select {
	case <-s.done:
		return nil, ErrSubscriptionCancelled
	default:
	}

	select {
	case msg := <-s.ch:
		return msg, nil
	case <-s.done:
		return nil, ErrSubscriptionCancelled
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel 取消订阅，可重复调用
//
// 取消最后一个订阅时退出主题。
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		close(s.done)
		s.ps.unsubscribe(s)
	})
}

// push 非阻塞投递，缓冲满或已取消时返回 false
func (s *Subscription) push(msg *types.Message) bool {
	select {
	case <-s.done:
		return false
	default:
	}

	select {
	case s.ch <- msg:
		return true
	default:
		return false
	}
}
