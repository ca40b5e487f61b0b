package pubsub

import (
	"sync"

	"golang.org/x/time/rate"

	"github.com/dep2p/go-meshnode/pkg/types"
)

// peerLimiters 每个节点一个入站 RPC 令牌桶
type peerLimiters struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[types.PeerID]*rate.Limiter
}

func newPeerLimiters(limit rate.Limit, burst int) *peerLimiters {
	return &peerLimiters{
		limit:    limit,
		burst:    burst,
		limiters: make(map[types.PeerID]*rate.Limiter),
	}
}

// allow 消耗一个令牌，限速关闭时总是返回 true
func (l *peerLimiters) allow(p types.PeerID) bool {
	if l.limit == 0 {
		return true
	}
	l.mu.Lock()
	lim, ok := l.limiters[p]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[p] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

func (l *peerLimiters) remove(p types.PeerID) {
	l.mu.Lock()
	delete(l.limiters, p)
	l.mu.Unlock()
}
