package pubsub

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	pb "github.com/dep2p/go-meshnode/pkg/lib/proto/gossipsub"
	"github.com/dep2p/go-meshnode/pkg/types"
)

// ============================================================================
//                              消息缓存
// ============================================================================

type cacheEntry struct {
	id    types.MessageID
	topic string
}

// messageCache 按心跳窗口保存最近的消息，用于响应 IWANT 和生成 IHAVE
//
// 每次心跳 shift 一次，最老的窗口被丢弃。
type messageCache struct {
	mu      sync.Mutex
	msgs    map[types.MessageID]*pb.Message
	history [][]cacheEntry
	gossip  int
}

func newMessageCache(gossip, history int) *messageCache {
	return &messageCache{
		msgs:    make(map[types.MessageID]*pb.Message),
		history: make([][]cacheEntry, history),
		gossip:  gossip,
	}
}

// put 加入当前窗口，已存在时忽略
func (mc *messageCache) put(id types.MessageID, msg *pb.Message) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if _, ok := mc.msgs[id]; ok {
		return
	}
	mc.msgs[id] = msg
	mc.history[0] = append(mc.history[0], cacheEntry{id: id, topic: msg.Topic})
}

func (mc *messageCache) get(id types.MessageID) (*pb.Message, bool) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	m, ok := mc.msgs[id]
	return m, ok
}

// gossipIDs 返回最近 gossip 个窗口中指定主题的消息 ID
func (mc *messageCache) gossipIDs(topic string) []types.MessageID {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	var ids []types.MessageID
	for _, window := range mc.history[:mc.gossip] {
		for _, e := range window {
			if e.topic == topic {
				ids = append(ids, e.id)
			}
		}
	}
	return ids
}

// shift 丢弃最老的窗口并开启新窗口
func (mc *messageCache) shift() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	last := mc.history[len(mc.history)-1]
	for _, e := range last {
		delete(mc.msgs, e.id)
	}
	copy(mc.history[1:], mc.history[:len(mc.history)-1])
	mc.history[0] = nil
}

func (mc *messageCache) size() int {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return len(mc.msgs)
}

// ============================================================================
//                              已见消息缓存
// ============================================================================

// seenCache 已见消息 ID，条目在 ttl 后过期
type seenCache struct {
	mu    sync.Mutex
	cache *expirable.LRU[types.MessageID, struct{}]
}

func newSeenCache(size int, ttl time.Duration) *seenCache {
	return &seenCache{
		cache: expirable.NewLRU[types.MessageID, struct{}](size, nil, ttl),
	}
}

// add 记录消息 ID，首次见到时返回 true
func (sc *seenCache) add(id types.MessageID) bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.cache.Contains(id) {
		return false
	}
	sc.cache.Add(id, struct{}{})
	return true
}

func (sc *seenCache) has(id types.MessageID) bool {
	return sc.cache.Contains(id)
}
