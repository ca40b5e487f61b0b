package dht

import (
	"slices"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/hashicorp/golang-lru/v2/simplelru"

	ma "github.com/dep2p/go-meshnode/pkg/lib/multiaddr"
	"github.com/dep2p/go-meshnode/pkg/types"
)

// ============================================================================
//                              路由表条目
// ============================================================================

// Entry 路由表条目
type Entry struct {
	ID       types.PeerID
	Addrs    []ma.Multiaddr
	LastSeen time.Time
}

// AddrInfo 返回条目的 AddrInfo
func (e Entry) AddrInfo() types.AddrInfo {
	return types.AddrInfo{ID: e.ID, Addrs: e.Addrs}
}

// ============================================================================
//                              K 桶
// ============================================================================

// bucket K 桶
//
// entries 与 replacements 都按最近见到的顺序排列，满时淘汰最久未见的节点。
type bucket struct {
	entries      *simplelru.LRU[types.PeerID, Entry]
	replacements *simplelru.LRU[types.PeerID, Entry]
}

func newBucket(k int) *bucket {
	entries, _ := simplelru.NewLRU[types.PeerID, Entry](k, nil)
	replacements, _ := simplelru.NewLRU[types.PeerID, Entry](k, nil)
	return &bucket{entries: entries, replacements: replacements}
}

// ============================================================================
//                              路由表
// ============================================================================

// RoutingTable Kademlia 路由表
type RoutingTable struct {
	local types.PeerID
	k     int
	clock clock.Clock

	mu      sync.RWMutex
	buckets [KeySize]*bucket
	size    int
}

// NewRoutingTable 创建路由表
func NewRoutingTable(local types.PeerID, k int, clk clock.Clock) *RoutingTable {
	if k <= 0 {
		k = BucketSize
	}
	if clk == nil {
		clk = clock.New()
	}
	rt := &RoutingTable{local: local, k: k, clock: clk}
	for i := range rt.buckets {
		rt.buckets[i] = newBucket(k)
	}
	return rt
}

// Update 记录一次与节点的成功交互
//
// 已存在时刷新 LastSeen（地址非空时替换地址）；桶满时淘汰最久未见的节点，
// 被淘汰者移入替换缓存。返回节点是否为新加入。
func (rt *RoutingTable) Update(id types.PeerID, addrs []ma.Multiaddr) (added bool) {
	if id == rt.local || id.IsEmpty() {
		return false
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()

	b := rt.buckets[BucketIndex(rt.local, id)]
	e := Entry{ID: id, Addrs: addrs, LastSeen: rt.clock.Now()}

	if old, ok := b.entries.Get(id); ok {
		if len(addrs) == 0 {
			e.Addrs = old.Addrs
		}
		b.entries.Add(id, e)
		return false
	}

	if b.entries.Len() >= rt.k {
		if _, evicted, ok := b.entries.RemoveOldest(); ok {
			b.replacements.Add(evicted.ID, evicted)
			rt.size--
			logger.Debug("路由表桶已满，淘汰最久未见节点",
				"evicted", evicted.ID.ShortString(),
				"added", id.ShortString())
		}
	}
	b.replacements.Remove(id)
	b.entries.Add(id, e)
	rt.size++
	return true
}

// Remove 移除节点，并从替换缓存补位最近见到的候选
func (rt *RoutingTable) Remove(id types.PeerID) bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	b := rt.buckets[BucketIndex(rt.local, id)]
	if !b.entries.Remove(id) {
		return b.replacements.Remove(id)
	}
	rt.size--

	keys := b.replacements.Keys()
	if n := len(keys); n > 0 {
		newest := keys[n-1]
		if e, ok := b.replacements.Peek(newest); ok {
			b.replacements.Remove(newest)
			b.entries.Add(newest, e)
			rt.size++
		}
	}
	return true
}

// Find 返回节点条目
func (rt *RoutingTable) Find(id types.PeerID) (Entry, bool) {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.buckets[BucketIndex(rt.local, id)].entries.Peek(id)
}

// Size 返回路由表中的节点数
func (rt *RoutingTable) Size() int {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.size
}

// BucketLen 返回指定桶的节点数
func (rt *RoutingTable) BucketLen(i int) int {
	if i < 0 || i >= KeySize {
		return 0
	}
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.buckets[i].entries.Len()
}

// NonEmptyBuckets 返回非空桶的索引（升序）
func (rt *RoutingTable) NonEmptyBuckets() []int {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	var out []int
	for i, b := range rt.buckets {
		if b.entries.Len() > 0 {
			out = append(out, i)
		}
	}
	return out
}

// Entries 返回全部条目
func (rt *RoutingTable) Entries() []Entry {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	out := make([]Entry, 0, rt.size)
	for _, b := range rt.buckets {
		out = append(out, b.entries.Values()...)
	}
	return out
}

// NearestPeers 返回距离 target 最近的 count 个节点（升序）
func (rt *RoutingTable) NearestPeers(target types.PeerID, count int) []Entry {
	if count <= 0 {
		return nil
	}
	all := rt.Entries()
	sortEntries(all, target)
	if len(all) > count {
		all = all[:count]
	}
	return all
}

func sortEntries(entries []Entry, target types.PeerID) {
	slices.SortFunc(entries, func(a, b Entry) int {
		return CompareDistance(a.ID, b.ID, target)
	})
}
