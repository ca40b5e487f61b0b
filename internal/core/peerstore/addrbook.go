package peerstore

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-meshnode/internal/core/storage"
	pkgif "github.com/dep2p/go-meshnode/pkg/interfaces"
	ma "github.com/dep2p/go-meshnode/pkg/lib/multiaddr"
	"github.com/dep2p/go-meshnode/pkg/types"
)

// maxPersistTTL 持久化地址的最长保留时间
const maxPersistTTL = 24 * time.Hour

// expiringAddr 带过期时间的地址
type expiringAddr struct {
	Addr   ma.Multiaddr
	TTL    time.Duration
	Expiry time.Time
}

func (e *expiringAddr) expiredAt(now time.Time) bool {
	return !now.Before(e.Expiry)
}

// persistedAddr 持久化的地址数据
type persistedAddr struct {
	Addr   string `json:"addr"`
	TTL    int64  `json:"ttl"`
	Expiry int64  `json:"expiry"`
}

// addrBook 地址簿
type addrBook struct {
	mu    sync.RWMutex
	clock clock.Clock
	addrs map[types.PeerID]map[string]*expiringAddr

	// store 可选持久化（前缀 p/a/）
	store *storage.Store
}

func newAddrBook(clk clock.Clock, store *storage.Store) *addrBook {
	return &addrBook{
		clock: clk,
		addrs: make(map[types.PeerID]map[string]*expiringAddr),
		store: store,
	}
}

// expiryFor 计算过期时间，避免 now+MaxInt64 溢出
func (ab *addrBook) expiryFor(now time.Time, ttl time.Duration) time.Time {
	if ttl >= pkgif.ConnectedAddrTTL {
		return time.Unix(1<<62, 0)
	}
	return now.Add(ttl)
}

func (ab *addrBook) AddAddrs(p types.PeerID, addrs []ma.Multiaddr, ttl time.Duration) {
	if ttl <= 0 || len(addrs) == 0 {
		return
	}
	ab.mu.Lock()
	defer ab.mu.Unlock()

	now := ab.clock.Now()
	expiry := ab.expiryFor(now, ttl)
	m := ab.addrs[p]
	if m == nil {
		m = make(map[string]*expiringAddr)
		ab.addrs[p] = m
	}
	for _, a := range addrs {
		if a == nil {
			continue
		}
		key := string(a.Bytes())
		if existing, ok := m[key]; ok {
			// 已存在时只延长，不缩短
			if expiry.After(existing.Expiry) {
				existing.Expiry = expiry
				existing.TTL = ttl
			}
			continue
		}
		m[key] = &expiringAddr{Addr: a, TTL: ttl, Expiry: expiry}
	}
	ab.persistLocked(p, now)
}

func (ab *addrBook) SetAddrs(p types.PeerID, addrs []ma.Multiaddr, ttl time.Duration) {
	ab.mu.Lock()
	defer ab.mu.Unlock()

	now := ab.clock.Now()
	expiry := ab.expiryFor(now, ttl)
	m := ab.addrs[p]
	if m == nil {
		m = make(map[string]*expiringAddr)
		ab.addrs[p] = m
	}
	for _, a := range addrs {
		if a == nil {
			continue
		}
		key := string(a.Bytes())
		if ttl <= 0 {
			delete(m, key)
			continue
		}
		m[key] = &expiringAddr{Addr: a, TTL: ttl, Expiry: expiry}
	}
	if len(m) == 0 {
		delete(ab.addrs, p)
	}
	ab.persistLocked(p, now)
}

func (ab *addrBook) UpdateAddrs(p types.PeerID, oldTTL, newTTL time.Duration) {
	ab.mu.Lock()
	defer ab.mu.Unlock()

	m := ab.addrs[p]
	if m == nil {
		return
	}
	now := ab.clock.Now()
	for key, ea := range m {
		if ea.TTL != oldTTL {
			continue
		}
		if newTTL <= 0 {
			delete(m, key)
			continue
		}
		ea.TTL = newTTL
		ea.Expiry = ab.expiryFor(now, newTTL)
	}
	if len(m) == 0 {
		delete(ab.addrs, p)
	}
	ab.persistLocked(p, now)
}

func (ab *addrBook) Addrs(p types.PeerID) []ma.Multiaddr {
	ab.mu.RLock()
	defer ab.mu.RUnlock()

	now := ab.clock.Now()
	m := ab.addrs[p]
	out := make([]ma.Multiaddr, 0, len(m))
	for _, ea := range m {
		if !ea.expiredAt(now) {
			out = append(out, ea.Addr)
		}
	}
	return out
}

func (ab *addrBook) ClearAddrs(p types.PeerID) {
	ab.mu.Lock()
	defer ab.mu.Unlock()
	delete(ab.addrs, p)
	ab.persistLocked(p, ab.clock.Now())
}

func (ab *addrBook) PeersWithAddrs() []types.PeerID {
	ab.mu.RLock()
	defer ab.mu.RUnlock()

	now := ab.clock.Now()
	out := make([]types.PeerID, 0, len(ab.addrs))
	for p, m := range ab.addrs {
		for _, ea := range m {
			if !ea.expiredAt(now) {
				out = append(out, p)
				break
			}
		}
	}
	return out
}

// gc 清除过期地址
func (ab *addrBook) gc() int {
	ab.mu.Lock()
	defer ab.mu.Unlock()

	now := ab.clock.Now()
	removed := 0
	for p, m := range ab.addrs {
		for key, ea := range m {
			if ea.expiredAt(now) {
				delete(m, key)
				removed++
			}
		}
		if len(m) == 0 {
			delete(ab.addrs, p)
		}
	}
	return removed
}

// persistLocked 持久化节点的地址（已持有锁）
func (ab *addrBook) persistLocked(p types.PeerID, now time.Time) {
	if ab.store == nil {
		return
	}
	m := ab.addrs[p]
	if len(m) == 0 {
		if err := ab.store.Delete(p.Bytes()); err != nil {
			logger.Debug("删除持久化地址失败", "peer", p.ShortString(), "error", err)
		}
		return
	}

	// 永久和已连接地址按 maxPersistTTL 落盘
	persistExpiry := now.Add(maxPersistTTL)
	recs := make([]persistedAddr, 0, len(m))
	for _, ea := range m {
		exp := ea.Expiry
		if exp.After(persistExpiry) {
			exp = persistExpiry
		}
		recs = append(recs, persistedAddr{Addr: ea.Addr.String(), TTL: int64(ea.TTL), Expiry: exp.UnixNano()})
	}
	if err := ab.store.PutJSON(p.Bytes(), recs, maxPersistTTL); err != nil {
		logger.Debug("持久化地址失败", "peer", p.ShortString(), "error", err)
	}
}

// load 从存储加载未过期的地址，返回加载的节点数
func (ab *addrBook) load() (int, error) {
	if ab.store == nil {
		return 0, nil
	}
	ab.mu.Lock()
	defer ab.mu.Unlock()

	now := ab.clock.Now()
	loaded := 0
	err := ab.store.Scan(func(key, value []byte) bool {
		p, err := types.PeerIDFromBytes(key)
		if err != nil {
			return true
		}
		var recs []persistedAddr
		if err := json.Unmarshal(value, &recs); err != nil {
			// 跳过损坏的数据
			return true
		}
		m := make(map[string]*expiringAddr)
		for _, r := range recs {
			exp := time.Unix(0, r.Expiry)
			if !now.Before(exp) {
				continue
			}
			a, err := ma.NewMultiaddr(r.Addr)
			if err != nil {
				continue
			}
			m[string(a.Bytes())] = &expiringAddr{Addr: a, TTL: time.Duration(r.TTL), Expiry: exp}
		}
		if len(m) > 0 {
			ab.addrs[p] = m
			loaded++
		}
		return true
	})
	return loaded, err
}
