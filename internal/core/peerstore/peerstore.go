package peerstore

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-meshnode/internal/core/storage"
	pkgif "github.com/dep2p/go-meshnode/pkg/interfaces"
	"github.com/dep2p/go-meshnode/pkg/lib/crypto"
	"github.com/dep2p/go-meshnode/pkg/lib/log"
	ma "github.com/dep2p/go-meshnode/pkg/lib/multiaddr"
	"github.com/dep2p/go-meshnode/pkg/types"
)

var logger = log.Logger("core/peerstore")

// 存储前缀
const (
	storePrefix    = "p/"
	addrBookPrefix = "a/"
	keyBookPrefix  = "k/"
)

// Config Peerstore 配置
type Config struct {
	// KeyCacheSize 公钥 ARC 缓存容量
	KeyCacheSize int

	// GCInterval 过期地址清理间隔
	GCInterval time.Duration
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		KeyCacheSize: DefaultKeyCacheSize,
		GCInterval:   time.Minute,
	}
}

// Option Peerstore 选项
type Option func(*Peerstore)

// WithClock 设置时钟（测试用）
func WithClock(clk clock.Clock) Option {
	return func(ps *Peerstore) { ps.clock = clk }
}

// WithStorage 启用持久化
func WithStorage(eng *storage.Engine) Option {
	return func(ps *Peerstore) { ps.engine = eng }
}

// WithConfig 设置配置
func WithConfig(cfg Config) Option {
	return func(ps *Peerstore) { ps.cfg = cfg }
}

// Peerstore 节点信息存储
type Peerstore struct {
	cfg    Config
	clock  clock.Clock
	engine *storage.Engine

	addrBook  *addrBook
	keyBook   *keyBook
	protoBook *protoBook

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

var _ pkgif.Peerstore = (*Peerstore)(nil)

// New 创建 Peerstore
//
// 配置了存储时会加载之前持久化的地址。
func New(opts ...Option) (*Peerstore, error) {
	ps := &Peerstore{
		cfg:   DefaultConfig(),
		clock: clock.New(),
	}
	for _, opt := range opts {
		opt(ps)
	}

	var addrStore, keyStore *storage.Store
	if ps.engine != nil {
		root := storage.NewStore(ps.engine, storePrefix)
		addrStore = root.SubStore(addrBookPrefix)
		keyStore = root.SubStore(keyBookPrefix)
	}

	kb, err := newKeyBook(ps.cfg.KeyCacheSize, keyStore)
	if err != nil {
		return nil, err
	}
	ps.keyBook = kb
	ps.addrBook = newAddrBook(ps.clock, addrStore)
	ps.protoBook = newProtoBook()

	if n, err := ps.addrBook.load(); err != nil {
		logger.Warn("加载持久化地址失败", "error", err)
	} else if n > 0 {
		logger.Info("已加载持久化节点", "count", n)
	}

	ps.ctx, ps.cancel = context.WithCancel(context.Background())
	if ps.cfg.GCInterval > 0 {
		ps.wg.Add(1)
		go ps.gcLoop()
	}
	return ps, nil
}

func (ps *Peerstore) gcLoop() {
	defer ps.wg.Done()
	ticker := ps.clock.Ticker(ps.cfg.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ps.ctx.Done():
			return
		case <-ticker.C:
			if n := ps.addrBook.gc(); n > 0 {
				logger.Debug("清理过期地址", "removed", n)
			}
		}
	}
}

// ========== AddrBook 方法 ==========

// AddAddr 添加单个地址
func (ps *Peerstore) AddAddr(p types.PeerID, addr ma.Multiaddr, ttl time.Duration) {
	ps.addrBook.AddAddrs(p, []ma.Multiaddr{addr}, ttl)
}

// AddAddrs 添加节点地址
func (ps *Peerstore) AddAddrs(p types.PeerID, addrs []ma.Multiaddr, ttl time.Duration) {
	ps.addrBook.AddAddrs(p, addrs, ttl)
}

// SetAddrs 设置地址 TTL
func (ps *Peerstore) SetAddrs(p types.PeerID, addrs []ma.Multiaddr, ttl time.Duration) {
	ps.addrBook.SetAddrs(p, addrs, ttl)
}

// UpdateAddrs 更新地址 TTL
func (ps *Peerstore) UpdateAddrs(p types.PeerID, oldTTL, newTTL time.Duration) {
	ps.addrBook.UpdateAddrs(p, oldTTL, newTTL)
}

// Addrs 返回节点地址
func (ps *Peerstore) Addrs(p types.PeerID) []ma.Multiaddr {
	return ps.addrBook.Addrs(p)
}

// ClearAddrs 清除地址
func (ps *Peerstore) ClearAddrs(p types.PeerID) {
	ps.addrBook.ClearAddrs(p)
}

// PeersWithAddrs 返回有地址的节点
func (ps *Peerstore) PeersWithAddrs() []types.PeerID {
	return ps.addrBook.PeersWithAddrs()
}

// ========== KeyBook 方法 ==========

// AddPubKey 添加公钥
func (ps *Peerstore) AddPubKey(p types.PeerID, pub crypto.PublicKey) error {
	return ps.keyBook.AddPubKey(p, pub)
}

// PubKey 获取公钥
func (ps *Peerstore) PubKey(p types.PeerID) crypto.PublicKey {
	return ps.keyBook.PubKey(p)
}

// ========== ProtoBook 方法 ==========

// SetProtocols 设置协议
func (ps *Peerstore) SetProtocols(p types.PeerID, protos ...types.ProtocolID) {
	ps.protoBook.SetProtocols(p, protos...)
}

// GetProtocols 获取协议
func (ps *Peerstore) GetProtocols(p types.PeerID) []types.ProtocolID {
	return ps.protoBook.GetProtocols(p)
}

// SupportsProtocol 检查协议支持
func (ps *Peerstore) SupportsProtocol(p types.PeerID, proto types.ProtocolID) bool {
	return ps.protoBook.SupportsProtocol(p, proto)
}

// ========== Peerstore 方法 ==========

// PeerInfo 返回节点信息
func (ps *Peerstore) PeerInfo(p types.PeerID) types.AddrInfo {
	return types.AddrInfo{ID: p, Addrs: ps.Addrs(p)}
}

// Peers 返回所有已知节点
func (ps *Peerstore) Peers() []types.PeerID {
	set := make(map[types.PeerID]struct{})
	for _, p := range ps.addrBook.PeersWithAddrs() {
		set[p] = struct{}{}
	}
	for _, p := range ps.keyBook.PeersWithKeys() {
		set[p] = struct{}{}
	}
	for _, p := range ps.protoBook.peers() {
		set[p] = struct{}{}
	}
	out := make([]types.PeerID, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	return out
}

// RemovePeer 移除节点信息（地址除外）
func (ps *Peerstore) RemovePeer(p types.PeerID) {
	ps.keyBook.RemovePeer(p)
	ps.protoBook.RemovePeer(p)
}

// Close 关闭 Peerstore，不关闭存储引擎
func (ps *Peerstore) Close() error {
	ps.once.Do(func() {
		ps.cancel()
		ps.wg.Wait()
	})
	return nil
}
