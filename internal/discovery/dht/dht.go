package dht

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/benbjohnson/clock"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/dep2p/go-meshnode/internal/core/connmgr"
	"github.com/dep2p/go-meshnode/internal/core/metrics"
	pkgif "github.com/dep2p/go-meshnode/pkg/interfaces"
	"github.com/dep2p/go-meshnode/pkg/lib/log"
	ma "github.com/dep2p/go-meshnode/pkg/lib/multiaddr"
	"github.com/dep2p/go-meshnode/pkg/types"
)

var logger = log.Logger("discovery/dht")

// announcedCacheSize 已发出 PeerDiscovered 事件的节点缓存
const announcedCacheSize = 1024

// Option DHT 选项
type Option func(*DHT)

// WithClock 设置时钟（测试用）
func WithClock(clk clock.Clock) Option {
	return func(d *DHT) {
		d.clock = clk
	}
}

// WithMetrics 设置指标收集
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *DHT) {
		d.metrics = m
	}
}

// WithConnManager 设置连接管理器，成功响应的节点会被打上 DHT 标签
func WithConnManager(cm pkgif.ConnManager) Option {
	return func(d *DHT) {
		d.connmgr = cm
	}
}

// DHT Kademlia 节点路由
type DHT struct {
	host    pkgif.Host
	cfg     Config
	clock   clock.Clock
	rt      *RoutingTable
	metrics *metrics.Metrics
	connmgr pkgif.ConnManager
	query   queryFunc

	// 已发出 PeerDiscovered 的节点
	announced *lru.Cache[types.PeerID, struct{}]

	mu      sync.Mutex
	started bool
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ pkgif.DHT = (*DHT)(nil)

// New 创建 DHT
func New(h pkgif.Host, cfg Config, opts ...Option) (*DHT, error) {
	if h == nil {
		return nil, errors.New("dht: host is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &DHT{
		host:   h,
		cfg:    cfg,
		clock:  clock.New(),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.rt = NewRoutingTable(h.ID(), cfg.BucketSize, d.clock)
	d.announced, _ = lru.New[types.PeerID, struct{}](announcedCacheSize)
	d.query = d.queryPeer
	return d, nil
}

// Start 注册协议处理器（server 模式）并启动刷新循环
func (d *DHT) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	if d.started {
		return nil
	}
	d.started = true

	if d.cfg.Mode == types.DHTModeServer {
		d.host.SetStreamHandler(ProtocolID, d.handleStream)
	}

	// 已连接且支持 DHT 的节点
	ps := d.host.Peerstore()
	for _, c := range d.host.Network().Conns() {
		p := c.RemotePeer()
		if ps.SupportsProtocol(p, ProtocolID) {
			d.AddPeer(p, ps.Addrs(p), c.Direction() == types.DirInbound)
		}
	}

	if d.cfg.RefreshInterval > 0 {
		d.wg.Add(1)
		go d.refreshLoop()
	}

	logger.Info("DHT 已启动", "mode", d.cfg.Mode.String(), "routingTable", d.rt.Size())
	return nil
}

// Close 停止 DHT
func (d *DHT) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	started := d.started
	d.mu.Unlock()

	d.cancel()
	if started && d.cfg.Mode == types.DHTModeServer {
		d.host.RemoveStreamHandler(ProtocolID)
	}
	d.wg.Wait()
	return nil
}

// Mode 返回运行模式
func (d *DHT) Mode() types.DHTMode {
	return d.cfg.Mode
}

// RoutingTable 返回路由表
func (d *DHT) RoutingTable() *RoutingTable {
	return d.rt
}

// RoutingTableSize 返回路由表大小
func (d *DHT) RoutingTableSize() int {
	return d.rt.Size()
}

// AddPeer 把一个 DHT 服务端节点加入路由表
//
// client 模式忽略入站节点。返回节点是否为新加入。
func (d *DHT) AddPeer(p types.PeerID, addrs []ma.Multiaddr, inbound bool) bool {
	if d.cfg.Mode == types.DHTModeClient && inbound {
		return false
	}
	added := d.rt.Update(p, addrs)
	if added {
		logger.Debug("加入路由表", "peer", p.ShortString(), "inbound", inbound, "size", d.rt.Size())
	}
	return added
}

// RemovePeer 从路由表移除节点并撤销其 DHT 标签
func (d *DHT) RemovePeer(p types.PeerID) bool {
	if d.connmgr != nil {
		d.connmgr.UntagPeer(p, connmgr.TagDHT)
	}
	return d.rt.Remove(p)
}

// ============================================================================
//                              查找
// ============================================================================

// FindClosestPeers 迭代查找距离 target 最近的节点
//
// 截止时间到达时返回 State 为 TIMEOUT 的部分结果和 nil 错误。
func (d *DHT) FindClosestPeers(ctx context.Context, target types.PeerID) (*types.LookupResult, error) {
	if d.isClosed() {
		return nil, ErrClosed
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.LookupTimeout)
		defer cancel()
	}

	seeds := make([]types.AddrInfo, 0, d.cfg.BucketSize)
	for _, e := range d.rt.NearestPeers(target, d.cfg.BucketSize) {
		seeds = append(seeds, e.AddrInfo())
	}

	l := newLookup(lookupConfig{
		self:         d.host.ID(),
		k:            d.cfg.BucketSize,
		alpha:        d.cfg.Alpha,
		maxRounds:    d.cfg.MaxRounds,
		queryTimeout: d.cfg.QueryTimeout,
	}, target, d.query, lookupHooks{
		onSuccess: d.querySucceeded,
		onFailure: d.queryFailed,
		onLearned: d.learned,
	})

	res, err := l.run(ctx, seeds)
	d.metrics.ObserveLookup(res.State.String(), res.Rounds)
	logger.Debug("DHT 查找结束",
		"id", res.ID,
		"target", target.ShortString(),
		"state", res.State.String(),
		"rounds", res.Rounds,
		"queried", res.Queried,
		"found", len(res.Peers),
		"duration", res.Duration)
	return res, err
}

// FindPeer 查找节点地址
func (d *DHT) FindPeer(ctx context.Context, id types.PeerID) (types.AddrInfo, error) {
	if id == d.host.ID() {
		return types.AddrInfo{ID: id, Addrs: d.host.Addrs()}, nil
	}
	if d.host.Network().Connectedness(id) == pkgif.Connected {
		return d.host.Peerstore().PeerInfo(id), nil
	}

	res, err := d.FindClosestPeers(ctx, id)
	if err != nil && !errors.Is(err, ErrEmptyRoutingTable) {
		return types.AddrInfo{}, err
	}
	for _, p := range res.Peers {
		if p.ID == id && len(p.Addrs) > 0 {
			return p, nil
		}
	}
	if terr := res.Err(); terr != nil {
		return types.AddrInfo{}, fmt.Errorf("%w: %w", ErrPeerNotFound, terr)
	}
	return types.AddrInfo{}, fmt.Errorf("%w: %s", ErrPeerNotFound, id.ShortString())
}

// Bootstrap 自查找，然后对每个非空桶查找一个随机 ID
func (d *DHT) Bootstrap(ctx context.Context) error {
	if d.rt.Size() == 0 {
		return ErrEmptyRoutingTable
	}
	self := d.host.ID()
	if _, err := d.FindClosestPeers(ctx, self); err != nil {
		return err
	}

	buckets := d.rt.NonEmptyBuckets()
	if len(buckets) > d.cfg.MaxRefreshLookups {
		buckets = buckets[:d.cfg.MaxRefreshLookups]
	}

	var g errgroup.Group
	g.SetLimit(d.cfg.Alpha)
	for _, cpl := range buckets {
		g.Go(func() error {
			_, err := d.FindClosestPeers(ctx, randomIDWithCPL(self, cpl))
			if errors.Is(err, ErrEmptyRoutingTable) {
				return nil
			}
			return err
		})
	}
	err := g.Wait()
	logger.Debug("DHT 引导完成", "buckets", len(buckets), "routingTable", d.rt.Size())
	return err
}

// ============================================================================
//                              内部方法
// ============================================================================

func (d *DHT) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// queryPeer 默认查询实现：经 Host 发送 FIND_NODE
func (d *DHT) queryPeer(ctx context.Context, p types.AddrInfo, target types.PeerID) ([]types.AddrInfo, error) {
	if len(p.Addrs) > 0 {
		d.host.Peerstore().AddAddrs(p.ID, p.Addrs, pkgif.TempAddrTTL)
	}
	return findNode(ctx, d.host, p.ID, target)
}

func (d *DHT) querySucceeded(p types.AddrInfo) {
	d.rt.Update(p.ID, p.Addrs)
	if d.connmgr != nil {
		d.connmgr.TagPeer(p.ID, connmgr.TagDHT, connmgr.DHTWeight)
	}
}

func (d *DHT) queryFailed(p types.PeerID, err error) {
	logger.Debug("DHT 查询失败", "peer", p.ShortString(), "err", err)
	if d.host.Network().Connectedness(p) != pkgif.Connected {
		d.RemovePeer(p)
	}
}

// learned 记录从响应中学到的节点，每个节点只发一次 PeerDiscovered
func (d *DHT) learned(info types.AddrInfo) {
	if len(info.Addrs) > 0 {
		d.host.Peerstore().AddAddrs(info.ID, info.Addrs, pkgif.DiscoveredAddrTTL)
	}
	if ok, _ := d.announced.ContainsOrAdd(info.ID, struct{}{}); ok {
		return
	}
	if bus := d.host.EventBus(); bus != nil {
		bus.Emit(types.NewPeerDiscovered(info, types.SourceDHT))
	}
}

// Ping 检查节点是否应答 DHT 请求
func (d *DHT) Ping(ctx context.Context, p types.PeerID) error {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.QueryTimeout)
	defer cancel()
	return ping(ctx, d.host, p)
}

func (d *DHT) refreshLoop() {
	defer d.wg.Done()

	ticker := d.clock.Ticker(d.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			if d.rt.Size() == 0 {
				continue
			}
			ctx, cancel := context.WithTimeout(d.ctx, d.cfg.LookupTimeout)
			if err := d.Bootstrap(ctx); err != nil && d.ctx.Err() == nil {
				logger.Debug("路由表刷新失败", "err", err)
			}
			cancel()
		}
	}
}
