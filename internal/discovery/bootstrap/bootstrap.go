package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/dep2p/go-meshnode/internal/core/connmgr"
	"github.com/dep2p/go-meshnode/internal/core/metrics"
	"github.com/dep2p/go-meshnode/internal/core/protocol/system/identify"
	"github.com/dep2p/go-meshnode/internal/discovery/dnsaddr"
	pkgif "github.com/dep2p/go-meshnode/pkg/interfaces"
	"github.com/dep2p/go-meshnode/pkg/lib/log"
	ma "github.com/dep2p/go-meshnode/pkg/lib/multiaddr"
	"github.com/dep2p/go-meshnode/pkg/types"
)

var logger = log.Logger("discovery/bootstrap")

// BootstrapAddrTTL 引导节点地址 TTL
//
// 过长的 TTL 会让已下线引导节点的地址反复被拨号。
const BootstrapAddrTTL = 30 * time.Minute

// Identifier 等待节点识别完成
type Identifier interface {
	IdentifyWait(ctx context.Context, p types.PeerID) (*identify.Info, error)
}

// Option 引导服务选项
type Option func(*Service)

// WithClock 设置时钟（测试用）
func WithClock(clk clock.Clock) Option {
	return func(s *Service) {
		s.clock = clk
	}
}

// WithResolver 设置 /dnsaddr 解析器
func WithResolver(r *dnsaddr.Resolver) Option {
	return func(s *Service) {
		s.resolver = r
	}
}

// WithDHT 引导成功后触发 DHT 自查找
func WithDHT(d pkgif.DHT) Option {
	return func(s *Service) {
		s.dht = d
	}
}

// WithConnManager 设置连接管理器
func WithConnManager(cm pkgif.ConnManager) Option {
	return func(s *Service) {
		s.connmgr = cm
	}
}

// WithMetrics 设置指标收集
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithIdentifier 连接成功后等待识别完成再触发 DHT 自查找
func WithIdentifier(id Identifier) Option {
	return func(s *Service) {
		s.identify = id
	}
}

type candidate struct {
	info   types.AddrInfo
	source types.DiscoverySource
}

// Service 引导服务
type Service struct {
	host     pkgif.Host
	cfg      Config
	clock    clock.Clock
	resolver *dnsaddr.Resolver
	dht      pkgif.DHT
	connmgr  pkgif.ConnManager
	metrics  *metrics.Metrics
	identify Identifier

	// 并发的 Bootstrap 调用共享一次执行
	flight singleflight.Group

	mu      sync.Mutex
	started bool
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ pkgif.Bootstrapper = (*Service)(nil)

// New 创建引导服务
func New(h pkgif.Host, cfg Config, opts ...Option) (*Service, error) {
	if h == nil {
		return nil, errors.New("bootstrap: host is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		host:   h,
		cfg:    cfg,
		clock:  clock.New(),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start 启动后台引导与重试循环，不阻塞
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.started {
		return nil
	}
	s.started = true

	s.wg.Add(1)
	go s.loop()
	return nil
}

// Close 停止重试循环并取消进行中的引导
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	return nil
}

// Bootstrap 并行拨号全部候选节点，返回已连接的候选数
//
// 个别节点失败只记录日志；全部失败时返回 ErrAllDialsFailed。
func (s *Service) Bootstrap(ctx context.Context) (int, error) {
	if s.isClosed() {
		return 0, ErrClosed
	}
	v, err, _ := s.flight.Do("bootstrap", func() (any, error) {
		return s.bootstrap(ctx)
	})
	return v.(int), err
}

// ============================================================================
//                              内部方法
// ============================================================================

func (s *Service) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Service) loop() {
	defer s.wg.Done()

	s.run()
	if s.cfg.RetryInterval == 0 {
		return
	}

	ticker := s.clock.Ticker(s.cfg.RetryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if s.needsPeers() {
				logger.Debug("连接数不足，重新引导", "peers", len(s.host.Network().Peers()), "minPeers", s.cfg.MinPeers)
				s.run()
			}
		}
	}
}

func (s *Service) run() {
	if _, err := s.Bootstrap(s.ctx); err != nil && s.ctx.Err() == nil {
		if errors.Is(err, ErrNoBootstrapPeers) {
			logger.Debug("没有可用的引导节点")
			return
		}
		logger.Warn("引导失败，稍后重试", "error", err, "retryIn", s.cfg.RetryInterval)
	}
}

func (s *Service) needsPeers() bool {
	if s.connmgr != nil && s.connmgr.NeedsPeers() {
		return true
	}
	return len(s.host.Network().Peers()) < s.cfg.MinPeers
}

func (s *Service) bootstrap(ctx context.Context) (int, error) {
	start := s.clock.Now()
	cands := s.candidates(ctx)
	if len(cands) == 0 {
		return 0, ErrNoBootstrapPeers
	}
	logger.Info("开始引导", "candidates", len(cands))

	var (
		connected atomic.Int32
		mu        sync.Mutex
		errs      error
	)
	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for _, c := range cands {
		g.Go(func() error {
			if err := s.dial(ctx, c); err != nil {
				mu.Lock()
				errs = multierr.Append(errs, err)
				mu.Unlock()
				return nil
			}
			connected.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	n := int(connected.Load())
	logger.Info("引导完成",
		"connected", n,
		"failed", len(multierr.Errors(errs)),
		"duration", s.clock.Since(start))
	if n == 0 {
		return 0, fmt.Errorf("%w: %w", ErrAllDialsFailed, errs)
	}

	if s.dht != nil {
		if err := s.dht.Bootstrap(ctx); err != nil {
			logger.Debug("DHT 自查找失败", "error", err)
		}
	}
	return n, nil
}

// candidates 汇总候选节点并按 PeerID 合并地址
func (s *Service) candidates(ctx context.Context) []candidate {
	self := s.host.ID()
	var out []candidate
	index := make(map[types.PeerID]int)
	add := func(info types.AddrInfo, src types.DiscoverySource) {
		if info.ID == self || info.ID.IsEmpty() {
			return
		}
		if i, ok := index[info.ID]; ok {
			out[i].info.Addrs = ma.Unique(slices.Concat(out[i].info.Addrs, info.Addrs))
			return
		}
		index[info.ID] = len(out)
		out = append(out, candidate{info: info, source: src})
	}

	for _, p := range s.cfg.Peers {
		add(p, types.SourceBootstrap)
	}

	if len(s.cfg.DNSAddrs) > 0 {
		if s.resolver == nil {
			logger.Warn("未配置 DNS 解析器，忽略 /dnsaddr 引导地址", "count", len(s.cfg.DNSAddrs))
		} else {
			infos, err := s.resolver.ResolveAll(ctx, s.cfg.DNSAddrs)
			if err != nil {
				logger.Warn("解析 /dnsaddr 引导地址失败", "error", err, "resolved", len(infos))
			}
			for _, info := range infos {
				add(info, types.SourceBootstrap)
			}
		}
	}

	if s.cfg.UsePersistedPeers && s.cfg.MaxPersistedPeers > 0 {
		ps := s.host.Peerstore()
		known := 0
		for _, p := range ps.PeersWithAddrs() {
			if known >= s.cfg.MaxPersistedPeers {
				break
			}
			if _, ok := index[p]; ok || p == self {
				continue
			}
			add(ps.PeerInfo(p), types.SourcePeerstore)
			known++
		}
	}
	return out
}

// dial 连接一个候选节点
func (s *Service) dial(ctx context.Context, c candidate) error {
	id := c.info.ID
	if c.source == types.SourceBootstrap {
		s.host.Peerstore().AddAddrs(id, c.info.Addrs, BootstrapAddrTTL)
		if s.connmgr != nil {
			s.connmgr.TagPeer(id, connmgr.TagBootstrap, connmgr.BootstrapWeight)
		}
	}
	if s.host.Network().Connectedness(id) == pkgif.Connected {
		return nil
	}

	dctx, cancel := context.WithTimeout(ctx, s.cfg.DialTimeout)
	defer cancel()

	err := s.host.Connect(dctx, c.info)
	s.metrics.ObserveDial(err)
	if err != nil {
		logger.Debug("引导节点拨号失败", "peer", id.ShortString(), "source", string(c.source), "error", err)
		return fmt.Errorf("dial %s: %w", id.ShortString(), err)
	}
	logger.Debug("引导节点已连接", "peer", id.ShortString(), "source", string(c.source))

	if bus := s.host.EventBus(); bus != nil {
		bus.Emit(types.NewPeerDiscovered(s.host.Peerstore().PeerInfo(id), c.source))
	}
	if s.identify != nil {
		if _, err := s.identify.IdentifyWait(dctx, id); err != nil {
			logger.Debug("等待 Identify 失败", "peer", id.ShortString(), "error", err)
		}
	}
	return nil
}
