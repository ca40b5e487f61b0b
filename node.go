package meshnode

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/multierr"

	"github.com/dep2p/go-meshnode/internal/core/connmgr"
	"github.com/dep2p/go-meshnode/internal/core/host"
	"github.com/dep2p/go-meshnode/internal/core/identity"
	"github.com/dep2p/go-meshnode/internal/core/metrics"
	"github.com/dep2p/go-meshnode/internal/core/protocol/system/ping"
	"github.com/dep2p/go-meshnode/internal/discovery/bootstrap"
	"github.com/dep2p/go-meshnode/internal/discovery/dht"
	"github.com/dep2p/go-meshnode/internal/protocol/pubsub"
	pkgif "github.com/dep2p/go-meshnode/pkg/interfaces"
	"github.com/dep2p/go-meshnode/pkg/lib/log"
	ma "github.com/dep2p/go-meshnode/pkg/lib/multiaddr"
	"github.com/dep2p/go-meshnode/pkg/protocolids"
	"github.com/dep2p/go-meshnode/pkg/types"
)

var logger = log.Logger("meshnode")

// 生命周期超时
const (
	// startTimeout Fx App 启动超时
	startTimeout = 30 * time.Second

	// stopTimeout Fx App 停止超时
	stopTimeout = 30 * time.Second
)

// Node meshnode 节点
//
// Node 是门面，聚合由 fx 装配的内部组件。New 之后即可读取 ID，
// 网络相关的操作需要先 Start。
type Node struct {
	// ────────────────────────────────────────────────────────────────────────
	// 配置和状态
	// ────────────────────────────────────────────────────────────────────────

	config *nodeConfig
	app    *fx.App

	// ────────────────────────────────────────────────────────────────────────
	// 核心组件（由 Fx 注入）
	// ────────────────────────────────────────────────────────────────────────

	identity  *identity.Identity
	host      *host.Host
	eventbus  pkgif.EventBus
	connmgr   *connmgr.Manager
	pubsub    *pubsub.PubSub
	bootstrap *bootstrap.Service

	// 可选组件
	dht     *dht.DHT
	metrics *metrics.Metrics

	// ────────────────────────────────────────────────────────────────────────
	// 生命周期状态
	// ────────────────────────────────────────────────────────────────────────

	mu      sync.RWMutex
	started bool
	closed  bool
}

// ════════════════════════════════════════════════════════════════════════════
//                              构造函数
// ════════════════════════════════════════════════════════════════════════════

// New 创建节点但不启动
//
//	node, err := meshnode.New(ctx,
//	    meshnode.WithListenAddrs("/ip4/0.0.0.0/tcp/4001"),
//	    meshnode.WithConnectionLimits(5, 10),
//	)
func New(_ context.Context, opts ...Option) (*Node, error) {
	cfg := newNodeConfig()
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	node := &Node{config: cfg}

	var err error
	node.app, err = buildFxApp(cfg, node)
	if err != nil {
		return nil, fmt.Errorf("build fx app: %w", err)
	}
	return node, nil
}

// Start 创建并启动节点，等价于 New() + Node.Start()
func Start(ctx context.Context, opts ...Option) (*Node, error) {
	node, err := New(ctx, opts...)
	if err != nil {
		return nil, err
	}
	if err := node.Start(ctx); err != nil {
		return nil, fmt.Errorf("start node: %w", err)
	}
	return node, nil
}

// ════════════════════════════════════════════════════════════════════════════
//                              生命周期
// ════════════════════════════════════════════════════════════════════════════

// Start 启动全部组件：监听、系统协议、连接管理、DHT、引导与 pubsub
//
// 引导在后台进行，Start 不等待连接建立。
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return ErrNodeClosed
	}
	if n.started {
		return ErrAlreadyStarted
	}

	logger.Info("正在启动节点", "peerID", n.identity.PeerID().ShortString())

	startCtx, cancel := context.WithTimeout(ctx, startTimeout)
	defer cancel()
	if err := n.app.Start(startCtx); err != nil {
		logger.Error("节点启动失败", "error", err)
		return fmt.Errorf("start failed: %w", err)
	}
	n.started = true

	n.eventbus.Emit(types.NewNodeStarted(n.host.ID()))
	logger.Info("节点已启动", "peerID", n.host.ID().String(), "addrs", len(n.host.Addrs()))
	return nil
}

// Close 关闭节点，组件按启动的逆序关闭
//
// 关闭后不能重新启动。重复调用返回 nil。
func (n *Node) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return nil
	}
	n.closed = true

	if !n.started {
		return nil
	}
	n.started = false

	logger.Info("正在关闭节点")
	n.eventbus.Emit(types.NewNodeStopped(n.host.ID()))

	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	// fx 按逆序执行 OnStop，并汇总各组件的错误
	err := n.app.Stop(ctx)
	if err != nil {
		logger.Warn("节点关闭时出现错误", "errors", len(multierr.Errors(err)), "error", err)
		return err
	}
	logger.Info("节点已关闭")
	return nil
}

func (n *Node) checkRunning() error {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		return ErrNodeClosed
	}
	if !n.started {
		return ErrNotStarted
	}
	return nil
}

// ════════════════════════════════════════════════════════════════════════════
//                              基本信息
// ════════════════════════════════════════════════════════════════════════════

// ID 返回节点 PeerID
func (n *Node) ID() types.PeerID {
	return n.identity.PeerID()
}

// Addrs 返回监听地址
func (n *Node) Addrs() []ma.Multiaddr {
	return n.host.Addrs()
}

// AddrInfo 返回本节点的 AddrInfo
func (n *Node) AddrInfo() types.AddrInfo {
	return n.host.AddrInfo()
}

// ShareableAddrs 返回带 /p2p 后缀、可直接交给其他节点 Connect 的地址
func (n *Node) ShareableAddrs() []string {
	addrs := n.host.AddrInfo().P2PAddrs()
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = a.String()
	}
	return out
}

// ════════════════════════════════════════════════════════════════════════════
//                              连接
// ════════════════════════════════════════════════════════════════════════════

// Connect 连接到 /…/p2p/<id> 形式的地址
func (n *Node) Connect(ctx context.Context, addr string) error {
	info, err := types.ParseAddrInfo(addr)
	if err != nil {
		return err
	}
	return n.ConnectPeer(ctx, info)
}

// ConnectPeer 连接到指定节点
func (n *Node) ConnectPeer(ctx context.Context, info types.AddrInfo) error {
	if err := n.checkRunning(); err != nil {
		return err
	}
	return n.host.Connect(ctx, info)
}

// Peers 返回已连接的节点
func (n *Node) Peers() []types.PeerID {
	return n.host.Network().Peers()
}

// Ping 测量到已连接节点的往返时间
func (n *Node) Ping(ctx context.Context, p types.PeerID) (time.Duration, error) {
	if err := n.checkRunning(); err != nil {
		return 0, err
	}
	return ping.Ping(ctx, n.host, p)
}

// SetStreamHandler 注册应用协议处理器
//
// 系统协议（ping、identify、DHT、pubsub）不能被覆盖。
func (n *Node) SetStreamHandler(pid types.ProtocolID, handler pkgif.StreamHandler) error {
	if err := protocolids.ValidateApp(pid); err != nil {
		return err
	}
	n.host.SetStreamHandler(pid, handler)
	return nil
}

// RemoveStreamHandler 移除应用协议处理器
func (n *Node) RemoveStreamHandler(pid types.ProtocolID) {
	if protocolids.IsSystem(pid) {
		return
	}
	n.host.RemoveStreamHandler(pid)
}

// NewStream 打开到 p 的应用协议流，必要时先拨号
func (n *Node) NewStream(ctx context.Context, p types.PeerID, pid types.ProtocolID) (pkgif.Stream, error) {
	if err := n.checkRunning(); err != nil {
		return nil, err
	}
	return n.host.NewStream(ctx, p, pid)
}

// ════════════════════════════════════════════════════════════════════════════
//                              发现
// ════════════════════════════════════════════════════════════════════════════

// Bootstrap 立即拨号引导节点，返回连接成功的数量
func (n *Node) Bootstrap(ctx context.Context) (int, error) {
	if err := n.checkRunning(); err != nil {
		return 0, err
	}
	return n.bootstrap.Bootstrap(ctx)
}

// FindPeer 通过 DHT 查找节点地址
func (n *Node) FindPeer(ctx context.Context, p types.PeerID) (types.AddrInfo, error) {
	if err := n.checkRunning(); err != nil {
		return types.AddrInfo{}, err
	}
	if n.dht == nil {
		return types.AddrInfo{}, ErrDHTDisabled
	}
	return n.dht.FindPeer(ctx, p)
}

// FindClosestPeers 迭代查找距离 target 最近的节点
//
// 超时返回部分结果，State 为 LookupTimeout，错误为 nil。
func (n *Node) FindClosestPeers(ctx context.Context, target types.PeerID) (*types.LookupResult, error) {
	if err := n.checkRunning(); err != nil {
		return nil, err
	}
	if n.dht == nil {
		return nil, ErrDHTDisabled
	}
	return n.dht.FindClosestPeers(ctx, target)
}

// RoutingTableSize 返回 DHT 路由表中的节点数，未启用 DHT 时为 0
func (n *Node) RoutingTableSize() int {
	if n.dht == nil {
		return 0
	}
	return n.dht.RoutingTableSize()
}

// ════════════════════════════════════════════════════════════════════════════
//                              发布订阅
// ════════════════════════════════════════════════════════════════════════════

// Subscribe 订阅主题并向已连接节点宣告
func (n *Node) Subscribe(topic string) (pkgif.TopicSubscription, error) {
	if err := n.checkRunning(); err != nil {
		return nil, err
	}
	return n.pubsub.Subscribe(topic)
}

// Publish 发布消息
//
// 网格尚未建立时返回 DeliveredToPeers == 0，这不是错误。
func (n *Node) Publish(ctx context.Context, topic string, data []byte) (types.PublishResult, error) {
	if err := n.checkRunning(); err != nil {
		return types.PublishResult{}, err
	}
	return n.pubsub.Publish(ctx, topic, data)
}

// Topics 返回本地订阅的主题
func (n *Node) Topics() []string {
	return n.pubsub.Topics()
}

// TopicPeers 返回订阅了主题的远端节点
func (n *Node) TopicPeers(topic string) []types.PeerID {
	return n.pubsub.ListPeers(topic)
}

// ════════════════════════════════════════════════════════════════════════════
//                              事件与指标
// ════════════════════════════════════════════════════════════════════════════

// Events 订阅节点事件，不指定类型时订阅全部
//
//	sub, _ := node.Events(types.EventMessageReceived)
//	for evt := range sub.Out() {
//	    msg := evt.(types.MessageReceived)
//	    ...
//	}
func (n *Node) Events(eventTypes ...types.EventType) (pkgif.Subscription, error) {
	return n.eventbus.Subscribe(eventTypes...)
}

// EventBus 返回事件总线
func (n *Node) EventBus() pkgif.EventBus {
	return n.eventbus
}

// MetricsRegistry 返回节点指标所在的注册表
func (n *Node) MetricsRegistry() (*prometheus.Registry, error) {
	if n.metrics == nil {
		return nil, ErrMetricsDisabled
	}
	return n.metrics.Registry(), nil
}

// ConnectionLimits 返回连接数上下限
func (n *Node) ConnectionLimits() (low, high int) {
	return n.connmgr.Limits()
}
