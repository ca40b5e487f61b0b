package connmgr

import (
	"context"
	"sync"

	"github.com/benbjohnson/clock"

	pkgif "github.com/dep2p/go-meshnode/pkg/interfaces"
	"github.com/dep2p/go-meshnode/pkg/lib/log"
	"github.com/dep2p/go-meshnode/pkg/types"
)

var logger = log.Logger("core/connmgr")

// Network 连接管理器需要的 Swarm 能力
type Network interface {
	Conns() []pkgif.Connection
	ClosePeer(p types.PeerID) error
	Notify(n pkgif.SwarmNotifier)
	StopNotify(n pkgif.SwarmNotifier)
}

// Option 管理器选项
type Option func(*Manager)

// WithClock 设置时钟（测试用）
func WithClock(clk clock.Clock) Option {
	return func(m *Manager) {
		m.clock = clk
	}
}

// WithTrimHook 设置每次裁剪后的回调，参数为关闭的节点数
func WithTrimHook(fn func(closed int)) Option {
	return func(m *Manager) {
		m.onTrim = fn
	}
}

// Manager 连接管理器
type Manager struct {
	cfg      Config
	network  Network
	clock    clock.Clock
	tags     *tagStore
	protects *protectStore
	notifee  *pkgif.NotifyBundle
	onTrim   func(int)

	// 串行化裁剪
	trimMu sync.Mutex
	trimCh chan struct{}

	mu      sync.Mutex
	started bool
	closed  bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

var _ pkgif.ConnManager = (*Manager)(nil)

// New 创建连接管理器
func New(cfg Config, network Network, opts ...Option) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if network == nil {
		return nil, ErrInvalidConfig
	}

	m := &Manager{
		cfg:      cfg,
		network:  network,
		clock:    clock.New(),
		tags:     newTagStore(),
		protects: newProtectStore(),
		trimCh:   make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.notifee = &pkgif.NotifyBundle{ConnectedF: m.connected, DisconnectedF: m.disconnected}
	return m, nil
}

// Start 注册连接通知并启动后台裁剪循环
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrManagerClosed
	}
	if m.started {
		return nil
	}
	m.started = true

	m.network.Notify(m.notifee)
	m.wg.Add(1)
	go m.trimLoop()

	logger.Info("连接管理器已启动", "low", m.cfg.LowWater, "high", m.cfg.HighWater)
	return nil
}

// TagPeer 为节点设置标签权重
func (m *Manager) TagPeer(p types.PeerID, tag string, weight int) {
	m.tags.Set(p, tag, weight)
}

// UntagPeer 移除节点标签
func (m *Manager) UntagPeer(p types.PeerID, tag string) {
	m.tags.Delete(p, tag)
}

// TagValue 返回节点的标签权重总和
func (m *Manager) TagValue(p types.PeerID) int {
	return m.tags.Sum(p)
}

// Protect 保护节点连接不被裁剪
func (m *Manager) Protect(p types.PeerID, tag string) {
	logger.Debug("保护节点", "peerID", p.ShortString(), "tag", tag)
	m.protects.Protect(p, tag)
}

// Unprotect 取消节点保护，返回 true 表示还有其他保护标签
func (m *Manager) Unprotect(p types.PeerID, tag string) bool {
	return m.protects.Unprotect(p, tag)
}

// IsProtected 检查节点是否受保护
func (m *Manager) IsProtected(p types.PeerID, tag string) bool {
	return m.protects.IsProtected(p, tag)
}

// ConnCount 返回当前连接数
func (m *Manager) ConnCount() int {
	return len(m.network.Conns())
}

// NeedsPeers 连接数低于低水位
func (m *Manager) NeedsPeers() bool {
	return m.ConnCount() < m.cfg.LowWater
}

// Limits 返回低水位和高水位
func (m *Manager) Limits() (low, high int) {
	return m.cfg.LowWater, m.cfg.HighWater
}

// TrimOpenConns 立即裁剪到低水位
func (m *Manager) TrimOpenConns(ctx context.Context) {
	m.trim(ctx, true)
}

// TriggerTrim 请求后台裁剪（非阻塞）
func (m *Manager) TriggerTrim() {
	select {
	case m.trimCh <- struct{}{}:
	default:
	}
}

// Close 停止后台循环
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	started := m.started
	close(m.stopCh)
	m.mu.Unlock()

	if started {
		m.network.StopNotify(m.notifee)
	}
	m.wg.Wait()

	m.tags.Clear()
	m.protects.Clear()
	logger.Info("连接管理器已关闭")
	return nil
}

func (m *Manager) connected(_ pkgif.Connection) {
	if m.ConnCount() > m.cfg.HighWater {
		m.TriggerTrim()
	}
}

// disconnected 节点最后一条连接断开后清除其会话标签，引导标签跨连接保留
func (m *Manager) disconnected(c pkgif.Connection) {
	p := c.RemotePeer()
	for _, other := range m.network.Conns() {
		if other.RemotePeer() == p {
			return
		}
	}
	m.tags.DropExcept(p, TagBootstrap)
	logger.Debug("节点已断开，清除标签", "peerID", p.ShortString())
}

func (m *Manager) trimLoop() {
	defer m.wg.Done()

	ticker := m.clock.Ticker(m.cfg.TrimInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
		case <-m.trimCh:
		}
		m.trim(context.Background(), false)
	}
}
