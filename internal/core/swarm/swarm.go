package swarm

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"
	"golang.org/x/sync/singleflight"

	pkgif "github.com/dep2p/go-meshnode/pkg/interfaces"
	"github.com/dep2p/go-meshnode/pkg/lib/log"
	ma "github.com/dep2p/go-meshnode/pkg/lib/multiaddr"
	"github.com/dep2p/go-meshnode/pkg/types"
)

var logger = log.Logger("core/swarm")

// Transports 传输选择，由 transport.Manager 实现
type Transports interface {
	CanDial(addr ma.Multiaddr) bool
	Dial(ctx context.Context, addr ma.Multiaddr) (pkgif.TransportConn, error)
	Listen(addr ma.Multiaddr) (pkgif.Listener, error)
}

// Swarm 连接群管理
type Swarm struct {
	localPeer  types.PeerID
	transports Transports
	upgrader   pkgif.Upgrader
	peerstore  pkgif.Peerstore
	eventbus   pkgif.EventBus
	config     Config

	mu          sync.RWMutex
	conns       map[types.PeerID][]*Conn
	listeners   []pkgif.Listener
	listenAddrs []ma.Multiaddr
	notifiers   []pkgif.SwarmNotifier
	handler     pkgif.InboundStreamHandler

	dials singleflight.Group

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool
}

var _ pkgif.Swarm = (*Swarm)(nil)

// New 创建 Swarm
func New(localPeer types.PeerID, transports Transports, upgrader pkgif.Upgrader, peerstore pkgif.Peerstore, opts ...Option) (*Swarm, error) {
	if localPeer.IsEmpty() {
		return nil, errors.New("swarm: local peer is empty")
	}
	if transports == nil || upgrader == nil || peerstore == nil {
		return nil, errors.New("swarm: transports, upgrader and peerstore are required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Swarm{
		localPeer:  localPeer,
		transports: transports,
		upgrader:   upgrader,
		peerstore:  peerstore,
		config:     DefaultConfig(),
		conns:      make(map[types.PeerID][]*Conn),
		ctx:        ctx,
		cancel:     cancel,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			cancel()
			return nil, err
		}
	}
	return s, nil
}

// LocalPeer 返回本地节点 ID
func (s *Swarm) LocalPeer() types.PeerID {
	return s.localPeer
}

// Peers 返回已连接的节点
func (s *Swarm) Peers() []types.PeerID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	peers := make([]types.PeerID, 0, len(s.conns))
	for p := range s.conns {
		peers = append(peers, p)
	}
	return peers
}

// Conns 返回所有连接
func (s *Swarm) Conns() []pkgif.Connection {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []pkgif.Connection
	for _, cs := range s.conns {
		for _, c := range cs {
			out = append(out, c)
		}
	}
	return out
}

// ConnsToPeer 返回到指定节点的连接，最新的在前
func (s *Swarm) ConnsToPeer(p types.PeerID) []pkgif.Connection {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cs := s.conns[p]
	out := make([]pkgif.Connection, 0, len(cs))
	for i := len(cs) - 1; i >= 0; i-- {
		out = append(out, cs[i])
	}
	return out
}

// Connectedness 返回连接状态
func (s *Swarm) Connectedness(p types.PeerID) pkgif.Connectedness {
	if s.bestConn(p) != nil {
		return pkgif.Connected
	}
	return pkgif.NotConnected
}

func (s *Swarm) bestConn(p types.PeerID) *Conn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cs := s.conns[p]
	for i := len(cs) - 1; i >= 0; i-- {
		if !cs[i].IsClosed() {
			return cs[i]
		}
	}
	return nil
}

// ClosePeer 关闭与节点的所有连接
func (s *Swarm) ClosePeer(p types.PeerID) error {
	s.mu.RLock()
	cs := append([]*Conn(nil), s.conns[p]...)
	s.mu.RUnlock()

	var err error
	for _, c := range cs {
		err = multierr.Append(err, c.Close())
	}
	return err
}

// NewStream 打开到节点的新流，未连接时先拨号
func (s *Swarm) NewStream(ctx context.Context, p types.PeerID) (pkgif.Stream, error) {
	if s.closed.Load() {
		return nil, ErrSwarmClosed
	}

	for _, c := range s.ConnsToPeer(p) {
		st, err := c.NewStream(ctx)
		if err == nil {
			return st, nil
		}
		logger.Debug("打开流失败，尝试下一条连接", "peerID", p.ShortString(), "error", err)
	}

	c, err := s.DialPeer(ctx, p)
	if err != nil {
		return nil, err
	}
	return c.NewStream(ctx)
}

// SetInboundStreamHandler 设置入站流处理器
func (s *Swarm) SetInboundStreamHandler(handler pkgif.InboundStreamHandler) {
	s.mu.Lock()
	s.handler = handler
	s.mu.Unlock()
}

func (s *Swarm) inboundHandler() pkgif.InboundStreamHandler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.handler
}

// Notify 注册连接通知
//
// 通知在连接状态变化的 goroutine 中同步调用，实现不得阻塞。
func (s *Swarm) Notify(n pkgif.SwarmNotifier) {
	if n == nil {
		return
	}
	s.mu.Lock()
	s.notifiers = append(s.notifiers, n)
	s.mu.Unlock()
}

// StopNotify 取消连接通知
func (s *Swarm) StopNotify(n pkgif.SwarmNotifier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.notifiers {
		if existing == n {
			s.notifiers = append(s.notifiers[:i], s.notifiers[i+1:]...)
			return
		}
	}
}

func (s *Swarm) snapshotNotifiers() []pkgif.SwarmNotifier {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]pkgif.SwarmNotifier(nil), s.notifiers...)
}

// addConn 登记已升级连接并启动入站流循环
func (s *Swarm) addConn(uc pkgif.UpgradedConn, dir types.Direction) (*Conn, error) {
	p := uc.RemotePeer()
	c := newConn(s, uc, dir)

	s.mu.Lock()
	if s.closed.Load() {
		s.mu.Unlock()
		_ = uc.Close()
		return nil, ErrSwarmClosed
	}
	s.conns[p] = append(s.conns[p], c)
	s.wg.Add(1)
	s.mu.Unlock()

	if pub := uc.RemotePublicKey(); pub != nil {
		if err := s.peerstore.AddPubKey(p, pub); err != nil {
			logger.Warn("记录对端公钥失败", "peerID", p.ShortString(), "error", err)
		}
	}
	if dir == types.DirOutbound && uc.RemoteMultiaddr() != nil {
		s.peerstore.AddAddr(p, uc.RemoteMultiaddr(), pkgif.ConnectedAddrTTL)
	}

	for _, n := range s.snapshotNotifiers() {
		n.Connected(c)
	}
	s.emit(types.NewConnectionOpened(p, uc.RemoteMultiaddr(), dir))

	logger.Debug("连接已建立",
		"peerID", p.ShortString(),
		"direction", dir,
		"remoteAddr", uc.RemoteMultiaddr())

	go func() {
		defer s.wg.Done()
		c.acceptStreams()
	}()
	return c, nil
}

// removeConn 由 Conn.Close 调用
func (s *Swarm) removeConn(c *Conn) {
	p := c.RemotePeer()

	s.mu.Lock()
	cs := s.conns[p]
	found := false
	for i, existing := range cs {
		if existing == c {
			cs = append(cs[:i], cs[i+1:]...)
			found = true
			break
		}
	}
	if len(cs) == 0 {
		delete(s.conns, p)
	} else {
		s.conns[p] = cs
	}
	remaining := len(cs)
	s.mu.Unlock()

	if !found {
		return
	}

	if remaining == 0 {
		s.peerstore.UpdateAddrs(p, pkgif.ConnectedAddrTTL, pkgif.RecentlyConnectedAddrTTL)
	}
	for _, n := range s.snapshotNotifiers() {
		n.Disconnected(c)
	}
	s.emit(types.NewConnectionClosed(p, c.RemoteMultiaddr(), remaining))

	logger.Debug("连接已关闭", "peerID", p.ShortString(), "remaining", remaining)
}

func (s *Swarm) emit(evt types.Event) {
	if s.eventbus != nil {
		s.eventbus.Emit(evt)
	}
}

// Close 关闭 Swarm：停止监听并关闭所有连接
func (s *Swarm) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.cancel()

	s.mu.Lock()
	listeners := s.listeners
	s.listeners = nil
	var conns []*Conn
	for _, cs := range s.conns {
		conns = append(conns, cs...)
	}
	s.mu.Unlock()

	var err error
	for _, l := range listeners {
		err = multierr.Append(err, l.Close())
	}
	for _, c := range conns {
		_ = c.Close()
	}
	s.wg.Wait()

	logger.Info("Swarm 已关闭", "closedConns", len(conns))
	return err
}
