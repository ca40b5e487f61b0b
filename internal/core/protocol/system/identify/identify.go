package identify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/singleflight"

	pkgif "github.com/dep2p/go-meshnode/pkg/interfaces"
	"github.com/dep2p/go-meshnode/pkg/lib/crypto"
	"github.com/dep2p/go-meshnode/pkg/lib/log"
	ma "github.com/dep2p/go-meshnode/pkg/lib/multiaddr"
	"github.com/dep2p/go-meshnode/pkg/lib/proto"
	pb "github.com/dep2p/go-meshnode/pkg/lib/proto/identify"
	"github.com/dep2p/go-meshnode/pkg/protocolids"
	"github.com/dep2p/go-meshnode/pkg/types"
)

var logger = log.Logger("protocol/identify")

// ProtocolID Identify 协议 ID
const ProtocolID = protocolids.Identify

// maxMessageSize Identify 消息上限
const maxMessageSize = 64 << 10

var (
	// ErrKeyMismatch 公钥与连接的 PeerID 不匹配
	ErrKeyMismatch = errors.New("identify: public key does not match peer id")

	// ErrMissingKey 对端未提供公钥
	ErrMissingKey = errors.New("identify: missing public key")

	// ErrServiceClosed 服务已停止
	ErrServiceClosed = errors.New("identify: service closed")
)

// Info 节点身份信息
type Info struct {
	PeerID          types.PeerID
	PublicKey       crypto.PublicKey
	ListenAddrs     []ma.Multiaddr
	Protocols       []types.ProtocolID
	ObservedAddr    ma.Multiaddr
	AgentVersion    string
	ProtocolVersion string
}

// Config Identify 配置
type Config struct {
	AgentVersion    string
	ProtocolVersion string

	// Timeout 单次识别超时
	Timeout time.Duration
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		AgentVersion:    "meshnode/0.1.0",
		ProtocolVersion: "meshnode/1.0.0",
		Timeout:         10 * time.Second,
	}
}

// Option 服务选项
type Option func(*Service)

// WithClock 设置时钟（测试用）
func WithClock(clk clock.Clock) Option {
	return func(s *Service) {
		s.clock = clk
	}
}

// Service Identify 服务
//
// 每条新连接建立后自动识别对端，并把结果写入 Peerstore。
type Service struct {
	host   pkgif.Host
	pub    crypto.PublicKey
	config Config
	clock  clock.Clock

	observed *observedAddrs
	notifee  *pkgif.NotifyBundle
	inflight singleflight.Group

	mu        sync.Mutex
	callbacks []func(*Info)
	started   bool
	closed    bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewService 创建 Identify 服务
func NewService(h pkgif.Host, pub crypto.PublicKey, cfg Config, opts ...Option) (*Service, error) {
	if h == nil {
		return nil, errors.New("identify: host is required")
	}
	if pub == nil {
		return nil, crypto.ErrNilPublicKey
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		host:   h,
		pub:    pub,
		config: cfg,
		clock:  clock.New(),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.observed = newObservedAddrs(s.clock)
	s.notifee = &pkgif.NotifyBundle{ConnectedF: s.connected}
	return s, nil
}

// Start 注册处理器并开始识别新连接
func (s *Service) Start() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrServiceClosed
	}
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	s.host.SetStreamHandler(ProtocolID, s.Handler)
	s.host.Network().Notify(s.notifee)

	for _, c := range s.host.Network().Conns() {
		s.connected(c)
	}
	logger.Debug("Identify 服务已启动")
	return nil
}

// Stop 停止服务并等待进行中的识别结束
func (s *Service) Stop() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	started := s.started
	s.mu.Unlock()

	s.cancel()
	if started {
		s.host.Network().StopNotify(s.notifee)
		s.host.RemoveStreamHandler(ProtocolID)
	}
	s.wg.Wait()
	return nil
}

// OnIdentified 注册识别完成回调（在识别协程中同步调用）
func (s *Service) OnIdentified(fn func(*Info)) {
	s.mu.Lock()
	s.callbacks = append(s.callbacks, fn)
	s.mu.Unlock()
}

// ObservedAddrs 返回被多个节点观测到的本机地址
func (s *Service) ObservedAddrs() []ma.Multiaddr {
	return s.observed.addrs()
}

func (s *Service) connected(c pkgif.Connection) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		if _, err := s.IdentifyWait(s.ctx, c.RemotePeer()); err != nil {
			logger.Debug("Identify 失败", "peerID", c.RemotePeer().ShortString(), "error", err)
		}
	}()
}

// IdentifyWait 识别节点并更新 Peerstore，同一节点的并发调用共享一次请求
func (s *Service) IdentifyWait(ctx context.Context, p types.PeerID) (*Info, error) {
	ch := s.inflight.DoChan(p.String(), func() (any, error) {
		ictx, cancel := context.WithTimeout(s.ctx, s.config.Timeout)
		defer cancel()

		info, err := Identify(ictx, s.host, p)
		if err != nil {
			return nil, err
		}
		s.consume(info)
		return info, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Info), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// consume 把识别结果写入 Peerstore
func (s *Service) consume(info *Info) {
	ps := s.host.Peerstore()
	if err := ps.AddPubKey(info.PeerID, info.PublicKey); err != nil {
		logger.Warn("记录公钥失败", "peerID", info.PeerID.ShortString(), "error", err)
	}

	ttl := pkgif.RecentlyConnectedAddrTTL
	if s.host.Network().Connectedness(info.PeerID) == pkgif.Connected {
		ttl = pkgif.ConnectedAddrTTL
	}
	if len(info.ListenAddrs) > 0 {
		ps.AddAddrs(info.PeerID, info.ListenAddrs, ttl)
	}
	if len(info.Protocols) > 0 {
		ps.SetProtocols(info.PeerID, info.Protocols...)
	}
	if info.ObservedAddr != nil {
		s.observed.record(info.ObservedAddr, info.PeerID)
	}

	logger.Debug("Identify 完成",
		"peerID", info.PeerID.ShortString(),
		"addrs", len(info.ListenAddrs),
		"protocols", len(info.Protocols),
		"agent", info.AgentVersion)

	s.mu.Lock()
	callbacks := append([]func(*Info)(nil), s.callbacks...)
	s.mu.Unlock()
	for _, fn := range callbacks {
		fn(info)
	}
}

// Handler 处理 Identify 请求（服务器端），回复本节点信息后关闭流
func (s *Service) Handler(stream pkgif.Stream) {
	defer stream.Close()

	keyBytes, err := crypto.MarshalPublicKey(s.pub)
	if err != nil {
		_ = stream.Reset()
		return
	}

	msg := &pb.Identify{
		PublicKey:       keyBytes,
		AgentVersion:    s.config.AgentVersion,
		ProtocolVersion: s.config.ProtocolVersion,
	}
	for _, a := range s.host.Addrs() {
		msg.ListenAddrs = append(msg.ListenAddrs, a.Bytes())
	}
	for _, p := range s.host.Protocols() {
		msg.Protocols = append(msg.Protocols, string(p))
	}
	if remote := stream.Conn().RemoteMultiaddr(); remote != nil {
		msg.ObservedAddr = remote.Bytes()
	}

	_ = stream.SetWriteDeadline(time.Now().Add(s.config.Timeout))
	if err := proto.WriteDelimited(stream, msg.Marshal()); err != nil {
		logger.Debug("发送 Identify 失败", "peerID", stream.Conn().RemotePeer().ShortString(), "error", err)
		_ = stream.Reset()
	}
}

// Identify 主动识别节点（客户端），校验公钥与 PeerID 一致
func Identify(ctx context.Context, h pkgif.Host, p types.PeerID) (*Info, error) {
	stream, err := h.NewStream(ctx, p, ProtocolID)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	if d, ok := ctx.Deadline(); ok {
		_ = stream.SetDeadline(d)
	}
	stop := context.AfterFunc(ctx, func() { _ = stream.Reset() })
	defer stop()

	data, err := proto.ReadDelimited(stream, maxMessageSize)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("read identify: %w", err)
	}

	var msg pb.Identify
	if err := msg.Unmarshal(data); err != nil {
		return nil, err
	}
	return infoFromMessage(p, &msg)
}

func infoFromMessage(p types.PeerID, msg *pb.Identify) (*Info, error) {
	if len(msg.PublicKey) == 0 {
		return nil, ErrMissingKey
	}
	pub, err := crypto.UnmarshalPublicKey(msg.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("identify: %w", err)
	}
	if !crypto.PeerIDMatchesKey(p, pub) {
		return nil, fmt.Errorf("%w: %s", ErrKeyMismatch, p.ShortString())
	}

	info := &Info{
		PeerID:          p,
		PublicKey:       pub,
		AgentVersion:    msg.AgentVersion,
		ProtocolVersion: msg.ProtocolVersion,
	}
	for _, b := range msg.ListenAddrs {
		addr, err := ma.NewMultiaddrBytes(b)
		if err != nil {
			continue
		}
		info.ListenAddrs = append(info.ListenAddrs, addr)
	}
	for _, s := range msg.Protocols {
		info.Protocols = append(info.Protocols, types.ProtocolID(s))
	}
	if len(msg.ObservedAddr) > 0 {
		if addr, err := ma.NewMultiaddrBytes(msg.ObservedAddr); err == nil {
			info.ObservedAddr = addr
		}
	}
	return info, nil
}
