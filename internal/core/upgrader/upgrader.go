package upgrader

import (
	"context"
	"fmt"
	"net"
	"time"

	mss "github.com/multiformats/go-multistream"

	pkgif "github.com/dep2p/go-meshnode/pkg/interfaces"
	"github.com/dep2p/go-meshnode/pkg/lib/log"
	"github.com/dep2p/go-meshnode/pkg/types"
)

var logger = log.Logger("core/upgrader")

// DefaultNegotiateTimeout 默认协商超时
const DefaultNegotiateTimeout = 60 * time.Second

// Config 升级器配置
type Config struct {
	// NegotiateTimeout 单次 multistream 协商超时
	NegotiateTimeout time.Duration
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{NegotiateTimeout: DefaultNegotiateTimeout}
}

// Upgrader 连接升级器
type Upgrader struct {
	securityTransports []pkgif.SecureTransport
	streamMuxers       []pkgif.StreamMuxer
	negotiateTimeout   time.Duration
}

var _ pkgif.Upgrader = (*Upgrader)(nil)

// New 创建升级器，安全传输与复用器按优先级排序
func New(security []pkgif.SecureTransport, muxers []pkgif.StreamMuxer, cfg Config) (*Upgrader, error) {
	if len(security) == 0 {
		return nil, ErrNoSecurityTransport
	}
	if len(muxers) == 0 {
		return nil, ErrNoStreamMuxer
	}
	if cfg.NegotiateTimeout <= 0 {
		cfg.NegotiateTimeout = DefaultNegotiateTimeout
	}
	return &Upgrader{
		securityTransports: security,
		streamMuxers:       muxers,
		negotiateTimeout:   cfg.NegotiateTimeout,
	}, nil
}

// Upgrade 升级连接
func (u *Upgrader) Upgrade(ctx context.Context, conn pkgif.TransportConn, dir types.Direction, remotePeer types.PeerID) (pkgif.UpgradedConn, error) {
	if dir == types.DirOutbound && remotePeer.IsEmpty() {
		conn.Close()
		return nil, ErrNoPeerID
	}
	isServer := dir == types.DirInbound

	sec, err := u.negotiateSecurity(ctx, conn, isServer, remotePeer)
	if err != nil {
		conn.Close()
		return nil, err
	}

	var secConn pkgif.SecureConn
	if isServer {
		secConn, err = sec.SecureInbound(ctx, conn, remotePeer)
	} else {
		secConn, err = sec.SecureOutbound(ctx, conn, remotePeer)
	}
	if err != nil {
		logger.Debug("安全握手失败", "remoteAddr", conn.RemoteMultiaddr(), "error", err)
		conn.Close()
		return nil, err
	}

	muxer, err := u.negotiateMuxer(ctx, secConn, isServer, secConn.RemotePeer())
	if err != nil {
		secConn.Close()
		return nil, err
	}

	muxed, err := muxer.NewConn(secConn, isServer)
	if err != nil {
		secConn.Close()
		return nil, fmt.Errorf("muxer setup: %w", err)
	}

	logger.Debug("连接升级成功",
		"remotePeer", secConn.RemotePeer().ShortString(),
		"direction", dir,
		"security", sec.ID(),
		"muxer", muxer.ID())

	return &upgradedConn{
		MuxedConn: muxed,
		secConn:   secConn,
		laddr:     conn.LocalMultiaddr(),
		raddr:     conn.RemoteMultiaddr(),
		security:  sec.ID(),
		muxer:     muxer.ID(),
	}, nil
}

func (u *Upgrader) negotiateSecurity(ctx context.Context, conn net.Conn, isServer bool, peer types.PeerID) (pkgif.SecureTransport, error) {
	protos := make([]string, len(u.securityTransports))
	for i, st := range u.securityTransports {
		protos[i] = string(st.ID())
	}
	selected, err := u.negotiate(ctx, conn, isServer, protos)
	if err != nil {
		return nil, negotiationError(ctx, peer, fmt.Errorf("security negotiation: %w", err))
	}
	for _, st := range u.securityTransports {
		if string(st.ID()) == selected {
			return st, nil
		}
	}
	return nil, &types.HandshakeError{Peer: peer, Reason: types.HandshakeUnsupported,
		Err: fmt.Errorf("negotiated unknown security protocol %s", selected)}
}

func (u *Upgrader) negotiateMuxer(ctx context.Context, conn net.Conn, isServer bool, peer types.PeerID) (pkgif.StreamMuxer, error) {
	protos := make([]string, len(u.streamMuxers))
	for i, sm := range u.streamMuxers {
		protos[i] = string(sm.ID())
	}
	selected, err := u.negotiate(ctx, conn, isServer, protos)
	if err != nil {
		return nil, negotiationError(ctx, peer, fmt.Errorf("muxer negotiation: %w", err))
	}
	for _, sm := range u.streamMuxers {
		if string(sm.ID()) == selected {
			return sm, nil
		}
	}
	return nil, &types.HandshakeError{Peer: peer, Reason: types.HandshakeUnsupported,
		Err: fmt.Errorf("negotiated unknown muxer %s", selected)}
}

// negotiate 执行一次 multistream-select
//
// 服务端用 Negotiate 等待提议，客户端按优先级 SelectOneOf。
func (u *Upgrader) negotiate(ctx context.Context, conn net.Conn, isServer bool, protos []string) (string, error) {
	deadline := time.Now().Add(u.negotiateTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return "", err
	}
	defer conn.SetDeadline(time.Time{})

	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	if !isServer {
		return mss.SelectOneOf(protos, conn)
	}

	mux := mss.NewMultistreamMuxer[string]()
	for _, p := range protos {
		mux.AddHandler(p, nil)
	}
	selected, _, err := mux.Negotiate(conn)
	return selected, err
}
