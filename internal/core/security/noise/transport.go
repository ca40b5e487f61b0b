package noise

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/flynn/noise"
	"golang.org/x/crypto/curve25519"

	pkgif "github.com/dep2p/go-meshnode/pkg/interfaces"
	"github.com/dep2p/go-meshnode/pkg/lib/crypto"
	"github.com/dep2p/go-meshnode/pkg/lib/log"
	"github.com/dep2p/go-meshnode/pkg/protocolids"
	"github.com/dep2p/go-meshnode/pkg/types"
)

var logger = log.Logger("core/security/noise")

// ID Noise 安全协议 ID
const ID = protocolids.Noise

// DefaultHandshakeTimeout 默认握手超时
const DefaultHandshakeTimeout = 30 * time.Second

// ErrNilConn 连接为空
var ErrNilConn = errors.New("nil connection")

// Transport Noise 安全传输
type Transport struct {
	privKey   crypto.PrivateKey
	localPeer types.PeerID
	staticKey noise.DHKey
	timeout   time.Duration
}

var _ pkgif.SecureTransport = (*Transport)(nil)

// Option 传输选项
type Option func(*Transport)

// WithHandshakeTimeout 设置握手超时
func WithHandshakeTimeout(d time.Duration) Option {
	return func(t *Transport) {
		if d > 0 {
			t.timeout = d
		}
	}
}

// New 创建 Noise 传输
//
// 每个传输实例生成一把独立的 Curve25519 静态密钥，身份由 payload 签名绑定。
func New(priv crypto.PrivateKey, opts ...Option) (*Transport, error) {
	if priv == nil {
		return nil, crypto.ErrNilPrivateKey
	}
	id, err := crypto.PeerIDFromPrivateKey(priv)
	if err != nil {
		return nil, err
	}
	static, err := generateStaticKey(rand.Reader)
	if err != nil {
		return nil, err
	}

	t := &Transport{
		privKey:   priv,
		localPeer: id,
		staticKey: static,
		timeout:   DefaultHandshakeTimeout,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// ID 返回协议 ID
func (t *Transport) ID() types.ProtocolID {
	return ID
}

// SecureInbound 作为响应方握手
func (t *Transport) SecureInbound(ctx context.Context, conn net.Conn, remotePeer types.PeerID) (pkgif.SecureConn, error) {
	return t.secure(ctx, conn, remotePeer, false)
}

// SecureOutbound 作为发起方握手
func (t *Transport) SecureOutbound(ctx context.Context, conn net.Conn, remotePeer types.PeerID) (pkgif.SecureConn, error) {
	return t.secure(ctx, conn, remotePeer, true)
}

func (t *Transport) secure(ctx context.Context, conn net.Conn, remotePeer types.PeerID, initiator bool) (pkgif.SecureConn, error) {
	if conn == nil {
		return nil, &types.HandshakeError{Peer: remotePeer, Reason: types.HandshakeIO, Err: ErrNilConn}
	}

	s := &session{
		conn:       conn,
		initiator:  initiator,
		privKey:    t.privKey,
		localPeer:  t.localPeer,
		staticKey:  t.staticKey,
		remotePeer: remotePeer,
	}
	sc, err := s.run(ctx, t.timeout)
	if err != nil {
		logger.Debug("Noise 握手失败",
			"initiator", initiator,
			"remoteAddr", conn.RemoteAddr(),
			"error", err)
		return nil, err
	}

	logger.Debug("Noise 握手成功",
		"initiator", initiator,
		"remotePeer", sc.RemotePeer().ShortString())
	return sc, nil
}

func generateStaticKey(rng io.Reader) (noise.DHKey, error) {
	priv := make([]byte, curve25519.ScalarSize)
	if _, err := io.ReadFull(rng, priv); err != nil {
		return noise.DHKey{}, fmt.Errorf("generate static key: %w", err)
	}
	pub, err := curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return noise.DHKey{}, fmt.Errorf("derive static public key: %w", err)
	}
	return noise.DHKey{Private: priv, Public: pub}, nil
}
