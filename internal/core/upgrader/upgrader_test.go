package upgrader

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-meshnode/internal/core/muxer"
	"github.com/dep2p/go-meshnode/internal/core/security/noise"
	"github.com/dep2p/go-meshnode/internal/core/transport/tcp"
	pkgif "github.com/dep2p/go-meshnode/pkg/interfaces"
	"github.com/dep2p/go-meshnode/pkg/lib/crypto"
	ma "github.com/dep2p/go-meshnode/pkg/lib/multiaddr"
	"github.com/dep2p/go-meshnode/pkg/types"
)

type testNode struct {
	id       types.PeerID
	upgrader *Upgrader
}

func newTestNode(t *testing.T) testNode {
	t.Helper()
	priv, _, err := crypto.GenerateEd25519Key(nil)
	require.NoError(t, err)
	id, err := crypto.PeerIDFromPrivateKey(priv)
	require.NoError(t, err)
	sec, err := noise.New(priv)
	require.NoError(t, err)

	u, err := New(
		[]pkgif.SecureTransport{sec},
		[]pkgif.StreamMuxer{muxer.NewTransport(muxer.DefaultConfig())},
		Config{NegotiateTimeout: 5 * time.Second},
	)
	require.NoError(t, err)
	return testNode{id: id, upgrader: u}
}

// fakeSecurity 仅用于协商失败测试
type fakeSecurity struct{}

func (fakeSecurity) ID() types.ProtocolID { return "/fake-security" }

func (fakeSecurity) SecureInbound(context.Context, net.Conn, types.PeerID) (pkgif.SecureConn, error) {
	return nil, errors.New("not implemented")
}

func (fakeSecurity) SecureOutbound(context.Context, net.Conn, types.PeerID) (pkgif.SecureConn, error) {
	return nil, errors.New("not implemented")
}

type upgradeResult struct {
	conn pkgif.UpgradedConn
	err  error
}

// connectPair 在 TCP 回环上升级一对连接
func connectPair(t *testing.T, client, server *Upgrader, expect types.PeerID) (upgradeResult, upgradeResult) {
	t.Helper()
	tr := tcp.New(tcp.DefaultConfig())
	t.Cleanup(func() { tr.Close() })

	l, err := tr.Listen(ma.StringCast("/ip4/127.0.0.1/tcp/0"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	serverDone := make(chan upgradeResult, 1)
	go func() {
		raw, err := l.Accept()
		if err != nil {
			serverDone <- upgradeResult{err: err}
			return
		}
		c, err := server.Upgrade(ctx, raw, types.DirInbound, "")
		serverDone <- upgradeResult{c, err}
	}()

	raw, err := tr.Dial(ctx, l.Multiaddr())
	require.NoError(t, err)
	c, err := client.Upgrade(ctx, raw, types.DirOutbound, expect)
	return upgradeResult{c, err}, <-serverDone
}

func TestUpgrade_Success(t *testing.T) {
	a := newTestNode(t)
	b := newTestNode(t)

	cr, sr := connectPair(t, a.upgrader, b.upgrader, b.id)
	require.NoError(t, cr.err)
	require.NoError(t, sr.err)
	defer cr.conn.Close()
	defer sr.conn.Close()

	assert.Equal(t, b.id, cr.conn.RemotePeer())
	assert.Equal(t, a.id, sr.conn.RemotePeer())
	assert.Equal(t, noise.ID, cr.conn.Security())
	assert.Equal(t, muxer.ID, sr.conn.Muxer())
	assert.NotNil(t, cr.conn.RemoteMultiaddr())
	assert.True(t, crypto.PeerIDMatchesKey(b.id, cr.conn.RemotePublicKey()))

	go func() {
		s, err := sr.conn.AcceptStream()
		if err != nil {
			return
		}
		defer s.Close()
		_, _ = io.Copy(s, s)
	}()

	s, err := cr.conn.OpenStream(context.Background())
	require.NoError(t, err)
	_, err = s.Write([]byte("ping"))
	require.NoError(t, err)
	require.NoError(t, s.CloseWrite())
	got, err := io.ReadAll(s)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(got))
}

func TestUpgrade_PeerIDMismatch(t *testing.T) {
	a := newTestNode(t)
	b := newTestNode(t)
	c := newTestNode(t)

	cr, sr := connectPair(t, a.upgrader, b.upgrader, c.id)

	var hsErr *types.HandshakeError
	require.True(t, errors.As(cr.err, &hsErr), "got %v", cr.err)
	assert.Equal(t, types.HandshakePeerIDMismatch, hsErr.Reason)
	assert.Error(t, sr.err)
}

func TestUpgrade_UnsupportedSecurity(t *testing.T) {
	b := newTestNode(t)

	fake, err := New(
		[]pkgif.SecureTransport{fakeSecurity{}},
		[]pkgif.StreamMuxer{muxer.NewTransport(muxer.DefaultConfig())},
		DefaultConfig(),
	)
	require.NoError(t, err)

	cr, sr := connectPair(t, fake, b.upgrader, b.id)

	var hsErr *types.HandshakeError
	require.True(t, errors.As(cr.err, &hsErr), "got %v", cr.err)
	assert.Equal(t, types.HandshakeUnsupported, hsErr.Reason)
	assert.Error(t, sr.err)
}

func TestUpgrade_OutboundRequiresPeer(t *testing.T) {
	a := newTestNode(t)
	c1, c2 := net.Pipe()
	defer c2.Close()

	_, err := a.upgrader.Upgrade(context.Background(), pipeConn{c1}, types.DirOutbound, "")
	assert.ErrorIs(t, err, ErrNoPeerID)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, []pkgif.StreamMuxer{muxer.NewTransport(muxer.DefaultConfig())}, DefaultConfig())
	assert.ErrorIs(t, err, ErrNoSecurityTransport)
	_, err = New([]pkgif.SecureTransport{fakeSecurity{}}, nil, DefaultConfig())
	assert.ErrorIs(t, err, ErrNoStreamMuxer)
}

type pipeConn struct{ net.Conn }

func (pipeConn) LocalMultiaddr() ma.Multiaddr  { return nil }
func (pipeConn) RemoteMultiaddr() ma.Multiaddr { return nil }
