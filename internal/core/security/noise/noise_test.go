package noise

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgif "github.com/dep2p/go-meshnode/pkg/interfaces"
	"github.com/dep2p/go-meshnode/pkg/lib/crypto"
	"github.com/dep2p/go-meshnode/pkg/types"
)

func newTestTransport(t *testing.T) *Transport {
	t.Helper()
	priv, _, err := crypto.GenerateEd25519Key(nil)
	require.NoError(t, err)
	tr, err := New(priv, WithHandshakeTimeout(5*time.Second))
	require.NoError(t, err)
	return tr
}

type handshakeResult struct {
	conn pkgif.SecureConn
	err  error
}

// runHandshake 在 net.Pipe 上并发执行双方握手
func runHandshake(t *testing.T, client, server *Transport, expect types.PeerID) (handshakeResult, handshakeResult, net.Conn, net.Conn) {
	t.Helper()
	c1, c2 := net.Pipe()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan handshakeResult, 1)
	go func() {
		sc, err := server.SecureInbound(ctx, c2, "")
		if err != nil {
			c2.Close()
		}
		done <- handshakeResult{sc, err}
	}()

	cc, err := client.SecureOutbound(ctx, c1, expect)
	if err != nil {
		c1.Close()
	}
	return handshakeResult{cc, err}, <-done, c1, c2
}

func TestHandshake_Success(t *testing.T) {
	client := newTestTransport(t)
	server := newTestTransport(t)

	cr, sr, c1, c2 := runHandshake(t, client, server, server.localPeer)
	defer c1.Close()
	defer c2.Close()
	require.NoError(t, cr.err)
	require.NoError(t, sr.err)

	assert.Equal(t, client.localPeer, cr.conn.LocalPeer())
	assert.Equal(t, server.localPeer, cr.conn.RemotePeer())
	assert.Equal(t, server.localPeer, sr.conn.LocalPeer())
	assert.Equal(t, client.localPeer, sr.conn.RemotePeer())
	assert.True(t, crypto.PeerIDMatchesKey(server.localPeer, cr.conn.RemotePublicKey()))

	go func() {
		_, _ = cr.conn.Write([]byte("hello from browser p2p"))
	}()
	buf := make([]byte, 64)
	n, err := sr.conn.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello from browser p2p", string(buf[:n]))
}

func TestSecureConn_LargeWriteIsChunked(t *testing.T) {
	client := newTestTransport(t)
	server := newTestTransport(t)

	cr, sr, c1, c2 := runHandshake(t, client, server, server.localPeer)
	defer c1.Close()
	defer c2.Close()
	require.NoError(t, cr.err)
	require.NoError(t, sr.err)

	data := bytes.Repeat([]byte("0123456789abcdef"), 20000) // 320000 字节
	errCh := make(chan error, 1)
	go func() {
		n, err := sr.conn.Write(data)
		if err == nil && n != len(data) {
			err = io.ErrShortWrite
		}
		errCh <- err
	}()

	got := make([]byte, len(data))
	_, err := io.ReadFull(cr.conn, got)
	require.NoError(t, err)
	require.NoError(t, <-errCh)
	assert.Equal(t, data, got)
}

func TestHandshake_PeerIDMismatch(t *testing.T) {
	client := newTestTransport(t)
	server := newTestTransport(t)
	other := newTestTransport(t)

	cr, sr, c1, c2 := runHandshake(t, client, server, other.localPeer)
	defer c1.Close()
	defer c2.Close()

	var hsErr *types.HandshakeError
	require.True(t, errors.As(cr.err, &hsErr))
	assert.Equal(t, types.HandshakePeerIDMismatch, hsErr.Reason)
	assert.Equal(t, other.localPeer, hsErr.Peer)

	// 发起方中止后，响应方同样以握手错误结束
	require.Error(t, sr.err)
	assert.True(t, errors.As(sr.err, &hsErr))
}

func TestHandshake_Timeout(t *testing.T) {
	server := newTestTransport(t)
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	// 对端不发送任何数据
	_, err := server.SecureInbound(ctx, c2, "")
	var hsErr *types.HandshakeError
	require.True(t, errors.As(err, &hsErr))
	assert.Equal(t, types.HandshakeTimeout, hsErr.Reason)
	assert.True(t, types.IsTimeout(err))
}

func TestHandshake_GarbageInput(t *testing.T) {
	server := newTestTransport(t)
	c1, c2 := net.Pipe()
	defer c1.Close()

	go func() {
		_, _ = c1.Write([]byte{0x00, 0x03, 'a', 'b', 'c'})
		_ = c1.Close()
	}()

	_, err := server.SecureInbound(context.Background(), c2, "")
	var hsErr *types.HandshakeError
	require.True(t, errors.As(err, &hsErr))
	assert.Equal(t, types.HandshakeIO, hsErr.Reason)
}

func TestVerifyPayload(t *testing.T) {
	priv, pub, err := crypto.GenerateEd25519Key(nil)
	require.NoError(t, err)
	static, err := generateStaticKey(bytes.NewReader(bytes.Repeat([]byte{7}, 32)))
	require.NoError(t, err)

	payload, err := makePayload(priv, static.Public)
	require.NoError(t, err)

	gotKey, gotID, _, err := verifyPayload(payload, static.Public)
	require.NoError(t, err)
	assert.True(t, gotKey.Equals(pub))
	assert.True(t, crypto.PeerIDMatchesKey(gotID, pub))

	// 签名与静态密钥不匹配
	wrong := bytes.Repeat([]byte{1}, 32)
	_, _, reason, err := verifyPayload(payload, wrong)
	assert.ErrorIs(t, err, errBadSignature)
	assert.Equal(t, types.HandshakeBadSignature, reason)

	// 缺少身份公钥
	_, _, reason, err = verifyPayload(nil, static.Public)
	assert.ErrorIs(t, err, errMissingIdentity)
	assert.Equal(t, types.HandshakeBadSignature, reason)
}

func TestNew_NilKey(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, crypto.ErrNilPrivateKey)
	assert.Equal(t, ID, newTestTransport(t).ID())
}
