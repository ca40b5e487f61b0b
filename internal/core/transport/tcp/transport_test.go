package tcp

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ma "github.com/dep2p/go-meshnode/pkg/lib/multiaddr"
	"github.com/dep2p/go-meshnode/pkg/types"
)

func TestTransport_CanDial(t *testing.T) {
	tr := New(DefaultConfig())
	defer tr.Close()

	cases := map[string]bool{
		"/ip4/127.0.0.1/tcp/4001":                              true,
		"/ip6/::1/tcp/4001":                                    true,
		"/dns4/example.com/tcp/4001":                           true,
		"/ip4/127.0.0.1/tcp/4001/ws":                           false,
		"/ip4/127.0.0.1/tcp/4001/p2p/" + testPeerIDString():    true,
		"/dnsaddr/example.com":                                 false,
	}
	for s, want := range cases {
		assert.Equal(t, want, tr.CanDial(ma.StringCast(s)), s)
	}
}

func TestTransport_DialListen(t *testing.T) {
	tr := New(DefaultConfig())
	defer tr.Close()

	l, err := tr.Listen(ma.StringCast("/ip4/127.0.0.1/tcp/0"))
	require.NoError(t, err)
	port, err := l.Multiaddr().ValueForProtocol(ma.P_TCP)
	require.NoError(t, err)
	assert.NotEqual(t, "0", port)

	accepted := make(chan []byte, 1)
	go func() {
		c, err := l.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		buf := make([]byte, 5)
		_, _ = io.ReadFull(c, buf)
		accepted <- buf
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := tr.Dial(ctx, l.Multiaddr())
	require.NoError(t, err)
	defer c.Close()
	assert.True(t, c.RemoteMultiaddr().Equal(l.Multiaddr()))

	_, err = c.Write([]byte("hello"))
	require.NoError(t, err)
	select {
	case got := <-accepted:
		assert.Equal(t, "hello", string(got))
	case <-time.After(5 * time.Second):
		t.Fatal("accept timeout")
	}
}

func TestTransport_DialRefusedIsTransportError(t *testing.T) {
	tr := New(DefaultConfig())
	defer tr.Close()

	// 先监听再关闭，得到一个确定未被占用的端口
	l, err := tr.Listen(ma.StringCast("/ip4/127.0.0.1/tcp/0"))
	require.NoError(t, err)
	addr := l.Multiaddr()
	require.NoError(t, l.Close())

	_, err = tr.Dial(context.Background(), addr)
	var te *types.TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "dial", te.Op)
	assert.Equal(t, addr.String(), te.Addr)
}

func TestTransport_Closed(t *testing.T) {
	tr := New(DefaultConfig())
	l, err := tr.Listen(ma.StringCast("/ip4/127.0.0.1/tcp/0"))
	require.NoError(t, err)
	require.NoError(t, tr.Close())

	_, err = l.Accept()
	assert.Error(t, err)
	_, err = tr.Dial(context.Background(), ma.StringCast("/ip4/127.0.0.1/tcp/1"))
	assert.ErrorIs(t, err, ErrTransportClosed)
}

func testPeerIDString() string {
	var id types.PeerID
	for i := range id {
		id[i] = 7
	}
	return id.String()
}
