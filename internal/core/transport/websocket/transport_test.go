package websocket

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

	assert.True(t, tr.CanDial(ma.StringCast("/ip4/127.0.0.1/tcp/4001/ws")))
	assert.True(t, tr.CanDial(ma.StringCast("/dns4/example.com/tcp/443/wss")))
	assert.False(t, tr.CanDial(ma.StringCast("/ip4/127.0.0.1/tcp/4001")))
	assert.False(t, tr.CanDial(ma.StringCast("/ip4/127.0.0.1/tcp/4001/ws/tcp/1")))
}

func TestTransport_StreamAcrossMessages(t *testing.T) {
	tr := New(DefaultConfig())
	defer tr.Close()

	l, err := tr.Listen(ma.StringCast("/ip4/127.0.0.1/tcp/0/ws"))
	require.NoError(t, err)
	assert.True(t, ma.IsWebSocket(l.Multiaddr()))

	received := make(chan string, 1)
	go func() {
		c, err := l.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		// 两个消息按字节流拼接读取
		buf := make([]byte, 11)
		_, _ = io.ReadFull(c, buf)
		received <- string(buf)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := tr.Dial(ctx, l.Multiaddr())
	require.NoError(t, err)
	defer c.Close()
	assert.True(t, ma.IsWebSocket(c.RemoteMultiaddr()))

	_, err = c.Write([]byte("hello "))
	require.NoError(t, err)
	_, err = c.Write([]byte("world"))
	require.NoError(t, err)

	select {
	case got := <-received:
		assert.Equal(t, "hello world", got)
	case <-time.After(5 * time.Second):
		t.Fatal("timeout")
	}
}

func TestTransport_CloseYieldsEOF(t *testing.T) {
	tr := New(DefaultConfig())
	defer tr.Close()

	l, err := tr.Listen(ma.StringCast("/ip4/127.0.0.1/tcp/0/ws"))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		c, err := l.Accept()
		if err != nil {
			done <- err
			return
		}
		_, err = c.Read(make([]byte, 1))
		done <- err
	}()

	c, err := tr.Dial(context.Background(), l.Multiaddr())
	require.NoError(t, err)
	require.NoError(t, c.Close())

	select {
	case err := <-done:
		assert.ErrorIs(t, err, io.EOF)
	case <-time.After(5 * time.Second):
		t.Fatal("timeout")
	}
}

func TestListener_CloseUnblocksAccept(t *testing.T) {
	tr := New(DefaultConfig())
	l, err := tr.Listen(ma.StringCast("/ip4/127.0.0.1/tcp/0/ws"))
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, err := l.Accept()
		errCh <- err
	}()
	require.NoError(t, tr.Close())

	err = <-errCh
	var te *types.TransportError
	require.True(t, errors.As(err, &te))
	assert.ErrorIs(t, err, ErrListenerClosed)
}
