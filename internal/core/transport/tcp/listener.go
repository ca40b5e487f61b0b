package tcp

import (
	"net"
	"sync/atomic"

	pkgif "github.com/dep2p/go-meshnode/pkg/interfaces"
	ma "github.com/dep2p/go-meshnode/pkg/lib/multiaddr"
	"github.com/dep2p/go-meshnode/pkg/types"
)

// Listener TCP 监听器
type Listener struct {
	listener *net.TCPListener
	addr     ma.Multiaddr
	closed   atomic.Bool
}

var _ pkgif.Listener = (*Listener)(nil)

// Accept 接受连接
func (l *Listener) Accept() (pkgif.TransportConn, error) {
	c, err := l.listener.AcceptTCP()
	if err != nil {
		return nil, types.NewTransportError("accept", l.addr.String(), err)
	}
	_ = c.SetNoDelay(true)
	_ = c.SetKeepAlive(true)

	conn, err := newConn(c)
	if err != nil {
		_ = c.Close()
		return nil, types.NewTransportError("accept", l.addr.String(), err)
	}
	return conn, nil
}

// Addr 返回监听地址
func (l *Listener) Addr() net.Addr {
	return l.listener.Addr()
}

// Multiaddr 返回多地址格式的监听地址
func (l *Listener) Multiaddr() ma.Multiaddr {
	return l.addr
}

// Close 关闭监听器
func (l *Listener) Close() error {
	if l.closed.CompareAndSwap(false, true) {
		return l.listener.Close()
	}
	return nil
}
