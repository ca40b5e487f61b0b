package websocket

import (
	"errors"
	"net"
	"net/http"
	"sync"

	ws "github.com/gorilla/websocket"

	pkgif "github.com/dep2p/go-meshnode/pkg/interfaces"
	ma "github.com/dep2p/go-meshnode/pkg/lib/multiaddr"
	"github.com/dep2p/go-meshnode/pkg/types"
)

// ErrListenerClosed 监听器已关闭
var ErrListenerClosed = errors.New("websocket listener closed")

// Listener WebSocket 监听器
//
// 内部运行 http.Server，每个升级成功的连接投递到 incoming。
type Listener struct {
	nl       net.Listener
	addr     ma.Multiaddr
	server   *http.Server
	upgrader ws.Upgrader

	incoming  chan *Conn
	closed    chan struct{}
	closeOnce sync.Once
}

var _ pkgif.Listener = (*Listener)(nil)

func newListener(nl net.Listener, bufSize int) (*Listener, error) {
	tcpAddr, err := ma.FromNetAddr(nl.Addr())
	if err != nil {
		return nil, err
	}
	l := &Listener{
		nl:   nl,
		addr: tcpAddr.Encapsulate(ma.StringCast("/ws")),
		upgrader: ws.Upgrader{
			ReadBufferSize:  bufSize,
			WriteBufferSize: bufSize,
			// 节点之间不做跨域限制
			CheckOrigin: func(*http.Request) bool { return true },
		},
		incoming: make(chan *Conn),
		closed:   make(chan struct{}),
	}
	l.server = &http.Server{Handler: l}
	go func() {
		if err := l.server.Serve(nl); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Debug("websocket 服务退出", "addr", l.addr.String(), "error", err)
		}
	}()
	return l, nil
}

// ServeHTTP 升级 HTTP 连接
func (l *Listener) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Debug("websocket 升级失败", "remote", r.RemoteAddr, "error", err)
		return
	}
	conn, err := newConn(c, false)
	if err != nil {
		_ = c.Close()
		return
	}

	select {
	case l.incoming <- conn:
	case <-l.closed:
		_ = conn.Close()
	}
}

// Accept 接受连接
func (l *Listener) Accept() (pkgif.TransportConn, error) {
	select {
	case c := <-l.incoming:
		return c, nil
	case <-l.closed:
		return nil, types.NewTransportError("accept", l.addr.String(), ErrListenerClosed)
	}
}

// Addr 返回监听地址
func (l *Listener) Addr() net.Addr {
	return l.nl.Addr()
}

// Multiaddr 返回多地址格式的监听地址
func (l *Listener) Multiaddr() ma.Multiaddr {
	return l.addr
}

// Close 关闭监听器
func (l *Listener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.closed)
		err = l.server.Close()
	})
	return err
}
