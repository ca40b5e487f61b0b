package websocket

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	ws "github.com/gorilla/websocket"

	pkgif "github.com/dep2p/go-meshnode/pkg/interfaces"
	"github.com/dep2p/go-meshnode/pkg/lib/log"
	ma "github.com/dep2p/go-meshnode/pkg/lib/multiaddr"
	"github.com/dep2p/go-meshnode/pkg/types"
)

var logger = log.Logger("transport/websocket")

// ErrTransportClosed 传输已关闭
var ErrTransportClosed = errors.New("websocket transport closed")

// Config WebSocket 传输配置
type Config struct {
	// HandshakeTimeout HTTP 升级握手超时
	HandshakeTimeout time.Duration

	// BufferSize 读写缓冲区大小
	BufferSize int
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout: 10 * time.Second,
		BufferSize:       32 << 10,
	}
}

// Transport WebSocket 传输
type Transport struct {
	cfg    Config
	dialer *ws.Dialer

	listenersMu sync.Mutex
	listeners   map[*Listener]struct{}

	closed atomic.Bool
}

var _ pkgif.Transport = (*Transport)(nil)

// New 创建 WebSocket 传输
func New(cfg Config) *Transport {
	return &Transport{
		cfg: cfg,
		dialer: &ws.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
			ReadBufferSize:   cfg.BufferSize,
			WriteBufferSize:  cfg.BufferSize,
			NetDialContext:   (&net.Dialer{}).DialContext,
		},
		listeners: make(map[*Listener]struct{}),
	}
}

// Dial 拨号 WebSocket 地址
func (t *Transport) Dial(ctx context.Context, raddr ma.Multiaddr) (pkgif.TransportConn, error) {
	if t.closed.Load() {
		return nil, types.NewTransportError("dial", addrString(raddr), ErrTransportClosed)
	}
	if !t.CanDial(raddr) {
		return nil, types.NewTransportError("dial", addrString(raddr), ma.ErrInvalidProtocol)
	}
	_, hostport, err := ma.DialArgs(raddr)
	if err != nil {
		return nil, types.NewTransportError("dial", raddr.String(), err)
	}

	secure := ma.HasProtocol(raddr, ma.P_WSS)
	scheme := "ws"
	if secure {
		scheme = "wss"
	}
	url := fmt.Sprintf("%s://%s/", scheme, hostport)

	c, resp, err := t.dialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if ctx.Err() != nil {
			err = errors.Join(types.ErrTimeout, err)
		}
		return nil, types.NewTransportError("dial", raddr.String(), err)
	}

	conn, err := newConn(c, secure)
	if err != nil {
		_ = c.Close()
		return nil, types.NewTransportError("dial", raddr.String(), err)
	}
	logger.Debug("WebSocket 拨号成功", "remote", raddr.String())
	return conn, nil
}

// Listen 在 /ip4|ip6/.../tcp/<port>/ws 上监听
func (t *Transport) Listen(laddr ma.Multiaddr) (pkgif.Listener, error) {
	if t.closed.Load() {
		return nil, types.NewTransportError("listen", addrString(laddr), ErrTransportClosed)
	}
	if !t.CanDial(laddr) || ma.HasProtocol(laddr, ma.P_WSS) {
		return nil, types.NewTransportError("listen", addrString(laddr), ma.ErrInvalidProtocol)
	}
	tcpAddr, err := ma.ToTCPAddr(laddr)
	if err != nil {
		return nil, types.NewTransportError("listen", laddr.String(), err)
	}
	network := "tcp4"
	if tcpAddr.IP.To4() == nil {
		network = "tcp6"
	}
	nl, err := net.ListenTCP(network, tcpAddr)
	if err != nil {
		return nil, types.NewTransportError("listen", laddr.String(), err)
	}

	l, err := newListener(nl, t.cfg.BufferSize)
	if err != nil {
		_ = nl.Close()
		return nil, types.NewTransportError("listen", laddr.String(), err)
	}
	t.listenersMu.Lock()
	t.listeners[l] = struct{}{}
	t.listenersMu.Unlock()

	logger.Info("WebSocket 监听", "addr", l.Multiaddr().String())
	return l, nil
}

// CanDial 接受 <ip|dns>/tcp/<port>/ws|wss，可选尾部 /p2p/<id>
func (t *Transport) CanDial(addr ma.Multiaddr) bool {
	if t.closed.Load() || addr == nil {
		return false
	}
	protos := addr.Protocols()
	if len(protos) < 3 || protos[1].Code != ma.P_TCP {
		return false
	}
	switch protos[0].Code {
	case ma.P_IP4, ma.P_IP6, ma.P_DNS, ma.P_DNS4, ma.P_DNS6:
	default:
		return false
	}
	if protos[2].Code != ma.P_WS && protos[2].Code != ma.P_WSS {
		return false
	}
	for _, p := range protos[3:] {
		if p.Code != ma.P_P2P {
			return false
		}
	}
	return true
}

// Protocols 返回支持的协议
func (t *Transport) Protocols() []int {
	return []int{ma.P_WS, ma.P_WSS}
}

// Close 关闭传输层及其所有监听器
func (t *Transport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	t.listenersMu.Lock()
	defer t.listenersMu.Unlock()

	var errs []error
	for l := range t.listeners {
		if err := l.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	t.listeners = nil
	return errors.Join(errs...)
}

func addrString(m ma.Multiaddr) string {
	if m == nil {
		return "<nil>"
	}
	return m.String()
}
