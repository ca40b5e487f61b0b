package tcp

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	pkgif "github.com/dep2p/go-meshnode/pkg/interfaces"
	"github.com/dep2p/go-meshnode/pkg/lib/log"
	ma "github.com/dep2p/go-meshnode/pkg/lib/multiaddr"
	"github.com/dep2p/go-meshnode/pkg/types"
)

var logger = log.Logger("transport/tcp")

// ErrTransportClosed 传输已关闭
var ErrTransportClosed = errors.New("tcp transport closed")

// Config TCP 传输配置
type Config struct {
	// DialTimeout 拨号超时（ctx 无截止时间时生效）
	DialTimeout time.Duration

	// KeepAlive TCP keepalive 周期
	KeepAlive time.Duration
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		DialTimeout: 10 * time.Second,
		KeepAlive:   30 * time.Second,
	}
}

// ============================================================================
//                              Transport 实现
// ============================================================================

// Transport TCP 传输层实现
type Transport struct {
	cfg Config

	listenersMu sync.Mutex
	listeners   map[*Listener]struct{}

	closed atomic.Bool
}

var _ pkgif.Transport = (*Transport)(nil)

// New 创建 TCP 传输层
func New(cfg Config) *Transport {
	return &Transport{
		cfg:       cfg,
		listeners: make(map[*Listener]struct{}),
	}
}

// Dial 建立出站连接
func (t *Transport) Dial(ctx context.Context, raddr ma.Multiaddr) (pkgif.TransportConn, error) {
	if t.closed.Load() {
		return nil, types.NewTransportError("dial", addrString(raddr), ErrTransportClosed)
	}
	if !t.CanDial(raddr) {
		return nil, types.NewTransportError("dial", addrString(raddr), ma.ErrInvalidProtocol)
	}
	network, hostport, err := ma.DialArgs(raddr)
	if err != nil {
		return nil, types.NewTransportError("dial", raddr.String(), err)
	}

	dialer := &net.Dialer{
		Timeout:   t.cfg.DialTimeout,
		KeepAlive: t.cfg.KeepAlive,
	}
	c, err := dialer.DialContext(ctx, network, hostport)
	if err != nil {
		if ctx.Err() != nil && errors.Is(err, context.DeadlineExceeded) {
			err = errors.Join(types.ErrTimeout, err)
		}
		return nil, types.NewTransportError("dial", raddr.String(), err)
	}
	if tc, ok := c.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}

	conn, err := newConn(c)
	if err != nil {
		_ = c.Close()
		return nil, types.NewTransportError("dial", raddr.String(), err)
	}
	logger.Debug("TCP 拨号成功", "remote", raddr.String())
	return conn, nil
}

// Listen 监听入站连接
func (t *Transport) Listen(laddr ma.Multiaddr) (pkgif.Listener, error) {
	if t.closed.Load() {
		return nil, types.NewTransportError("listen", addrString(laddr), ErrTransportClosed)
	}
	if !t.CanDial(laddr) {
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

	// 端口可能是 0，使用实际监听地址
	actual, err := ma.FromNetAddr(nl.Addr())
	if err != nil {
		_ = nl.Close()
		return nil, types.NewTransportError("listen", laddr.String(), err)
	}

	l := &Listener{listener: nl, addr: actual}
	t.listenersMu.Lock()
	t.listeners[l] = struct{}{}
	t.listenersMu.Unlock()

	logger.Info("TCP 监听", "addr", actual.String())
	return l, nil
}

// CanDial 检查是否可以拨号到指定地址
//
// 接受 <ip|dns>/tcp/<port>，可选尾部 /p2p/<id>。
func (t *Transport) CanDial(addr ma.Multiaddr) bool {
	if t.closed.Load() || addr == nil {
		return false
	}
	protos := addr.Protocols()
	if len(protos) < 2 || protos[1].Code != ma.P_TCP {
		return false
	}
	switch protos[0].Code {
	case ma.P_IP4, ma.P_IP6, ma.P_DNS, ma.P_DNS4, ma.P_DNS6:
	default:
		return false
	}
	for _, p := range protos[2:] {
		if p.Code != ma.P_P2P {
			return false
		}
	}
	return true
}

// Protocols 返回支持的协议
func (t *Transport) Protocols() []int {
	return []int{ma.P_TCP}
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
