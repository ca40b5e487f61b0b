package transport

import (
	"context"
	"errors"
	"time"

	"go.uber.org/multierr"

	"github.com/dep2p/go-meshnode/internal/core/transport/tcp"
	"github.com/dep2p/go-meshnode/internal/core/transport/websocket"
	pkgif "github.com/dep2p/go-meshnode/pkg/interfaces"
	"github.com/dep2p/go-meshnode/pkg/lib/log"
	ma "github.com/dep2p/go-meshnode/pkg/lib/multiaddr"
	"github.com/dep2p/go-meshnode/pkg/types"
)

var logger = log.Logger("core/transport")

// ErrNoTransport 没有可处理该地址的传输
var ErrNoTransport = errors.New("no transport for address")

// Config 传输层配置
type Config struct {
	EnableTCP       bool
	EnableWebSocket bool

	// DialTimeout 单次拨号超时
	DialTimeout time.Duration
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		EnableTCP:       true,
		EnableWebSocket: true,
		DialTimeout:     10 * time.Second,
	}
}

// Manager 传输管理器
type Manager struct {
	config     Config
	transports []pkgif.Transport
}

// NewManager 创建传输管理器
func NewManager(cfg Config) *Manager {
	m := &Manager{config: cfg}

	if cfg.EnableTCP {
		tcpCfg := tcp.DefaultConfig()
		if cfg.DialTimeout > 0 {
			tcpCfg.DialTimeout = cfg.DialTimeout
		}
		m.transports = append(m.transports, tcp.New(tcpCfg))
	}
	if cfg.EnableWebSocket {
		wsCfg := websocket.DefaultConfig()
		if cfg.DialTimeout > 0 {
			wsCfg.HandshakeTimeout = cfg.DialTimeout
		}
		m.transports = append(m.transports, websocket.New(wsCfg))
	}

	logger.Debug("传输管理器创建成功", "transportCount", len(m.transports))
	return m
}

// NewManagerWith 使用给定传输创建管理器（测试用）
func NewManagerWith(transports ...pkgif.Transport) *Manager {
	return &Manager{config: DefaultConfig(), transports: transports}
}

// Transports 返回所有传输
func (m *Manager) Transports() []pkgif.Transport {
	return m.transports
}

// TransportFor 返回能处理该地址的传输
func (m *Manager) TransportFor(addr ma.Multiaddr) (pkgif.Transport, error) {
	for _, t := range m.transports {
		if t.CanDial(addr) {
			return t, nil
		}
	}
	return nil, types.NewTransportError("dial", addrString(addr), ErrNoTransport)
}

// CanDial 是否有传输可以拨号该地址
func (m *Manager) CanDial(addr ma.Multiaddr) bool {
	_, err := m.TransportFor(addr)
	return err == nil
}

// Dial 选择传输并拨号
func (m *Manager) Dial(ctx context.Context, addr ma.Multiaddr) (pkgif.TransportConn, error) {
	t, err := m.TransportFor(addr)
	if err != nil {
		return nil, err
	}
	if m.config.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.config.DialTimeout)
		defer cancel()
	}
	return t.Dial(ctx, addr)
}

// Listen 选择传输并监听
func (m *Manager) Listen(addr ma.Multiaddr) (pkgif.Listener, error) {
	for _, t := range m.transports {
		if t.CanDial(addr) {
			return t.Listen(addr)
		}
	}
	return nil, types.NewTransportError("listen", addrString(addr), ErrNoTransport)
}

// Close 关闭所有传输
func (m *Manager) Close() error {
	var err error
	for _, t := range m.transports {
		err = multierr.Append(err, t.Close())
	}
	return err
}

func addrString(m ma.Multiaddr) string {
	if m == nil {
		return "<nil>"
	}
	return m.String()
}
