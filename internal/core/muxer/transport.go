package muxer

import (
	"io"
	"math"
	"net"
	"time"

	"github.com/libp2p/go-yamux/v5"

	pkgif "github.com/dep2p/go-meshnode/pkg/interfaces"
	"github.com/dep2p/go-meshnode/pkg/protocolids"
	"github.com/dep2p/go-meshnode/pkg/types"
)

// ID yamux 协议 ID
const ID = protocolids.Yamux

// Config 多路复用器配置
type Config struct {
	// MaxStreamWindowSize 单流最大接收窗口
	MaxStreamWindowSize uint32
	// KeepAliveInterval 心跳间隔，0 表示关闭
	KeepAliveInterval time.Duration
	// MaxIncomingStreams 单连接最大入站流数
	MaxIncomingStreams uint32
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		MaxStreamWindowSize: 16 * 1024 * 1024,
		KeepAliveInterval:   30 * time.Second,
		MaxIncomingStreams:  math.MaxUint32,
	}
}

// Transport yamux 多路复用器
type Transport struct {
	config *yamux.Config
}

var _ pkgif.StreamMuxer = (*Transport)(nil)

// NewTransport 使用配置创建多路复用器
func NewTransport(cfg Config) *Transport {
	yc := yamux.DefaultConfig()
	if cfg.MaxStreamWindowSize > 0 {
		yc.MaxStreamWindowSize = cfg.MaxStreamWindowSize
	}
	if cfg.KeepAliveInterval > 0 {
		yc.EnableKeepAlive = true
		yc.KeepAliveInterval = cfg.KeepAliveInterval
	} else {
		yc.EnableKeepAlive = false
	}
	if cfg.MaxIncomingStreams > 0 {
		yc.MaxIncomingStreams = cfg.MaxIncomingStreams
	}
	yc.LogOutput = io.Discard
	// 安全层已有缓冲
	yc.ReadBufSize = 0

	return &Transport{config: yc}
}

// ID 返回协议 ID
func (t *Transport) ID() types.ProtocolID {
	return ID
}

// NewConn 在连接上建立 yamux 会话
func (t *Transport) NewConn(conn net.Conn, isServer bool) (pkgif.MuxedConn, error) {
	var (
		sess *yamux.Session
		err  error
	)
	if isServer {
		sess, err = yamux.Server(conn, t.config, nil)
	} else {
		sess, err = yamux.Client(conn, t.config, nil)
	}
	if err != nil {
		return nil, err
	}
	return session{sess}, nil
}
