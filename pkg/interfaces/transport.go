// Package interfaces 定义 meshnode 公共接口
//
// 本文件定义 Transport 接口，抽象底层传输协议。
package interfaces

import (
	"context"
	"net"

	ma "github.com/dep2p/go-meshnode/pkg/lib/multiaddr"
)

// TransportConn 原始传输连接
//
// 尚未经过安全握手和多路复用，只是一个带多地址信息的 net.Conn。
type TransportConn interface {
	net.Conn

	// LocalMultiaddr 返回本地多地址
	LocalMultiaddr() ma.Multiaddr

	// RemoteMultiaddr 返回远端多地址
	RemoteMultiaddr() ma.Multiaddr
}

// Listener 定义监听器接口
type Listener interface {
	// Accept 接受新连接
	Accept() (TransportConn, error)

	// Close 关闭监听器
	Close() error

	// Addr 返回 net 格式监听地址
	Addr() net.Addr

	// Multiaddr 返回多地址格式的监听地址（端口已解析）
	Multiaddr() ma.Multiaddr
}

// Transport 定义传输层接口
//
// Transport 抽象不同的传输协议（TCP、WebSocket）。
type Transport interface {
	// Dial 拨号连接到指定地址
	Dial(ctx context.Context, raddr ma.Multiaddr) (TransportConn, error)

	// CanDial 检查是否支持拨号到指定地址
	CanDial(addr ma.Multiaddr) bool

	// Listen 在指定地址监听
	Listen(laddr ma.Multiaddr) (Listener, error)

	// Protocols 返回支持的协议编号
	Protocols() []int

	// Close 关闭传输
	Close() error
}
