// Package interfaces 定义 meshnode 公共接口
//
// 本文件定义 Swarm 连接群管理接口。
package interfaces

import (
	"context"
	"time"

	"github.com/dep2p/go-meshnode/pkg/lib/crypto"
	ma "github.com/dep2p/go-meshnode/pkg/lib/multiaddr"
	"github.com/dep2p/go-meshnode/pkg/types"
)

// Stream 绑定协议的逻辑流
type Stream interface {
	MuxedStream

	// Protocol 返回协商后的协议 ID
	Protocol() types.ProtocolID

	// SetProtocol 设置协议 ID（协商完成后调用）
	SetProtocol(p types.ProtocolID)

	// Conn 返回流所属的连接
	Conn() Connection
}

// Connection 一条已建立的安全多路复用连接
//
// 每个 Connection 恰好对应一个经过认证的远端 PeerID。
type Connection interface {
	// ID 返回连接唯一标识
	ID() string

	LocalPeer() types.PeerID
	RemotePeer() types.PeerID
	RemotePublicKey() crypto.PublicKey
	LocalMultiaddr() ma.Multiaddr
	RemoteMultiaddr() ma.Multiaddr

	// Direction 返回连接方向
	Direction() types.Direction

	// Opened 返回建立时间
	Opened() time.Time

	// NewStream 在此连接上打开新流（未协商协议）
	NewStream(ctx context.Context) (Stream, error)

	// GetStreams 返回此连接上的活跃流
	GetStreams() []Stream

	// Close 关闭连接
	Close() error

	// IsClosed 检查连接是否已关闭
	IsClosed() bool
}

// InboundStreamHandler 入站流处理函数
type InboundStreamHandler func(stream Stream)

// Swarm 定义连接群管理接口
//
// Swarm 管理所有连接，负责拨号、监听和入站流分发。
type Swarm interface {
	// LocalPeer 返回本地节点 ID
	LocalPeer() types.PeerID

	// Listen 监听指定地址
	Listen(addrs ...ma.Multiaddr) error

	// ListenAddrs 返回实际监听地址
	ListenAddrs() []ma.Multiaddr

	// Peers 返回已连接的节点列表
	Peers() []types.PeerID

	// Conns 返回所有连接
	Conns() []Connection

	// ConnsToPeer 返回到指定节点的连接
	ConnsToPeer(peerID types.PeerID) []Connection

	// Connectedness 返回与指定节点的连接状态
	Connectedness(peerID types.PeerID) Connectedness

	// DialPeer 拨号连接到指定节点（地址取自 Peerstore）
	DialPeer(ctx context.Context, peerID types.PeerID) (Connection, error)

	// ClosePeer 关闭与指定节点的所有连接
	ClosePeer(peerID types.PeerID) error

	// NewStream 创建到指定节点的新流（必要时先拨号）
	NewStream(ctx context.Context, peerID types.PeerID) (Stream, error)

	// SetInboundStreamHandler 设置入站流处理器
	SetInboundStreamHandler(handler InboundStreamHandler)

	// Notify 注册连接事件通知
	Notify(notifier SwarmNotifier)

	// StopNotify 取消连接事件通知
	StopNotify(notifier SwarmNotifier)

	// Close 关闭 Swarm
	Close() error
}

// Connectedness 表示与节点的连接状态
type Connectedness int

const (
	// NotConnected 未连接
	NotConnected Connectedness = iota
	// Connected 已连接
	Connected
)

// String 返回连接状态名称
func (c Connectedness) String() string {
	if c == Connected {
		return "connected"
	}
	return "not-connected"
}

// SwarmNotifier 定义 Swarm 事件通知接口
type SwarmNotifier interface {
	// Connected 当建立新连接时调用
	Connected(conn Connection)

	// Disconnected 当连接断开时调用
	Disconnected(conn Connection)
}

// NotifyBundle 以函数字段实现 SwarmNotifier
type NotifyBundle struct {
	ConnectedF    func(Connection)
	DisconnectedF func(Connection)
}

var _ SwarmNotifier = (*NotifyBundle)(nil)

// Connected 调用 ConnectedF（如已设置）
func (nb *NotifyBundle) Connected(c Connection) {
	if nb.ConnectedF != nil {
		nb.ConnectedF(c)
	}
}

// Disconnected 调用 DisconnectedF（如已设置）
func (nb *NotifyBundle) Disconnected(c Connection) {
	if nb.DisconnectedF != nil {
		nb.DisconnectedF(c)
	}
}
