// Package interfaces 定义 meshnode 公共接口
//
// 本文件定义 Host 接口，Host 是网络主机门面。
package interfaces

import (
	"context"

	ma "github.com/dep2p/go-meshnode/pkg/lib/multiaddr"
	"github.com/dep2p/go-meshnode/pkg/types"
)

// StreamHandler 协议流处理函数
type StreamHandler func(stream Stream)

// Host 定义网络主机接口
//
// Host 在 Swarm 之上提供按协议路由的流（multistream-select）。
type Host interface {
	// ID 返回本地节点 ID
	ID() types.PeerID

	// Addrs 返回本地监听地址
	Addrs() []ma.Multiaddr

	// Connect 连接到指定节点
	//
	// 先把地址写入 Peerstore，再委托 Swarm 拨号。已连接时直接返回。
	Connect(ctx context.Context, info types.AddrInfo) error

	// NewStream 创建到指定节点的新流，并按顺序协商第一个对端支持的协议
	NewStream(ctx context.Context, peerID types.PeerID, protocols ...types.ProtocolID) (Stream, error)

	// SetStreamHandler 为指定协议设置流处理器
	SetStreamHandler(protocol types.ProtocolID, handler StreamHandler)

	// RemoveStreamHandler 移除指定协议的流处理器
	RemoveStreamHandler(protocol types.ProtocolID)

	// Protocols 返回已注册的协议
	Protocols() []types.ProtocolID

	// Peerstore 返回节点存储
	Peerstore() Peerstore

	// EventBus 返回事件总线
	EventBus() EventBus

	// Network 返回底层 Swarm
	Network() Swarm

	// Close 关闭主机
	Close() error
}
