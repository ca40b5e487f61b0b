// Package interfaces 定义 meshnode 公共接口
//
// 本文件定义节点发现接口。
package interfaces

import (
	"context"

	"github.com/dep2p/go-meshnode/pkg/types"
)

// PeerRouting 节点路由
type PeerRouting interface {
	// FindPeer 查找节点地址
	FindPeer(ctx context.Context, peerID types.PeerID) (types.AddrInfo, error)
}

// DHT Kademlia 分布式哈希表
type DHT interface {
	PeerRouting

	// FindClosestPeers 迭代查找距离 target 最近的节点
	//
	// 超时返回部分结果，State 为 LookupTimeout，错误为 nil。
	FindClosestPeers(ctx context.Context, target types.PeerID) (*types.LookupResult, error)

	// Bootstrap 自查找并刷新路由表
	Bootstrap(ctx context.Context) error

	// RoutingTableSize 返回路由表大小
	RoutingTableSize() int

	// Mode 返回当前模式
	Mode() types.DHTMode
}

// Bootstrapper 引导服务
type Bootstrapper interface {
	// Bootstrap 并行拨号引导节点，返回成功数
	Bootstrap(ctx context.Context) (int, error)
}
