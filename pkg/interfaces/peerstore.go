// Package interfaces 定义 meshnode 公共接口
//
// 本文件定义 Peerstore 接口，管理节点信息存储。
package interfaces

import (
	"math"
	"time"

	"github.com/dep2p/go-meshnode/pkg/lib/crypto"
	ma "github.com/dep2p/go-meshnode/pkg/lib/multiaddr"
	"github.com/dep2p/go-meshnode/pkg/types"
)

// 地址 TTL
const (
	// TempAddrTTL 临时地址（未验证）
	TempAddrTTL = 2 * time.Minute

	// RecentlyConnectedAddrTTL 断开连接后保留的时间
	RecentlyConnectedAddrTTL = 10 * time.Minute

	// DiscoveredAddrTTL 通过 DHT 或 identify 发现的地址
	DiscoveredAddrTTL = time.Hour

	// ConnectedAddrTTL 已连接节点的地址，断开后降为 RecentlyConnectedAddrTTL
	ConnectedAddrTTL = time.Duration(math.MaxInt64 - 1)

	// PermanentAddrTTL 永久地址（引导节点）
	PermanentAddrTTL = time.Duration(math.MaxInt64)
)

// Peerstore 定义节点信息存储接口
//
// Peerstore 存储节点的地址、公钥和协议支持。
type Peerstore interface {
	// AddAddrs 添加地址，已存在时取更长的 TTL
	AddAddrs(peerID types.PeerID, addrs []ma.Multiaddr, ttl time.Duration)

	// AddAddr 添加单个地址
	AddAddr(peerID types.PeerID, addr ma.Multiaddr, ttl time.Duration)

	// SetAddrs 设置地址 TTL（ttl <= 0 删除）
	SetAddrs(peerID types.PeerID, addrs []ma.Multiaddr, ttl time.Duration)

	// UpdateAddrs 将 oldTTL 的地址改为 newTTL
	UpdateAddrs(peerID types.PeerID, oldTTL, newTTL time.Duration)

	// Addrs 返回未过期的地址
	Addrs(peerID types.PeerID) []ma.Multiaddr

	// ClearAddrs 清除地址
	ClearAddrs(peerID types.PeerID)

	// PeersWithAddrs 返回有地址的节点
	PeersWithAddrs() []types.PeerID

	// AddPubKey 记录公钥，公钥必须与 PeerID 匹配
	AddPubKey(peerID types.PeerID, pub crypto.PublicKey) error

	// PubKey 返回公钥
	PubKey(peerID types.PeerID) crypto.PublicKey

	// SetProtocols 设置节点支持的协议
	SetProtocols(peerID types.PeerID, protocols ...types.ProtocolID)

	// GetProtocols 返回节点支持的协议
	GetProtocols(peerID types.PeerID) []types.ProtocolID

	// SupportsProtocol 检查节点是否支持指定协议
	SupportsProtocol(peerID types.PeerID, protocol types.ProtocolID) bool

	// PeerInfo 返回节点的 AddrInfo
	PeerInfo(peerID types.PeerID) types.AddrInfo

	// Peers 返回所有已知节点
	Peers() []types.PeerID

	// RemovePeer 移除节点信息（地址除外）
	RemovePeer(peerID types.PeerID)

	// Close 关闭存储
	Close() error
}
