// Package interfaces 定义 meshnode 公共接口
//
// 本文件定义连接升级接口。
package interfaces

import (
	"context"

	"github.com/dep2p/go-meshnode/pkg/lib/crypto"
	ma "github.com/dep2p/go-meshnode/pkg/lib/multiaddr"
	"github.com/dep2p/go-meshnode/pkg/types"
)

// UpgradedConn 已升级连接（安全 + 多路复用）
type UpgradedConn interface {
	MuxedConn

	LocalPeer() types.PeerID
	RemotePeer() types.PeerID
	RemotePublicKey() crypto.PublicKey
	LocalMultiaddr() ma.Multiaddr
	RemoteMultiaddr() ma.Multiaddr

	// Security 返回协商的安全协议
	Security() types.ProtocolID

	// Muxer 返回协商的复用协议
	Muxer() types.ProtocolID
}

// Upgrader 连接升级器
//
// 将原始传输连接升级为安全的多路复用连接：
//  1. multistream-select 协商安全协议并握手
//  2. multistream-select 协商复用协议
type Upgrader interface {
	// Upgrade 升级连接
	//
	// 出站连接 remotePeer 必须非空；入站连接可为空。
	Upgrade(ctx context.Context, conn TransportConn, dir types.Direction, remotePeer types.PeerID) (UpgradedConn, error)
}
