// Package interfaces 定义 meshnode 公共接口
//
// 本文件定义安全传输接口。
package interfaces

import (
	"context"
	"net"

	"github.com/dep2p/go-meshnode/pkg/lib/crypto"
	"github.com/dep2p/go-meshnode/pkg/types"
)

// SecureConn 已认证的加密连接
type SecureConn interface {
	net.Conn

	// LocalPeer 返回本地节点 ID
	LocalPeer() types.PeerID

	// RemotePeer 返回经过认证的远端节点 ID
	RemotePeer() types.PeerID

	// RemotePublicKey 返回远端身份公钥
	RemotePublicKey() crypto.PublicKey
}

// SecureTransport 安全传输
//
// 握手失败时返回 *types.HandshakeError。
type SecureTransport interface {
	// ID 返回安全协议 ID（如 /noise）
	ID() types.ProtocolID

	// SecureInbound 对入站连接执行握手
	//
	// remotePeer 为空时接受任意经过认证的对端。
	SecureInbound(ctx context.Context, conn net.Conn, remotePeer types.PeerID) (SecureConn, error)

	// SecureOutbound 对出站连接执行握手，并验证对端为 remotePeer
	SecureOutbound(ctx context.Context, conn net.Conn, remotePeer types.PeerID) (SecureConn, error)
}
