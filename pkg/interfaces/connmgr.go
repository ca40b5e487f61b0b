// Package interfaces 定义 meshnode 公共接口
//
// 本文件定义 ConnManager 接口。
package interfaces

import (
	"context"

	"github.com/dep2p/go-meshnode/pkg/types"
)

// ConnManager 连接管理器
//
// 在连接数超过高水位时裁剪到低水位，低于低水位时提示需要补充节点。
type ConnManager interface {
	// TagPeer 为节点设置标签权重
	TagPeer(peerID types.PeerID, tag string, weight int)

	// UntagPeer 移除标签
	UntagPeer(peerID types.PeerID, tag string)

	// Protect 保护节点不被裁剪
	Protect(peerID types.PeerID, tag string)

	// Unprotect 取消保护，返回是否仍被其他标签保护
	Unprotect(peerID types.PeerID, tag string) bool

	// IsProtected 检查是否受保护（tag 为空时检查任意标签）
	IsProtected(peerID types.PeerID, tag string) bool

	// TrimOpenConns 立即执行一次裁剪
	TrimOpenConns(ctx context.Context)

	// ConnCount 返回当前连接数
	ConnCount() int

	// NeedsPeers 连接数低于低水位时返回 true
	NeedsPeers() bool

	// Limits 返回低水位和高水位
	Limits() (low, high int)

	// Close 关闭连接管理器
	Close() error
}
