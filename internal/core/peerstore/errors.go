package peerstore

import "errors"

var (
	// ErrInvalidPublicKey 公钥与 PeerID 不匹配
	ErrInvalidPublicKey = errors.New("invalid public key for peer")

	// ErrClosed 存储已关闭
	ErrClosed = errors.New("peerstore closed")
)
