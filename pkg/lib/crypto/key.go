// Package crypto 提供 meshnode 密码学工具
//
// 节点身份使用 Ed25519 密钥对，PeerID = SHA-256(序列化公钥)。
package crypto

import (
	"crypto/subtle"
	"errors"
)

// KeyType 密钥类型
type KeyType uint8

const (
	// KeyTypeUnspecified 未指定密钥类型
	KeyTypeUnspecified KeyType = 0
	// KeyTypeEd25519 Ed25519 密钥
	KeyTypeEd25519 KeyType = 2
)

// String 返回密钥类型名称
func (kt KeyType) String() string {
	switch kt {
	case KeyTypeEd25519:
		return "Ed25519"
	default:
		return "Unknown"
	}
}

// 错误定义
var (
	// ErrNilPublicKey 公钥为空
	ErrNilPublicKey = errors.New("nil public key")
	// ErrNilPrivateKey 私钥为空
	ErrNilPrivateKey = errors.New("nil private key")
	// ErrInvalidKeySize 密钥长度无效
	ErrInvalidKeySize = errors.New("invalid key size")
	// ErrUnsupportedKeyType 不支持的密钥类型
	ErrUnsupportedKeyType = errors.New("unsupported key type")
	// ErrUnmarshalFailed 反序列化失败
	ErrUnmarshalFailed = errors.New("failed to unmarshal key")
)

// Key 基础密钥接口
type Key interface {
	// Raw 返回原始密钥字节
	Raw() []byte

	// Type 返回密钥类型
	Type() KeyType

	// Equals 比较两个密钥是否相等
	Equals(Key) bool
}

// PublicKey 公钥接口
type PublicKey interface {
	Key

	// Verify 验证签名
	Verify(data, sig []byte) bool
}

// PrivateKey 私钥接口
type PrivateKey interface {
	Key

	// Sign 对数据签名
	Sign(data []byte) ([]byte, error)

	// GetPublic 返回对应的公钥
	GetPublic() PublicKey
}

// KeyEqual 常量时间比较两个密钥
func KeyEqual(a, b Key) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Type() != b.Type() {
		return false
	}
	return subtle.ConstantTimeCompare(a.Raw(), b.Raw()) == 1
}
