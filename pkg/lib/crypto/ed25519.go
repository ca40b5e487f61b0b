package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"io"
)

// Ed25519PublicKey Ed25519 公钥
type Ed25519PublicKey struct {
	k ed25519.PublicKey
}

var _ PublicKey = (*Ed25519PublicKey)(nil)

// Raw 返回原始公钥字节
func (k *Ed25519PublicKey) Raw() []byte {
	return append([]byte(nil), k.k...)
}

// Type 返回密钥类型
func (k *Ed25519PublicKey) Type() KeyType {
	return KeyTypeEd25519
}

// Equals 比较两个公钥是否相等
func (k *Ed25519PublicKey) Equals(other Key) bool {
	return KeyEqual(k, other)
}

// Verify 验证签名
func (k *Ed25519PublicKey) Verify(data, sig []byte) bool {
	if len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(k.k, data, sig)
}

// Ed25519PrivateKey Ed25519 私钥
type Ed25519PrivateKey struct {
	k ed25519.PrivateKey
}

var _ PrivateKey = (*Ed25519PrivateKey)(nil)

// Raw 返回原始私钥字节（64 字节，含公钥）
func (k *Ed25519PrivateKey) Raw() []byte {
	return append([]byte(nil), k.k...)
}

// Type 返回密钥类型
func (k *Ed25519PrivateKey) Type() KeyType {
	return KeyTypeEd25519
}

// Equals 比较两个私钥是否相等
func (k *Ed25519PrivateKey) Equals(other Key) bool {
	return KeyEqual(k, other)
}

// Sign 对数据签名
func (k *Ed25519PrivateKey) Sign(data []byte) ([]byte, error) {
	return ed25519.Sign(k.k, data), nil
}

// GetPublic 返回对应的公钥
func (k *Ed25519PrivateKey) GetPublic() PublicKey {
	return &Ed25519PublicKey{k: k.k.Public().(ed25519.PublicKey)}
}

// Seed 返回 32 字节种子
func (k *Ed25519PrivateKey) Seed() []byte {
	return k.k.Seed()
}

// GenerateEd25519Key 生成 Ed25519 密钥对
func GenerateEd25519Key(src io.Reader) (PrivateKey, PublicKey, error) {
	if src == nil {
		src = rand.Reader
	}
	pub, priv, err := ed25519.GenerateKey(src)
	if err != nil {
		return nil, nil, fmt.Errorf("generate ed25519 key: %w", err)
	}
	return &Ed25519PrivateKey{k: priv}, &Ed25519PublicKey{k: pub}, nil
}

// UnmarshalEd25519PublicKey 从原始字节创建公钥
func UnmarshalEd25519PublicKey(b []byte) (PublicKey, error) {
	if len(b) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: ed25519 public key must be %d bytes, got %d", ErrInvalidKeySize, ed25519.PublicKeySize, len(b))
	}
	return &Ed25519PublicKey{k: append(ed25519.PublicKey(nil), b...)}, nil
}

// UnmarshalEd25519PrivateKey 从原始字节创建私钥
//
// 接受 64 字节私钥或 32 字节种子。
func UnmarshalEd25519PrivateKey(b []byte) (PrivateKey, error) {
	switch len(b) {
	case ed25519.PrivateKeySize:
		return &Ed25519PrivateKey{k: append(ed25519.PrivateKey(nil), b...)}, nil
	case ed25519.SeedSize:
		return &Ed25519PrivateKey{k: ed25519.NewKeyFromSeed(b)}, nil
	default:
		return nil, fmt.Errorf("%w: ed25519 private key must be %d or %d bytes, got %d",
			ErrInvalidKeySize, ed25519.PrivateKeySize, ed25519.SeedSize, len(b))
	}
}
