package crypto

import (
	"github.com/minio/sha256-simd"

	"github.com/dep2p/go-meshnode/pkg/types"
)

// PeerIDFromPublicKey 从公钥派生 PeerID
//
// 派生算法：SHA256(序列化公钥)
func PeerIDFromPublicKey(pub PublicKey) (types.PeerID, error) {
	data, err := MarshalPublicKey(pub)
	if err != nil {
		return types.EmptyPeerID, err
	}
	return types.PeerID(sha256.Sum256(data)), nil
}

// PeerIDFromPrivateKey 从私钥派生 PeerID
func PeerIDFromPrivateKey(priv PrivateKey) (types.PeerID, error) {
	if priv == nil {
		return types.EmptyPeerID, ErrNilPrivateKey
	}
	return PeerIDFromPublicKey(priv.GetPublic())
}

// PeerIDMatchesKey 检查 PeerID 是否由该公钥派生
func PeerIDMatchesKey(id types.PeerID, pub PublicKey) bool {
	derived, err := PeerIDFromPublicKey(pub)
	if err != nil {
		return false
	}
	return derived == id
}
