package pubsub

import (
	"encoding/binary"
	"fmt"

	pkgif "github.com/dep2p/go-meshnode/pkg/interfaces"
	"github.com/dep2p/go-meshnode/pkg/lib/crypto"
	pb "github.com/dep2p/go-meshnode/pkg/lib/proto/gossipsub"
	"github.com/dep2p/go-meshnode/pkg/types"
)

// toWire 转换为线上格式
func toWire(m *types.Message) *pb.Message {
	seqno := make([]byte, 8)
	binary.BigEndian.PutUint64(seqno, m.Seqno)
	return &pb.Message{
		From:      m.From.Bytes(),
		Data:      m.Data,
		Seqno:     seqno,
		Topic:     m.Topic,
		Signature: m.Signature,
		Key:       m.Key,
	}
}

// fromWire 解析线上消息
func fromWire(pm *pb.Message) (*types.Message, error) {
	from, err := types.PeerIDFromBytes(pm.From)
	if err != nil {
		return nil, fmt.Errorf("%w: from: %w", ErrInvalidMessage, err)
	}
	if len(pm.Seqno) != 8 {
		return nil, fmt.Errorf("%w: seqno length %d", ErrInvalidMessage, len(pm.Seqno))
	}
	if pm.Topic == "" {
		return nil, fmt.Errorf("%w: empty topic", ErrInvalidMessage)
	}
	return &types.Message{
		From:      from,
		Topic:     pm.Topic,
		Seqno:     binary.BigEndian.Uint64(pm.Seqno),
		Data:      pm.Data,
		Signature: pm.Signature,
		Key:       pm.Key,
	}, nil
}

// signMessage 用本地私钥签名，并附带序列化公钥
func signMessage(priv crypto.PrivateKey, m *types.Message) error {
	key, err := crypto.MarshalPublicKey(priv.GetPublic())
	if err != nil {
		return err
	}
	sig, err := priv.Sign(m.SigningBytes())
	if err != nil {
		return err
	}
	m.Signature = sig
	m.Key = key
	return nil
}

// verifyMessage 验证签名，公钥必须与 From 匹配
//
// 消息未携带公钥时从 Peerstore 查找。
func verifyMessage(ps pkgif.Peerstore, m *types.Message) error {
	if len(m.Signature) == 0 {
		return fmt.Errorf("%w: missing signature", ErrInvalidSignature)
	}

	var pub crypto.PublicKey
	if len(m.Key) > 0 {
		k, err := crypto.UnmarshalPublicKey(m.Key)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidSignature, err)
		}
		pub = k
	} else if ps != nil {
		pub = ps.PubKey(m.From)
	}
	if pub == nil {
		return fmt.Errorf("%w: unknown public key", ErrInvalidSignature)
	}
	if !crypto.PeerIDMatchesKey(m.From, pub) {
		return fmt.Errorf("%w: key does not match sender", ErrInvalidSignature)
	}
	if !pub.Verify(m.SigningBytes(), m.Signature) {
		return ErrInvalidSignature
	}
	return nil
}
