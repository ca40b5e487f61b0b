package noise

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/dep2p/go-meshnode/pkg/lib/crypto"
	"github.com/dep2p/go-meshnode/pkg/types"
)

// payloadSigPrefix 签名前缀
const payloadSigPrefix = "noise-libp2p-static-key:"

// payload 字段号
const (
	fieldIdentityKey protowire.Number = 1
	fieldIdentitySig protowire.Number = 2
)

var (
	errMissingIdentity = errors.New("payload missing identity key")
	errBadSignature    = errors.New("static key not signed by identity key")
)

// handshakePayload 握手 payload
type handshakePayload struct {
	IdentityKey []byte
	IdentitySig []byte
}

func (p *handshakePayload) marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldIdentityKey, protowire.BytesType)
	b = protowire.AppendBytes(b, p.IdentityKey)
	b = protowire.AppendTag(b, fieldIdentitySig, protowire.BytesType)
	b = protowire.AppendBytes(b, p.IdentitySig)
	return b
}

func (p *handshakePayload) unmarshal(b []byte) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		if typ == protowire.BytesType && (num == fieldIdentityKey || num == fieldIdentitySig) {
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			if num == fieldIdentityKey {
				p.IdentityKey = append([]byte(nil), v...)
			} else {
				p.IdentitySig = append([]byte(nil), v...)
			}
			b = b[n:]
			continue
		}

		// 未知字段跳过
		n = protowire.ConsumeFieldValue(num, typ, b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
	}
	return nil
}

// makePayload 生成本地 payload
func makePayload(priv crypto.PrivateKey, staticPub []byte) ([]byte, error) {
	keyBytes, err := crypto.MarshalPublicKey(priv.GetPublic())
	if err != nil {
		return nil, err
	}
	sig, err := priv.Sign(signedData(staticPub))
	if err != nil {
		return nil, fmt.Errorf("sign static key: %w", err)
	}
	p := handshakePayload{IdentityKey: keyBytes, IdentitySig: sig}
	return p.marshal(), nil
}

// verifyPayload 校验远端 payload，返回远端身份公钥与 PeerID
func verifyPayload(data, remoteStatic []byte) (crypto.PublicKey, types.PeerID, types.HandshakeReason, error) {
	var p handshakePayload
	if err := p.unmarshal(data); err != nil {
		return nil, types.EmptyPeerID, types.HandshakeIO, fmt.Errorf("decode payload: %w", err)
	}
	if len(p.IdentityKey) == 0 {
		return nil, types.EmptyPeerID, types.HandshakeBadSignature, errMissingIdentity
	}

	pub, err := crypto.UnmarshalPublicKey(p.IdentityKey)
	if err != nil {
		return nil, types.EmptyPeerID, types.HandshakeBadSignature, err
	}
	if !pub.Verify(signedData(remoteStatic), p.IdentitySig) {
		return nil, types.EmptyPeerID, types.HandshakeBadSignature, errBadSignature
	}

	id, err := crypto.PeerIDFromPublicKey(pub)
	if err != nil {
		return nil, types.EmptyPeerID, types.HandshakeBadSignature, err
	}
	return pub, id, "", nil
}

func signedData(staticPub []byte) []byte {
	out := make([]byte, 0, len(payloadSigPrefix)+len(staticPub))
	out = append(out, payloadSigPrefix...)
	return append(out, staticPub...)
}
