package crypto

import (
	"encoding/binary"
	"fmt"
)

// 序列化格式：
//
//	[Type(1)] [Length(4, 大端)] [Data(n)]

const marshalHeaderSize = 5

func marshalKey(k Key) []byte {
	raw := k.Raw()
	buf := make([]byte, marshalHeaderSize+len(raw))
	buf[0] = byte(k.Type())
	binary.BigEndian.PutUint32(buf[1:5], uint32(len(raw)))
	copy(buf[5:], raw)
	return buf
}

func unmarshalHeader(data []byte) (KeyType, []byte, error) {
	if len(data) < marshalHeaderSize {
		return 0, nil, fmt.Errorf("%w: data too short", ErrUnmarshalFailed)
	}
	length := binary.BigEndian.Uint32(data[1:5])
	if uint64(len(data)-marshalHeaderSize) != uint64(length) {
		return 0, nil, fmt.Errorf("%w: data length mismatch", ErrUnmarshalFailed)
	}
	return KeyType(data[0]), data[marshalHeaderSize:], nil
}

// MarshalPublicKey 序列化公钥
func MarshalPublicKey(key PublicKey) ([]byte, error) {
	if key == nil {
		return nil, ErrNilPublicKey
	}
	return marshalKey(key), nil
}

// UnmarshalPublicKey 反序列化公钥
func UnmarshalPublicKey(data []byte) (PublicKey, error) {
	kt, raw, err := unmarshalHeader(data)
	if err != nil {
		return nil, err
	}
	switch kt {
	case KeyTypeEd25519:
		return UnmarshalEd25519PublicKey(raw)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedKeyType, kt)
	}
}

// MarshalPrivateKey 序列化私钥
func MarshalPrivateKey(key PrivateKey) ([]byte, error) {
	if key == nil {
		return nil, ErrNilPrivateKey
	}
	return marshalKey(key), nil
}

// UnmarshalPrivateKey 反序列化私钥
func UnmarshalPrivateKey(data []byte) (PrivateKey, error) {
	kt, raw, err := unmarshalHeader(data)
	if err != nil {
		return nil, err
	}
	switch kt {
	case KeyTypeEd25519:
		return UnmarshalEd25519PrivateKey(raw)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedKeyType, kt)
	}
}
