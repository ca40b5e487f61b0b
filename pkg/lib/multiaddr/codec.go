package multiaddr

import (
	"bytes"
	"fmt"
	"math"
	"strings"

	"github.com/multiformats/go-varint"
)

// stringToBytes 将多地址字符串转换为二进制格式
func stringToBytes(s string) ([]byte, error) {
	s = strings.TrimRight(s, "/")
	if len(s) == 0 {
		return nil, fmt.Errorf("%w: empty multiaddr", ErrInvalidMultiaddr)
	}
	if !strings.HasPrefix(s, "/") {
		return nil, fmt.Errorf("%w: must begin with /", ErrInvalidMultiaddr)
	}

	var buf bytes.Buffer
	parts := strings.Split(s, "/")[1:]

	for len(parts) > 0 {
		name := parts[0]
		proto := ProtocolWithName(name)
		if proto.Code == 0 {
			return nil, fmt.Errorf("%w: unknown protocol %s", ErrInvalidProtocol, name)
		}
		buf.Write(proto.VCode)
		parts = parts[1:]

		if proto.Size == 0 {
			continue
		}
		if len(parts) < 1 || parts[0] == "" {
			return nil, fmt.Errorf("%w: protocol %s requires a value", ErrInvalidMultiaddr, name)
		}

		valueBytes, err := proto.Transcoder.StringToBytes(parts[0])
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidMultiaddr, name, err)
		}
		if proto.Size == LengthPrefixedVarSize {
			buf.Write(varint.ToUvarint(uint64(len(valueBytes))))
		}
		buf.Write(valueBytes)
		parts = parts[1:]
	}

	return buf.Bytes(), nil
}

// bytesToString 将二进制格式的多地址转换为字符串
func bytesToString(b []byte) (string, error) {
	var sb strings.Builder
	err := forEach(b, func(p Protocol, value []byte) error {
		sb.WriteString("/")
		sb.WriteString(p.Name)
		if p.Size == 0 {
			return nil
		}
		s, err := p.Transcoder.BytesToString(value)
		if err != nil {
			return err
		}
		sb.WriteString("/")
		sb.WriteString(s)
		return nil
	})
	if err != nil {
		return "", err
	}
	return sb.String(), nil
}

// validateBytes 验证二进制多地址的格式
func validateBytes(b []byte) error {
	return forEach(b, func(p Protocol, value []byte) error {
		if p.Size == 0 {
			return nil
		}
		return p.Transcoder.ValidateBytes(value)
	})
}

// readComponent 读取一个组件
//
// 返回：协议、值字节、整个组件占用的字节数
func readComponent(b []byte) (Protocol, []byte, int, error) {
	code, n, err := varint.FromUvarint(b)
	if err != nil {
		return Protocol{}, nil, 0, fmt.Errorf("%w: read protocol code: %v", ErrInvalidMultiaddr, err)
	}
	if code > math.MaxInt32 {
		return Protocol{}, nil, 0, fmt.Errorf("%w: protocol code overflow", ErrInvalidMultiaddr)
	}
	proto := ProtocolWithCode(int(code))
	if proto.Code == 0 {
		return Protocol{}, nil, 0, fmt.Errorf("%w: unknown protocol code %d", ErrInvalidProtocol, code)
	}
	offset := n

	var size int
	switch proto.Size {
	case 0:
		return proto, nil, offset, nil
	case LengthPrefixedVarSize:
		length, m, err := varint.FromUvarint(b[offset:])
		if err != nil {
			return Protocol{}, nil, 0, fmt.Errorf("%w: read length for %s: %v", ErrInvalidMultiaddr, proto.Name, err)
		}
		offset += m
		size = int(length)
	default:
		size = proto.Size / 8
	}

	if size < 0 || len(b)-offset < size {
		return Protocol{}, nil, 0, fmt.Errorf("%w: insufficient data for %s", ErrInvalidMultiaddr, proto.Name)
	}
	return proto, b[offset : offset+size], offset + size, nil
}

// forEach 依次访问每个组件
func forEach(b []byte, fn func(p Protocol, value []byte) error) error {
	if len(b) == 0 {
		return fmt.Errorf("%w: empty multiaddr", ErrInvalidMultiaddr)
	}
	for len(b) > 0 {
		proto, value, n, err := readComponent(b)
		if err != nil {
			return err
		}
		if err := fn(proto, value); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidMultiaddr, proto.Name, err)
		}
		b = b[n:]
	}
	return nil
}
