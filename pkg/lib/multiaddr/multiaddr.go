package multiaddr

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// 通用错误
var (
	// ErrInvalidMultiaddr 无效的多地址
	ErrInvalidMultiaddr = errors.New("invalid multiaddr")
	// ErrInvalidProtocol 未知或不支持的协议
	ErrInvalidProtocol = errors.New("invalid protocol")
	// ErrProtocolNotFound 地址中不包含指定协议
	ErrProtocolNotFound = errors.New("protocol not found in multiaddr")
)

// Multiaddr 是自描述的网络地址接口
type Multiaddr interface {
	// Bytes 返回二进制表示（不要修改返回的字节）
	Bytes() []byte

	// String 返回字符串表示
	String() string

	// Equal 判断两个地址是否相等
	Equal(Multiaddr) bool

	// Protocols 返回地址包含的协议列表
	Protocols() []Protocol

	// Encapsulate 封装另一个地址
	Encapsulate(Multiaddr) Multiaddr

	// Decapsulate 移除最后一次出现的 other 及其之后的组件
	Decapsulate(Multiaddr) Multiaddr

	// ValueForProtocol 获取指定协议代码的值
	ValueForProtocol(code int) (string, error)
}

// multiaddr 是 Multiaddr 接口的实现
type multiaddr struct {
	bytes []byte
}

var _ Multiaddr = (*multiaddr)(nil)

// NewMultiaddr 从字符串创建多地址
func NewMultiaddr(s string) (Multiaddr, error) {
	b, err := stringToBytes(s)
	if err != nil {
		return nil, err
	}
	return &multiaddr{bytes: b}, nil
}

// NewMultiaddrBytes 从字节创建多地址
func NewMultiaddrBytes(b []byte) (Multiaddr, error) {
	if err := validateBytes(b); err != nil {
		return nil, err
	}
	buf := make([]byte, len(b))
	copy(buf, b)
	return &multiaddr{bytes: buf}, nil
}

// StringCast 从字符串创建多地址，失败时 panic
//
// 仅用于常量地址和测试。
func StringCast(s string) Multiaddr {
	ma, err := NewMultiaddr(s)
	if err != nil {
		panic(fmt.Errorf("multiaddr %q: %w", s, err))
	}
	return ma
}

// Join 按顺序拼接多个地址
func Join(addrs ...Multiaddr) Multiaddr {
	var buf bytes.Buffer
	for _, a := range addrs {
		if a != nil {
			buf.Write(a.Bytes())
		}
	}
	if buf.Len() == 0 {
		return nil
	}
	return &multiaddr{bytes: buf.Bytes()}
}

// Bytes 返回二进制表示
func (m *multiaddr) Bytes() []byte {
	return m.bytes
}

// String 返回字符串表示
func (m *multiaddr) String() string {
	s, err := bytesToString(m.bytes)
	if err != nil {
		// 构造时已验证
		panic(fmt.Errorf("multiaddr failed to convert to string: %w", err))
	}
	return s
}

// Equal 判断两个地址是否相等
func (m *multiaddr) Equal(other Multiaddr) bool {
	if other == nil {
		return false
	}
	return bytes.Equal(m.bytes, other.Bytes())
}

// Protocols 返回地址包含的协议列表
func (m *multiaddr) Protocols() []Protocol {
	var out []Protocol
	_ = forEach(m.bytes, func(p Protocol, _ []byte) error {
		out = append(out, p)
		return nil
	})
	return out
}

// Encapsulate 封装另一个地址
func (m *multiaddr) Encapsulate(other Multiaddr) Multiaddr {
	if other == nil {
		return m
	}
	return Join(m, other)
}

// Decapsulate 移除最后一次出现的 other 及其之后的组件
func (m *multiaddr) Decapsulate(other Multiaddr) Multiaddr {
	if other == nil {
		return m
	}
	ob := other.Bytes()

	cut := -1
	offset := 0
	for offset < len(m.bytes) {
		if bytes.HasPrefix(m.bytes[offset:], ob) {
			cut = offset
		}
		_, _, n, err := readComponent(m.bytes[offset:])
		if err != nil {
			break
		}
		offset += n
	}

	switch cut {
	case -1:
		return m
	case 0:
		return nil
	default:
		return &multiaddr{bytes: append([]byte(nil), m.bytes[:cut]...)}
	}
}

// ValueForProtocol 获取指定协议代码的值
func (m *multiaddr) ValueForProtocol(code int) (string, error) {
	var (
		found bool
		value string
	)
	err := forEach(m.bytes, func(p Protocol, v []byte) error {
		if found || p.Code != code {
			return nil
		}
		found = true
		if p.Size == 0 {
			return nil
		}
		s, err := p.Transcoder.BytesToString(v)
		value = s
		return err
	})
	if err != nil {
		return "", err
	}
	if !found {
		return "", fmt.Errorf("%w: code %d", ErrProtocolNotFound, code)
	}
	return value, nil
}

// MarshalJSON 实现 json.Marshaler
func (m *multiaddr) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON 实现 json.Unmarshaler
func (m *multiaddr) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	b, err := stringToBytes(s)
	if err != nil {
		return err
	}
	m.bytes = b
	return nil
}

// ============================================================================
//                              辅助函数
// ============================================================================

// HasProtocol 检查地址是否包含指定协议
func HasProtocol(m Multiaddr, code int) bool {
	for _, p := range m.Protocols() {
		if p.Code == code {
			return true
		}
	}
	return false
}

// SplitPeer 拆分出末尾的 /p2p 组件
//
// 返回传输地址与 PeerID 的 Base58 字符串；没有 /p2p 时 id 为空。
func SplitPeer(m Multiaddr) (transport Multiaddr, id string) {
	if m == nil {
		return nil, ""
	}
	id, err := m.ValueForProtocol(P_P2P)
	if err != nil {
		return m, ""
	}
	return m.Decapsulate(StringCast("/p2p/" + id)), id
}

// Unique 去重，保持原有顺序
func Unique(addrs []Multiaddr) []Multiaddr {
	seen := make(map[string]struct{}, len(addrs))
	out := make([]Multiaddr, 0, len(addrs))
	for _, a := range addrs {
		if a == nil {
			continue
		}
		k := string(a.Bytes())
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, a)
	}
	return out
}
