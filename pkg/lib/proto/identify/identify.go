// Package identify 定义身份识别协议消息
package identify

import (
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/dep2p/go-meshnode/pkg/lib/proto"
)

const (
	fieldPublicKey       protowire.Number = 1
	fieldListenAddrs     protowire.Number = 2
	fieldProtocols       protowire.Number = 3
	fieldObservedAddr    protowire.Number = 4
	fieldAgentVersion    protowire.Number = 5
	fieldProtocolVersion protowire.Number = 6
)

// Identify 身份识别消息
type Identify struct {
	// PublicKey 序列化公钥
	PublicKey []byte
	// ListenAddrs 监听地址（multiaddr 二进制）
	ListenAddrs [][]byte
	// Protocols 支持的协议
	Protocols []string
	// ObservedAddr 观测到的对端地址（multiaddr 二进制）
	ObservedAddr    []byte
	AgentVersion    string
	ProtocolVersion string
}

// Marshal 编码
func (m *Identify) Marshal() []byte {
	var b []byte
	if len(m.PublicKey) > 0 {
		b = proto.AppendBytes(b, fieldPublicKey, m.PublicKey)
	}
	for _, a := range m.ListenAddrs {
		b = proto.AppendBytes(b, fieldListenAddrs, a)
	}
	for _, p := range m.Protocols {
		b = proto.AppendString(b, fieldProtocols, p)
	}
	if len(m.ObservedAddr) > 0 {
		b = proto.AppendBytes(b, fieldObservedAddr, m.ObservedAddr)
	}
	if m.AgentVersion != "" {
		b = proto.AppendString(b, fieldAgentVersion, m.AgentVersion)
	}
	if m.ProtocolVersion != "" {
		b = proto.AppendString(b, fieldProtocolVersion, m.ProtocolVersion)
	}
	return b
}

// Unmarshal 解码，未知字段被忽略
func (m *Identify) Unmarshal(b []byte) error {
	return proto.Walk(b, func(f proto.Field) error {
		if f.Type != protowire.BytesType {
			return nil
		}
		switch f.Num {
		case fieldPublicKey:
			m.PublicKey = f.CopyBytes()
		case fieldListenAddrs:
			m.ListenAddrs = append(m.ListenAddrs, f.CopyBytes())
		case fieldProtocols:
			m.Protocols = append(m.Protocols, f.String())
		case fieldObservedAddr:
			m.ObservedAddr = f.CopyBytes()
		case fieldAgentVersion:
			m.AgentVersion = f.String()
		case fieldProtocolVersion:
			m.ProtocolVersion = f.String()
		}
		return nil
	})
}
