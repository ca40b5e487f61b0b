// Package dht 定义 Kademlia DHT 请求/响应消息
package dht

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/dep2p/go-meshnode/pkg/lib/proto"
)

// MessageType 消息类型
type MessageType int32

const (
	MessageType_FIND_NODE MessageType = 4
	MessageType_PING      MessageType = 5
)

// String 返回消息类型名称
func (t MessageType) String() string {
	switch t {
	case MessageType_FIND_NODE:
		return "FIND_NODE"
	case MessageType_PING:
		return "PING"
	default:
		return fmt.Sprintf("MessageType(%d)", int32(t))
	}
}

// ConnectionType 响应方与该节点的连接状态
type ConnectionType int32

const (
	ConnectionType_NOT_CONNECTED ConnectionType = 0
	ConnectionType_CONNECTED     ConnectionType = 1
	ConnectionType_CAN_CONNECT   ConnectionType = 2
)

const (
	fieldType        protowire.Number = 1
	fieldKey         protowire.Number = 2
	fieldCloserPeers protowire.Number = 8

	fieldPeerID         protowire.Number = 1
	fieldPeerAddrs      protowire.Number = 2
	fieldPeerConnection protowire.Number = 3
)

// Peer 响应中的节点信息
type Peer struct {
	Id         []byte
	Addrs      [][]byte
	Connection ConnectionType
}

// Message DHT 请求/响应
type Message struct {
	Type        MessageType
	Key         []byte
	CloserPeers []*Peer
}

// Marshal 编码
func (m *Message) Marshal() []byte {
	var b []byte
	b = proto.AppendVarint(b, fieldType, uint64(m.Type))
	if len(m.Key) > 0 {
		b = proto.AppendBytes(b, fieldKey, m.Key)
	}
	for _, p := range m.CloserPeers {
		b = proto.AppendBytes(b, fieldCloserPeers, p.marshal())
	}
	return b
}

// Unmarshal 解码，未知字段被忽略
func (m *Message) Unmarshal(b []byte) error {
	return proto.Walk(b, func(f proto.Field) error {
		switch {
		case f.Num == fieldType && f.Type == protowire.VarintType:
			m.Type = MessageType(int32(f.Varint)) // #nosec G115 -- enum
		case f.Num == fieldKey && f.Type == protowire.BytesType:
			m.Key = f.CopyBytes()
		case f.Num == fieldCloserPeers && f.Type == protowire.BytesType:
			p := new(Peer)
			if err := p.unmarshal(f.Bytes); err != nil {
				return err
			}
			m.CloserPeers = append(m.CloserPeers, p)
		}
		return nil
	})
}

func (p *Peer) marshal() []byte {
	var b []byte
	b = proto.AppendBytes(b, fieldPeerID, p.Id)
	for _, a := range p.Addrs {
		b = proto.AppendBytes(b, fieldPeerAddrs, a)
	}
	if p.Connection != ConnectionType_NOT_CONNECTED {
		b = proto.AppendVarint(b, fieldPeerConnection, uint64(p.Connection))
	}
	return b
}

func (p *Peer) unmarshal(b []byte) error {
	return proto.Walk(b, func(f proto.Field) error {
		switch {
		case f.Num == fieldPeerID && f.Type == protowire.BytesType:
			p.Id = f.CopyBytes()
		case f.Num == fieldPeerAddrs && f.Type == protowire.BytesType:
			p.Addrs = append(p.Addrs, f.CopyBytes())
		case f.Num == fieldPeerConnection && f.Type == protowire.VarintType:
			p.Connection = ConnectionType(int32(f.Varint)) // #nosec G115 -- enum
		}
		return nil
	})
}
