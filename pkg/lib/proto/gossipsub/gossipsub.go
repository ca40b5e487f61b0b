// Package gossipsub 定义 GossipSub RPC 消息
//
// 字段号与 libp2p pubsub 的 rpc.proto 对齐。
package gossipsub

import (
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/dep2p/go-meshnode/pkg/lib/proto"
)

// RPC 一次发送的订阅变更、消息和控制指令
type RPC struct {
	Subscriptions []*SubOpts
	Publish       []*Message
	Control       *ControlMessage
}

// SubOpts 订阅/取消订阅
type SubOpts struct {
	Subscribe bool
	TopicId   string
}

// Message 发布的消息
type Message struct {
	From      []byte
	Data      []byte
	Seqno     []byte
	Topic     string
	Signature []byte
	Key       []byte
}

// ControlMessage 控制指令
type ControlMessage struct {
	Ihave []*ControlIHave
	Iwant []*ControlIWant
	Graft []*ControlGraft
	Prune []*ControlPrune
}

// ControlIHave 宣告已缓存的消息 ID
type ControlIHave struct {
	TopicId    string
	MessageIds [][]byte
}

// ControlIWant 请求消息
type ControlIWant struct {
	MessageIds [][]byte
}

// ControlGraft 请求加入 mesh
type ControlGraft struct {
	TopicId string
}

// ControlPrune 移出 mesh，Backoff 秒内不要重新 GRAFT
type ControlPrune struct {
	TopicId string
	Backoff uint64
}

// IsEmpty 是否不含任何控制指令
func (c *ControlMessage) IsEmpty() bool {
	return c == nil || len(c.Ihave)+len(c.Iwant)+len(c.Graft)+len(c.Prune) == 0
}

// Size 返回编码后的字节数
func (r *RPC) Size() int {
	return len(r.Marshal())
}

// Marshal 编码
func (r *RPC) Marshal() []byte {
	var b []byte
	for _, s := range r.Subscriptions {
		var sb []byte
		sb = proto.AppendBool(sb, 1, s.Subscribe)
		sb = proto.AppendString(sb, 2, s.TopicId)
		b = proto.AppendBytes(b, 1, sb)
	}
	for _, m := range r.Publish {
		b = proto.AppendBytes(b, 2, m.Marshal())
	}
	if !r.Control.IsEmpty() {
		b = proto.AppendBytes(b, 3, r.Control.marshal())
	}
	return b
}

// Unmarshal 解码，未知字段被忽略
func (r *RPC) Unmarshal(b []byte) error {
	return proto.Walk(b, func(f proto.Field) error {
		if f.Type != protowire.BytesType {
			return nil
		}
		switch f.Num {
		case 1:
			s := new(SubOpts)
			err := proto.Walk(f.Bytes, func(sf proto.Field) error {
				switch {
				case sf.Num == 1 && sf.Type == protowire.VarintType:
					s.Subscribe = protowire.DecodeBool(sf.Varint)
				case sf.Num == 2 && sf.Type == protowire.BytesType:
					s.TopicId = sf.String()
				}
				return nil
			})
			if err != nil {
				return err
			}
			r.Subscriptions = append(r.Subscriptions, s)
		case 2:
			m := new(Message)
			if err := m.Unmarshal(f.Bytes); err != nil {
				return err
			}
			r.Publish = append(r.Publish, m)
		case 3:
			c := new(ControlMessage)
			if err := c.unmarshal(f.Bytes); err != nil {
				return err
			}
			r.Control = c
		}
		return nil
	})
}

// SigningBytes 返回签名覆盖的字节（不含 Signature 与 Key）
func (m *Message) SigningBytes() []byte {
	cp := *m
	cp.Signature = nil
	cp.Key = nil
	return cp.Marshal()
}

// Marshal 编码
func (m *Message) Marshal() []byte {
	var b []byte
	if len(m.From) > 0 {
		b = proto.AppendBytes(b, 1, m.From)
	}
	if len(m.Data) > 0 {
		b = proto.AppendBytes(b, 2, m.Data)
	}
	if len(m.Seqno) > 0 {
		b = proto.AppendBytes(b, 3, m.Seqno)
	}
	if m.Topic != "" {
		b = proto.AppendString(b, 4, m.Topic)
	}
	if len(m.Signature) > 0 {
		b = proto.AppendBytes(b, 5, m.Signature)
	}
	if len(m.Key) > 0 {
		b = proto.AppendBytes(b, 6, m.Key)
	}
	return b
}

// Unmarshal 解码
func (m *Message) Unmarshal(b []byte) error {
	return proto.Walk(b, func(f proto.Field) error {
		if f.Type != protowire.BytesType {
			return nil
		}
		switch f.Num {
		case 1:
			m.From = f.CopyBytes()
		case 2:
			m.Data = f.CopyBytes()
		case 3:
			m.Seqno = f.CopyBytes()
		case 4:
			m.Topic = f.String()
		case 5:
			m.Signature = f.CopyBytes()
		case 6:
			m.Key = f.CopyBytes()
		}
		return nil
	})
}

func (c *ControlMessage) marshal() []byte {
	var b []byte
	for _, ih := range c.Ihave {
		var sb []byte
		sb = proto.AppendString(sb, 1, ih.TopicId)
		for _, id := range ih.MessageIds {
			sb = proto.AppendBytes(sb, 2, id)
		}
		b = proto.AppendBytes(b, 1, sb)
	}
	for _, iw := range c.Iwant {
		var sb []byte
		for _, id := range iw.MessageIds {
			sb = proto.AppendBytes(sb, 1, id)
		}
		b = proto.AppendBytes(b, 2, sb)
	}
	for _, g := range c.Graft {
		b = proto.AppendBytes(b, 3, proto.AppendString(nil, 1, g.TopicId))
	}
	for _, p := range c.Prune {
		var sb []byte
		sb = proto.AppendString(sb, 1, p.TopicId)
		if p.Backoff > 0 {
			sb = proto.AppendVarint(sb, 3, p.Backoff)
		}
		b = proto.AppendBytes(b, 4, sb)
	}
	return b
}

func (c *ControlMessage) unmarshal(b []byte) error {
	return proto.Walk(b, func(f proto.Field) error {
		if f.Type != protowire.BytesType {
			return nil
		}
		switch f.Num {
		case 1:
			ih := new(ControlIHave)
			err := proto.Walk(f.Bytes, func(sf proto.Field) error {
				switch {
				case sf.Num == 1 && sf.Type == protowire.BytesType:
					ih.TopicId = sf.String()
				case sf.Num == 2 && sf.Type == protowire.BytesType:
					ih.MessageIds = append(ih.MessageIds, sf.CopyBytes())
				}
				return nil
			})
			if err != nil {
				return err
			}
			c.Ihave = append(c.Ihave, ih)
		case 2:
			iw := new(ControlIWant)
			err := proto.Walk(f.Bytes, func(sf proto.Field) error {
				if sf.Num == 1 && sf.Type == protowire.BytesType {
					iw.MessageIds = append(iw.MessageIds, sf.CopyBytes())
				}
				return nil
			})
			if err != nil {
				return err
			}
			c.Iwant = append(c.Iwant, iw)
		case 3:
			g := new(ControlGraft)
			err := proto.Walk(f.Bytes, func(sf proto.Field) error {
				if sf.Num == 1 && sf.Type == protowire.BytesType {
					g.TopicId = sf.String()
				}
				return nil
			})
			if err != nil {
				return err
			}
			c.Graft = append(c.Graft, g)
		case 4:
			p := new(ControlPrune)
			err := proto.Walk(f.Bytes, func(sf proto.Field) error {
				switch {
				case sf.Num == 1 && sf.Type == protowire.BytesType:
					p.TopicId = sf.String()
				case sf.Num == 3 && sf.Type == protowire.VarintType:
					p.Backoff = sf.Varint
				}
				return nil
			})
			if err != nil {
				return err
			}
			c.Prune = append(c.Prune, p)
		}
		return nil
	})
}
