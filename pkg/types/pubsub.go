package types

import (
	"encoding/binary"
	"encoding/hex"
)

// ============================================================================
//                              PubSub 消息
// ============================================================================

// MessageID 消息唯一标识
//
// 由发布者 PeerID(32) 与序列号(8, 大端) 拼接而成。
type MessageID string

// String 返回十六进制表示
func (id MessageID) String() string {
	return hex.EncodeToString([]byte(id))
}

// Message 发布订阅消息
//
// 构造后不可修改。
type Message struct {
	// From 发布者
	From PeerID
	// Topic 主题
	Topic string
	// Seqno 发布者本地单调递增的序列号
	Seqno uint64
	// Data 负载
	Data []byte
	// Signature 发布者对消息的签名（可选）
	Signature []byte
	// Key 发布者序列化公钥（签名时携带）
	Key []byte
}

// ID 返回消息唯一标识
func (m *Message) ID() MessageID {
	return ComputeMessageID(m.From, m.Seqno)
}

// ComputeMessageID 计算消息 ID
func ComputeMessageID(from PeerID, seqno uint64) MessageID {
	buf := make([]byte, len(from)+8)
	copy(buf, from[:])
	binary.BigEndian.PutUint64(buf[len(from):], seqno)
	return MessageID(buf)
}

// SigningBytes 返回签名覆盖的字节：topic ‖ from ‖ seqno ‖ data
func (m *Message) SigningBytes() []byte {
	buf := make([]byte, 0, len(m.Topic)+len(m.From)+8+len(m.Data))
	buf = append(buf, m.Topic...)
	buf = append(buf, m.From[:]...)
	buf = binary.BigEndian.AppendUint64(buf, m.Seqno)
	buf = append(buf, m.Data...)
	return buf
}

// PublishResult 发布结果
//
// DeliveredToPeers 为 0 不是错误：网格尚未建立时发布是合法的。
type PublishResult struct {
	// DeliveredToPeers 消息实际发送到的节点数
	DeliveredToPeers int
}
