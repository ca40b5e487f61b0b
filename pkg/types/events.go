package types

import (
	"time"

	ma "github.com/dep2p/go-meshnode/pkg/lib/multiaddr"
)

// ============================================================================
//                              EventType - 事件类型
// ============================================================================

// EventType 事件类型（封闭枚举）
type EventType int

const (
	// EventConnectionOpened 连接已建立
	EventConnectionOpened EventType = iota + 1
	// EventConnectionClosed 连接已关闭
	EventConnectionClosed
	// EventPeerDiscovered 发现新节点
	EventPeerDiscovered
	// EventMessageReceived 收到订阅主题的消息
	EventMessageReceived
	// EventListenAddrAdded 开始在新地址上监听
	EventListenAddrAdded
	// EventNodeStarted 节点已启动
	EventNodeStarted
	// EventNodeStopped 节点已停止
	EventNodeStopped
)

// AllEventTypes 全部事件类型
var AllEventTypes = []EventType{
	EventConnectionOpened,
	EventConnectionClosed,
	EventPeerDiscovered,
	EventMessageReceived,
	EventListenAddrAdded,
	EventNodeStarted,
	EventNodeStopped,
}

// String 返回事件类型名称
func (t EventType) String() string {
	switch t {
	case EventConnectionOpened:
		return "connection:open"
	case EventConnectionClosed:
		return "connection:close"
	case EventPeerDiscovered:
		return "peer:discovery"
	case EventMessageReceived:
		return "message:received"
	case EventListenAddrAdded:
		return "transport:listening"
	case EventNodeStarted:
		return "start"
	case EventNodeStopped:
		return "stop"
	default:
		return "unknown"
	}
}

// Valid 是否为已定义的事件类型
func (t EventType) Valid() bool {
	return t >= EventConnectionOpened && t <= EventNodeStopped
}

// ============================================================================
//                              Event - 事件接口
// ============================================================================

// Event 事件接口
//
// 只有本包定义的事件类型实现该接口。
type Event interface {
	// Type 返回事件类型
	Type() EventType

	// Timestamp 返回事件时间戳
	Timestamp() time.Time

	sealed()
}

type eventBase struct {
	At time.Time
}

func (e eventBase) Timestamp() time.Time { return e.At }
func (eventBase) sealed()                {}

func now() eventBase { return eventBase{At: time.Now()} }

// ConnectionOpened 连接已建立
type ConnectionOpened struct {
	eventBase
	Peer       PeerID
	RemoteAddr ma.Multiaddr
	Direction  Direction
}

// Type 返回事件类型
func (ConnectionOpened) Type() EventType { return EventConnectionOpened }

// NewConnectionOpened 创建连接建立事件
func NewConnectionOpened(peer PeerID, remote ma.Multiaddr, dir Direction) ConnectionOpened {
	return ConnectionOpened{eventBase: now(), Peer: peer, RemoteAddr: remote, Direction: dir}
}

// ConnectionClosed 连接已关闭
type ConnectionClosed struct {
	eventBase
	Peer       PeerID
	RemoteAddr ma.Multiaddr
	// Remaining 与该节点剩余的连接数
	Remaining int
}

// Type 返回事件类型
func (ConnectionClosed) Type() EventType { return EventConnectionClosed }

// NewConnectionClosed 创建连接关闭事件
func NewConnectionClosed(peer PeerID, remote ma.Multiaddr, remaining int) ConnectionClosed {
	return ConnectionClosed{eventBase: now(), Peer: peer, RemoteAddr: remote, Remaining: remaining}
}

// DiscoverySource 节点发现来源
type DiscoverySource string

const (
	// SourceBootstrap 引导节点
	SourceBootstrap DiscoverySource = "bootstrap"
	// SourceDHT DHT 查找
	SourceDHT DiscoverySource = "dht"
	// SourcePeerstore 持久化的已知节点
	SourcePeerstore DiscoverySource = "peerstore"
)

// PeerDiscovered 发现新节点
type PeerDiscovered struct {
	eventBase
	Info   AddrInfo
	Source DiscoverySource
}

// Type 返回事件类型
func (PeerDiscovered) Type() EventType { return EventPeerDiscovered }

// NewPeerDiscovered 创建节点发现事件
func NewPeerDiscovered(info AddrInfo, source DiscoverySource) PeerDiscovered {
	return PeerDiscovered{eventBase: now(), Info: info, Source: source}
}

// MessageReceived 收到订阅主题的消息
type MessageReceived struct {
	eventBase
	// From 消息发布者
	From PeerID
	// ReceivedFrom 转发该消息的直接邻居
	ReceivedFrom PeerID
	Topic        string
	Data         []byte
	Seqno        uint64
}

// Type 返回事件类型
func (MessageReceived) Type() EventType { return EventMessageReceived }

// NewMessageReceived 创建消息接收事件
func NewMessageReceived(msg *Message, receivedFrom PeerID) MessageReceived {
	return MessageReceived{
		eventBase:    now(),
		From:         msg.From,
		ReceivedFrom: receivedFrom,
		Topic:        msg.Topic,
		Data:         msg.Data,
		Seqno:        msg.Seqno,
	}
}

// ListenAddrAdded 开始在新地址上监听
type ListenAddrAdded struct {
	eventBase
	Addr ma.Multiaddr
}

// Type 返回事件类型
func (ListenAddrAdded) Type() EventType { return EventListenAddrAdded }

// NewListenAddrAdded 创建监听事件
func NewListenAddrAdded(addr ma.Multiaddr) ListenAddrAdded {
	return ListenAddrAdded{eventBase: now(), Addr: addr}
}

// NodeStarted 节点已启动
type NodeStarted struct {
	eventBase
	ID PeerID
}

// Type 返回事件类型
func (NodeStarted) Type() EventType { return EventNodeStarted }

// NewNodeStarted 创建节点启动事件
func NewNodeStarted(id PeerID) NodeStarted {
	return NodeStarted{eventBase: now(), ID: id}
}

// NodeStopped 节点已停止
type NodeStopped struct {
	eventBase
	ID PeerID
}

// Type 返回事件类型
func (NodeStopped) Type() EventType { return EventNodeStopped }

// NewNodeStopped 创建节点停止事件
func NewNodeStopped(id PeerID) NodeStopped {
	return NodeStopped{eventBase: now(), ID: id}
}
