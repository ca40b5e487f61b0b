package dht

import "errors"

var (
	// ErrEmptyRoutingTable 路由表为空，无法开始查找
	ErrEmptyRoutingTable = errors.New("dht: routing table is empty")

	// ErrPeerNotFound 查找未找到目标节点
	ErrPeerNotFound = errors.New("dht: peer not found")

	// ErrClosed DHT 已关闭
	ErrClosed = errors.New("dht: closed")

	// ErrUnexpectedResponse 响应类型与请求不符
	ErrUnexpectedResponse = errors.New("dht: unexpected response type")
)
