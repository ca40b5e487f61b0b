package dnsaddr

import "errors"

var (
	// ErrNotDNSAddr 地址不是 /dnsaddr 地址
	ErrNotDNSAddr = errors.New("dnsaddr: not a /dnsaddr multiaddr")

	// ErrInvalidRecord 无效的 dnsaddr TXT 记录
	ErrInvalidRecord = errors.New("dnsaddr: invalid TXT record")

	// ErrMaxDepthExceeded 超过最大递归深度
	ErrMaxDepthExceeded = errors.New("dnsaddr: max recursion depth exceeded")

	// ErrNoRecords 未找到可用记录
	ErrNoRecords = errors.New("dnsaddr: no records found")

	// ErrNoNameserver 没有可用的 DNS 服务器
	ErrNoNameserver = errors.New("dnsaddr: no nameserver configured")
)
