// Package tcp 提供基于 TCP 的传输层实现
//
// 支持地址格式：
//
//	/ip4/<ip>/tcp/<port>
//	/ip6/<ip>/tcp/<port>
//	/dns4/<host>/tcp/<port>（仅拨号）
//
// TCP 传输不提供安全与多路复用，由 upgrader 在其上协商 Noise 和 yamux。
package tcp
