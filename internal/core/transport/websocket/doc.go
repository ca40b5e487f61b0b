// Package websocket 提供基于 WebSocket 的传输层实现
//
// 地址格式：
//
//	/ip4/<ip>/tcp/<port>/ws
//	/dns4/<host>/tcp/<port>/wss（仅拨号）
//
// WebSocket 二进制消息被适配为字节流 net.Conn，上层照常协商 Noise 与 yamux。
// 监听端在路径 "/" 上升级 HTTP 连接。
package websocket
