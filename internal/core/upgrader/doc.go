// Package upgrader 将原始传输连接升级为安全的多路复用连接
//
// 升级流程：
//  1. multistream-select 协商安全协议（/noise）
//  2. 安全握手，确认对端 PeerID
//  3. multistream-select 协商复用协议（/yamux/1.0.0）
//  4. 建立复用会话
//
// 任一步骤失败都会关闭底层连接并返回 *types.HandshakeError。
package upgrader
