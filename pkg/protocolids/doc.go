// Package protocolids 定义 meshnode 使用的全部协议 ID。
//
// 各模块引用本包中的常量，不在其他位置定义协议字面量。
//
// # 协议分类
//
//   - 连接升级协议：在 multistream-select 上协商的安全与多路复用协议
//     （/noise、/yamux/1.0.0），不注册为流处理器。
//   - 系统协议：节点在流上运行的内置协议（ping、identify、DHT、pubsub），
//     应用不能覆盖。
//   - 应用协议：通过 Node.SetStreamHandler 注册的自定义协议，
//     须以 "/" 开头且不与系统协议冲突。
//
// ping 与 pubsub 使用与 libp2p 相同的 ID，便于与其它实现互通。
package protocolids
