// Package peerstore 实现节点信息存储
//
// Peerstore 由三部分组成：
//   - 地址簿：带 TTL 的地址，可选持久化到 BadgerDB（前缀 p/a/）
//   - 密钥簿：ARC 缓存的公钥，可选持久化（前缀 p/k/）
//   - 协议簿：节点支持的协议（仅内存，来自 identify）
//
// 持久化的地址在启动时重新加载，供引导服务作为候选节点。
package peerstore
