// Package storage 提供基于 BadgerDB 的持久化存储
//
// 结构：
//   - Engine: BadgerDB 引擎封装（打开、GC、关闭）
//   - Store: 带前缀隔离的 KV 存储，每个组件使用独立前缀
//
// # 键空间设计
//
//   - p/a/ - Peerstore 地址
//   - p/k/ - Peerstore 公钥
//
// 测试使用内存模式（Config.InMemory），不落盘。
package storage
