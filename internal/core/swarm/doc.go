// Package swarm 实现连接群管理
//
// Swarm 持有到所有对端的已升级连接，负责：
//   - 按 Peerstore 中的地址并发拨号，首个成功的连接胜出
//   - 监听并升级入站连接
//   - 为每条连接运行入站流循环，把流交给 Host 分发
//   - 通知连接建立与断开（SwarmNotifier 与事件总线）
//
// 同一 PeerID 的并发拨号会被合并为一次。
package swarm
