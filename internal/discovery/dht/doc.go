// Package dht 实现 Kademlia 分布式哈希表节点发现
//
// # 概述
//
// DHT 只负责节点路由：根据 XOR 距离维护路由表，并通过迭代 FIND_NODE
// 查找距离目标最近的节点。协议 ID 为 /meshnode/kad/1.0.0，
// 请求/响应使用 uvarint 长度前缀的 protobuf 编码（pkg/lib/proto/dht）。
//
// # 路由表
//
//   - 256 个桶，按与本地 PeerID 的共同前缀长度划分
//   - 每桶容量 K=20，满时淘汰最久未见的节点，被淘汰者进入替换缓存
//   - 节点被移除时从替换缓存补位
//
// # 迭代查找
//
// 每次查找是一个状态机：
//
//	INIT → QUERYING → CONVERGED | TIMEOUT
//
// 每轮并行查询 α=3 个尚未查询的最近候选，合并返回的更近节点。
// 满足以下任一条件即收敛：K 个最近候选都已查询、本轮没有发现更近的节点、
// 达到 MaxRounds。截止时间到达时返回已知最优的部分结果，
// State 为 TIMEOUT，错误为 nil；需要时可通过 LookupResult.Err()
// 取得 *types.LookupTimeout。
//
// # 模式
//
//   - server：注册 FIND_NODE 处理器，应答查询，入站和出站的 DHT 节点都加入路由表
//   - client：不注册处理器、不应答查询，只把主动连接的 DHT 节点加入路由表
//
// 两种模式都会从查询响应中学习新节点，并发出 PeerDiscovered 事件。
package dht
