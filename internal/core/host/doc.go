// Package host 实现网络主机门面
//
// Host 构建在 Swarm 之上，负责：
//   - 按协议 ID 路由入站流（multistream-select 服务端协商）
//   - 出站流的协议选择（multistream-select 客户端协商）
//   - Connect：把 AddrInfo 写入 Peerstore 后委托 Swarm 拨号
//   - 对外地址：展开 0.0.0.0 / :: 监听地址并经过 AddrsFactory 过滤
//
// 依赖关系：
//
//	Host → Swarm → Upgrader → Transport
//	  ↓
//	Peerstore / EventBus
package host
