// Package interfaces 定义 meshnode 的公共接口
//
// 本包按层组织接口定义，一个接口文件对应一个实现目录：
//
// # Core Layer 接口
//
//   - transport.go      - 传输层（TCP、WebSocket）
//   - security.go       - 安全层（Noise）
//   - muxer.go          - 多路复用（yamux）
//   - upgrader.go       - 连接升级（安全 + 复用协商）
//   - swarm.go          - 连接群管理
//   - host.go           - 网络主机（协议路由门面）
//   - peerstore.go      - 节点信息存储
//   - connmgr.go        - 连接管理（高低水位）
//   - eventbus.go       - 类型化事件总线
//
// # Discovery Layer 接口
//
//   - discovery.go      - DHT 路由与节点发现
//
// # Protocol Layer 接口
//
//   - pubsub.go         - 发布订阅服务
//
// 所有接口使用 pkg/types 中的基础类型。实现位于 internal/ 下。
package interfaces
