// Package proto 定义 meshnode 的网络协议消息（wire format）
//
// 消息使用 protobuf wire 格式，由 google.golang.org/protobuf/encoding/protowire
// 直接编解码，不依赖生成代码。字段号一旦发布不可更改。
//
// # 子包
//
//   - identify: 身份识别协议消息
//   - dht: Kademlia DHT 请求/响应消息
//   - gossipsub: GossipSub RPC（订阅、消息、控制）
//
// # 分帧
//
//   - WriteDelimited / ReadDelimited: uvarint 长度前缀（identify、dht）
//   - WriteFramed / ReadFramed: 4 字节大端长度前缀（gossipsub）
//
// # 与 pkg/types 的区别
//
// pkg/lib/proto 定义网络协议消息（wire format），
// pkg/types 定义 Go 内部数据结构（内存结构）。
package proto
