// Package pubsub 实现基于 gossip 的发布订阅覆盖网络
//
// 每个主题维护一个度数在 [Dlo, Dhi] 之间的 mesh：
//
//   - 消息沿 mesh 转发，已见消息按 ID 去重
//   - 心跳在 mesh 过小时 GRAFT，过大时 PRUNE
//   - 心跳向 mesh 之外的主题节点发送 IHAVE，对端按需 IWANT
//   - 未订阅主题的发布使用 fanout 节点
//
// 每个 RPC 使用一条新流发送，帧格式为 4 字节大端长度前缀。
//
// 使用示例：
//
//	ps, _ := pubsub.New(h, id.PrivateKey(), pubsub.DefaultConfig())
//	_ = ps.Start()
//	sub, _ := ps.Subscribe("news")
//	msg, _ := sub.Next(ctx)
package pubsub
