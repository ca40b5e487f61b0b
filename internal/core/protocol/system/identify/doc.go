// Package identify 实现节点身份识别协议
//
// identify 协议用于在连接建立后交换节点信息，包括：
//   - 公钥（接收方校验其与连接的 PeerID 匹配）
//   - 支持的协议列表
//   - 监听地址
//   - 观测地址（对端看到的我方地址）
//   - 代理版本
//
// # 协议 ID
//
//	/meshnode/id/1.0.0
//
// # 流程
//
//  1. 连接建立后由 Swarm 通知触发，拨号方和监听方各自发起一次识别
//  2. 对端回复一条 uvarint 长度前缀的 Identify 消息后关闭流
//  3. 接收方更新 Peerstore 中的公钥、地址和协议
package identify
