// Package bootstrap 连接引导节点并在连接不足时重试
//
// 一次引导流程：
//
//  1. 汇总候选节点：配置的引导节点、/dnsaddr 解析结果、Peerstore 中持久化的节点
//  2. 以有限并发并行拨号，单个失败不影响整体
//  3. 每个成功连接的节点发出 PeerDiscovered 事件，引导节点打上连接管理器标签
//  4. 等待 Identify 完成后触发一次 DHT 自查找
//
// 重试循环按 RetryInterval 检查连接数，低于 MinPeers 或连接管理器提示
// 需要补充节点时重新执行引导流程。引导失败从不致命。
package bootstrap
