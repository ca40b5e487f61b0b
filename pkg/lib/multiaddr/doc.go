// Package multiaddr 实现自描述网络地址（multiaddr）
//
// 多地址是一串有序的 协议/值 组件，例如：
//
//	/ip4/127.0.0.1/tcp/4001
//	/ip4/127.0.0.1/tcp/4002/ws/p2p/<PeerID>
//	/dnsaddr/bootstrap.example.org
//
// 二进制格式：每个组件为 varint(协议代码) + [varint(长度)] + 值。
// 本包只注册节点实际使用的协议：ip4, ip6, dns, dns4, dns6, dnsaddr,
// tcp, ws, wss, p2p。
//
// 使用示例：
//
//	ma, err := multiaddr.NewMultiaddr("/ip4/127.0.0.1/tcp/4001")
//	port, _ := ma.ValueForProtocol(multiaddr.P_TCP)
//	netAddr, _ := multiaddr.ToNetAddr(ma)
package multiaddr
