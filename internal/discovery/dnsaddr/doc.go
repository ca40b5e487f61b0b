// Package dnsaddr 解析 /dnsaddr 引导地址
//
// /dnsaddr/<domain> 通过 DNS TXT 记录 _dnsaddr.<domain> 展开为具体地址：
//
//	_dnsaddr.bootstrap.example.org.  300  IN  TXT  "dnsaddr=/ip4/1.2.3.4/tcp/4001/p2p/<PeerID>"
//	_dnsaddr.bootstrap.example.org.  300  IN  TXT  "dnsaddr=/dnsaddr/eu.bootstrap.example.org"
//
// 嵌套的 /dnsaddr 记录递归解析，深度受 Config.MaxDepth 限制（默认 4）。
// 地址末尾带 /p2p/<id> 时只保留该节点的记录。
//
// TXT 查询使用 miekg/dns 直接访问 resolv.conf 中的名称服务器，
// 结果缓存在带过期时间的 LRU 中。
package dnsaddr
