// Package ping 实现存活检测协议
//
// 客户端发送 32 字节随机数据，服务端原样回显，客户端据此计算 RTT。
// 同一条流上可以连续 ping。
package ping
