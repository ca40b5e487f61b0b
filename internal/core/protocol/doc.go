// Package protocol 装配系统协议
//
// 在 Host 上注册 ping 与 identify 服务，并把 identify 接入连接通知。
package protocol
