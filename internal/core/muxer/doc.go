// Package muxer 基于 yamux 实现流多路复用
//
// 在一条安全连接上承载多个独立流控的双向流，协议 ID 为 /yamux/1.0.0。
package muxer
