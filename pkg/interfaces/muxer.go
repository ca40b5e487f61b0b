// Package interfaces 定义 meshnode 公共接口
//
// 本文件定义流多路复用接口。
package interfaces

import (
	"context"
	"io"
	"net"
	"time"

	"github.com/dep2p/go-meshnode/pkg/types"
)

// MuxedStream 多路复用流
//
// 每个流独立流控，关闭一个流不影响同一连接上的其他流。
type MuxedStream interface {
	io.Reader
	io.Writer

	// Close 关闭流（双向）
	io.Closer

	// CloseWrite 半关闭写方向，对端读到 EOF
	CloseWrite() error

	// CloseRead 半关闭读方向
	CloseRead() error

	// Reset 异常终止流
	Reset() error

	SetDeadline(t time.Time) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

// MuxedConn 多路复用连接
type MuxedConn interface {
	// OpenStream 打开新流
	OpenStream(ctx context.Context) (MuxedStream, error)

	// AcceptStream 接受对端打开的流，阻塞直到有新流或连接关闭
	AcceptStream() (MuxedStream, error)

	// Close 关闭连接及其所有流
	Close() error

	// IsClosed 检查连接是否已关闭
	IsClosed() bool
}

// StreamMuxer 流多路复用器
type StreamMuxer interface {
	// ID 返回复用协议 ID（如 /yamux/1.0.0）
	ID() types.ProtocolID

	// NewConn 在安全连接上创建多路复用连接
	NewConn(conn net.Conn, isServer bool) (MuxedConn, error)
}
