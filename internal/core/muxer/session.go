package muxer

import (
	"context"

	"github.com/libp2p/go-yamux/v5"

	pkgif "github.com/dep2p/go-meshnode/pkg/interfaces"
	"github.com/dep2p/go-meshnode/pkg/lib/log"
)

var logger = log.Logger("core/muxer")

// session 是一条安全连接上的 yamux 会话
//
// Close 与 IsClosed 直接沿用 yamux.Session，流的开闭需要转换错误类型。
type session struct {
	*yamux.Session
}

var _ pkgif.MuxedConn = session{}

func (s session) OpenStream(ctx context.Context) (pkgif.MuxedStream, error) {
	ys, err := s.Session.OpenStream(ctx)
	if err != nil {
		logger.Debug("打开流失败", "remote", s.RemoteAddr(), "error", err)
		return nil, parseError(err)
	}
	return stream{ys}, nil
}

func (s session) AcceptStream() (pkgif.MuxedStream, error) {
	ys, err := s.Session.AcceptStream()
	if err != nil {
		return nil, parseError(err)
	}
	return stream{ys}, nil
}

// stream 的半关闭、Reset 与 deadline 均由 yamux.Stream 提供；
// 读写错误转换为 ErrStreamReset / types.ErrConnectionClosed。
type stream struct {
	*yamux.Stream
}

var _ pkgif.MuxedStream = stream{}

func (s stream) Read(p []byte) (int, error) {
	n, err := s.Stream.Read(p)
	return n, parseError(err)
}

func (s stream) Write(p []byte) (int, error) {
	n, err := s.Stream.Write(p)
	return n, parseError(err)
}
