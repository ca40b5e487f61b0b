package ping

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"io"
	"sync/atomic"
	"time"

	pkgif "github.com/dep2p/go-meshnode/pkg/interfaces"
	"github.com/dep2p/go-meshnode/pkg/protocolids"
	"github.com/dep2p/go-meshnode/pkg/types"
)

// ProtocolID Ping 协议 ID
const ProtocolID = protocolids.Ping

const (
	// PingSize Ping 消息大小（32 字节）
	PingSize = 32

	// PingTimeout Ping 超时时间
	PingTimeout = 10 * time.Second

	// HandlerIdleTimeout Handler 空闲超时时间
	HandlerIdleTimeout = 60 * time.Second
)

// ErrDataMismatch Ping 回显数据不匹配
var ErrDataMismatch = errors.New("ping: echo data mismatch")

// Service Ping 服务
type Service struct {
	served atomic.Uint64
}

// NewService 创建 Ping 服务
func NewService() *Service {
	return &Service{}
}

// Register 在 Host 上注册 Ping 处理器
func (s *Service) Register(h pkgif.Host) {
	h.SetStreamHandler(ProtocolID, s.Handler)
}

// Served 返回已回显的 ping 次数
func (s *Service) Served() uint64 {
	return s.served.Load()
}

// Handler 处理 Ping 请求（服务器端），读取数据并回显
func (s *Service) Handler(stream pkgif.Stream) {
	defer stream.Close()

	buf := make([]byte, PingSize)
	for {
		_ = stream.SetReadDeadline(time.Now().Add(HandlerIdleTimeout))

		if _, err := io.ReadFull(stream, buf); err != nil {
			return
		}
		if _, err := stream.Write(buf); err != nil {
			return
		}
		s.served.Add(1)
	}
}

// Ping 主动 Ping 节点（客户端），返回往返时间
func Ping(ctx context.Context, h pkgif.Host, p types.PeerID) (time.Duration, error) {
	stream, err := h.NewStream(ctx, p, ProtocolID)
	if err != nil {
		return 0, err
	}
	defer stream.Close()

	deadline := time.Now().Add(PingTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = stream.SetDeadline(deadline)

	return pingOnce(stream)
}

func pingOnce(rw io.ReadWriter) (time.Duration, error) {
	buf := make([]byte, PingSize)
	if _, err := rand.Read(buf); err != nil {
		return 0, err
	}

	start := time.Now()
	if _, err := rw.Write(buf); err != nil {
		return 0, err
	}
	echo := make([]byte, PingSize)
	if _, err := io.ReadFull(rw, echo); err != nil {
		return 0, err
	}
	rtt := time.Since(start)

	if !bytes.Equal(buf, echo) {
		return 0, ErrDataMismatch
	}
	return rtt, nil
}
