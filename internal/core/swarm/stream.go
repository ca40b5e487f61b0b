package swarm

import (
	"sync"

	pkgif "github.com/dep2p/go-meshnode/pkg/interfaces"
	"github.com/dep2p/go-meshnode/pkg/types"
)

// Stream Swarm 流
type Stream struct {
	pkgif.MuxedStream

	conn *Conn
	dir  types.Direction

	mu       sync.RWMutex
	protocol types.ProtocolID
}

var _ pkgif.Stream = (*Stream)(nil)

// Protocol 返回协商后的协议 ID
func (s *Stream) Protocol() types.ProtocolID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.protocol
}

// SetProtocol 设置协议 ID
func (s *Stream) SetProtocol(p types.ProtocolID) {
	s.mu.Lock()
	s.protocol = p
	s.mu.Unlock()
}

// Conn 返回所属连接
func (s *Stream) Conn() pkgif.Connection {
	return s.conn
}

// Direction 返回流方向
func (s *Stream) Direction() types.Direction {
	return s.dir
}

// Close 关闭流
func (s *Stream) Close() error {
	s.conn.removeStream(s)
	return s.MuxedStream.Close()
}

// Reset 重置流
func (s *Stream) Reset() error {
	s.conn.removeStream(s)
	return s.MuxedStream.Reset()
}
