package swarm

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	pkgif "github.com/dep2p/go-meshnode/pkg/interfaces"
	"github.com/dep2p/go-meshnode/pkg/lib/crypto"
	ma "github.com/dep2p/go-meshnode/pkg/lib/multiaddr"
	"github.com/dep2p/go-meshnode/pkg/types"
)

// Conn Swarm 管理的连接
type Conn struct {
	swarm  *Swarm
	conn   pkgif.UpgradedConn
	id     string
	dir    types.Direction
	opened time.Time

	streamsMu sync.Mutex
	streams   map[*Stream]struct{}
	closed    bool

	closeOnce sync.Once
	closeErr  error
}

var _ pkgif.Connection = (*Conn)(nil)

func newConn(s *Swarm, uc pkgif.UpgradedConn, dir types.Direction) *Conn {
	return &Conn{
		swarm:   s,
		conn:    uc,
		id:      uuid.NewString(),
		dir:     dir,
		opened:  time.Now(),
		streams: make(map[*Stream]struct{}),
	}
}

// ID 返回连接唯一标识
func (c *Conn) ID() string { return c.id }

func (c *Conn) LocalPeer() types.PeerID { return c.conn.LocalPeer() }
func (c *Conn) RemotePeer() types.PeerID { return c.conn.RemotePeer() }
func (c *Conn) RemotePublicKey() crypto.PublicKey { return c.conn.RemotePublicKey() }
func (c *Conn) LocalMultiaddr() ma.Multiaddr { return c.conn.LocalMultiaddr() }
func (c *Conn) RemoteMultiaddr() ma.Multiaddr { return c.conn.RemoteMultiaddr() }
func (c *Conn) Direction() types.Direction { return c.dir }
func (c *Conn) Opened() time.Time { return c.opened }

// NewStream 打开新流
func (c *Conn) NewStream(ctx context.Context) (pkgif.Stream, error) {
	if c.IsClosed() {
		return nil, types.ErrConnectionClosed
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.swarm.config.NewStreamTimeout)
		defer cancel()
	}

	ms, err := c.conn.OpenStream(ctx)
	if err != nil {
		return nil, err
	}
	return c.addStream(ms, types.DirOutbound)
}

func (c *Conn) addStream(ms pkgif.MuxedStream, dir types.Direction) (*Stream, error) {
	st := &Stream{MuxedStream: ms, conn: c, dir: dir}

	c.streamsMu.Lock()
	defer c.streamsMu.Unlock()
	if c.closed {
		_ = ms.Reset()
		return nil, types.ErrConnectionClosed
	}
	c.streams[st] = struct{}{}
	return st, nil
}

func (c *Conn) removeStream(st *Stream) {
	c.streamsMu.Lock()
	delete(c.streams, st)
	c.streamsMu.Unlock()
}

// GetStreams 返回活跃流
func (c *Conn) GetStreams() []pkgif.Stream {
	c.streamsMu.Lock()
	defer c.streamsMu.Unlock()

	out := make([]pkgif.Stream, 0, len(c.streams))
	for st := range c.streams {
		out = append(out, st)
	}
	return out
}

// IsClosed 检查连接是否已关闭
func (c *Conn) IsClosed() bool {
	c.streamsMu.Lock()
	defer c.streamsMu.Unlock()
	return c.closed
}

// Close 关闭连接，并从 Swarm 中移除
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.streamsMu.Lock()
		c.closed = true
		c.streams = make(map[*Stream]struct{})
		c.streamsMu.Unlock()

		c.closeErr = c.conn.Close()
		c.swarm.removeConn(c)
	})
	return c.closeErr
}

// acceptStreams 入站流循环，连接断开时关闭连接
func (c *Conn) acceptStreams() {
	defer c.Close()

	for {
		ms, err := c.conn.AcceptStream()
		if err != nil {
			if !c.IsClosed() {
				logger.Debug("连接已断开", "peerID", c.RemotePeer().ShortString(), "error", err)
			}
			return
		}

		st, err := c.addStream(ms, types.DirInbound)
		if err != nil {
			return
		}

		handler := c.swarm.inboundHandler()
		if handler == nil {
			logger.Warn("入站流处理器未设置，重置流", "peerID", c.RemotePeer().ShortString())
			_ = st.Reset()
			continue
		}
		go handler(st)
	}
}
