package websocket

import (
	"io"
	"net"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	pkgif "github.com/dep2p/go-meshnode/pkg/interfaces"
	ma "github.com/dep2p/go-meshnode/pkg/lib/multiaddr"
)

// closeWriteTimeout 发送关闭帧的超时
const closeWriteTimeout = 100 * time.Millisecond

// Conn 将 WebSocket 消息流适配为 net.Conn
//
// 每次 Write 发送一个二进制消息；Read 跨消息边界连续读取。
type Conn struct {
	ws    *ws.Conn
	laddr ma.Multiaddr
	raddr ma.Multiaddr

	readMu sync.Mutex
	reader io.Reader

	writeMu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

var _ pkgif.TransportConn = (*Conn)(nil)

func newConn(c *ws.Conn, secure bool) (*Conn, error) {
	suffix := ma.StringCast("/ws")
	if secure {
		suffix = ma.StringCast("/wss")
	}
	laddr, err := ma.FromNetAddr(c.UnderlyingConn().LocalAddr())
	if err != nil {
		return nil, err
	}
	raddr, err := ma.FromNetAddr(c.UnderlyingConn().RemoteAddr())
	if err != nil {
		return nil, err
	}
	return &Conn{
		ws:    c,
		laddr: laddr.Encapsulate(suffix),
		raddr: raddr.Encapsulate(suffix),
	}, nil
}

// Read 读取数据
func (c *Conn) Read(b []byte) (int, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	for {
		if c.reader == nil {
			mt, r, err := c.ws.NextReader()
			if err != nil {
				return 0, mapCloseError(err)
			}
			if mt != ws.BinaryMessage {
				continue
			}
			c.reader = r
		}

		n, err := c.reader.Read(b)
		if err == io.EOF {
			c.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

// Write 以一个二进制消息写出数据
func (c *Conn) Write(b []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.ws.WriteMessage(ws.BinaryMessage, b); err != nil {
		return 0, mapCloseError(err)
	}
	return len(b), nil
}

// Close 发送关闭帧并关闭底层连接
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		_ = c.ws.WriteControl(ws.CloseMessage,
			ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
			time.Now().Add(closeWriteTimeout))
		c.writeMu.Unlock()
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}

// LocalAddr 返回本地 net 地址
func (c *Conn) LocalAddr() net.Addr { return c.ws.UnderlyingConn().LocalAddr() }

// RemoteAddr 返回远端 net 地址
func (c *Conn) RemoteAddr() net.Addr { return c.ws.UnderlyingConn().RemoteAddr() }

// LocalMultiaddr 返回本地多地址
func (c *Conn) LocalMultiaddr() ma.Multiaddr { return c.laddr }

// RemoteMultiaddr 返回远端多地址
func (c *Conn) RemoteMultiaddr() ma.Multiaddr { return c.raddr }

// SetDeadline 设置读写截止时间
func (c *Conn) SetDeadline(t time.Time) error {
	if err := c.SetReadDeadline(t); err != nil {
		return err
	}
	return c.SetWriteDeadline(t)
}

// SetReadDeadline 设置读截止时间
func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.ws.SetReadDeadline(t)
}

// SetWriteDeadline 设置写截止时间
func (c *Conn) SetWriteDeadline(t time.Time) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.SetWriteDeadline(t)
}

// mapCloseError 正常关闭映射为 io.EOF
func mapCloseError(err error) error {
	if ws.IsCloseError(err, ws.CloseNormalClosure, ws.CloseGoingAway) {
		return io.EOF
	}
	return err
}
