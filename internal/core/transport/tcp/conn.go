package tcp

import (
	"net"

	pkgif "github.com/dep2p/go-meshnode/pkg/interfaces"
	ma "github.com/dep2p/go-meshnode/pkg/lib/multiaddr"
)

// Conn TCP 连接
type Conn struct {
	net.Conn
	laddr ma.Multiaddr
	raddr ma.Multiaddr
}

var _ pkgif.TransportConn = (*Conn)(nil)

// newConn 包装 net.Conn，并计算两端多地址
func newConn(c net.Conn) (*Conn, error) {
	laddr, err := ma.FromNetAddr(c.LocalAddr())
	if err != nil {
		return nil, err
	}
	raddr, err := ma.FromNetAddr(c.RemoteAddr())
	if err != nil {
		return nil, err
	}
	return &Conn{Conn: c, laddr: laddr, raddr: raddr}, nil
}

// LocalMultiaddr 返回本地多地址
func (c *Conn) LocalMultiaddr() ma.Multiaddr { return c.laddr }

// RemoteMultiaddr 返回远端多地址
func (c *Conn) RemoteMultiaddr() ma.Multiaddr { return c.raddr }
