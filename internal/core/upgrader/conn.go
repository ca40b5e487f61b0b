package upgrader

import (
	pkgif "github.com/dep2p/go-meshnode/pkg/interfaces"
	"github.com/dep2p/go-meshnode/pkg/lib/crypto"
	ma "github.com/dep2p/go-meshnode/pkg/lib/multiaddr"
	"github.com/dep2p/go-meshnode/pkg/types"
)

var _ pkgif.UpgradedConn = (*upgradedConn)(nil)

// upgradedConn 升级后的连接
type upgradedConn struct {
	pkgif.MuxedConn

	secConn pkgif.SecureConn
	laddr   ma.Multiaddr
	raddr   ma.Multiaddr

	security types.ProtocolID
	muxer    types.ProtocolID
}

func (c *upgradedConn) LocalPeer() types.PeerID {
	return c.secConn.LocalPeer()
}

func (c *upgradedConn) RemotePeer() types.PeerID {
	return c.secConn.RemotePeer()
}

func (c *upgradedConn) RemotePublicKey() crypto.PublicKey {
	return c.secConn.RemotePublicKey()
}

func (c *upgradedConn) LocalMultiaddr() ma.Multiaddr {
	return c.laddr
}

func (c *upgradedConn) RemoteMultiaddr() ma.Multiaddr {
	return c.raddr
}

// Security 返回协商的安全协议
func (c *upgradedConn) Security() types.ProtocolID {
	return c.security
}

// Muxer 返回协商的复用协议
func (c *upgradedConn) Muxer() types.ProtocolID {
	return c.muxer
}
