package noise

import (
	"encoding/binary"
	"fmt"
	"net"
	"sync"

	"github.com/flynn/noise"
	"golang.org/x/crypto/chacha20poly1305"

	pkgif "github.com/dep2p/go-meshnode/pkg/interfaces"
	"github.com/dep2p/go-meshnode/pkg/lib/crypto"
	"github.com/dep2p/go-meshnode/pkg/types"
)

const (
	// maxFrameSize 单帧最大密文长度
	maxFrameSize = 65535
	// maxPlaintext 单帧最大明文长度
	maxPlaintext = maxFrameSize - chacha20poly1305.Overhead
)

// secureConn Noise 加密连接
type secureConn struct {
	net.Conn

	localPeer  types.PeerID
	remotePeer types.PeerID
	remoteKey  crypto.PublicKey

	readMu  sync.Mutex
	dec     *noise.CipherState
	pending []byte

	writeMu sync.Mutex
	enc     *noise.CipherState
	wbuf    []byte
}

var _ pkgif.SecureConn = (*secureConn)(nil)

func newSecureConn(c net.Conn, local, remote types.PeerID, remoteKey crypto.PublicKey, enc, dec *noise.CipherState) *secureConn {
	return &secureConn{
		Conn:       c,
		localPeer:  local,
		remotePeer: remote,
		remoteKey:  remoteKey,
		enc:        enc,
		dec:        dec,
	}
}

// Read 读取并解密
func (c *secureConn) Read(p []byte) (int, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	for len(c.pending) == 0 {
		frame, err := readFrame(c.Conn)
		if err != nil {
			return 0, err
		}
		plain, err := c.dec.Decrypt(frame[:0], nil, frame)
		if err != nil {
			return 0, fmt.Errorf("decrypt: %w", err)
		}
		c.pending = plain
	}

	n := copy(p, c.pending)
	c.pending = c.pending[n:]
	return n, nil
}

// Write 加密并写入，超过单帧上限时分片
func (c *secureConn) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	written := 0
	for written < len(p) {
		end := written + maxPlaintext
		if end > len(p) {
			end = len(p)
		}
		chunk := p[written:end]

		c.wbuf = append(c.wbuf[:0], 0, 0)
		out, err := c.enc.Encrypt(c.wbuf, nil, chunk)
		if err != nil {
			return written, fmt.Errorf("encrypt: %w", err)
		}
		binary.BigEndian.PutUint16(out, uint16(len(out)-2))
		if _, err := c.Conn.Write(out); err != nil {
			return written, err
		}
		c.wbuf = out
		written = end
	}
	return written, nil
}

// LocalPeer 返回本地节点 ID
func (c *secureConn) LocalPeer() types.PeerID {
	return c.localPeer
}

// RemotePeer 返回远端节点 ID
func (c *secureConn) RemotePeer() types.PeerID {
	return c.remotePeer
}

// RemotePublicKey 返回远端身份公钥
func (c *secureConn) RemotePublicKey() crypto.PublicKey {
	return c.remoteKey
}
