package multiaddr

import (
	"bytes"
	"net"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPeerID() string {
	return base58.Encode(bytes.Repeat([]byte{7}, 32))
}

// TestNewMultiaddr 测试从字符串创建多地址
func TestNewMultiaddr(t *testing.T) {
	tests := []struct {
		name    string
		addr    string
		wantErr bool
	}{
		{"IPv4 + TCP", "/ip4/127.0.0.1/tcp/4001", false},
		{"IPv6 + TCP", "/ip6/::1/tcp/4001", false},
		{"TCP + WS", "/ip4/10.0.0.1/tcp/80/ws", false},
		{"DNS4 + WSS", "/dns4/example.org/tcp/443/wss", false},
		{"dnsaddr", "/dnsaddr/bootstrap.example.org", false},
		{"With P2P", "/ip4/1.2.3.4/tcp/4001/p2p/" + testPeerID(), false},
		{"Empty", "", true},
		{"No leading slash", "ip4/127.0.0.1", true},
		{"Unknown protocol", "/unknown/value", true},
		{"Incomplete", "/ip4", true},
		{"Bad port", "/ip4/1.2.3.4/tcp/70000", true},
		{"IPv4 as ip6", "/ip6/1.2.3.4/tcp/1", true},
		{"Short peer id", "/p2p/abc", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ma, err := NewMultiaddr(tt.addr)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.addr, ma.String())
		})
	}
}

// TestNewMultiaddrBytes 测试从字节创建多地址
func TestNewMultiaddrBytes(t *testing.T) {
	// /ip4/127.0.0.1/tcp/4001
	ma, err := NewMultiaddrBytes([]byte{0x04, 127, 0, 0, 1, 0x06, 0x0f, 0xa1})
	require.NoError(t, err)
	assert.Equal(t, "/ip4/127.0.0.1/tcp/4001", ma.String())

	_, err = NewMultiaddrBytes(nil)
	assert.ErrorIs(t, err, ErrInvalidMultiaddr)

	_, err = NewMultiaddrBytes([]byte{0xff, 0xff, 0xff})
	assert.Error(t, err)

	// 截断的 ip4 值
	_, err = NewMultiaddrBytes([]byte{0x04, 127, 0})
	assert.Error(t, err)
}

func TestMultiaddr_BytesRoundTrip(t *testing.T) {
	orig := StringCast("/ip4/127.0.0.1/tcp/4002/ws/p2p/" + testPeerID())
	back, err := NewMultiaddrBytes(orig.Bytes())
	require.NoError(t, err)
	assert.True(t, orig.Equal(back))
}

func TestMultiaddr_Protocols(t *testing.T) {
	ma := StringCast("/ip4/127.0.0.1/tcp/4002/ws")
	protos := ma.Protocols()
	require.Len(t, protos, 3)
	assert.Equal(t, "ip4", protos[0].Name)
	assert.Equal(t, "tcp", protos[1].Name)
	assert.Equal(t, "ws", protos[2].Name)
}

func TestMultiaddr_EncapsulateDecapsulate(t *testing.T) {
	base := StringCast("/ip4/127.0.0.1/tcp/4001")
	p2p := StringCast("/p2p/" + testPeerID())

	full := base.Encapsulate(p2p)
	assert.Equal(t, base.String()+p2p.String(), full.String())

	assert.True(t, full.Decapsulate(p2p).Equal(base))
	assert.Equal(t, "/ip4/127.0.0.1", full.Decapsulate(StringCast("/tcp/4001")).String())
	assert.Nil(t, full.Decapsulate(base))

	// 不包含时返回原地址
	assert.True(t, base.Decapsulate(StringCast("/ws")).Equal(base))
}

func TestMultiaddr_ValueForProtocol(t *testing.T) {
	ma := StringCast("/dns4/example.org/tcp/443/wss/p2p/" + testPeerID())

	host, err := ma.ValueForProtocol(P_DNS4)
	require.NoError(t, err)
	assert.Equal(t, "example.org", host)

	port, err := ma.ValueForProtocol(P_TCP)
	require.NoError(t, err)
	assert.Equal(t, "443", port)

	id, err := ma.ValueForProtocol(P_P2P)
	require.NoError(t, err)
	assert.Equal(t, testPeerID(), id)

	_, err = ma.ValueForProtocol(P_IP4)
	assert.ErrorIs(t, err, ErrProtocolNotFound)
}

func TestSplitPeer(t *testing.T) {
	ma := StringCast("/ip4/1.2.3.4/tcp/4001/p2p/" + testPeerID())
	transport, id := SplitPeer(ma)
	assert.Equal(t, "/ip4/1.2.3.4/tcp/4001", transport.String())
	assert.Equal(t, testPeerID(), id)

	transport, id = SplitPeer(StringCast("/ip4/1.2.3.4/tcp/4001"))
	assert.Equal(t, "/ip4/1.2.3.4/tcp/4001", transport.String())
	assert.Empty(t, id)
}

func TestDialArgs(t *testing.T) {
	tests := []struct {
		addr     string
		network  string
		hostport string
	}{
		{"/ip4/127.0.0.1/tcp/4001", "tcp4", "127.0.0.1:4001"},
		{"/ip6/::1/tcp/4001", "tcp6", "[::1]:4001"},
		{"/dns4/example.org/tcp/80/ws", "tcp4", "example.org:80"},
		{"/dns/example.org/tcp/443/wss", "tcp", "example.org:443"},
	}
	for _, tt := range tests {
		network, hostport, err := DialArgs(StringCast(tt.addr))
		require.NoError(t, err, tt.addr)
		assert.Equal(t, tt.network, network, tt.addr)
		assert.Equal(t, tt.hostport, hostport, tt.addr)
	}

	_, _, err := DialArgs(StringCast("/dnsaddr/example.org"))
	assert.ErrorIs(t, err, ErrInvalidMultiaddr)
}

func TestFromNetAddr(t *testing.T) {
	ma, err := FromNetAddr(&net.TCPAddr{IP: net.ParseIP("192.168.1.2"), Port: 9000})
	require.NoError(t, err)
	assert.Equal(t, "/ip4/192.168.1.2/tcp/9000", ma.String())

	ma, err = FromNetAddr(&net.TCPAddr{IP: net.ParseIP("::1"), Port: 9000})
	require.NoError(t, err)
	assert.Equal(t, "/ip6/::1/tcp/9000", ma.String())
	assert.True(t, IsLoopback(ma))

	_, err = FromNetAddr(&net.UDPAddr{})
	assert.Error(t, err)
}

func TestUnique(t *testing.T) {
	a := StringCast("/ip4/1.1.1.1/tcp/1")
	b := StringCast("/ip4/1.1.1.1/tcp/2")
	out := Unique([]Multiaddr{a, b, StringCast("/ip4/1.1.1.1/tcp/1"), nil})
	require.Len(t, out, 2)
	assert.True(t, out[0].Equal(a))
	assert.True(t, out[1].Equal(b))
	assert.True(t, IsWebSocket(StringCast("/ip4/1.1.1.1/tcp/1/ws")))
	assert.False(t, IsWebSocket(a))
}

func TestToNetAddr(t *testing.T) {
	addr, err := ToNetAddr(StringCast("/ip4/10.1.2.3/tcp/4001/ws"))
	require.NoError(t, err)
	assert.Equal(t, "10.1.2.3:4001", addr.String())

	_, err = ToNetAddr(StringCast("/dns4/example.com/tcp/443"))
	assert.Error(t, err)
}
