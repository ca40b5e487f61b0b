package host

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"

	ma "github.com/dep2p/go-meshnode/pkg/lib/multiaddr"
)

func TestExpandUnspecified(t *testing.T) {
	orig := interfaceAddrs
	t.Cleanup(func() { interfaceAddrs = orig })
	interfaceAddrs = func() ([]net.IP, error) {
		return []net.IP{
			net.ParseIP("127.0.0.1"),
			net.ParseIP("192.168.1.7"),
			net.ParseIP("::1"),
		}, nil
	}

	got := expandUnspecified([]ma.Multiaddr{
		ma.StringCast("/ip4/0.0.0.0/tcp/4001"),
		ma.StringCast("/ip4/0.0.0.0/tcp/4002/ws"),
		ma.StringCast("/ip4/10.0.0.1/tcp/4003"),
	})

	var strs []string
	for _, a := range got {
		strs = append(strs, a.String())
	}
	assert.ElementsMatch(t, []string{
		"/ip4/127.0.0.1/tcp/4001",
		"/ip4/192.168.1.7/tcp/4001",
		"/ip4/127.0.0.1/tcp/4002/ws",
		"/ip4/192.168.1.7/tcp/4002/ws",
		"/ip4/10.0.0.1/tcp/4003",
	}, strs)
}

func TestExpandUnspecified_NoInterfaces(t *testing.T) {
	orig := interfaceAddrs
	t.Cleanup(func() { interfaceAddrs = orig })
	interfaceAddrs = func() ([]net.IP, error) { return nil, nil }

	addr := ma.StringCast("/ip4/0.0.0.0/tcp/4001")
	got := expandUnspecified([]ma.Multiaddr{addr})
	assert.Len(t, got, 1)
	assert.True(t, got[0].Equal(addr))
}
