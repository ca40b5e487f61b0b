// Package swarmtest 为测试构造完整的 Swarm 栈（TCP + Noise + yamux）
package swarmtest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-meshnode/internal/core/eventbus"
	"github.com/dep2p/go-meshnode/internal/core/identity"
	"github.com/dep2p/go-meshnode/internal/core/muxer"
	"github.com/dep2p/go-meshnode/internal/core/peerstore"
	"github.com/dep2p/go-meshnode/internal/core/security/noise"
	"github.com/dep2p/go-meshnode/internal/core/swarm"
	"github.com/dep2p/go-meshnode/internal/core/transport"
	"github.com/dep2p/go-meshnode/internal/core/upgrader"
	pkgif "github.com/dep2p/go-meshnode/pkg/interfaces"
	ma "github.com/dep2p/go-meshnode/pkg/lib/multiaddr"
)

// Node 测试节点的组件
type Node struct {
	Identity  *identity.Identity
	Peerstore *peerstore.Peerstore
	Bus       *eventbus.Bus
	Swarm     *swarm.Swarm
}

// New 创建监听 127.0.0.1 随机端口的 Swarm，测试结束时自动关闭
func New(t testing.TB) *Node {
	t.Helper()

	id, err := identity.Generate()
	require.NoError(t, err)

	ps, err := peerstore.New()
	require.NoError(t, err)

	sec, err := noise.New(id.PrivateKey(), noise.WithHandshakeTimeout(5*time.Second))
	require.NoError(t, err)

	upg, err := upgrader.New(
		[]pkgif.SecureTransport{sec},
		[]pkgif.StreamMuxer{muxer.NewTransport(muxer.DefaultConfig())},
		upgrader.Config{NegotiateTimeout: 5 * time.Second},
	)
	require.NoError(t, err)

	cfg := transport.DefaultConfig()
	cfg.EnableWebSocket = false
	tm := transport.NewManager(cfg)

	bus := eventbus.NewBus()

	swCfg := swarm.DefaultConfig()
	swCfg.DialTimeout = 5 * time.Second
	sw, err := swarm.New(id.PeerID(), tm, upg, ps, swarm.WithConfig(swCfg), swarm.WithEventBus(bus))
	require.NoError(t, err)

	require.NoError(t, sw.Listen(ma.StringCast("/ip4/127.0.0.1/tcp/0")))

	t.Cleanup(func() {
		_ = sw.Close()
		_ = tm.Close()
		_ = ps.Close()
		_ = bus.Close()
	})

	return &Node{Identity: id, Peerstore: ps, Bus: bus, Swarm: sw}
}

// Link 让 a 知道 b 的监听地址
func Link(a, b *Node) {
	a.Peerstore.AddAddrs(b.Identity.PeerID(), b.Swarm.ListenAddrs(), pkgif.PermanentAddrTTL)
}
