package connmgr

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgif "github.com/dep2p/go-meshnode/pkg/interfaces"
	"github.com/dep2p/go-meshnode/pkg/types"
)

type fakeConn struct {
	pkgif.Connection
	peer   types.PeerID
	opened time.Time
}

func (c *fakeConn) RemotePeer() types.PeerID { return c.peer }
func (c *fakeConn) Opened() time.Time        { return c.opened }

type fakeNetwork struct {
	mu        sync.Mutex
	conns     []pkgif.Connection
	notifiers []pkgif.SwarmNotifier
}

func (n *fakeNetwork) Conns() []pkgif.Connection {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]pkgif.Connection(nil), n.conns...)
}

func (n *fakeNetwork) ClosePeer(p types.PeerID) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	kept := n.conns[:0]
	for _, c := range n.conns {
		if c.RemotePeer() != p {
			kept = append(kept, c)
		}
	}
	n.conns = kept
	return nil
}

func (n *fakeNetwork) Notify(nf pkgif.SwarmNotifier) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notifiers = append(n.notifiers, nf)
}

func (n *fakeNetwork) StopNotify(nf pkgif.SwarmNotifier) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, x := range n.notifiers {
		if x == nf {
			n.notifiers = append(n.notifiers[:i], n.notifiers[i+1:]...)
			return
		}
	}
}

func (n *fakeNetwork) add(p types.PeerID, opened time.Time) {
	c := &fakeConn{peer: p, opened: opened}
	n.mu.Lock()
	n.conns = append(n.conns, c)
	notifiers := append([]pkgif.SwarmNotifier(nil), n.notifiers...)
	n.mu.Unlock()
	for _, nf := range notifiers {
		nf.Connected(c)
	}
}

// closeOne 关闭 p 的一条连接并发出断开通知
func (n *fakeNetwork) closeOne(p types.PeerID) {
	n.mu.Lock()
	var closed pkgif.Connection
	for i, c := range n.conns {
		if c.RemotePeer() == p {
			closed = c
			n.conns = append(n.conns[:i], n.conns[i+1:]...)
			break
		}
	}
	notifiers := append([]pkgif.SwarmNotifier(nil), n.notifiers...)
	n.mu.Unlock()
	if closed == nil {
		return
	}
	for _, nf := range notifiers {
		nf.Disconnected(closed)
	}
}

func (n *fakeNetwork) peers() map[types.PeerID]bool {
	out := make(map[types.PeerID]bool)
	for _, c := range n.Conns() {
		out[c.RemotePeer()] = true
	}
	return out
}

func peerN(i int) types.PeerID {
	return types.PeerID{byte(i + 1)}
}

func newTestManager(t *testing.T, low, high int) (*Manager, *fakeNetwork, *clock.Mock) {
	t.Helper()

	clk := clock.NewMock()
	clk.Set(time.Unix(1_700_000_000, 0))
	net := &fakeNetwork{}
	m, err := New(DefaultConfig().WithLimits(low, high), net, WithClock(clk))
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m, net, clk
}

func TestManager_Limits(t *testing.T) {
	m, net, _ := newTestManager(t, 2, 4)

	low, high := m.Limits()
	assert.Equal(t, 2, low)
	assert.Equal(t, 4, high)
	assert.True(t, m.NeedsPeers())

	net.add(peerN(0), time.Time{})
	net.add(peerN(1), time.Time{})
	assert.Equal(t, 2, m.ConnCount())
	assert.False(t, m.NeedsPeers())
}

func TestManager_TrimByScore(t *testing.T) {
	m, net, clk := newTestManager(t, 2, 4)

	old := clk.Now().Add(-time.Minute)
	for i := 0; i < 6; i++ {
		net.add(peerN(i), old)
	}
	m.TagPeer(peerN(0), TagBootstrap, BootstrapWeight)
	m.Protect(peerN(1), "important")

	m.trim(context.Background(), false)

	assert.Equal(t, map[types.PeerID]bool{peerN(0): true, peerN(1): true}, net.peers())
}

func TestManager_GracePeriodNeverExceedsHighWater(t *testing.T) {
	m, net, clk := newTestManager(t, 2, 4)

	for i := 0; i < 6; i++ {
		net.add(peerN(i), clk.Now())
	}
	m.trim(context.Background(), false)
	assert.Equal(t, 4, m.ConnCount())

	// 保护期过后可以回收到低水位
	clk.Add(time.Minute)
	m.TrimOpenConns(context.Background())
	assert.Equal(t, 2, m.ConnCount())
}

func TestManager_NoTrimBelowHighWater(t *testing.T) {
	m, net, clk := newTestManager(t, 2, 4)

	for i := 0; i < 4; i++ {
		net.add(peerN(i), clk.Now().Add(-time.Minute))
	}
	m.trim(context.Background(), false)
	assert.Equal(t, 4, m.ConnCount())

	m.TrimOpenConns(context.Background())
	assert.Equal(t, 2, m.ConnCount())
}

func TestManager_MultipleConnsPerPeer(t *testing.T) {
	m, net, clk := newTestManager(t, 2, 3)

	old := clk.Now().Add(-time.Minute)
	net.add(peerN(0), old)
	net.add(peerN(0), old)
	net.add(peerN(1), old)
	net.add(peerN(2), old)
	m.TagPeer(peerN(1), TagDHT, DHTWeight)
	m.TagPeer(peerN(2), TagPubSubMesh, MeshWeight)

	m.trim(context.Background(), false)
	assert.Equal(t, map[types.PeerID]bool{peerN(1): true, peerN(2): true}, net.peers())
}

func TestManager_BackgroundTrim(t *testing.T) {
	var trims []int
	var mu sync.Mutex

	clk := clock.NewMock()
	net := &fakeNetwork{}
	m, err := New(DefaultConfig().WithLimits(2, 4), net, WithClock(clk), WithTrimHook(func(n int) {
		mu.Lock()
		trims = append(trims, n)
		mu.Unlock()
	}))
	require.NoError(t, err)
	require.NoError(t, m.Start())
	t.Cleanup(func() { _ = m.Close() })

	for i := 0; i < 6; i++ {
		net.add(peerN(i), clk.Now())
	}

	require.Eventually(t, func() bool {
		return m.ConnCount() <= 4
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.NotEmpty(t, trims)
}

func TestManager_TagsAndProtection(t *testing.T) {
	m, _, _ := newTestManager(t, 2, 4)
	p := peerN(7)

	m.TagPeer(p, "a", 3)
	m.TagPeer(p, "b", 4)
	assert.Equal(t, 7, m.TagValue(p))
	m.UntagPeer(p, "a")
	assert.Equal(t, 4, m.TagValue(p))

	m.Protect(p, "x")
	m.Protect(p, "y")
	assert.True(t, m.IsProtected(p, ""))
	assert.True(t, m.IsProtected(p, "x"))
	assert.True(t, m.Unprotect(p, "x"))
	assert.False(t, m.IsProtected(p, "x"))
	assert.False(t, m.Unprotect(p, "y"))
	assert.False(t, m.IsProtected(p, ""))
}

func TestManager_TagsDroppedOnDisconnect(t *testing.T) {
	m, net, _ := newTestManager(t, 2, 4)
	require.NoError(t, m.Start())
	p := peerN(3)

	net.add(p, time.Time{})
	net.add(p, time.Time{})
	m.TagPeer(p, TagDHT, DHTWeight)
	m.TagPeer(p, TagPubSubMesh, MeshWeight)
	m.TagPeer(p, TagBootstrap, BootstrapWeight)
	require.Equal(t, DHTWeight+MeshWeight+BootstrapWeight, m.TagValue(p))

	// 仍有一条连接，标签保留
	net.closeOne(p)
	assert.Equal(t, DHTWeight+MeshWeight+BootstrapWeight, m.TagValue(p))

	net.closeOne(p)
	assert.Equal(t, BootstrapWeight, m.TagValue(p))

	other := peerN(4)
	net.add(other, time.Time{})
	m.TagPeer(other, TagDHT, DHTWeight)
	net.closeOne(other)
	assert.Zero(t, m.TagValue(other))
}

func TestManager_Lifecycle(t *testing.T) {
	m, _, _ := newTestManager(t, 2, 4)
	require.NoError(t, m.Start())
	require.NoError(t, m.Start())
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
	assert.ErrorIs(t, m.Start(), ErrManagerClosed)
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
	assert.ErrorIs(t, DefaultConfig().WithLimits(5, 4).Validate(), ErrInvalidConfig)
	assert.ErrorIs(t, DefaultConfig().WithLimits(-1, 4).Validate(), ErrInvalidConfig)
	assert.ErrorIs(t, DefaultConfig().WithGracePeriod(-time.Second).Validate(), ErrInvalidConfig)

	_, err := New(DefaultConfig(), nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
