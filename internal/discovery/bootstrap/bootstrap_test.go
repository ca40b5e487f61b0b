package bootstrap

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/miekg/dns"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/dep2p/go-meshnode/internal/core/connmgr"
	"github.com/dep2p/go-meshnode/internal/core/host"
	"github.com/dep2p/go-meshnode/internal/core/host/hosttest"
	"github.com/dep2p/go-meshnode/internal/core/metrics"
	"github.com/dep2p/go-meshnode/internal/discovery/dnsaddr"
	pkgif "github.com/dep2p/go-meshnode/pkg/interfaces"
	ma "github.com/dep2p/go-meshnode/pkg/lib/multiaddr"
	"github.com/dep2p/go-meshnode/pkg/types"
)

// ============================================================================
//                              测试替身
// ============================================================================

type fakeConnMgr struct {
	pkgif.ConnManager

	mu    sync.Mutex
	tags  map[types.PeerID]string
	needs atomic.Bool
}

func newFakeConnMgr() *fakeConnMgr {
	return &fakeConnMgr{tags: make(map[types.PeerID]string)}
}

func (f *fakeConnMgr) TagPeer(p types.PeerID, tag string, _ int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tags[p] = tag
}

func (f *fakeConnMgr) tag(p types.PeerID) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tags[p]
}

func (f *fakeConnMgr) NeedsPeers() bool { return f.needs.Load() }

type fakeDHT struct {
	pkgif.DHT
	calls atomic.Int32
}

func (f *fakeDHT) Bootstrap(context.Context) error {
	f.calls.Add(1)
	return nil
}

func unreachablePeer() types.AddrInfo {
	return types.AddrInfo{
		ID:    types.PeerID{0x99},
		Addrs: []ma.Multiaddr{ma.StringCast("/ip4/127.0.0.1/tcp/1")},
	}
}

func testConfig(peers ...types.AddrInfo) Config {
	cfg := DefaultConfig()
	cfg.Peers = peers
	cfg.DialTimeout = 5 * time.Second
	cfg.RetryInterval = 0
	cfg.UsePersistedPeers = false
	return cfg
}

func newService(t *testing.T, h *host.Host, cfg Config, opts ...Option) *Service {
	t.Helper()
	s, err := New(h, cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func connected(h *host.Host, p types.PeerID) bool {
	return h.Network().Connectedness(p) == pkgif.Connected
}

// ============================================================================
//                              测试
// ============================================================================

func TestBootstrap_ToleratesFailures(t *testing.T) {
	a := hosttest.New(t)
	b := hosttest.New(t)
	c := hosttest.New(t)

	cm := newFakeConnMgr()
	d := &fakeDHT{}
	m := metrics.New()
	s := newService(t, a, testConfig(b.AddrInfo(), unreachablePeer(), c.AddrInfo()),
		WithConnManager(cm), WithDHT(d), WithMetrics(m))

	sub, err := a.EventBus().Subscribe(types.EventPeerDiscovered)
	require.NoError(t, err)
	defer sub.Close()

	n, err := s.Bootstrap(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, connected(a, b.ID()))
	assert.True(t, connected(a, c.ID()))

	assert.Equal(t, connmgr.TagBootstrap, cm.tag(b.ID()))
	assert.Equal(t, connmgr.TagBootstrap, cm.tag(c.ID()))
	assert.Equal(t, int32(1), d.calls.Load(), "DHT self-lookup after bootstrap")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Dials.WithLabelValues(metrics.DialSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Dials.WithLabelValues(metrics.DialFailure)))

	seen := map[types.PeerID]types.DiscoverySource{}
	for len(seen) < 2 {
		select {
		case evt := <-sub.Out():
			pd := evt.(types.PeerDiscovered)
			seen[pd.Info.ID] = pd.Source
		case <-time.After(2 * time.Second):
			t.Fatalf("got %d PeerDiscovered events, want 2", len(seen))
		}
	}
	assert.Equal(t, types.SourceBootstrap, seen[b.ID()])
	assert.Equal(t, types.SourceBootstrap, seen[c.ID()])
}

func TestBootstrap_AllFailed(t *testing.T) {
	a := hosttest.New(t)
	d := &fakeDHT{}
	s := newService(t, a, testConfig(unreachablePeer()), WithDHT(d))

	n, err := s.Bootstrap(context.Background())
	assert.ErrorIs(t, err, ErrAllDialsFailed)
	assert.Zero(t, n)
	assert.Zero(t, d.calls.Load())
}

func TestBootstrap_NoPeers(t *testing.T) {
	a := hosttest.New(t)
	s := newService(t, a, testConfig())

	_, err := s.Bootstrap(context.Background())
	assert.ErrorIs(t, err, ErrNoBootstrapPeers)
}

func TestBootstrap_AlreadyConnectedCounts(t *testing.T) {
	a := hosttest.New(t)
	b := hosttest.New(t)
	hosttest.Connect(t, a, b)

	m := metrics.New()
	s := newService(t, a, testConfig(b.AddrInfo()), WithMetrics(m))
	n, err := s.Bootstrap(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Zero(t, testutil.CollectAndCount(m.Dials), "no dial attempted")
}

func TestBootstrap_PersistedPeers(t *testing.T) {
	a := hosttest.New(t)
	b := hosttest.New(t)
	a.Peerstore().AddAddrs(b.ID(), b.Addrs(), pkgif.PermanentAddrTTL)

	cfg := testConfig()
	cfg.UsePersistedPeers = true
	cm := newFakeConnMgr()
	s := newService(t, a, cfg, WithConnManager(cm))

	sub, err := a.EventBus().Subscribe(types.EventPeerDiscovered)
	require.NoError(t, err)
	defer sub.Close()

	n, err := s.Bootstrap(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, connected(a, b.ID()))
	assert.Empty(t, cm.tag(b.ID()), "only configured bootstrap peers are tagged")

	select {
	case evt := <-sub.Out():
		pd := evt.(types.PeerDiscovered)
		assert.Equal(t, b.ID(), pd.Info.ID)
		assert.Equal(t, types.SourcePeerstore, pd.Source)
	case <-time.After(2 * time.Second):
		t.Fatal("no PeerDiscovered event")
	}
}

func TestBootstrap_DNSAddr(t *testing.T) {
	a := hosttest.New(t)
	b := hosttest.New(t)

	txt := dnsaddr.RecordPrefix + b.Addrs()[0].String() + "/p2p/" + b.ID().String()
	ns := startTXTServer(t, "_dnsaddr.boot.test.", txt)

	rcfg := dnsaddr.DefaultConfig()
	rcfg.Nameservers = []string{ns}
	rcfg.Timeout = 2 * time.Second
	r, err := dnsaddr.NewResolver(rcfg)
	require.NoError(t, err)

	cfg := testConfig()
	cfg.DNSAddrs = []ma.Multiaddr{ma.StringCast("/dnsaddr/boot.test")}
	s := newService(t, a, cfg, WithResolver(r))

	n, err := s.Bootstrap(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, connected(a, b.ID()))

	// 没有解析器时 /dnsaddr 条目被忽略
	s2 := newService(t, a, cfg)
	_, err = s2.Bootstrap(context.Background())
	assert.ErrorIs(t, err, ErrNoBootstrapPeers)
}

func TestService_RetriesWhenBelowMinPeers(t *testing.T) {
	a := hosttest.New(t)
	b := hosttest.New(t)

	clk := clock.NewMock()
	cfg := testConfig(b.AddrInfo())
	cfg.RetryInterval = 30 * time.Second
	s := newService(t, a, cfg, WithClock(clk))
	require.NoError(t, s.Start())

	require.Eventually(t, func() bool { return connected(a, b.ID()) }, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, a.Network().ClosePeer(b.ID()))
	require.Eventually(t, func() bool { return !connected(a, b.ID()) }, 5*time.Second, 20*time.Millisecond)

	require.Eventually(t, func() bool {
		clk.Add(cfg.RetryInterval)
		return connected(a, b.ID())
	}, 5*time.Second, 50*time.Millisecond)
}

func TestService_RetriesWhenConnManagerNeedsPeers(t *testing.T) {
	a := hosttest.New(t)
	b := hosttest.New(t)
	c := hosttest.New(t)

	clk := clock.NewMock()
	cm := newFakeConnMgr()
	cfg := testConfig(b.AddrInfo())
	cfg.RetryInterval = 30 * time.Second
	cfg.UsePersistedPeers = true
	s := newService(t, a, cfg, WithClock(clk), WithConnManager(cm))
	require.NoError(t, s.Start())
	require.Eventually(t, func() bool { return connected(a, b.ID()) }, 5*time.Second, 20*time.Millisecond)

	// 连接数满足 MinPeers，但连接管理器要求补充
	a.Peerstore().AddAddrs(c.ID(), c.Addrs(), pkgif.PermanentAddrTTL)
	cm.needs.Store(true)

	require.Eventually(t, func() bool {
		clk.Add(cfg.RetryInterval)
		return connected(a, c.ID())
	}, 5*time.Second, 50*time.Millisecond)
}

func TestService_CloseIsIdempotent(t *testing.T) {
	a := hosttest.New(t)
	s := newService(t, a, testConfig())
	require.NoError(t, s.Start())
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err := s.Bootstrap(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.Start(), ErrClosed)
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.Concurrency = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Peers = []types.AddrInfo{{ID: types.PeerID{1}}}
	assert.Error(t, cfg.Validate(), "peer without addresses")

	cfg = DefaultConfig()
	cfg.DNSAddrs = []ma.Multiaddr{ma.StringCast("/ip4/1.2.3.4/tcp/1")}
	assert.Error(t, cfg.Validate())
}

func TestModule(t *testing.T) {
	a := hosttest.New(t)
	b := hosttest.New(t)
	cfg := testConfig(b.AddrInfo())

	var bs pkgif.Bootstrapper
	app := fxtest.New(t,
		fx.Supply(a, &cfg),
		Module(),
		fx.Populate(&bs),
	)
	app.RequireStart()
	require.NotNil(t, bs)
	require.Eventually(t, func() bool { return connected(a, b.ID()) }, 5*time.Second, 20*time.Millisecond)
	app.RequireStop()
}

// startTXTServer 启动只应答一个 TXT 记录的本地 DNS 服务器
func startTXTServer(t *testing.T, name, txt string) string {
	t.Helper()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	started := make(chan struct{})
	srv := &dns.Server{
		PacketConn: pc,
		Handler: dns.HandlerFunc(func(w dns.ResponseWriter, req *dns.Msg) {
			resp := new(dns.Msg)
			resp.SetReply(req)
			if q := req.Question[0]; q.Name == name {
				resp.Answer = append(resp.Answer, &dns.TXT{
					Hdr: dns.RR_Header{Name: name, Rrtype: dns.TypeTXT, Class: dns.ClassINET, Ttl: 60},
					Txt: []string{txt},
				})
			} else {
				resp.SetRcode(req, dns.RcodeNameError)
			}
			_ = w.WriteMsg(resp)
		}),
		NotifyStartedFunc: func() { close(started) },
	}
	go func() { _ = srv.ActivateAndServe() }()
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("dns server did not start")
	}
	t.Cleanup(func() { _ = srv.Shutdown() })
	return pc.LocalAddr().String()
}
