package dnsaddr

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ma "github.com/dep2p/go-meshnode/pkg/lib/multiaddr"
	"github.com/dep2p/go-meshnode/pkg/types"
)

// testZone 本地 UDP DNS 服务器，按 FQDN 返回 TXT 记录
type testZone struct {
	records map[string][]string
	queries atomic.Int32
	addr    string
}

func startZone(t *testing.T, records map[string][]string) *testZone {
	t.Helper()

	z := &testZone{records: make(map[string][]string)}
	for name, txts := range records {
		z.records[dns.Fqdn(name)] = txts
	}

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	z.addr = pc.LocalAddr().String()

	started := make(chan struct{})
	srv := &dns.Server{
		PacketConn:        pc,
		Handler:           dns.HandlerFunc(z.serve),
		NotifyStartedFunc: func() { close(started) },
	}
	go func() { _ = srv.ActivateAndServe() }()
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("dns server did not start")
	}
	t.Cleanup(func() { _ = srv.Shutdown() })
	return z
}

func (z *testZone) serve(w dns.ResponseWriter, req *dns.Msg) {
	z.queries.Add(1)
	resp := new(dns.Msg)
	resp.SetReply(req)

	name := req.Question[0].Name
	txts, ok := z.records[name]
	if !ok {
		resp.SetRcode(req, dns.RcodeNameError)
		_ = w.WriteMsg(resp)
		return
	}
	for _, txt := range txts {
		resp.Answer = append(resp.Answer, &dns.TXT{
			Hdr: dns.RR_Header{Name: name, Rrtype: dns.TypeTXT, Class: dns.ClassINET, Ttl: 60},
			Txt: []string{txt},
		})
	}
	_ = w.WriteMsg(resp)
}

func newTestResolver(t *testing.T, z *testZone, mutate func(*Config)) *Resolver {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Nameservers = []string{z.addr}
	cfg.Timeout = 2 * time.Second
	if mutate != nil {
		mutate(&cfg)
	}
	r, err := NewResolver(cfg)
	require.NoError(t, err)
	return r
}

var (
	peerA = types.PeerID{0xa}
	peerB = types.PeerID{0xb}
	peerC = types.PeerID{0xc}
)

func record(addr string, p types.PeerID) string {
	return RecordPrefix + addr + "/p2p/" + p.String()
}

func TestResolve_Flat(t *testing.T) {
	z := startZone(t, map[string][]string{
		"_dnsaddr.boot.test": {
			record("/ip4/10.0.0.1/tcp/4001", peerA),
			record("/ip4/10.0.0.1/tcp/4002/ws", peerA),
			record("/ip4/10.0.0.2/tcp/4001", peerB),
			"not-a-dnsaddr-record",
			RecordPrefix + "/ip4/10.0.0.3/tcp/4001",
		},
	})
	r := newTestResolver(t, z, nil)

	infos, err := r.Resolve(context.Background(), ma.StringCast("/dnsaddr/boot.test"))
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, peerA, infos[0].ID)
	assert.Len(t, infos[0].Addrs, 2)
	assert.Equal(t, peerB, infos[1].ID)
	assert.Equal(t, "/ip4/10.0.0.2/tcp/4001", infos[1].Addrs[0].String())
}

func TestResolve_FilterByPeer(t *testing.T) {
	z := startZone(t, map[string][]string{
		"_dnsaddr.boot.test": {
			record("/ip4/10.0.0.1/tcp/4001", peerA),
			record("/ip4/10.0.0.2/tcp/4001", peerB),
		},
	})
	r := newTestResolver(t, z, nil)

	infos, err := r.Resolve(context.Background(), ma.StringCast("/dnsaddr/boot.test/p2p/"+peerB.String()))
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, peerB, infos[0].ID)

	_, err = r.Resolve(context.Background(), ma.StringCast("/dnsaddr/boot.test/p2p/"+peerC.String()))
	assert.ErrorIs(t, err, ErrNoRecords)
}

func TestResolve_Nested(t *testing.T) {
	z := startZone(t, map[string][]string{
		"_dnsaddr.boot.test": {
			RecordPrefix + "/dnsaddr/eu.boot.test",
			record("/ip4/10.0.0.1/tcp/4001", peerA),
		},
		"_dnsaddr.eu.boot.test": {
			record("/ip4/10.1.0.1/tcp/4001", peerC),
		},
	})
	r := newTestResolver(t, z, nil)

	infos, err := r.Resolve(context.Background(), ma.StringCast("/dnsaddr/boot.test"))
	require.NoError(t, err)
	ids := []types.PeerID{}
	for _, info := range infos {
		ids = append(ids, info.ID)
	}
	assert.ElementsMatch(t, []types.PeerID{peerA, peerC}, ids)
}

func TestResolve_DepthLimit(t *testing.T) {
	chain := map[string][]string{
		"_dnsaddr.l1.test": {RecordPrefix + "/dnsaddr/l2.test"},
		"_dnsaddr.l2.test": {RecordPrefix + "/dnsaddr/l3.test"},
		"_dnsaddr.l3.test": {RecordPrefix + "/dnsaddr/l4.test"},
		"_dnsaddr.l4.test": {record("/ip4/10.0.0.4/tcp/4001", peerA)},
	}
	z := startZone(t, chain)
	r := newTestResolver(t, z, nil)

	// 四层以内可以解析
	infos, err := r.Resolve(context.Background(), ma.StringCast("/dnsaddr/l1.test"))
	require.NoError(t, err)
	assert.Equal(t, peerA, infos[0].ID)

	// 深度 3 不够
	r3 := newTestResolver(t, z, func(c *Config) {
		c.MaxDepth = 3
		c.CacheTTL = 0
	})
	_, err = r3.Resolve(context.Background(), ma.StringCast("/dnsaddr/l1.test"))
	assert.ErrorIs(t, err, ErrMaxDepthExceeded)
}

func TestResolve_NXDomain(t *testing.T) {
	z := startZone(t, nil)
	r := newTestResolver(t, z, nil)

	_, err := r.Resolve(context.Background(), ma.StringCast("/dnsaddr/missing.test"))
	assert.ErrorIs(t, err, ErrNoRecords)
}

func TestResolve_Cache(t *testing.T) {
	z := startZone(t, map[string][]string{
		"_dnsaddr.boot.test": {record("/ip4/10.0.0.1/tcp/4001", peerA)},
	})
	r := newTestResolver(t, z, nil)

	for i := 0; i < 3; i++ {
		_, err := r.Resolve(context.Background(), ma.StringCast("/dnsaddr/boot.test"))
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), z.queries.Load())

	nocache := newTestResolver(t, z, func(c *Config) { c.CacheTTL = 0 })
	_, err := nocache.Resolve(context.Background(), ma.StringCast("/dnsaddr/boot.test"))
	require.NoError(t, err)
	assert.Equal(t, int32(2), z.queries.Load())
}

func TestResolve_NotDNSAddr(t *testing.T) {
	z := startZone(t, nil)
	r := newTestResolver(t, z, nil)

	_, err := r.Resolve(context.Background(), ma.StringCast("/ip4/1.2.3.4/tcp/1"))
	assert.ErrorIs(t, err, ErrNotDNSAddr)
}

func TestResolveAll_Partial(t *testing.T) {
	z := startZone(t, map[string][]string{
		"_dnsaddr.boot.test": {record("/ip4/10.0.0.1/tcp/4001", peerA)},
	})
	r := newTestResolver(t, z, nil)

	infos, err := r.ResolveAll(context.Background(), []ma.Multiaddr{
		ma.StringCast("/dnsaddr/boot.test"),
		ma.StringCast("/dnsaddr/missing.test"),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoRecords)
	require.Len(t, infos, 1)
	assert.Equal(t, peerA, infos[0].ID)
}

func TestParseRecord(t *testing.T) {
	a, err := ParseRecord(record("/ip4/1.2.3.4/tcp/4001", peerA))
	require.NoError(t, err)
	assert.True(t, ma.HasProtocol(a, ma.P_P2P))

	for _, bad := range []string{"", "dnsaddr=", "foo=/ip4/1.2.3.4", "dnsaddr=/nope/1"} {
		_, err := ParseRecord(bad)
		assert.ErrorIs(t, err, ErrInvalidRecord, bad)
	}

	assert.Equal(t, "_dnsaddr.boot.test", queryName("boot.test."))
	assert.Equal(t, "_dnsaddr.boot.test", queryName("_dnsaddr.boot.test"))
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.MaxDepth = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Timeout = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.ResolvConf = ""
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.CacheSize = 0
	assert.Error(t, cfg.Validate())
}
