package meshnode

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-meshnode/config"
	pkgif "github.com/dep2p/go-meshnode/pkg/interfaces"
	"github.com/dep2p/go-meshnode/pkg/protocolids"
	"github.com/dep2p/go-meshnode/pkg/types"
)

func fastPubSub() config.PubSubConfig {
	p := config.DefaultPubSubConfig()
	p.HeartbeatInterval = config.Duration(100 * time.Millisecond)
	return p
}

// newTestNode 启动监听回环地址的节点
func newTestNode(t *testing.T, opts ...Option) *Node {
	t.Helper()

	base := []Option{
		WithListenAddrs("/ip4/127.0.0.1/tcp/0"),
		WithPubSubParams(fastPubSub()),
	}
	n, err := Start(context.Background(), append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = n.Close() })
	return n
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 5*time.Second, 20*time.Millisecond, msg)
}

func containsPeer(peers []types.PeerID, p types.PeerID) bool {
	for _, q := range peers {
		if q == p {
			return true
		}
	}
	return false
}

// TestNode_SubscribeReceivesRemoteMessageOnce A 订阅、B 发布，A 的事件流恰好收到一次
func TestNode_SubscribeReceivesRemoteMessageOnce(t *testing.T) {
	const (
		topic   = "sub-test-123"
		payload = "hello from browser p2p"
	)
	a := newTestNode(t)
	b := newTestNode(t)

	events, err := a.Events(types.EventMessageReceived)
	require.NoError(t, err)
	defer events.Close()

	sub, err := a.Subscribe(topic)
	require.NoError(t, err)
	defer sub.Cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, b.Connect(ctx, a.ShareableAddrs()[0]))

	waitFor(t, func() bool { return containsPeer(b.TopicPeers(topic), a.ID()) },
		"B did not learn A's subscription")

	res, err := b.Publish(ctx, topic, []byte(payload))
	require.NoError(t, err)
	assert.Equal(t, 1, res.DeliveredToPeers)

	select {
	case evt := <-events.Out():
		got, ok := evt.(types.MessageReceived)
		require.True(t, ok)
		assert.Equal(t, topic, got.Topic)
		assert.Equal(t, []byte(payload), got.Data)
		assert.Equal(t, b.ID(), got.From)
		assert.Equal(t, b.ID(), got.ReceivedFrom)
	case <-time.After(5 * time.Second):
		t.Fatal("no MessageReceived event")
	}

	select {
	case evt := <-events.Out():
		t.Fatalf("unexpected second event: %v", evt.Type())
	case <-time.After(300 * time.Millisecond):
	}

	msg, err := sub.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte(payload), msg.Data)
}

// TestNode_PublishWithoutPeers 没有对端时发布不是错误，且本地订阅仍能收到
func TestNode_PublishWithoutPeers(t *testing.T) {
	n := newTestNode(t)

	sub, err := n.Subscribe("lonely")
	require.NoError(t, err)
	defer sub.Cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := n.Publish(ctx, "lonely", []byte("echo"))
	require.NoError(t, err)
	assert.Zero(t, res.DeliveredToPeers)

	msg, err := sub.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("echo"), msg.Data)
	assert.Equal(t, n.ID(), msg.From)
}

// TestNode_ConnectEmitsEventsAndPings 连接事件、Ping 与指标
func TestNode_ConnectEmitsEventsAndPings(t *testing.T) {
	reg := prometheus.NewRegistry()
	a := newTestNode(t, WithMetricsRegistry(reg))
	b := newTestNode(t)

	events, err := a.Events(types.EventConnectionOpened)
	require.NoError(t, err)
	defer events.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, a.ConnectPeer(ctx, b.AddrInfo()))

	select {
	case evt := <-events.Out():
		opened := evt.(types.ConnectionOpened)
		assert.Equal(t, b.ID(), opened.Peer)
	case <-time.After(5 * time.Second):
		t.Fatal("no ConnectionOpened event")
	}
	assert.Contains(t, a.Peers(), b.ID())

	rtt, err := a.Ping(ctx, b.ID())
	require.NoError(t, err)
	assert.Positive(t, rtt)

	got, err := a.MetricsRegistry()
	require.NoError(t, err)
	assert.Same(t, reg, got)
	n, err := testutil.GatherAndCount(reg, "meshnode_connections_open")
	require.NoError(t, err)
	assert.Positive(t, n)
}

// TestNode_AppProtocolStream 应用协议的回显流
func TestNode_AppProtocolStream(t *testing.T) {
	const echo types.ProtocolID = "/echo/1.0.0"
	a := newTestNode(t, WithoutDHT())
	b := newTestNode(t, WithoutDHT())

	require.ErrorIs(t, b.SetStreamHandler(protocolids.PubSub, func(pkgif.Stream) {}), protocolids.ErrReservedProtocol)
	require.NoError(t, b.SetStreamHandler(echo, func(s pkgif.Stream) {
		defer s.Close()
		_, _ = io.Copy(s, s)
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, a.ConnectPeer(ctx, b.AddrInfo()))

	s, err := a.NewStream(ctx, b.ID(), echo)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Write([]byte("ping"))
	require.NoError(t, err)
	require.NoError(t, s.CloseWrite())

	got, err := io.ReadAll(s)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(got))
}

// TestNode_DHTFindsPeerThroughIntermediate 通过中间节点的路由表找到未直连的节点
func TestNode_DHTFindsPeerThroughIntermediate(t *testing.T) {
	hub := newTestNode(t)
	a := newTestNode(t, WithBootstrapPeers(hub.ShareableAddrs()...))
	c := newTestNode(t, WithBootstrapPeers(hub.ShareableAddrs()...))

	waitFor(t, func() bool { return hub.RoutingTableSize() >= 2 }, "hub routing table not populated")
	waitFor(t, func() bool { return a.RoutingTableSize() >= 1 }, "a routing table empty")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	info, err := a.FindPeer(ctx, c.ID())
	require.NoError(t, err)
	assert.Equal(t, c.ID(), info.ID)
	assert.NotEmpty(t, info.Addrs)

	res, err := a.FindClosestPeers(ctx, c.ID())
	require.NoError(t, err)
	assert.True(t, res.Contains(c.ID()))
}

// TestNode_Lifecycle 生命周期错误
func TestNode_Lifecycle(t *testing.T) {
	n, err := New(context.Background(), WithListenAddrs("/ip4/127.0.0.1/tcp/0"), WithoutDHT(), WithoutMetrics())
	require.NoError(t, err)
	assert.False(t, n.ID().IsEmpty(), "identity available before start")

	_, err = n.Subscribe("early")
	assert.ErrorIs(t, err, ErrNotStarted)

	_, err = n.FindPeer(context.Background(), n.ID())
	assert.ErrorIs(t, err, ErrNotStarted)

	require.NoError(t, n.Start(context.Background()))
	assert.ErrorIs(t, n.Start(context.Background()), ErrAlreadyStarted)

	_, err = n.FindPeer(context.Background(), n.ID())
	assert.ErrorIs(t, err, ErrDHTDisabled)
	_, err = n.MetricsRegistry()
	assert.ErrorIs(t, err, ErrMetricsDisabled)

	_, err = n.Bootstrap(context.Background())
	assert.ErrorIs(t, err, ErrNoBootstrapPeers)

	stopped, err := n.Events(types.EventNodeStopped)
	require.NoError(t, err)

	require.NoError(t, n.Close())
	require.NoError(t, n.Close())
	assert.ErrorIs(t, n.Start(context.Background()), ErrNodeClosed)

	select {
	case evt, ok := <-stopped.Out():
		require.True(t, ok)
		assert.Equal(t, n.ID(), evt.(types.NodeStopped).ID)
	case <-time.After(time.Second):
		t.Fatal("no NodeStopped event")
	}
}

// TestNode_PersistentIdentity 相同密钥文件得到相同 PeerID
func TestNode_PersistentIdentity(t *testing.T) {
	dir := t.TempDir()
	keyFile := filepath.Join(dir, "node.key")

	first, err := New(context.Background(), WithIdentityKeyFile(keyFile))
	require.NoError(t, err)
	second, err := New(context.Background(), WithIdentityKeyFile(keyFile))
	require.NoError(t, err)
	assert.Equal(t, first.ID(), second.ID())

	other, err := New(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, first.ID(), other.ID())
}

// TestNode_DataDir 配置数据目录时启用 Badger 持久化
func TestNode_DataDir(t *testing.T) {
	n := newTestNode(t, WithDataDir(t.TempDir()), WithoutDHT())
	assert.NotEmpty(t, n.Addrs())
	require.NoError(t, n.Close())
}

// TestOptions_Validation 无效选项在 New 时报错
func TestOptions_Validation(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
	}{
		{"ListenAddr", WithListenAddrs("0.0.0.0:4001")},
		{"Bootstrap", WithBootstrapPeers("/ip4/1.2.3.4/tcp/4001")},
		{"Limits", WithConnectionLimits(10, 5)},
		{"DHTMode", WithDHTMode(types.DHTMode(9))},
		{"PubSub", WithPubSubParams(config.PubSubConfig{})},
		{"KeyFile", WithIdentityKeyFile("")},
		{"DataDir", WithDataDir("")},
		{"Registry", WithMetricsRegistry(nil)},
		{"Config", WithConfig(nil)},
		{"PrivateKey", WithPrivateKey(nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(context.Background(), tt.opt)
			assert.Error(t, err)
		})
	}

	t.Run("InvalidConfig", func(t *testing.T) {
		cfg := config.NewConfig()
		cfg.ConnMgr.LowWater = 50
		_, err := New(context.Background(), WithConfig(cfg))
		require.Error(t, err)
		assert.False(t, errors.Is(err, ErrNotStarted))
	})
}

// TestWithConfig 完整配置经转换后生效
func TestWithConfig(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Transport.ListenAddrs = []string{"/ip4/127.0.0.1/tcp/0", "/ip4/127.0.0.1/tcp/0/ws"}
	cfg.Transport.EnableWebSocket = false
	cfg.ConnMgr.LowWater = 2
	cfg.ConnMgr.HighWater = 3
	cfg.Discovery.DHT.Mode = "client"

	n, err := New(context.Background(), WithConfig(cfg), WithConnectionLimits(1, 4))
	require.NoError(t, err)
	require.NoError(t, n.Start(context.Background()))
	defer n.Close()

	low, high := n.ConnectionLimits()
	assert.Equal(t, 1, low)
	assert.Equal(t, 4, high)

	// WebSocket 未启用，/ws 地址被跳过
	require.Len(t, n.Addrs(), 1)
	assert.Equal(t, 2, cfg.ConnMgr.LowWater, "caller's config is not modified")
}
