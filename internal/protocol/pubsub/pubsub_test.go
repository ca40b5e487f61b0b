package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/dep2p/go-meshnode/internal/core/host"
	"github.com/dep2p/go-meshnode/internal/core/host/hosttest"
	"github.com/dep2p/go-meshnode/internal/core/metrics"
	pkgif "github.com/dep2p/go-meshnode/pkg/interfaces"
	pb "github.com/dep2p/go-meshnode/pkg/lib/proto/gossipsub"
	"github.com/dep2p/go-meshnode/pkg/types"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.HeartbeatInterval = 50 * time.Millisecond
	cfg.HeartbeatInitialDelay = 10 * time.Millisecond
	return cfg
}

func newTestPubSub(t *testing.T, cfg Config, opts ...Option) (*host.Host, *PubSub) {
	t.Helper()

	h, id := hosttest.NewWithIdentity(t)
	ps, err := New(h, id.PrivateKey(), cfg, opts...)
	require.NoError(t, err)
	require.NoError(t, ps.Start())
	t.Cleanup(func() { _ = ps.Close() })
	return h, ps
}

func waitTopicPeers(t *testing.T, ps *PubSub, topic string, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(ps.ListPeers(topic)) == n
	}, 5*time.Second, 20*time.Millisecond)
}

func waitMeshPeers(t *testing.T, ps *PubSub, topic string, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(ps.MeshPeers(topic)) == n
	}, 5*time.Second, 20*time.Millisecond)
}

func nextMessage(t *testing.T, sub pkgif.TopicSubscription) *types.Message {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	msg, err := sub.Next(ctx)
	require.NoError(t, err)
	return msg
}

func requireNoMessage(t *testing.T, sub pkgif.TopicSubscription) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	msg, err := sub.Next(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded, "unexpected message %v", msg)
}

func TestPubSub_DeliversRemoteMessageOnce(t *testing.T) {
	ha, a := newTestPubSub(t, testConfig())
	hb, b := newTestPubSub(t, testConfig())
	hosttest.Connect(t, ha, hb)

	const topic = "sub-test-123"
	events, err := ha.EventBus().Subscribe(types.EventMessageReceived)
	require.NoError(t, err)
	defer events.Close()

	sub, err := a.Subscribe(topic)
	require.NoError(t, err)
	defer sub.Cancel()
	waitTopicPeers(t, b, topic, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := b.Publish(ctx, topic, []byte("hello from browser p2p"))
	require.NoError(t, err)
	assert.Equal(t, 1, res.DeliveredToPeers)

	msg := nextMessage(t, sub)
	assert.Equal(t, hb.ID(), msg.From)
	assert.Equal(t, topic, msg.Topic)
	assert.Equal(t, []byte("hello from browser p2p"), msg.Data)
	requireNoMessage(t, sub)

	select {
	case evt := <-events.Out():
		received, ok := evt.(types.MessageReceived)
		require.True(t, ok)
		assert.Equal(t, hb.ID(), received.From)
		assert.Equal(t, hb.ID(), received.ReceivedFrom)
		assert.Equal(t, topic, received.Topic)
	case <-time.After(5 * time.Second):
		t.Fatal("no MessageReceived event")
	}
}

func TestPubSub_LoopbackDeliveredOnce(t *testing.T) {
	ha, a := newTestPubSub(t, testConfig())

	sub, err := a.Subscribe("loopback")
	require.NoError(t, err)
	defer sub.Cancel()

	ctx := context.Background()
	res, err := a.Publish(ctx, "loopback", []byte("self"))
	require.NoError(t, err)
	assert.Equal(t, 0, res.DeliveredToPeers)

	msg := nextMessage(t, sub)
	assert.Equal(t, ha.ID(), msg.From)
	assert.Equal(t, []byte("self"), msg.Data)
	assert.NotEmpty(t, msg.Signature)

	// 重复发布同一消息不会再次投递到本地
	_, err = a.PublishMessage(ctx, msg)
	require.NoError(t, err)
	requireNoMessage(t, sub)
}

func TestPubSub_DuplicatePublishFiresOncePerSubscriber(t *testing.T) {
	m := metrics.New()
	ha, a := newTestPubSub(t, testConfig())
	hb, b := newTestPubSub(t, testConfig(), WithMetrics(m))
	hc, c := newTestPubSub(t, testConfig())
	hosttest.ConnectAll(t, ha, hb, hc)

	const topic = "dup-test"
	var subs []pkgif.TopicSubscription
	for _, ps := range []*PubSub{a, b, c} {
		sub, err := ps.Subscribe(topic)
		require.NoError(t, err)
		defer sub.Cancel()
		subs = append(subs, sub)
	}
	for _, ps := range []*PubSub{a, b, c} {
		waitTopicPeers(t, ps, topic, 2)
		waitMeshPeers(t, ps, topic, 2)
	}

	msg, err := a.newMessage(topic, []byte("once"))
	require.NoError(t, err)

	ctx := context.Background()
	for range 3 {
		res, err := a.PublishMessage(ctx, msg)
		require.NoError(t, err)
		assert.Equal(t, 2, res.DeliveredToPeers)
	}

	for _, sub := range subs {
		got := nextMessage(t, sub)
		assert.Equal(t, msg.ID(), got.ID())
		assert.Equal(t, ha.ID(), got.From)
	}
	for _, sub := range subs {
		requireNoMessage(t, sub)
	}

	// b 至少收到 a 的两次重复发布
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(m.Duplicates) >= 2
	}, 5*time.Second, 20*time.Millisecond)
}

func TestPubSub_ForwardsThroughMesh(t *testing.T) {
	ha, a := newTestPubSub(t, testConfig())
	hb, b := newTestPubSub(t, testConfig())
	hc, c := newTestPubSub(t, testConfig())

	// 链式拓扑：a - b - c
	hosttest.Connect(t, ha, hb)
	hosttest.Connect(t, hb, hc)

	const topic = "chain"
	subB, err := b.Subscribe(topic)
	require.NoError(t, err)
	defer subB.Cancel()
	subC, err := c.Subscribe(topic)
	require.NoError(t, err)
	defer subC.Cancel()
	_, err = a.Subscribe(topic)
	require.NoError(t, err)

	waitMeshPeers(t, b, topic, 2)
	waitTopicPeers(t, a, topic, 1)

	_, err = a.Publish(context.Background(), topic, []byte("relay"))
	require.NoError(t, err)

	assert.Equal(t, []byte("relay"), nextMessage(t, subB).Data)
	got := nextMessage(t, subC)
	assert.Equal(t, ha.ID(), got.From)
	requireNoMessage(t, subC)
}

func TestPubSub_PublishZeroPeers(t *testing.T) {
	_, a := newTestPubSub(t, testConfig())

	res, err := a.Publish(context.Background(), "nobody", []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, types.PublishResult{DeliveredToPeers: 0}, res)

	cfg := testConfig()
	cfg.AllowPublishToZeroPeers = false
	_, strict := newTestPubSub(t, cfg)
	_, err = strict.Publish(context.Background(), "nobody", []byte("x"))
	assert.ErrorIs(t, err, ErrNoPeers)
}

// TestPubSub_LateRPCFromDisconnectedPeer 连接关闭后才处理完的 RPC 不会让节点重新出现
func TestPubSub_LateRPCFromDisconnectedPeer(t *testing.T) {
	const topic = "late"
	ha, a := newTestPubSub(t, testConfig())
	hb, b := newTestPubSub(t, testConfig())

	subA, err := a.Subscribe(topic)
	require.NoError(t, err)
	defer subA.Cancel()
	subB, err := b.Subscribe(topic)
	require.NoError(t, err)
	defer subB.Cancel()

	hosttest.Connect(t, ha, hb)
	waitTopicPeers(t, a, topic, 1)

	require.NoError(t, b.Close())
	require.NoError(t, ha.Network().ClosePeer(hb.ID()))
	waitTopicPeers(t, a, topic, 0)

	late := &pb.RPC{Subscriptions: []*pb.SubOpts{{Subscribe: true, TopicId: topic}}}
	a.handleRPC(hb.ID(), late)
	a.handleRPC(types.PeerID{0xcd, 0x01}, late)
	a.heartbeat()

	assert.Empty(t, a.ListPeers(topic))
	assert.Empty(t, a.MeshPeers(topic))

	res, err := a.Publish(context.Background(), topic, []byte("after"))
	require.NoError(t, err)
	assert.Zero(t, res.DeliveredToPeers)

	a.mu.Lock()
	assert.Empty(t, a.peers)
	a.mu.Unlock()
}

func TestPubSub_PublishValidation(t *testing.T) {
	cfg := testConfig()
	cfg.MaxMessageSize = 16
	_, a := newTestPubSub(t, cfg)

	_, err := a.Publish(context.Background(), "big", make([]byte, 17))
	assert.ErrorIs(t, err, ErrMessageTooLarge)

	_, err = a.Publish(context.Background(), "", []byte("x"))
	assert.ErrorIs(t, err, ErrEmptyTopic)

	_, err = a.Subscribe("")
	assert.ErrorIs(t, err, ErrEmptyTopic)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = a.Publish(ctx, "cancelled", []byte("x"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPubSub_CannotSignForOthers(t *testing.T) {
	_, a := newTestPubSub(t, testConfig())

	msg := &types.Message{From: types.PeerID{1}, Topic: "t", Seqno: 1, Data: []byte("x")}
	_, err := a.PublishMessage(context.Background(), msg)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestPubSub_Unsubscribe(t *testing.T) {
	ha, a := newTestPubSub(t, testConfig())
	hb, b := newTestPubSub(t, testConfig())
	hosttest.Connect(t, ha, hb)

	const topic = "leave"
	subA, err := a.Subscribe(topic)
	require.NoError(t, err)
	subB, err := b.Subscribe(topic)
	require.NoError(t, err)
	defer subB.Cancel()

	waitMeshPeers(t, b, topic, 1)
	assert.Equal(t, []string{topic}, a.Topics())

	subA.Cancel()
	subA.Cancel()

	assert.Empty(t, a.Topics())
	assert.Empty(t, a.MeshPeers(topic))
	require.Eventually(t, func() bool {
		return len(b.ListPeers(topic)) == 0 && len(b.MeshPeers(topic)) == 0
	}, 5*time.Second, 20*time.Millisecond)
	assert.Empty(t, b.ListPeers(""))

	_, err = subA.Next(context.Background())
	assert.ErrorIs(t, err, ErrSubscriptionCancelled)
}

func TestPubSub_MultipleSubscriptionsShareTopic(t *testing.T) {
	_, a := newTestPubSub(t, testConfig())

	s1, err := a.Subscribe("shared")
	require.NoError(t, err)
	s2, err := a.Subscribe("shared")
	require.NoError(t, err)
	defer s2.Cancel()

	_, err = a.Publish(context.Background(), "shared", []byte("both"))
	require.NoError(t, err)
	assert.Equal(t, []byte("both"), nextMessage(t, s1).Data)
	assert.Equal(t, []byte("both"), nextMessage(t, s2).Data)

	s1.Cancel()
	assert.Equal(t, []string{"shared"}, a.Topics())
}

func TestPubSub_NewSubscriberLearnsExistingTopics(t *testing.T) {
	ha, a := newTestPubSub(t, testConfig())
	hb, b := newTestPubSub(t, testConfig())

	sub, err := a.Subscribe("early")
	require.NoError(t, err)
	defer sub.Cancel()

	// 连接建立后 b 通过订阅快照得知 a 的主题
	hosttest.Connect(t, hb, ha)
	waitTopicPeers(t, b, "early", 1)
	assert.Equal(t, []types.PeerID{ha.ID()}, b.ListPeers("early"))
}

func TestPubSub_Close(t *testing.T) {
	h, id := hosttest.NewWithIdentity(t)
	ps, err := New(h, id.PrivateKey(), testConfig())
	require.NoError(t, err)
	require.NoError(t, ps.Start())

	sub, err := ps.Subscribe("closing")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		_ = ps.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return")
	}

	require.NoError(t, ps.Close())
	assert.NotContains(t, h.Protocols(), ProtocolID)
	_, err = sub.Next(context.Background())
	assert.ErrorIs(t, err, ErrSubscriptionCancelled)
	_, err = ps.Subscribe("again")
	assert.ErrorIs(t, err, ErrClosed)
	_, err = ps.Publish(context.Background(), "again", nil)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, ps.Start(), ErrClosed)
}

func TestNew_RequiresKeyWhenSigning(t *testing.T) {
	h := hosttest.New(t)

	_, err := New(h, nil, DefaultConfig())
	assert.Error(t, err)

	cfg := DefaultConfig()
	cfg.SignMessages = false
	_, err = New(h, nil, cfg)
	assert.NoError(t, err)
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"zero D", func(c *Config) { c.D = 0 }},
		{"Dlo above D", func(c *Config) { c.Dlo = c.D + 1 }},
		{"Dhi below D", func(c *Config) { c.Dhi = c.D - 1 }},
		{"zero heartbeat", func(c *Config) { c.HeartbeatInterval = 0 }},
		{"gossip exceeds history", func(c *Config) { c.HistoryGossip = c.HistoryLength + 1 }},
		{"message larger than frame", func(c *Config) { c.MaxMessageSize = maxRPCSize + 1 }},
		{"rate without burst", func(c *Config) { c.InboundRPCBurst = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestModule(t *testing.T) {
	h, id := hosttest.NewWithIdentity(t)

	var ps *PubSub
	var svc pkgif.PubSub
	app := fxtest.New(t,
		fx.Supply(h, id),
		Module(),
		fx.Populate(&ps, &svc),
	)
	app.RequireStart()

	assert.Same(t, ps, svc.(*PubSub))
	assert.Contains(t, h.Protocols(), ProtocolID)

	app.RequireStop()
	assert.NotContains(t, h.Protocols(), ProtocolID)
}
