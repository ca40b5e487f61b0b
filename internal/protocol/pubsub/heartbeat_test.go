package pubsub

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-meshnode/internal/core/connmgr"
	"github.com/dep2p/go-meshnode/internal/core/host/hosttest"
	pkgif "github.com/dep2p/go-meshnode/pkg/interfaces"
	pb "github.com/dep2p/go-meshnode/pkg/lib/proto/gossipsub"
	"github.com/dep2p/go-meshnode/pkg/types"
)

// fakeConnMgr 只记录 mesh 标签
type fakeConnMgr struct {
	pkgif.ConnManager

	mu   sync.Mutex
	tags map[types.PeerID]int
}

func (f *fakeConnMgr) TagPeer(p types.PeerID, tag string, weight int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if tag == connmgr.TagPubSubMesh {
		f.tags[p] = weight
	}
}

func (f *fakeConnMgr) UntagPeer(p types.PeerID, tag string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if tag == connmgr.TagPubSubMesh {
		delete(f.tags, p)
	}
}

func (f *fakeConnMgr) tagged() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tags)
}

// newIdlePubSub 创建未启动的服务，由测试直接驱动心跳
func newIdlePubSub(t *testing.T, opts ...Option) *PubSub {
	t.Helper()

	h, id := hosttest.NewWithIdentity(t)
	ps, err := New(h, id.PrivateKey(), DefaultConfig(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ps.Close() })
	return ps
}

// addQueuedPeers 加入订阅了 topic 的节点，RPC 留在队列中供检查
func addQueuedPeers(ps *PubSub, topic string, n int) []*peerState {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	var out []*peerState
	for i := range n {
		p := types.PeerID{0xab, byte(len(ps.peers)), byte(i)}
		st := &peerState{
			id:     p,
			topics: map[string]struct{}{topic: {}},
			queue:  make(chan *pb.RPC, 64),
			ctx:    ps.ctx,
			cancel: func() {},
		}
		ps.peers[p] = st
		out = append(out, st)
	}
	return out
}

// drain 取出节点队列中全部控制指令
func drain(st *peerState) *pb.ControlMessage {
	out := &pb.ControlMessage{}
	for {
		select {
		case rpc := <-st.queue:
			if c := rpc.Control; c != nil {
				out.Graft = append(out.Graft, c.Graft...)
				out.Prune = append(out.Prune, c.Prune...)
				out.Ihave = append(out.Ihave, c.Ihave...)
				out.Iwant = append(out.Iwant, c.Iwant...)
			}
		default:
			return out
		}
	}
}

func TestSubscribe_JoinGraftsUpToD(t *testing.T) {
	ps := newIdlePubSub(t)
	peers := addQueuedPeers(ps, "join", 10)

	sub, err := ps.Subscribe("join")
	require.NoError(t, err)
	defer sub.Cancel()

	mesh := ps.MeshPeers("join")
	assert.Len(t, mesh, ps.cfg.D)

	grafts := 0
	for _, st := range peers {
		c := drain(st)
		if ps.mesh.inMesh("join", st.id) {
			require.Len(t, c.Graft, 1)
			assert.Equal(t, "join", c.Graft[0].TopicId)
			grafts++
		} else {
			assert.Empty(t, c.Graft)
		}
	}
	assert.Equal(t, ps.cfg.D, grafts)
}

func TestHeartbeat_GraftsBelowDlo(t *testing.T) {
	cm := &fakeConnMgr{tags: make(map[types.PeerID]int)}
	ps := newIdlePubSub(t, WithConnManager(cm))

	sub, err := ps.Subscribe("grow")
	require.NoError(t, err)
	defer sub.Cancel()
	require.Empty(t, ps.MeshPeers("grow"))

	peers := addQueuedPeers(ps, "grow", 10)
	ps.heartbeat()

	assert.Len(t, ps.MeshPeers("grow"), ps.cfg.D)
	assert.Equal(t, ps.cfg.D, cm.tagged())

	grafts := 0
	for _, st := range peers {
		grafts += len(drain(st).Graft)
	}
	assert.Equal(t, ps.cfg.D, grafts)

	// 已在 [Dlo, Dhi] 内，不再变化
	ps.heartbeat()
	assert.Len(t, ps.MeshPeers("grow"), ps.cfg.D)
}

func TestHeartbeat_PrunesAboveDhi(t *testing.T) {
	cm := &fakeConnMgr{tags: make(map[types.PeerID]int)}
	ps := newIdlePubSub(t, WithConnManager(cm))

	sub, err := ps.Subscribe("shrink")
	require.NoError(t, err)
	defer sub.Cancel()

	peers := addQueuedPeers(ps, "shrink", 20)
	ps.mu.Lock()
	for _, st := range peers {
		ps.mesh.add("shrink", st.id)
		ps.tagMeshLocked(st.id)
	}
	ps.mu.Unlock()
	require.Len(t, ps.MeshPeers("shrink"), 20)

	ps.heartbeat()

	assert.Len(t, ps.MeshPeers("shrink"), ps.cfg.D)
	assert.Equal(t, ps.cfg.D, cm.tagged())

	now := ps.clock.Now()
	pruned := 0
	for _, st := range peers {
		c := drain(st)
		if len(c.Prune) == 0 {
			continue
		}
		pruned++
		assert.Equal(t, backoffSeconds(ps.cfg.PruneBackoff), c.Prune[0].Backoff)
		ps.mu.Lock()
		assert.True(t, ps.mesh.backedOff("shrink", st.id, now))
		ps.mu.Unlock()
	}
	assert.Equal(t, 20-ps.cfg.D, pruned)
}

func TestHeartbeat_RespectsBackoff(t *testing.T) {
	clk := clock.NewMock()
	ps := newIdlePubSub(t, WithClock(clk))

	sub, err := ps.Subscribe("backoff")
	require.NoError(t, err)
	defer sub.Cancel()

	peers := addQueuedPeers(ps, "backoff", 3)
	ps.mu.Lock()
	for _, st := range peers {
		ps.handlePruneLocked(st.id, []*pb.ControlPrune{{TopicId: "backoff"}})
	}
	ps.mu.Unlock()

	ps.heartbeat()
	assert.Empty(t, ps.MeshPeers("backoff"))

	clk.Add(ps.cfg.PruneBackoff + time.Second)
	ps.heartbeat()
	assert.Len(t, ps.MeshPeers("backoff"), 3)
}

func TestHeartbeat_EmitsGossipToNonMeshPeers(t *testing.T) {
	ps := newIdlePubSub(t)

	sub, err := ps.Subscribe("gossip")
	require.NoError(t, err)
	defer sub.Cancel()

	peers := addQueuedPeers(ps, "gossip", ps.cfg.D+2)
	ps.heartbeat()
	for _, st := range peers {
		drain(st)
	}

	msg := &types.Message{From: types.PeerID{7}, Topic: "gossip", Seqno: 1, Data: []byte("g")}
	ps.mcache.put(msg.ID(), toWire(msg))
	ps.heartbeat()

	ihaves := 0
	for _, st := range peers {
		c := drain(st)
		if ps.mesh.inMesh("gossip", st.id) {
			assert.Empty(t, c.Ihave)
			continue
		}
		require.Len(t, c.Ihave, 1)
		assert.Equal(t, "gossip", c.Ihave[0].TopicId)
		assert.Equal(t, [][]byte{[]byte(msg.ID())}, c.Ihave[0].MessageIds)
		ihaves++
	}
	assert.Equal(t, 2, ihaves)
}

func TestHeartbeat_ExpiresFanout(t *testing.T) {
	clk := clock.NewMock()
	cfg := DefaultConfig()
	cfg.FloodPublish = false

	h, id := hosttest.NewWithIdentity(t)
	ps, err := New(h, id.PrivateKey(), cfg, WithClock(clk))
	require.NoError(t, err)
	t.Cleanup(func() { _ = ps.Close() })

	addQueuedPeers(ps, "fan", 3)
	res, err := ps.Publish(context.Background(), "fan", []byte("out"))
	require.NoError(t, err)
	assert.Equal(t, 3, res.DeliveredToPeers)

	ps.mu.Lock()
	assert.Len(t, ps.mesh.fanout["fan"], 3)
	ps.mu.Unlock()

	clk.Add(cfg.FanoutTTL + time.Second)
	ps.heartbeat()

	ps.mu.Lock()
	defer ps.mu.Unlock()
	assert.NotContains(t, ps.mesh.fanout, "fan")
}

func TestHeartbeat_LoopStopsOnClose(t *testing.T) {
	clk := clock.NewMock()
	h, id := hosttest.NewWithIdentity(t)
	ps, err := New(h, id.PrivateKey(), DefaultConfig(), WithClock(clk))
	require.NoError(t, err)
	require.NoError(t, ps.Start())

	clk.Add(time.Second)

	done := make(chan struct{})
	go func() {
		_ = ps.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("heartbeat loop did not stop")
	}
}
