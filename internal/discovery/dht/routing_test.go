package dht

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ma "github.com/dep2p/go-meshnode/pkg/lib/multiaddr"
	"github.com/dep2p/go-meshnode/pkg/types"
)

// idInBucket 构造与 local（全零）共享 cpl 位前缀的 ID，n 用于区分
func idInBucket(cpl int, n byte) types.PeerID {
	var id types.PeerID
	id[cpl/8] = 0x80 >> (cpl % 8)
	id[31] = n
	return id
}

func TestRoutingTable_UpdateFindRemove(t *testing.T) {
	rt := NewRoutingTable(types.PeerID{}, 4, clock.NewMock())

	addr := ma.StringCast("/ip4/10.0.0.1/tcp/4001")
	p := idInBucket(3, 1)
	assert.True(t, rt.Update(p, []ma.Multiaddr{addr}))
	assert.False(t, rt.Update(p, nil), "second update is a refresh")
	assert.Equal(t, 1, rt.Size())
	assert.Equal(t, 1, rt.BucketLen(3))
	assert.Equal(t, []int{3}, rt.NonEmptyBuckets())

	e, ok := rt.Find(p)
	require.True(t, ok)
	require.Len(t, e.Addrs, 1, "empty update keeps addrs")
	assert.True(t, e.Addrs[0].Equal(addr))

	assert.False(t, rt.Update(types.PeerID{}, nil), "self is never added")
	assert.False(t, rt.Update(types.EmptyPeerID, nil))

	assert.True(t, rt.Remove(p))
	assert.False(t, rt.Remove(p))
	assert.Equal(t, 0, rt.Size())
}

func TestRoutingTable_EvictsLeastRecentlySeen(t *testing.T) {
	clk := clock.NewMock()
	rt := NewRoutingTable(types.PeerID{}, 3, clk)

	p1, p2, p3, p4 := idInBucket(0, 1), idInBucket(0, 2), idInBucket(0, 3), idInBucket(0, 4)
	for _, p := range []types.PeerID{p1, p2, p3} {
		rt.Update(p, nil)
		clk.Add(time.Second)
	}
	// p1 刷新后，p2 成为最久未见
	rt.Update(p1, nil)

	assert.True(t, rt.Update(p4, nil))
	assert.Equal(t, 3, rt.BucketLen(0), "bucket never exceeds capacity")
	_, ok := rt.Find(p2)
	assert.False(t, ok, "least recently seen evicted")
	for _, p := range []types.PeerID{p1, p3, p4} {
		_, ok := rt.Find(p)
		assert.True(t, ok)
	}

	// 移除后从替换缓存补位
	assert.True(t, rt.Remove(p4))
	_, ok = rt.Find(p2)
	assert.True(t, ok, "replacement promoted")
	assert.Equal(t, 3, rt.Size())
}

func TestRoutingTable_CapacityInvariant(t *testing.T) {
	rt := NewRoutingTable(types.PeerID{}, BucketSize, nil)
	for i := 0; i < 3*BucketSize; i++ {
		rt.Update(idInBucket(5, byte(i+1)), nil)
	}
	assert.Equal(t, BucketSize, rt.BucketLen(5))
	assert.Equal(t, BucketSize, rt.Size())
}

func TestRoutingTable_NearestPeers(t *testing.T) {
	rt := NewRoutingTable(types.PeerID{}, BucketSize, nil)
	var ids []types.PeerID
	for cpl := 0; cpl < 40; cpl++ {
		id := idInBucket(cpl, 1)
		ids = append(ids, id)
		rt.Update(id, nil)
	}

	target := idInBucket(20, 0)
	nearest := rt.NearestPeers(target, 5)
	require.Len(t, nearest, 5)
	assert.Equal(t, idInBucket(20, 1), nearest[0].ID)

	SortByDistance(ids, target)
	for i, e := range nearest {
		assert.Equal(t, ids[i], e.ID)
	}
	assert.Nil(t, rt.NearestPeers(target, 0))
}
