package eventbus

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	pkgif "github.com/dep2p/go-meshnode/pkg/interfaces"
	"github.com/dep2p/go-meshnode/pkg/types"
)

func recv(t *testing.T, sub pkgif.Subscription) types.Event {
	t.Helper()
	select {
	case evt, ok := <-sub.Out():
		require.True(t, ok, "subscription closed")
		return evt
	case <-time.After(time.Second):
		t.Fatal("no event received")
		return nil
	}
}

func TestBus_TypedDelivery(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	opened, err := bus.Subscribe(types.EventConnectionOpened)
	require.NoError(t, err)
	all, err := bus.Subscribe()
	require.NoError(t, err)

	peer := types.PeerID{1}
	bus.Emit(types.NewConnectionOpened(peer, nil, types.DirOutbound))
	bus.Emit(types.NewNodeStarted(peer))

	evt := recv(t, opened)
	co, ok := evt.(types.ConnectionOpened)
	require.True(t, ok)
	assert.Equal(t, peer, co.Peer)
	assert.Equal(t, types.DirOutbound, co.Direction)

	assert.Equal(t, types.EventConnectionOpened, recv(t, all).Type())
	assert.Equal(t, types.EventNodeStarted, recv(t, all).Type())

	select {
	case evt := <-opened.Out():
		t.Fatalf("unexpected event %v", evt.Type())
	default:
	}
}

func TestBus_InvalidType(t *testing.T) {
	bus := NewBus()
	_, err := bus.Subscribe(types.EventType(0))
	assert.ErrorIs(t, err, ErrInvalidEventType)
	_, err = bus.Subscribe(types.EventType(99))
	assert.ErrorIs(t, err, ErrInvalidEventType)
}

func TestBus_SlowSubscriberDrops(t *testing.T) {
	var hookCount int
	bus := NewBus(WithDropHook(func(types.EventType) { hookCount++ }))
	sub, err := bus.SubscribeBuffered(2, types.EventPeerDiscovered)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		bus.Emit(types.NewPeerDiscovered(types.AddrInfo{ID: types.PeerID{byte(i)}}, types.SourceDHT))
	}

	assert.Equal(t, int64(3), bus.Dropped())
	assert.Equal(t, 3, hookCount)
	assert.Len(t, sub.Out(), 2)
}

func TestSubscription_CloseStopsDelivery(t *testing.T) {
	bus := NewBus()
	sub, err := bus.Subscribe(types.EventNodeStopped)
	require.NoError(t, err)

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())

	bus.Emit(types.NewNodeStopped(types.PeerID{1}))
	_, ok := <-sub.Out()
	assert.False(t, ok)
}

func TestBus_CloseClosesSubscriptions(t *testing.T) {
	bus := NewBus()
	sub, err := bus.Subscribe(types.EventNodeStarted, types.EventNodeStopped)
	require.NoError(t, err)

	require.NoError(t, bus.Close())
	_, ok := <-sub.Out()
	assert.False(t, ok)

	_, err = bus.Subscribe()
	assert.ErrorIs(t, err, ErrClosed)

	// 关闭后 Emit 与 Close 都是空操作
	bus.Emit(types.NewNodeStarted(types.PeerID{}))
	assert.NoError(t, sub.Close())
}

func TestBus_ConcurrentEmitAndClose(t *testing.T) {
	bus := NewBus()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		sub, err := bus.Subscribe(types.EventMessageReceived)
		require.NoError(t, err)
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				bus.Emit(types.NewMessageReceived(&types.Message{Topic: "t", Seqno: uint64(j)}, types.PeerID{}))
			}
		}()
		go func() {
			defer wg.Done()
			time.Sleep(time.Millisecond)
			_ = sub.Close()
		}()
	}
	wg.Wait()
	require.NoError(t, bus.Close())
}

func TestModule_ClosesOnStop(t *testing.T) {
	var bus pkgif.EventBus
	app := fxtest.New(t, Module(), fx.Populate(&bus))
	app.RequireStart()

	sub, err := bus.Subscribe()
	require.NoError(t, err)
	app.RequireStop()

	_, ok := <-sub.Out()
	assert.False(t, ok)
}
