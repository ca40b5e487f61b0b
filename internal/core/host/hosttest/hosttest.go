// Package hosttest 为协议层测试构造已监听的 Host
package hosttest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-meshnode/internal/core/host"
	"github.com/dep2p/go-meshnode/internal/core/identity"
	"github.com/dep2p/go-meshnode/internal/core/swarm/swarmtest"
)

// New 创建监听 127.0.0.1 随机端口的 Host
func New(t testing.TB) *host.Host {
	t.Helper()

	h, _ := NewWithIdentity(t)
	return h
}

// NewWithIdentity 同 New，并返回节点身份
func NewWithIdentity(t testing.TB) (*host.Host, *identity.Identity) {
	t.Helper()

	n := swarmtest.New(t)
	cfg := host.DefaultConfig()
	cfg.ListenAddrs = nil
	cfg.NegotiationTimeout = 5 * time.Second

	h, err := host.New(n.Swarm, n.Peerstore, n.Bus, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return h, n.Identity
}

// Connect 让 a 拨号 b
func Connect(t testing.TB, a, b *host.Host) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, a.Connect(ctx, b.AddrInfo()))
}

// ConnectAll 两两连接所有 Host
func ConnectAll(t testing.TB, hosts ...*host.Host) {
	t.Helper()

	for i := range hosts {
		for j := i + 1; j < len(hosts); j++ {
			Connect(t, hosts[i], hosts[j])
		}
	}
}
