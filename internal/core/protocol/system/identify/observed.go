package identify

import (
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	ma "github.com/dep2p/go-meshnode/pkg/lib/multiaddr"
	"github.com/dep2p/go-meshnode/pkg/types"
)

const (
	// observedAddrTTL 观测记录的有效期
	observedAddrTTL = 30 * time.Minute

	// ActivationThreshold 至少多少个不同节点观测到同一地址才采信
	ActivationThreshold = 2
)

type observation struct {
	addr      ma.Multiaddr
	observers map[types.PeerID]time.Time
}

// observedAddrs 记录对端观测到的本机地址
type observedAddrs struct {
	clock clock.Clock

	mu   sync.Mutex
	addr map[string]*observation
}

func newObservedAddrs(clk clock.Clock) *observedAddrs {
	return &observedAddrs{clock: clk, addr: make(map[string]*observation)}
}

func (o *observedAddrs) record(addr ma.Multiaddr, observer types.PeerID) {
	o.mu.Lock()
	defer o.mu.Unlock()

	key := string(addr.Bytes())
	ob, ok := o.addr[key]
	if !ok {
		ob = &observation{addr: addr, observers: make(map[types.PeerID]time.Time)}
		o.addr[key] = ob
	}
	ob.observers[observer] = o.clock.Now()
}

// addrs 返回被足够多节点观测到的地址，按观测者数量降序
func (o *observedAddrs) addrs() []ma.Multiaddr {
	o.mu.Lock()
	defer o.mu.Unlock()

	now := o.clock.Now()
	type scored struct {
		addr  ma.Multiaddr
		count int
	}
	var out []scored
	for key, ob := range o.addr {
		for p, seen := range ob.observers {
			if now.Sub(seen) > observedAddrTTL {
				delete(ob.observers, p)
			}
		}
		if len(ob.observers) == 0 {
			delete(o.addr, key)
			continue
		}
		if len(ob.observers) >= ActivationThreshold {
			out = append(out, scored{ob.addr, len(ob.observers)})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].addr.String() < out[j].addr.String()
	})

	addrs := make([]ma.Multiaddr, len(out))
	for i, s := range out {
		addrs[i] = s.addr
	}
	return addrs
}
