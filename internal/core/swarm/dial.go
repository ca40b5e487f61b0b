package swarm

import (
	"context"
	"errors"
	"sort"

	pkgif "github.com/dep2p/go-meshnode/pkg/interfaces"
	ma "github.com/dep2p/go-meshnode/pkg/lib/multiaddr"
	"github.com/dep2p/go-meshnode/pkg/types"
)

type dialResult struct {
	conn pkgif.UpgradedConn
	addr ma.Multiaddr
	err  error
}

// DialPeer 拨号到节点，地址取自 Peerstore
//
// 已有连接时直接复用；同一节点的并发拨号合并为一次。
func (s *Swarm) DialPeer(ctx context.Context, p types.PeerID) (pkgif.Connection, error) {
	if s.closed.Load() {
		return nil, ErrSwarmClosed
	}
	if p == s.localPeer {
		return nil, ErrDialToSelf
	}
	if c := s.bestConn(p); c != nil {
		return c, nil
	}

	v, err, _ := s.dials.Do(string(p.Bytes()), func() (any, error) {
		if c := s.bestConn(p); c != nil {
			return c, nil
		}
		return s.dialAddrs(ctx, p)
	})
	if err != nil {
		logger.Debug("拨号失败", "peerID", p.ShortString(), "error", err)
		return nil, err
	}
	return v.(*Conn), nil
}

// dialAddrs 并发拨号所有可用地址，首个成功的胜出
func (s *Swarm) dialAddrs(ctx context.Context, p types.PeerID) (*Conn, error) {
	addrs := s.dialableAddrs(p)
	if len(addrs) == 0 {
		return nil, &types.DialError{Peer: p, Errors: []error{ErrNoAddresses}}
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.DialTimeout)
	defer cancel()

	results := make(chan dialResult, len(addrs))
	sem := make(chan struct{}, s.config.MaxParallelDials)
	for _, addr := range addrs {
		go func(addr ma.Multiaddr) {
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results <- dialResult{addr: addr, err: ctx.Err()}
				return
			}
			uc, err := s.dialAddr(ctx, p, addr)
			results <- dialResult{conn: uc, addr: addr, err: err}
		}(addr)
	}

	var errs []error
	for i := 0; i < len(addrs); i++ {
		res := <-results
		if res.err != nil {
			errs = append(errs, res.err)
			continue
		}

		// 关闭其余晚到的成功连接
		cancel()
		go drainDials(results, len(addrs)-i-1)

		c, err := s.addConn(res.conn, types.DirOutbound)
		if err != nil {
			return nil, err
		}
		return c, nil
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		errs = append(errs, types.ErrTimeout)
	}
	return nil, &types.DialError{Peer: p, Errors: errs}
}

func drainDials(results <-chan dialResult, n int) {
	for i := 0; i < n; i++ {
		if res := <-results; res.conn != nil {
			_ = res.conn.Close()
		}
	}
}

func (s *Swarm) dialAddr(ctx context.Context, p types.PeerID, addr ma.Multiaddr) (pkgif.UpgradedConn, error) {
	tc, err := s.transports.Dial(ctx, addr)
	if err != nil {
		return nil, err
	}
	uc, err := s.upgrader.Upgrade(ctx, tc, types.DirOutbound, p)
	if err != nil {
		return nil, err
	}
	return uc, nil
}

// dialableAddrs 过滤并排序可拨号地址：回环优先，其次 TCP，最后 WebSocket
func (s *Swarm) dialableAddrs(p types.PeerID) []ma.Multiaddr {
	var out []ma.Multiaddr
	for _, a := range s.peerstore.Addrs(p) {
		if s.transports.CanDial(a) {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return addrRank(out[i]) < addrRank(out[j])
	})
	return out
}

func addrRank(a ma.Multiaddr) int {
	rank := 0
	if !ma.IsLoopback(a) {
		rank += 2
	}
	if ma.IsWebSocket(a) {
		rank++
	}
	return rank
}
