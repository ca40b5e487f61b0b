package connmgr

import (
	"context"
	"sort"
	"time"

	pkgif "github.com/dep2p/go-meshnode/pkg/interfaces"
	"github.com/dep2p/go-meshnode/pkg/types"
)

// peerScore 裁剪候选
type peerScore struct {
	peer    types.PeerID
	score   int
	conns   int
	opened  time.Time
	inGrace bool
}

// trim 执行一次裁剪
//
// force 为 false 时只有超过高水位才裁剪。先按分数升序关闭保护期外的节点直到
// 低水位；若仍高于高水位，再关闭保护期内的节点直到不超过高水位。
func (m *Manager) trim(ctx context.Context, force bool) {
	m.trimMu.Lock()
	defer m.trimMu.Unlock()

	conns := m.network.Conns()
	count := len(conns)
	if count <= m.cfg.LowWater || (!force && count <= m.cfg.HighWater) {
		return
	}

	candidates := m.candidates(conns)
	logger.Info("开始裁剪连接",
		"current", count,
		"target", m.cfg.LowWater,
		"candidates", len(candidates))

	closed := 0
	closePeer := func(c peerScore) bool {
		if ctx.Err() != nil {
			return false
		}
		if err := m.network.ClosePeer(c.peer); err != nil {
			logger.Debug("关闭连接失败", "peerID", c.peer.ShortString(), "error", err)
		}
		count -= c.conns
		closed++
		return true
	}

	for _, c := range candidates {
		if count <= m.cfg.LowWater {
			break
		}
		if c.inGrace {
			continue
		}
		if !closePeer(c) {
			break
		}
	}
	for _, c := range candidates {
		if count <= m.cfg.HighWater {
			break
		}
		if !c.inGrace {
			continue
		}
		if !closePeer(c) {
			break
		}
	}

	logger.Info("裁剪完成", "closedPeers", closed, "remaining", count)
	if m.onTrim != nil {
		m.onTrim(closed)
	}
}

// candidates 按分数升序返回未受保护的节点，分数相同时先关闭较新的连接
func (m *Manager) candidates(conns []pkgif.Connection) []peerScore {
	now := m.clock.Now()
	byPeer := make(map[types.PeerID]*peerScore)
	for _, c := range conns {
		p := c.RemotePeer()
		if m.protects.IsProtected(p, "") {
			continue
		}
		ps, ok := byPeer[p]
		if !ok {
			ps = &peerScore{peer: p, score: m.tags.Sum(p), opened: c.Opened()}
			byPeer[p] = ps
		}
		ps.conns++
		if c.Opened().Before(ps.opened) {
			ps.opened = c.Opened()
		}
	}

	out := make([]peerScore, 0, len(byPeer))
	for _, ps := range byPeer {
		ps.inGrace = now.Sub(ps.opened) < m.cfg.GracePeriod
		out = append(out, *ps)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score < out[j].score
		}
		return out[i].opened.After(out[j].opened)
	})
	return out
}
