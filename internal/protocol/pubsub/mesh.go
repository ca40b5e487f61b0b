package pubsub

import (
	"math/rand/v2"
	"time"

	"github.com/dep2p/go-meshnode/pkg/types"
)

// ============================================================================
//                              Mesh 状态
// ============================================================================

// meshState 维护每个主题的 mesh、fanout 与退避
//
// 不加锁，调用方持有 PubSub.mu。
type meshState struct {
	// mesh 已订阅主题的 mesh 邻居
	mesh map[string]map[types.PeerID]struct{}

	// fanout 未订阅但发布过的主题
	fanout map[string]map[types.PeerID]struct{}

	// lastPub fanout 主题最近一次发布时间
	lastPub map[string]time.Time

	// backoff 在到期前不向该节点发送 GRAFT，也不接受其 GRAFT
	backoff map[string]map[types.PeerID]time.Time
}

func newMeshState() *meshState {
	return &meshState{
		mesh:    make(map[string]map[types.PeerID]struct{}),
		fanout:  make(map[string]map[types.PeerID]struct{}),
		lastPub: make(map[string]time.Time),
		backoff: make(map[string]map[types.PeerID]time.Time),
	}
}

// join 建立主题的 mesh，优先沿用 fanout 节点，返回新加入的节点
func (m *meshState) join(topic string, candidates []types.PeerID, d int) []types.PeerID {
	if _, ok := m.mesh[topic]; ok {
		return nil
	}
	peers := make(map[types.PeerID]struct{})
	m.mesh[topic] = peers

	var added []types.PeerID
	for p := range m.fanout[topic] {
		if len(added) >= d {
			break
		}
		peers[p] = struct{}{}
		added = append(added, p)
	}
	delete(m.fanout, topic)
	delete(m.lastPub, topic)

	shufflePeers(candidates)
	for _, p := range candidates {
		if len(added) >= d {
			break
		}
		if _, ok := peers[p]; ok {
			continue
		}
		peers[p] = struct{}{}
		added = append(added, p)
	}
	return added
}

// leave 删除主题的 mesh，返回原有邻居
func (m *meshState) leave(topic string) []types.PeerID {
	peers := keys(m.mesh[topic])
	delete(m.mesh, topic)
	return peers
}

func (m *meshState) joined(topic string) bool {
	_, ok := m.mesh[topic]
	return ok
}

func (m *meshState) inMesh(topic string, p types.PeerID) bool {
	_, ok := m.mesh[topic][p]
	return ok
}

// inAnyMesh 节点是否在任意主题的 mesh 中
func (m *meshState) inAnyMesh(p types.PeerID) bool {
	for _, peers := range m.mesh {
		if _, ok := peers[p]; ok {
			return true
		}
	}
	return false
}

func (m *meshState) meshPeers(topic string) []types.PeerID {
	return keys(m.mesh[topic])
}

// add 把节点加入已加入主题的 mesh
func (m *meshState) add(topic string, p types.PeerID) bool {
	peers, ok := m.mesh[topic]
	if !ok {
		return false
	}
	if _, ok := peers[p]; ok {
		return false
	}
	peers[p] = struct{}{}
	return true
}

func (m *meshState) remove(topic string, p types.PeerID) bool {
	peers, ok := m.mesh[topic]
	if !ok {
		return false
	}
	if _, ok := peers[p]; !ok {
		return false
	}
	delete(peers, p)
	return true
}

// removePeer 从所有 mesh 和 fanout 中移除节点
func (m *meshState) removePeer(p types.PeerID) {
	for _, peers := range m.mesh {
		delete(peers, p)
	}
	for _, peers := range m.fanout {
		delete(peers, p)
	}
}

// ==================== 退避 ====================

func (m *meshState) setBackoff(topic string, p types.PeerID, until time.Time) {
	b, ok := m.backoff[topic]
	if !ok {
		b = make(map[types.PeerID]time.Time)
		m.backoff[topic] = b
	}
	if until.After(b[p]) {
		b[p] = until
	}
}

func (m *meshState) backedOff(topic string, p types.PeerID, now time.Time) bool {
	until, ok := m.backoff[topic][p]
	return ok && now.Before(until)
}

func (m *meshState) clearExpiredBackoff(now time.Time) {
	for topic, b := range m.backoff {
		for p, until := range b {
			if !now.Before(until) {
				delete(b, p)
			}
		}
		if len(b) == 0 {
			delete(m.backoff, topic)
		}
	}
}

// ==================== Fanout ====================

// fanoutPeers 返回主题的 fanout 节点，为空时从候选中选 d 个，并记录发布时间
func (m *meshState) fanoutPeers(topic string, candidates []types.PeerID, d int, now time.Time) []types.PeerID {
	peers, ok := m.fanout[topic]
	if !ok || len(peers) == 0 {
		peers = make(map[types.PeerID]struct{})
		shufflePeers(candidates)
		for _, p := range candidates {
			if len(peers) >= d {
				break
			}
			peers[p] = struct{}{}
		}
		m.fanout[topic] = peers
	}
	m.lastPub[topic] = now
	return keys(peers)
}

// expireFanout 删除超过 ttl 未发布的 fanout 主题
func (m *meshState) expireFanout(now time.Time, ttl time.Duration) {
	for topic, last := range m.lastPub {
		if now.Sub(last) > ttl {
			delete(m.fanout, topic)
			delete(m.lastPub, topic)
		}
	}
}

// ============================================================================
//                              辅助函数
// ============================================================================

func keys(set map[types.PeerID]struct{}) []types.PeerID {
	out := make([]types.PeerID, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	return out
}

func shufflePeers(peers []types.PeerID) {
	rand.Shuffle(len(peers), func(i, j int) {
		peers[i], peers[j] = peers[j], peers[i]
	})
}
