package pubsub

import (
	pb "github.com/dep2p/go-meshnode/pkg/lib/proto/gossipsub"
	"github.com/dep2p/go-meshnode/pkg/types"
)

// ============================================================================
//                              心跳
// ============================================================================

// heartbeatLoop 首次延迟后按固定间隔执行心跳，Close 时退出
func (ps *PubSub) heartbeatLoop() {
	defer ps.wg.Done()

	timer := ps.clock.Timer(ps.cfg.HeartbeatInitialDelay)
	defer timer.Stop()
	select {
	case <-ps.ctx.Done():
		return
	case <-timer.C:
	}
	ps.heartbeat()

	ticker := ps.clock.Ticker(ps.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ps.ctx.Done():
			return
		case <-ticker.C:
			ps.heartbeat()
		}
	}
}

// heartbeat 维护 mesh 度数、清理 fanout、发送 gossip 并推进消息缓存窗口
//
// 同一节点本轮的控制指令合并为一个 RPC。
func (ps *PubSub) heartbeat() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.closed {
		return
	}

	now := ps.clock.Now()
	ctrl := make(map[types.PeerID]*pb.ControlMessage)
	control := func(p types.PeerID) *pb.ControlMessage {
		c, ok := ctrl[p]
		if !ok {
			c = &pb.ControlMessage{}
			ctrl[p] = c
		}
		return c
	}

	ps.mesh.clearExpiredBackoff(now)

	// mesh 度数维护
	for topic := range ps.subs {
		peers := ps.mesh.meshPeers(topic)

		if len(peers) < ps.cfg.Dlo {
			var cands []types.PeerID
			for _, p := range ps.topicPeersLocked(topic) {
				if !ps.mesh.inMesh(topic, p) && !ps.mesh.backedOff(topic, p, now) {
					cands = append(cands, p)
				}
			}
			shufflePeers(cands)
			need := min(ps.cfg.D-len(peers), len(cands))
			for _, p := range cands[:need] {
				ps.mesh.add(topic, p)
				ps.tagMeshLocked(p)
				c := control(p)
				c.Graft = append(c.Graft, &pb.ControlGraft{TopicId: topic})
			}
			if need > 0 {
				logger.Debug("mesh 不足，GRAFT", "topic", topic, "mesh", len(peers), "grafted", need)
			}
		}

		if len(peers) > ps.cfg.Dhi {
			shufflePeers(peers)
			for _, p := range peers[ps.cfg.D:] {
				ps.mesh.remove(topic, p)
				ps.mesh.setBackoff(topic, p, now.Add(ps.cfg.PruneBackoff))
				ps.untagMeshLocked(p)
				c := control(p)
				c.Prune = append(c.Prune, &pb.ControlPrune{TopicId: topic, Backoff: backoffSeconds(ps.cfg.PruneBackoff)})
			}
			logger.Debug("mesh 过大，PRUNE", "topic", topic, "mesh", len(peers), "pruned", len(peers)-ps.cfg.D)
		}
	}

	// fanout 过期与补充
	ps.mesh.expireFanout(now, ps.cfg.FanoutTTL)
	for topic, fpeers := range ps.mesh.fanout {
		for p := range fpeers {
			if st := ps.peers[p]; st == nil {
				delete(fpeers, p)
			} else if _, ok := st.topics[topic]; !ok {
				delete(fpeers, p)
			}
		}
		if len(fpeers) >= ps.cfg.D {
			continue
		}
		cands := ps.topicPeersLocked(topic)
		shufflePeers(cands)
		for _, p := range cands {
			if len(fpeers) >= ps.cfg.D {
				break
			}
			fpeers[p] = struct{}{}
		}
	}

	// gossip：向 mesh/fanout 之外的主题节点宣告最近的消息
	gossipTopics := make(map[string]map[types.PeerID]struct{})
	for topic := range ps.subs {
		gossipTopics[topic] = ps.mesh.mesh[topic]
	}
	for topic, fpeers := range ps.mesh.fanout {
		gossipTopics[topic] = fpeers
	}
	for topic, exclude := range gossipTopics {
		ids := ps.mcache.gossipIDs(topic)
		if len(ids) == 0 {
			continue
		}
		if len(ids) > ps.cfg.MaxIHaveLength {
			ids = ids[:ps.cfg.MaxIHaveLength]
		}
		raw := make([][]byte, len(ids))
		for i, id := range ids {
			raw[i] = []byte(id)
		}

		var cands []types.PeerID
		for _, p := range ps.topicPeersLocked(topic) {
			if _, ok := exclude[p]; !ok {
				cands = append(cands, p)
			}
		}
		shufflePeers(cands)
		for _, p := range cands[:min(ps.cfg.Dlazy, len(cands))] {
			c := control(p)
			c.Ihave = append(c.Ihave, &pb.ControlIHave{TopicId: topic, MessageIds: raw})
		}
	}

	ps.mcache.shift()

	for p, c := range ctrl {
		if st := ps.peers[p]; st != nil {
			st.send(&pb.RPC{Control: c})
		}
	}
}
