package pubsub

import (
	"time"

	pb "github.com/dep2p/go-meshnode/pkg/lib/proto/gossipsub"
	"github.com/dep2p/go-meshnode/pkg/types"
)

// maxBackoff 接受的 PRUNE 退避上限
const maxBackoff = time.Hour

// ============================================================================
//                              控制消息
// ============================================================================

// handleGraftLocked 处理 GRAFT，返回需要回复的 PRUNE
//
// 未订阅的主题或仍在退避期内的节点会被 PRUNE。
func (ps *PubSub) handleGraftLocked(st *peerState, grafts []*pb.ControlGraft) []*pb.ControlPrune {
	now := ps.clock.Now()
	var prunes []*pb.ControlPrune
	for _, g := range grafts {
		topic := g.TopicId
		if topic == "" {
			continue
		}
		if !ps.mesh.joined(topic) {
			prunes = append(prunes, &pb.ControlPrune{TopicId: topic, Backoff: backoffSeconds(ps.cfg.PruneBackoff)})
			continue
		}
		if ps.mesh.inMesh(topic, st.id) {
			continue
		}
		if ps.mesh.backedOff(topic, st.id, now) {
			logger.Debug("退避期内收到 GRAFT", "peer", st.id.ShortString(), "topic", topic)
			prunes = append(prunes, &pb.ControlPrune{TopicId: topic, Backoff: backoffSeconds(ps.cfg.PruneBackoff)})
			continue
		}

		st.topics[topic] = struct{}{}
		ps.mesh.add(topic, st.id)
		ps.tagMeshLocked(st.id)
		logger.Debug("节点加入 mesh", "peer", st.id.ShortString(), "topic", topic)
	}
	return prunes
}

// handlePruneLocked 处理 PRUNE，退避期内不再向对端 GRAFT
func (ps *PubSub) handlePruneLocked(from types.PeerID, prunes []*pb.ControlPrune) {
	now := ps.clock.Now()
	for _, pr := range prunes {
		if pr.TopicId == "" {
			continue
		}
		if ps.mesh.remove(pr.TopicId, from) {
			ps.untagMeshLocked(from)
			logger.Debug("节点移出 mesh", "peer", from.ShortString(), "topic", pr.TopicId)
		}

		backoff := ps.cfg.PruneBackoff
		if pr.Backoff > 0 {
			backoff = maxBackoff
			if pr.Backoff < uint64(maxBackoff/time.Second) {
				backoff = time.Duration(pr.Backoff) * time.Second // #nosec G115 -- bounded above
			}
		}
		ps.mesh.setBackoff(pr.TopicId, from, now.Add(backoff))
	}
}

// handleIHaveLocked 对已订阅主题中未见过的消息返回 IWANT
func (ps *PubSub) handleIHaveLocked(ihaves []*pb.ControlIHave) *pb.ControlIWant {
	var want [][]byte
	requested := make(map[types.MessageID]struct{})
	for _, ih := range ihaves {
		if !ps.mesh.joined(ih.TopicId) {
			continue
		}
		for _, raw := range ih.MessageIds {
			if len(want) >= ps.cfg.MaxIHaveLength {
				break
			}
			id := types.MessageID(raw)
			if _, ok := requested[id]; ok || ps.seen.has(id) {
				continue
			}
			requested[id] = struct{}{}
			want = append(want, raw)
		}
	}
	if len(want) == 0 {
		return nil
	}
	return &pb.ControlIWant{MessageIds: want}
}

// handleIWant 从消息缓存取出被请求的消息
func (ps *PubSub) handleIWant(iwants []*pb.ControlIWant) []*pb.Message {
	var out []*pb.Message
	served := make(map[types.MessageID]struct{})
	for _, iw := range iwants {
		for _, raw := range iw.MessageIds {
			id := types.MessageID(raw)
			if _, ok := served[id]; ok {
				continue
			}
			if m, ok := ps.mcache.get(id); ok {
				served[id] = struct{}{}
				out = append(out, m)
			}
		}
	}
	return out
}

func backoffSeconds(d time.Duration) uint64 {
	return uint64(d / time.Second) // #nosec G115 -- configured durations are positive
}
