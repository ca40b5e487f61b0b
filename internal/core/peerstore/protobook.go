package peerstore

import (
	"sort"
	"sync"

	"github.com/dep2p/go-meshnode/pkg/types"
)

// protoBook 协议簿
type protoBook struct {
	mu     sync.RWMutex
	protos map[types.PeerID]map[types.ProtocolID]struct{}
}

func newProtoBook() *protoBook {
	return &protoBook{protos: make(map[types.PeerID]map[types.ProtocolID]struct{})}
}

func (pb *protoBook) SetProtocols(p types.PeerID, protos ...types.ProtocolID) {
	pb.mu.Lock()
	defer pb.mu.Unlock()

	m := make(map[types.ProtocolID]struct{}, len(protos))
	for _, proto := range protos {
		m[proto] = struct{}{}
	}
	pb.protos[p] = m
}

func (pb *protoBook) GetProtocols(p types.PeerID) []types.ProtocolID {
	pb.mu.RLock()
	defer pb.mu.RUnlock()

	out := make([]types.ProtocolID, 0, len(pb.protos[p]))
	for proto := range pb.protos[p] {
		out = append(out, proto)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (pb *protoBook) SupportsProtocol(p types.PeerID, proto types.ProtocolID) bool {
	pb.mu.RLock()
	defer pb.mu.RUnlock()
	_, ok := pb.protos[p][proto]
	return ok
}

func (pb *protoBook) peers() []types.PeerID {
	pb.mu.RLock()
	defer pb.mu.RUnlock()
	out := make([]types.PeerID, 0, len(pb.protos))
	for p := range pb.protos {
		out = append(out, p)
	}
	return out
}

func (pb *protoBook) RemovePeer(p types.PeerID) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	delete(pb.protos, p)
}
