package connmgr

import (
	"slices"
	"sync"

	"github.com/dep2p/go-meshnode/pkg/types"
)

// 预定义标签
const (
	// TagBootstrap 引导节点
	TagBootstrap = "bootstrap"

	// TagDHT DHT 路由表邻居
	TagDHT = "dht"

	// TagPubSubMesh pubsub mesh 邻居
	TagPubSubMesh = "pubsub-mesh"
)

// 默认标签权重
const (
	BootstrapWeight = 50
	DHTWeight       = 5
	MeshWeight      = 20
)

// tagStore 存储节点标签信息
type tagStore struct {
	mu   sync.RWMutex
	tags map[types.PeerID]map[string]int
}

func newTagStore() *tagStore {
	return &tagStore{tags: make(map[types.PeerID]map[string]int)}
}

// Set 设置标签值
func (s *tagStore) Set(peer types.PeerID, tag string, value int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tags[peer] == nil {
		s.tags[peer] = make(map[string]int)
	}
	s.tags[peer][tag] = value
}

// Delete 删除标签
func (s *tagStore) Delete(peer types.PeerID, tag string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tags[peer] == nil {
		return
	}
	delete(s.tags[peer], tag)
	if len(s.tags[peer]) == 0 {
		delete(s.tags, peer)
	}
}

// DropExcept 删除节点除 keep 以外的全部标签
func (s *tagStore) DropExcept(peer types.PeerID, keep ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for tag := range s.tags[peer] {
		if !slices.Contains(keep, tag) {
			delete(s.tags[peer], tag)
		}
	}
	if len(s.tags[peer]) == 0 {
		delete(s.tags, peer)
	}
}

// Sum 计算节点所有标签权重总和
func (s *tagStore) Sum(peer types.PeerID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum := 0
	for _, v := range s.tags[peer] {
		sum += v
	}
	return sum
}

// Get 获取标签值
func (s *tagStore) Get(peer types.PeerID, tag string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tags[peer][tag]
}

// Clear 清空所有标签
func (s *tagStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tags = make(map[types.PeerID]map[string]int)
}
