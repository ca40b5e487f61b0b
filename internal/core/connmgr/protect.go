package connmgr

import (
	"sync"

	"github.com/dep2p/go-meshnode/pkg/types"
)

// protectStore 存储节点保护信息
type protectStore struct {
	mu       sync.RWMutex
	protects map[types.PeerID]map[string]struct{}
}

func newProtectStore() *protectStore {
	return &protectStore{protects: make(map[types.PeerID]map[string]struct{})}
}

// Protect 添加保护标签
func (s *protectStore) Protect(peer types.PeerID, tag string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.protects[peer] == nil {
		s.protects[peer] = make(map[string]struct{})
	}
	s.protects[peer][tag] = struct{}{}
}

// Unprotect 移除保护标签，返回是否仍有其他保护
func (s *protectStore) Unprotect(peer types.PeerID, tag string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	tags := s.protects[peer]
	if tags == nil {
		return false
	}
	delete(tags, tag)
	if len(tags) == 0 {
		delete(s.protects, peer)
		return false
	}
	return true
}

// IsProtected 检查保护状态，tag 为空时检查任意标签
func (s *protectStore) IsProtected(peer types.PeerID, tag string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tags := s.protects[peer]
	if tag == "" {
		return len(tags) > 0
	}
	_, ok := tags[tag]
	return ok
}

// Clear 清空所有保护
func (s *protectStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.protects = make(map[types.PeerID]map[string]struct{})
}
