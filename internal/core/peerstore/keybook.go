package peerstore

import (
	"sync"

	arc "github.com/hashicorp/golang-lru/arc/v2"

	"github.com/dep2p/go-meshnode/internal/core/storage"
	"github.com/dep2p/go-meshnode/pkg/lib/crypto"
	"github.com/dep2p/go-meshnode/pkg/types"
)

// DefaultKeyCacheSize 公钥缓存默认容量
const DefaultKeyCacheSize = 1024

// keyBook 公钥簿
//
// 公钥放在 ARC 缓存中；被淘汰的公钥在配置了持久化时从存储回读。
type keyBook struct {
	mu    sync.Mutex
	cache *arc.ARCCache[types.PeerID, crypto.PublicKey]
	store *storage.Store
}

func newKeyBook(size int, store *storage.Store) (*keyBook, error) {
	if size <= 0 {
		size = DefaultKeyCacheSize
	}
	cache, err := arc.NewARC[types.PeerID, crypto.PublicKey](size)
	if err != nil {
		return nil, err
	}
	return &keyBook{cache: cache, store: store}, nil
}

func (kb *keyBook) AddPubKey(p types.PeerID, pub crypto.PublicKey) error {
	if pub == nil {
		return crypto.ErrNilPublicKey
	}
	if !crypto.PeerIDMatchesKey(p, pub) {
		return ErrInvalidPublicKey
	}
	kb.cache.Add(p, pub)

	if kb.store != nil {
		data, err := crypto.MarshalPublicKey(pub)
		if err != nil {
			return err
		}
		return kb.store.Put(p.Bytes(), data)
	}
	return nil
}

func (kb *keyBook) PubKey(p types.PeerID) crypto.PublicKey {
	if pub, ok := kb.cache.Get(p); ok {
		return pub
	}
	if kb.store == nil {
		return nil
	}

	kb.mu.Lock()
	defer kb.mu.Unlock()
	data, err := kb.store.Get(p.Bytes())
	if err != nil {
		return nil
	}
	pub, err := crypto.UnmarshalPublicKey(data)
	if err != nil || !crypto.PeerIDMatchesKey(p, pub) {
		return nil
	}
	kb.cache.Add(p, pub)
	return pub
}

func (kb *keyBook) PeersWithKeys() []types.PeerID {
	return kb.cache.Keys()
}

func (kb *keyBook) RemovePeer(p types.PeerID) {
	kb.cache.Remove(p)
	if kb.store != nil {
		_ = kb.store.Delete(p.Bytes())
	}
}
