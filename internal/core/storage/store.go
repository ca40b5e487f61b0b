package storage

import (
	"encoding/json"
	"time"
)

// Store 带前缀隔离的 KV 存储
//
// 所有键自动添加前缀，实现组件之间的命名空间隔离。
type Store struct {
	engine *Engine
	prefix []byte
}

// NewStore 创建带前缀的 Store
func NewStore(eng *Engine, prefix string) *Store {
	return &Store{engine: eng, prefix: []byte(prefix)}
}

func (s *Store) prefixKey(key []byte) []byte {
	out := make([]byte, len(s.prefix)+len(key))
	copy(out, s.prefix)
	copy(out[len(s.prefix):], key)
	return out
}

// Get 获取指定键的值
func (s *Store) Get(key []byte) ([]byte, error) {
	return s.engine.Get(s.prefixKey(key))
}

// Put 设置键值对
func (s *Store) Put(key, value []byte) error {
	return s.engine.Put(s.prefixKey(key), value)
}

// Delete 删除指定键
func (s *Store) Delete(key []byte) error {
	return s.engine.Delete(s.prefixKey(key))
}

// GetJSON 获取并反序列化 JSON 值
func (s *Store) GetJSON(key []byte, v interface{}) error {
	data, err := s.Get(key)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// PutJSON 序列化并存储 JSON 值，ttl <= 0 表示永不过期
func (s *Store) PutJSON(key []byte, v interface{}, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.engine.PutWithTTL(s.prefixKey(key), data, ttl)
}

// Scan 遍历本 Store 的所有键，回调中的 key 已去除前缀
func (s *Store) Scan(fn func(key, value []byte) bool) error {
	n := len(s.prefix)
	return s.engine.PrefixScan(s.prefix, func(key, value []byte) bool {
		return fn(key[n:], value)
	})
}

// Clear 删除本 Store 的所有键
func (s *Store) Clear() error {
	return s.engine.DeletePrefix(s.prefix)
}

// SubStore 创建子 Store
func (s *Store) SubStore(prefix string) *Store {
	return &Store{engine: s.engine, prefix: s.prefixKey([]byte(prefix))}
}
