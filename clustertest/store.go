package clustertest

import (
	"strconv"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/raniellyferreira/redis-replica-router/topology"
)

const storeShards = 16

type storeShard struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// Store is the keyspace held by a primary and read by its replicas.
type Store struct {
	shards [storeShards]storeShard
}

// NewStore creates an empty store.
func NewStore() *Store {
	s := &Store{}
	for i := range s.shards {
		s.shards[i].data = make(map[string][]byte)
	}
	return s
}

func (s *Store) shard(key string) *storeShard {
	return &s.shards[xxhash.Sum64String(key)%storeShards]
}

// Get returns the value of key.
func (s *Store) Get(key string) ([]byte, bool) {
	sh := s.shard(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	v, ok := sh.data[key]
	return v, ok
}

// Set stores value under key.
func (s *Store) Set(key string, value []byte) {
	sh := s.shard(key)
	sh.mu.Lock()
	sh.data[key] = append([]byte(nil), value...)
	sh.mu.Unlock()
}

// Del removes keys and returns how many existed.
func (s *Store) Del(keys ...string) int64 {
	var n int64
	for _, key := range keys {
		sh := s.shard(key)
		sh.mu.Lock()
		if _, ok := sh.data[key]; ok {
			delete(sh.data, key)
			n++
		}
		sh.mu.Unlock()
	}
	return n
}

// Exists counts how many of keys exist.
func (s *Store) Exists(keys ...string) int64 {
	var n int64
	for _, key := range keys {
		if _, ok := s.Get(key); ok {
			n++
		}
	}
	return n
}

// Incr increments the integer stored at key.
func (s *Store) Incr(key string, by int64) (int64, error) {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	var cur int64
	if v, ok := sh.data[key]; ok {
		n, err := strconv.ParseInt(string(v), 10, 64)
		if err != nil {
			return 0, err
		}
		cur = n
	}
	cur += by
	sh.data[key] = []byte(strconv.FormatInt(cur, 10))
	return cur, nil
}

// Len returns the number of keys.
func (s *Store) Len() int {
	n := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		n += len(sh.data)
		sh.mu.RUnlock()
	}
	return n
}

// takeSlot removes and returns every key hashing to slot.
func (s *Store) takeSlot(slot uint16) map[string][]byte {
	out := make(map[string][]byte)
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for k, v := range sh.data {
			if topology.HashSlotString(k) == slot {
				out[k] = v
				delete(sh.data, k)
			}
		}
		sh.mu.Unlock()
	}
	return out
}

// take removes and returns key.
func (s *Store) take(key string) ([]byte, bool) {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	v, ok := sh.data[key]
	delete(sh.data, key)
	return v, ok
}

// clone returns an independent copy of the keyspace.
func (s *Store) clone() *Store {
	out := NewStore()
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		for k, v := range sh.data {
			out.shards[i].data[k] = v
		}
		sh.mu.RUnlock()
	}
	return out
}
