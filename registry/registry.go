// Package registry is the concurrent map that resolves an invocation context
// to its live binding.
package registry

import (
	"math/bits"
	"runtime"
	"sync"
	"unsafe"
)

const cacheLine = 64

// Key is an invocation context: the object a native call was made on and the
// trampoline that received it.
type Key struct {
	Self       uint32
	Trampoline uint32
}

// Map is a concurrent map with insert-if-absent semantics.
type Map[K comparable, V any] interface {
	Get(key K) (V, bool)
	// Insert stores value unless key is present. It reports whether it stored.
	Insert(key K, value V) bool
	Remove(key K) (V, bool)
	// RemoveIf removes key only when cond accepts the current value.
	RemoveIf(key K, cond func(V) bool) (V, bool)
	// RemoveFunc removes every entry accepted by cond and returns them.
	RemoveFunc(cond func(K, V) bool) []V
	Len() int
	Range(iter func(K, V) bool)
}

// Sharded splits entries across power-of-two shards chosen by key hash. Each
// shard is guarded by its own RWMutex: lookups share it, mutations own it.
type Sharded[K comparable, V any] struct {
	shards []shard[K, V]
	mask   uint64
	hasher Hasher[K]
}

// shard fills one cache line. Every map header is one pointer wide.
type shard[K comparable, V any] struct {
	mu sync.RWMutex
	m  map[K]V
	_  [cacheLine - unsafe.Sizeof(sync.RWMutex{}) - unsafe.Sizeof(map[int]int(nil))]byte
}

var _ Map[Key, int] = (*Sharded[Key, int])(nil)

// NewSharded creates a map. numShards < 1 picks GOMAXPROCS*4; it is rounded up
// to a power of two.
func NewSharded[K comparable, V any](numShards int, hasher Hasher[K]) *Sharded[K, V] {
	if hasher == nil {
		panic("registry: nil hasher")
	}
	if numShards < 1 {
		numShards = runtime.GOMAXPROCS(0) * 4
	}
	numShards = ceilPow2(numShards)
	shards := make([]shard[K, V], numShards)
	for i := range shards {
		shards[i].m = make(map[K]V)
	}
	return &Sharded[K, V]{
		shards: shards,
		mask:   uint64(numShards - 1),
		hasher: hasher,
	}
}

// Shards returns the shard count.
func (s *Sharded[K, V]) Shards() int {
	return len(s.shards)
}

func (s *Sharded[K, V]) shard(key K) *shard[K, V] {
	return &s.shards[s.hasher(key)&s.mask]
}

func (s *Sharded[K, V]) Get(key K) (V, bool) {
	sh := s.shard(key)
	sh.mu.RLock()
	v, ok := sh.m[key]
	sh.mu.RUnlock()
	return v, ok
}

func (s *Sharded[K, V]) Insert(key K, value V) bool {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, exists := sh.m[key]; exists {
		return false
	}
	sh.m[key] = value
	return true
}

func (s *Sharded[K, V]) Remove(key K) (V, bool) {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	v, ok := sh.m[key]
	if ok {
		delete(sh.m, key)
	}
	return v, ok
}

func (s *Sharded[K, V]) RemoveIf(key K, cond func(V) bool) (V, bool) {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	v, ok := sh.m[key]
	if !ok || !cond(v) {
		var zero V
		return zero, false
	}
	delete(sh.m, key)
	return v, true
}

func (s *Sharded[K, V]) RemoveFunc(cond func(K, V) bool) []V {
	var out []V
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for k, v := range sh.m {
			if cond(k, v) {
				delete(sh.m, k)
				out = append(out, v)
			}
		}
		sh.mu.Unlock()
	}
	return out
}

func (s *Sharded[K, V]) Len() int {
	n := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		n += len(sh.m)
		sh.mu.RUnlock()
	}
	return n
}

// Range visits a snapshot of each shard; iter may mutate the map.
func (s *Sharded[K, V]) Range(iter func(K, V) bool) {
	type entry struct {
		k K
		v V
	}
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		snap := make([]entry, 0, len(sh.m))
		for k, v := range sh.m {
			snap = append(snap, entry{k, v})
		}
		sh.mu.RUnlock()
		for _, e := range snap {
			if !iter(e.k, e.v) {
				return
			}
		}
	}
}

func ceilPow2(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(n-1))
}
