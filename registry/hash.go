package registry

import (
	"crypto/rand"
	"encoding/binary"

	"github.com/minio/highwayhash"
)

// Hasher maps a key to a shard hash.
type Hasher[K any] func(key K) uint64

// NewKeyHasher hashes Keys with HighwayHash under a fresh random 256-bit key.
func NewKeyHasher() Hasher[Key] {
	return KeyHasher(randomKey())
}

// KeyHasher hashes Keys with HighwayHash under key, which must be 32 bytes.
func KeyHasher(key []byte) Hasher[Key] {
	if len(key) != highwayhash.Size {
		panic("registry: highwayhash key must be 32 bytes")
	}
	return func(k Key) uint64 {
		var buf [8]byte
		binary.LittleEndian.PutUint32(buf[0:], k.Self)
		binary.LittleEndian.PutUint32(buf[4:], k.Trampoline)
		return highwayhash.Sum64(buf[:], key)
	}
}

// NewUint32Hasher hashes uint32 keys with HighwayHash under a random key.
func NewUint32Hasher() Hasher[uint32] {
	key := randomKey()
	return func(v uint32) uint64 {
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], v)
		return highwayhash.Sum64(buf[:], key)
	}
}

func randomKey() []byte {
	key := make([]byte, highwayhash.Size)
	if _, err := rand.Read(key); err != nil {
		panic("registry: read random key: " + err.Error())
	}
	return key
}

// NewKeyMap creates a sharded map keyed by invocation context.
func NewKeyMap[V any](numShards int) *Sharded[Key, V] {
	return NewSharded[Key, V](numShards, NewKeyHasher())
}
