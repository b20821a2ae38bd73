package util

import "sync"

// --------------------------------------------------------------------------
// Hash Functions
// --------------------------------------------------------------------------

// HashString hashes a string with FNV-1a. The seed is xored into the offset
// basis; ownership uses seed 0 so every member computes the same owner.
func HashString(s string, seed uint64) uint64 {
	const (
		offset64 = 14695981039346656037
		prime64  = 1099511628211
	)

	hash := uint64(offset64) ^ seed
	for i := 0; i < len(s); i++ {
		hash ^= uint64(s[i])
		hash *= prime64
	}
	return hash
}

// mix64 is the murmur3 finalizer. FNV-1a leaves the low bits of a hash
// correlated with the input bytes, so two modulo reductions of the same
// FNV hash are not independent.
func mix64(h uint64) uint64 {
	h ^= h >> 33
	h *= 0xff51afd7ed558ccd
	h ^= h >> 33
	h *= 0xc4ceb53fe1a85ec3
	h ^= h >> 33
	return h
}

// --------------------------------------------------------------------------
// Lock Striping
// --------------------------------------------------------------------------

// Stripes is a fixed array of mutexes. Two keys with the same stripe
// serialise against each other, which is fine for short critical sections.
type Stripes struct {
	locks []sync.Mutex
}

// NewStripes creates n stripes (at least one).
func NewStripes(n int) *Stripes {
	if n < 1 {
		n = 1
	}
	return &Stripes{locks: make([]sync.Mutex, n)}
}

// For returns the mutex guarding the given key id.
func (s *Stripes) For(id string) *sync.Mutex {
	return &s.locks[s.index(id)]
}

// index spreads ids independently of ownership (seed 0), otherwise a member
// of an n member grid would only ever use a fraction of its stripes.
func (s *Stripes) index(id string) uint64 {
	return mix64(HashString(id, 1)) % uint64(len(s.locks))
}
