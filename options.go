package flashkv

import (
	"hash"
	"hash/fnv"
)

// Options configures a Store.
type Options struct {
	// NewHash returns a fresh 64-bit hash instance. See WithHasher for
	// the contract it must satisfy.
	NewHash func() hash.Hash64
}

// Option is a functional option for configuring New.
type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		NewHash: func() hash.Hash64 { return fnv.New64a() },
	}
}

// WithHasher sets the key-hash function, used both to map keys to
// regions and to checksum stored objects. The default is 64-bit FNV-1a.
//
// The function must be deterministic for identical input across
// process restarts, since digests are persisted and compared, and must
// never produce 0 or 0xFFFF_FFFF_FFFF_FFFF for any input: those values
// are reserved on flash and trip a panic. The engine does not detect
// two distinct keys hashing to the same 64 bits; they alias the same
// stored object. Changing the hash function invalidates all existing
// flash contents.
func WithHasher(newHash func() hash.Hash64) Option {
	return func(o *Options) {
		if newHash != nil {
			o.NewHash = newHash
		}
	}
}
