// Package ringhash implements the deterministic, monotone placement
// primitive behind the client's worker selection: a MurmurHash3-32 keyed
// consistent-hash ring with ceiling-with-wraparound lookup.
//
// The ring itself is immutable after construction; a Manager (see the
// sibling ring package) publishes new rings by atomic swap rather than
// mutating one in place.
package ringhash

import (
	"encoding/binary"
	"sort"

	"github.com/spaolacci/murmur3"

	"ufscache/pkg/worker"
)

// entry is one virtual-node slot on the ring.
type entry struct {
	key      int32
	identity worker.Identity
}

// Ring is an ordered, immutable mapping from a 32-bit signed hash key to a
// worker identity, built with V virtual nodes per worker.
type Ring struct {
	entries []entry // sorted by key ascending
}

// hash32 computes MurmurHash3-32 with seed 0 over data.
func hash32(data []byte) int32 {
	return int32(murmur3.Sum32(data))
}

// VirtualNodeKey returns the ring key for worker w's i'th virtual node:
// hash3_32(identifier ‖ version_le4 ‖ i_le4).
func VirtualNodeKey(w worker.Identity, i uint32) int32 {
	buf := w.Bytes() // identifier ‖ version_le4
	var idx [4]byte
	binary.LittleEndian.PutUint32(idx[:], i)
	return hash32(append(buf, idx[:]...))
}

// LookupKey returns the ring key for a request against path p on attempt a
// (1-based): hash3_32(utf8(p) ‖ a_le4).
func LookupKey(p string, a uint32) int32 {
	buf := []byte(p)
	var av [4]byte
	binary.LittleEndian.PutUint32(av[:], a)
	return hash32(append(buf, av[:]...))
}

// Build constructs a new Ring with v virtual nodes per identity in ids. v
// must be >= 1. Collisions on the same key are broken by last-writer-wins in
// iteration order of ids — callers that need a deterministic tie-break
// should pass ids in a deterministic order; the ring itself does not sort
// its inputs before inserting.
func Build(ids []worker.Identity, v int) *Ring {
	if v < 1 {
		v = 1
	}
	m := make(map[int32]worker.Identity, len(ids)*v)
	for _, id := range ids {
		for i := uint32(0); i < uint32(v); i++ {
			m[VirtualNodeKey(id, i)] = id
		}
	}
	entries := make([]entry, 0, len(m))
	for k, id := range m {
		entries = append(entries, entry{key: k, identity: id})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].key < entries[j].key })
	return &Ring{entries: entries}
}

// Len returns the number of distinct virtual-node entries on the ring.
func (r *Ring) Len() int {
	if r == nil {
		return 0
	}
	return len(r.entries)
}

// Ceil returns the identity at the smallest key strictly greater than k, or
// — if k is greater than or equal to every key on the ring — the identity at
// the smallest key (wraparound). Ceil's second return is false iff the ring
// holds no entries.
func (r *Ring) Ceil(k int32) (worker.Identity, bool) {
	if r == nil || len(r.entries) == 0 {
		return worker.Identity{}, false
	}
	idx := sort.Search(len(r.entries), func(i int) bool {
		return r.entries[i].key > k
	})
	if idx == len(r.entries) {
		idx = 0
	}
	return r.entries[idx].identity, true
}

// Keys returns the ring's entries in ascending key order, for testing.
func (r *Ring) Keys() []int32 {
	if r == nil {
		return nil
	}
	out := make([]int32, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.key
	}
	return out
}
