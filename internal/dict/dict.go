package dict

import (
	"sort"

	"github.com/cespare/xxhash/v2"
	"github.com/rsms/go-bits"
)

// Dictionary is the process-wide key→value map, partitioned into a fixed
// number of independently lockable shards (spec §3). Keys are compared
// bitwise; shard assignment is hash(key) mod N via a high-throughput,
// non-cryptographic hash (xxhash) uniform over arbitrary byte strings.
type Dictionary struct {
	shards []*shard
	mask   uint64
}

// New constructs a Dictionary with shardCount shards. shardCount must be a
// power of two (spec §3: "N is a power of two, typically >= 16"); this is
// checked with a population count rather than the usual `n & (n-1) == 0`
// trick so the check doubles as a direct translation of "exactly one bit
// set".
func New(shardCount int) (*Dictionary, error) {
	if shardCount <= 0 || bits.PopcountUint64(uint64(shardCount)) != 1 {
		return nil, ErrShardCount
	}
	d := &Dictionary{
		shards: make([]*shard, shardCount),
		mask:   uint64(shardCount - 1),
	}
	for i := range d.shards {
		d.shards[i] = newShard()
	}
	return d, nil
}

// ShardCount returns the number of shards the dictionary was built with.
func (d *Dictionary) ShardCount() int { return len(d.shards) }

// Len returns the total number of keys across all shards. It is not a
// point-in-time-consistent snapshot across shards under concurrent
// mutation, only a sum of each shard's own consistent count.
func (d *Dictionary) Len() int {
	n := 0
	for _, s := range d.shards {
		n += s.len()
	}
	return n
}

func (d *Dictionary) shardIndex(key []byte) int {
	return int(xxhash.Sum64(key) & d.mask)
}

func (d *Dictionary) shardFor(key []byte) *shard {
	return d.shards[d.shardIndex(key)]
}

// Get returns the value stored at key, if any. Only a shared (read) lock
// is held.
func (d *Dictionary) Get(key []byte) (Value, bool) {
	return d.shardFor(key).get(key)
}

// Set stores value at key, overwriting any prior value, and reports
// whether the key was already present. key and value must be owned by the
// caller (the dictionary takes them as-is and never aliases them back into
// a reused buffer).
func (d *Dictionary) Set(key []byte, value Value) bool {
	return d.shardFor(key).set(string(key), value)
}

// Del removes each of keys and returns the count actually removed. Keys
// are grouped by shard so each shard's lock is taken at most once for the
// whole call, locked in ascending shard order.
func (d *Dictionary) Del(keys [][]byte) int {
	groups := d.groupByShard(keys)
	n := 0
	for _, idx := range groups.order {
		s := d.shards[idx]
		s.mu.Lock()
		for _, ki := range groups.byShard[idx] {
			k := string(keys[ki])
			if _, ok := s.m[k]; ok {
				delete(s.m, k)
				n++
			}
		}
		s.mu.Unlock()
	}
	return n
}

// Exists returns how many of keys are present, grouped and locked the same
// way as Del.
func (d *Dictionary) Exists(keys [][]byte) int {
	groups := d.groupByShard(keys)
	n := 0
	for _, idx := range groups.order {
		s := d.shards[idx]
		s.mu.RLock()
		for _, ki := range groups.byShard[idx] {
			if _, ok := s.m[string(keys[ki])]; ok {
				n++
			}
		}
		s.mu.RUnlock()
	}
	return n
}

// Incr parses the current value (absent reads as 0) as a base-10 signed
// 64-bit integer, adds one, and stores the result — atomically under a
// single shard lock, so concurrent INCRs on the same key never tear.
func (d *Dictionary) Incr(key []byte) (int64, error) {
	s := d.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	k := string(key)
	cur, ok := s.m[k]
	var n int64
	if ok {
		v, valid := cur.asInt64()
		if !valid {
			return 0, ErrNotAnInteger
		}
		n = v
	}
	if n == 1<<63-1 {
		return 0, ErrNotAnInteger
	}
	n++
	s.m[k] = NewIntValue(n)
	return n, nil
}

// Rename moves the value at src to dst, overwriting dst unconditionally.
// Both shards (or the single shard, if src and dst collide) are locked for
// the duration so a concurrent reader never observes a state where both
// src and dst are absent, or both present with the old value still under
// src. Locks are acquired in ascending shard-index order to avoid
// deadlocking against a concurrent Rename of the reverse pair.
func (d *Dictionary) Rename(src, dst []byte) error {
	si, di := d.shardIndex(src), d.shardIndex(dst)
	if si == di {
		s := d.shards[si]
		s.mu.Lock()
		defer s.mu.Unlock()
		v, ok := s.m[string(src)]
		if !ok {
			return ErrNoSuchKey
		}
		delete(s.m, string(src))
		s.m[string(dst)] = v
		return nil
	}

	lo, hi := si, di
	if lo > hi {
		lo, hi = hi, lo
	}
	d.shards[lo].mu.Lock()
	defer d.shards[lo].mu.Unlock()
	d.shards[hi].mu.Lock()
	defer d.shards[hi].mu.Unlock()

	srcShard, dstShard := d.shards[si], d.shards[di]
	v, ok := srcShard.m[string(src)]
	if !ok {
		return ErrNoSuchKey
	}
	delete(srcShard.m, string(src))
	dstShard.m[string(dst)] = v
	return nil
}

// MGet returns, for each key, its value and presence in input order. Reads
// are grouped by shard internally, but the result order always matches
// the argument order (spec §4.B).
func (d *Dictionary) MGet(keys [][]byte) ([]Value, []bool) {
	values := make([]Value, len(keys))
	present := make([]bool, len(keys))
	groups := d.groupByShard(keys)
	for _, idx := range groups.order {
		s := d.shards[idx]
		s.mu.RLock()
		for _, ki := range groups.byShard[idx] {
			v, ok := s.m[string(keys[ki])]
			values[ki] = v
			present[ki] = ok
		}
		s.mu.RUnlock()
	}
	return values, present
}

// MSet stores every key/value pair. Pairs are grouped by shard so each
// shard's lock is acquired once for all of its assigned pairs; atomicity
// is per-shard, not cross-shard (spec §4.B).
func (d *Dictionary) MSet(keys [][]byte, values [][]byte) {
	groups := d.groupByShard(keys)
	for _, idx := range groups.order {
		s := d.shards[idx]
		s.mu.Lock()
		for _, ki := range groups.byShard[idx] {
			s.m[string(keys[ki])] = NewStringValue(values[ki])
		}
		s.mu.Unlock()
	}
}

// shardGroups maps shard index to the indices (into the caller's key
// slice) assigned to it, plus the shard indices touched in ascending
// order.
type shardGroups struct {
	byShard map[int][]int
	order   []int
}

func (d *Dictionary) groupByShard(keys [][]byte) shardGroups {
	g := shardGroups{byShard: make(map[int][]int, len(keys))}
	for i, k := range keys {
		idx := d.shardIndex(k)
		g.byShard[idx] = append(g.byShard[idx], i)
	}
	g.order = make([]int, 0, len(g.byShard))
	for idx := range g.byShard {
		g.order = append(g.order, idx)
	}
	sort.Ints(g.order)
	return g
}
