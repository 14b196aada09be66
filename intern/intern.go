// Package intern implements the engine's string interner (spec C3): a
// threadsafe, append-only map from string to a compact 32-bit ID, used
// to deduplicate type names, variable names, and scope names.
package intern

import (
	"hash/fnv"
	"sync"
)

const shardCount = 16

// Table is a lock-striped string interner. It never deletes entries,
// so Resolve results remain valid for the lifetime of the Table.
type Table struct {
	shards [shardCount]shard
}

type shard struct {
	mu      sync.RWMutex
	byStr   map[string]uint32
	byID    []string
	idBase  uint32 // first ID owned by this shard
}

// New creates an empty interner.
func New() *Table {
	t := &Table{}
	for i := range t.shards {
		t.shards[i].byStr = make(map[string]uint32)
		t.shards[i].idBase = uint32(i)
	}
	return t
}

func shardFor(s string) int {
	h := fnv.New32a()
	h.Write([]byte(s))
	return int(h.Sum32()) % shardCount
}

// Intern returns a stable ID for s, allocating a new one on first
// sight. IDs are unique across the whole Table, not just within a
// shard: they're constructed as idBase + n*shardCount so each shard
// can allocate independently without a global lock.
func (t *Table) Intern(s string) uint32 {
	si := shardFor(s)
	sh := &t.shards[si]

	sh.mu.RLock()
	if id, ok := sh.byStr[s]; ok {
		sh.mu.RUnlock()
		return id
	}
	sh.mu.RUnlock()

	sh.mu.Lock()
	defer sh.mu.Unlock()
	if id, ok := sh.byStr[s]; ok {
		return id
	}
	n := uint32(len(sh.byID))
	id := sh.idBase + n*shardCount
	sh.byID = append(sh.byID, s)
	sh.byStr[s] = id
	return id
}

// Resolve returns the string associated with id, and whether it was
// found.
func (t *Table) Resolve(id uint32) (string, bool) {
	si := int(id % shardCount)
	sh := &t.shards[si]
	n := (id - sh.idBase) / shardCount

	sh.mu.RLock()
	defer sh.mu.RUnlock()
	if int(n) >= len(sh.byID) {
		return "", false
	}
	return sh.byID[n], true
}

// All returns every interned (id, string) pair. Used by package
// snapshot to dump the full string table on export; the returned map
// is a fresh copy safe for the caller to keep.
func (t *Table) All() map[uint32]string {
	out := make(map[uint32]string)
	for i := range t.shards {
		sh := &t.shards[i]
		sh.mu.RLock()
		for n, s := range sh.byID {
			id := sh.idBase + uint32(n)*shardCount
			out[id] = s
		}
		sh.mu.RUnlock()
	}
	return out
}

// Len returns the total number of interned strings.
func (t *Table) Len() int {
	total := 0
	for i := range t.shards {
		t.shards[i].mu.RLock()
		total += len(t.shards[i].byID)
		t.shards[i].mu.RUnlock()
	}
	return total
}
