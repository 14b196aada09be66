// Package scope implements the scope tracker (spec C8): a per-goroutine
// stack of lexical scope ids plus a global scope tree, used to detect
// leaks (a record outliving the scope that owned it, §3.5) and to
// report per-scope allocation metrics (§4.7).
package scope

import (
	"sort"
	"sync"

	"github.com/go-memscope/memscope/clock"
)

// ID identifies one scope node in the global tree. The zero value
// means "no scope" (e.g. a variable annotated outside any explicit
// scope).
type ID uint32

// Metrics accumulates the incremental per-scope statistics §4.7
// requires: allocation count, total bytes, peak concurrent variables,
// and average variable lifetime.
type Metrics struct {
	AllocationCount   uint64
	TotalBytes        uint64
	ConcurrentVars    int
	PeakConcurrentVars int

	lifetimeSumNS uint64
	lifetimeN     uint64
}

// AverageLifetimeNS returns the mean lifetime, in nanoseconds, of
// variables associated with this scope that have since been released
// from it via Release (§4.7 tracks association lifetime, not
// allocation lifetime). Exit does not feed this average.
func (m *Metrics) AverageLifetimeNS() float64 {
	if m.lifetimeN == 0 {
		return 0
	}
	return float64(m.lifetimeSumNS) / float64(m.lifetimeN)
}

type node struct {
	id        ID
	parent    ID
	hasParent bool
	name      string
	enterTS   uint64
	exitTS    uint64
	exited    bool
	metrics   Metrics
}

// Tracker is the engine-wide scope tree plus the per-goroutine current
// scope chain.
type Tracker struct {
	mu      sync.Mutex
	nodes   map[ID]*node
	nextID  uint32
	current sync.Map // clock.GoroutineID -> ID (top of that goroutine's scope stack)
	stacks  sync.Map // clock.GoroutineID -> []ID (full chain, for Exit validation)
}

// New creates an empty scope tracker.
func New() *Tracker {
	return &Tracker{nodes: make(map[ID]*node)}
}

// Enter pushes a new scope named name onto the calling goroutine's
// scope chain and returns its id.
func (t *Tracker) Enter(name string) ID {
	t.mu.Lock()
	t.nextID++
	id := ID(t.nextID)
	n := &node{id: id, name: name, enterTS: clock.Now()}
	gid := clock.CurrentGoroutineID()
	if parent, ok := t.currentLocked(gid); ok {
		n.parent = parent
		n.hasParent = true
	}
	t.nodes[id] = n
	t.mu.Unlock()

	t.pushStack(gid, id)
	t.current.Store(gid, id)
	return id
}

// Exit seals id's exit timestamp. It does not discard the node — its
// metrics remain queryable — and it pops id off the calling
// goroutine's scope chain, restoring its parent as current.
func (t *Tracker) Exit(id ID) {
	t.mu.Lock()
	n, ok := t.nodes[id]
	if ok && !n.exited {
		n.exitTS = clock.Now()
		n.exited = true
	}
	var parent ID
	var hasParent bool
	if ok {
		parent, hasParent = n.parent, n.hasParent
	}
	t.mu.Unlock()

	gid := clock.CurrentGoroutineID()
	t.popStack(gid, id)
	if hasParent {
		t.current.Store(gid, parent)
	} else {
		t.current.Delete(gid)
	}
}

// Associate records that size bytes were attributed to variable under
// scope id, updating its incremental metrics (§4.7).
func (t *Tracker) Associate(id ID, variable string, size uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.nodes[id]
	if !ok {
		return
	}
	n.metrics.AllocationCount++
	n.metrics.TotalBytes += size
	n.metrics.ConcurrentVars++
	if n.metrics.ConcurrentVars > n.metrics.PeakConcurrentVars {
		n.metrics.PeakConcurrentVars = n.metrics.ConcurrentVars
	}
}

// Release is called when a variable leaves scope without being freed
// and without being leaked (e.g. moved to an outer scope); it feeds
// the variable's association lifetime into the scope's running
// average and decrements the concurrent-variable count.
func (t *Tracker) Release(id ID, associatedAtNS uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.nodes[id]
	if !ok {
		return
	}
	if n.metrics.ConcurrentVars > 0 {
		n.metrics.ConcurrentVars--
	}
	now := clock.Now()
	if now >= associatedAtNS {
		n.metrics.lifetimeSumNS += now - associatedAtNS
		n.metrics.lifetimeN++
	}
}

// CurrentOnGoroutine returns the scope id currently active on the
// calling goroutine, or 0 if none.
func (t *Tracker) CurrentOnGoroutine() ID {
	gid := clock.CurrentGoroutineID()
	t.mu.Lock()
	defer t.mu.Unlock()
	id, _ := t.currentLocked(gid)
	return id
}

// MetricsFor returns a copy of id's metrics and whether id exists.
func (t *Tracker) MetricsFor(id ID) (Metrics, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.nodes[id]
	if !ok {
		return Metrics{}, false
	}
	return n.metrics, true
}

// Exited reports whether id has been exited, and its exit timestamp
// if so.
func (t *Tracker) Exited(id ID) (ts uint64, exited bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.nodes[id]
	if !ok {
		return 0, false
	}
	return n.exitTS, n.exited
}

// NodeInfo is an exported, read-only view of one scope tree node, for
// package jsonexport's lifetime.json scope tree (§6.3).
type NodeInfo struct {
	ID        ID
	ParentID  ID
	HasParent bool
	Name      string
	EnterNS   uint64
	ExitNS    uint64
	Exited    bool
	Metrics   Metrics
}

// All returns every scope node in the tree, ordered by id, for export
// passes that need the full scope tree rather than one node at a
// time.
func (t *Tracker) All() []NodeInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]NodeInfo, 0, len(t.nodes))
	for _, n := range t.nodes {
		out = append(out, NodeInfo{
			ID:        n.id,
			ParentID:  n.parent,
			HasParent: n.hasParent,
			Name:      n.name,
			EnterNS:   n.enterTS,
			ExitNS:    n.exitTS,
			Exited:    n.exited,
			Metrics:   n.metrics,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (t *Tracker) currentLocked(gid clock.GoroutineID) (ID, bool) {
	v, ok := t.current.Load(gid)
	if !ok {
		return 0, false
	}
	return v.(ID), true
}

func (t *Tracker) pushStack(gid clock.GoroutineID, id ID) {
	v, _ := t.stacks.Load(gid)
	stack, _ := v.([]ID)
	stack = append(stack, id)
	t.stacks.Store(gid, stack)
}

func (t *Tracker) popStack(gid clock.GoroutineID, id ID) {
	v, _ := t.stacks.Load(gid)
	stack, _ := v.([]ID)
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == id {
			stack = append(stack[:i], stack[i+1:]...)
			break
		}
	}
	if len(stack) == 0 {
		t.stacks.Delete(gid)
		return
	}
	t.stacks.Store(gid, stack)
}
