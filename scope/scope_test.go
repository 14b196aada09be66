package scope

import "testing"

func TestEnterExitNesting(t *testing.T) {
	tr := New()
	outer := tr.Enter("outer")
	if tr.CurrentOnGoroutine() != outer {
		t.Fatalf("current scope should be outer")
	}
	inner := tr.Enter("inner")
	if tr.CurrentOnGoroutine() != inner {
		t.Fatalf("current scope should be inner")
	}
	tr.Exit(inner)
	if tr.CurrentOnGoroutine() != outer {
		t.Fatalf("exiting inner should restore outer as current")
	}
	if _, exited := tr.Exited(inner); !exited {
		t.Fatalf("inner should be marked exited")
	}
	tr.Exit(outer)
	if tr.CurrentOnGoroutine() != 0 {
		t.Fatalf("no scope should be current after exiting outer")
	}
}

func TestAssociateUpdatesMetrics(t *testing.T) {
	tr := New()
	id := tr.Enter("s")
	tr.Associate(id, "a", 100)
	tr.Associate(id, "b", 50)
	m, ok := tr.MetricsFor(id)
	if !ok {
		t.Fatalf("MetricsFor missing")
	}
	if m.AllocationCount != 2 || m.TotalBytes != 150 {
		t.Fatalf("unexpected metrics: %+v", m)
	}
	if m.PeakConcurrentVars != 2 {
		t.Fatalf("PeakConcurrentVars = %d, want 2", m.PeakConcurrentVars)
	}
}

func TestExitedNodeRetainsMetrics(t *testing.T) {
	tr := New()
	id := tr.Enter("s")
	tr.Associate(id, "a", 10)
	tr.Exit(id)
	m, ok := tr.MetricsFor(id)
	if !ok || m.AllocationCount != 1 {
		t.Fatalf("metrics should survive exit: %+v ok=%v", m, ok)
	}
}

func TestAllReturnsOrderedTree(t *testing.T) {
	tr := New()
	outer := tr.Enter("outer")
	inner := tr.Enter("inner")
	tr.Exit(inner)

	nodes := tr.All()
	if len(nodes) != 2 {
		t.Fatalf("len(All()) = %d, want 2", len(nodes))
	}
	if nodes[0].ID != outer || nodes[1].ID != inner {
		t.Fatalf("All() not ordered by id: %+v", nodes)
	}
	if nodes[0].HasParent {
		t.Fatalf("outer scope should have no parent")
	}
	if !nodes[1].HasParent || nodes[1].ParentID != outer {
		t.Fatalf("inner scope should have outer as parent: %+v", nodes[1])
	}
	if !nodes[1].Exited {
		t.Fatalf("inner scope should be marked exited")
	}
}
