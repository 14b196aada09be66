package intern

import (
	"fmt"
	"sync"
	"testing"
)

func TestInternResolve(t *testing.T) {
	tab := New()
	id1 := tab.Intern("Vec<i32>")
	id2 := tab.Intern("Vec<i32>")
	if id1 != id2 {
		t.Fatalf("interning the same string twice gave different ids: %d vs %d", id1, id2)
	}
	s, ok := tab.Resolve(id1)
	if !ok || s != "Vec<i32>" {
		t.Fatalf("Resolve(%d) = %q, %v; want Vec<i32>, true", id1, s, ok)
	}
}

func TestInternDistinctStrings(t *testing.T) {
	tab := New()
	ids := make(map[uint32]string)
	for i := 0; i < 500; i++ {
		s := fmt.Sprintf("type_%d", i)
		id := tab.Intern(s)
		if existing, ok := ids[id]; ok {
			t.Fatalf("id collision: %q and %q both got id %d", existing, s, id)
		}
		ids[id] = s
	}
	if tab.Len() != 500 {
		t.Fatalf("Len() = %d, want 500", tab.Len())
	}
}

func TestInternConcurrent(t *testing.T) {
	tab := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				tab.Intern("shared")
			}
		}()
	}
	wg.Wait()
	if tab.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", tab.Len())
	}
}

func TestResolveUnknown(t *testing.T) {
	tab := New()
	if _, ok := tab.Resolve(999999); ok {
		t.Fatalf("Resolve of unknown id unexpectedly succeeded")
	}
}
