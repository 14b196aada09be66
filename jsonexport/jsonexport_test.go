package jsonexport

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-memscope/memscope/intern"
	"github.com/go-memscope/memscope/record"
	"github.com/go-memscope/memscope/scope"
)

func sampleSource(strs *intern.Table) *SliceSource {
	name := strs.Intern("numbers")
	typ := strs.Intern("Vec<i32>")
	owned := &record.Allocation{
		ID: 1, Address: 0x1000, Size: 20, TimestampAlloc: 5, ThreadID: "g1",
		Kind: record.KindOwnedHeap, VarNameID: name, HasVarName: true, TypeNameID: typ, HasTypeName: true,
	}
	owned.MarkFreed(105)

	synthetic := &record.Allocation{
		ID: 2, Address: 0x2000, Size: 8, TimestampAlloc: 6, ThreadID: "g1",
		Kind: record.KindSynthetic, Synthetic: &record.SyntheticInfo{Reason: record.ReasonInferredFromSize},
	}

	arc := &record.Allocation{
		ID: 3, Address: 0x3000, Size: 16, TimestampAlloc: 7, ThreadID: "g2",
		Kind: record.KindSmartPointer, TypeNameID: typ, HasTypeName: true,
		SmartPointer: &record.SmartPointerInfo{PType: record.SmartArc, CloneOf: 1, HasCloneOf: true},
	}

	return NewSliceSource([]*record.Allocation{owned, synthetic, arc})
}

func TestStreamWritesFiveFilesWithRequiredKeys(t *testing.T) {
	dir := t.TempDir()
	strs := intern.New()
	scopes := scope.New()
	src := sampleSource(strs)
	base := filepath.Join(dir, "out")

	err := Stream(context.Background(), src, strs, scopes, base, Options{Source: SourceLiveStore, ExportTimestampNS: 1000})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	requiredKeys := map[string][]string{
		"_memory_analysis.json": {"metadata", "memory_stats", "allocations"},
		"_lifetime.json":        {"metadata", "scopes", "lifetime_events"},
		"_performance.json":     {"metadata", "throughput", "hottest_call_stacks"},
		"_unsafe_ffi.json":      {"metadata", "unsafe_operations", "ffi_boundaries"},
		"_complex_types.json":   {"metadata", "smart_pointer_graph", "generic_instantiations", "type_aliases"},
	}

	for suffix, keys := range requiredKeys {
		path := base + suffix
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read %s: %v", path, err)
		}
		var m map[string]json.RawMessage
		if err := json.Unmarshal(data, &m); err != nil {
			t.Fatalf("%s is not valid JSON: %v", path, err)
		}
		for _, k := range keys {
			if _, ok := m[k]; !ok {
				t.Errorf("%s missing required key %q", path, k)
			}
		}
		if containsWhitespace(data) {
			t.Errorf("%s should not be pretty-printed", path)
		}
	}
}

func TestStreamIsDeterministicAcrossRuns(t *testing.T) {
	dir := t.TempDir()
	strs := intern.New()
	scopes := scope.New()
	src := sampleSource(strs)

	base1 := filepath.Join(dir, "a")
	base2 := filepath.Join(dir, "b")
	opts := Options{Source: SourceLiveStore, ExportTimestampNS: 42}

	if err := Stream(context.Background(), src, strs, scopes, base1, opts); err != nil {
		t.Fatalf("Stream 1: %v", err)
	}
	if err := Stream(context.Background(), src, strs, scopes, base2, opts); err != nil {
		t.Fatalf("Stream 2: %v", err)
	}

	for _, suffix := range []string{"_memory_analysis.json", "_lifetime.json", "_performance.json", "_unsafe_ffi.json", "_complex_types.json"} {
		a, err := os.ReadFile(base1 + suffix)
		if err != nil {
			t.Fatalf("read %s: %v", base1+suffix, err)
		}
		b, err := os.ReadFile(base2 + suffix)
		if err != nil {
			t.Fatalf("read %s: %v", base2+suffix, err)
		}
		if string(a) != string(b) {
			t.Errorf("%s output not deterministic across identical runs", suffix)
		}
	}
}

func TestStreamReportsMultiErrorOnUnwritableBase(t *testing.T) {
	strs := intern.New()
	scopes := scope.New()
	src := sampleSource(strs)

	err := Stream(context.Background(), src, strs, scopes, "/nonexistent-dir/out", Options{})
	if err == nil {
		t.Fatalf("expected an error for an unwritable base path")
	}
	multi, ok := err.(*MultiError)
	if !ok {
		t.Fatalf("expected *MultiError, got %T: %v", err, err)
	}
	if len(multi.Errors) != 5 {
		t.Fatalf("expected all 5 files to fail, got %d", len(multi.Errors))
	}
}

func TestStreamRejectsCanceledContext(t *testing.T) {
	dir := t.TempDir()
	strs := intern.New()
	scopes := scope.New()
	src := sampleSource(strs)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Stream(ctx, src, strs, scopes, filepath.Join(dir, "out"), Options{})
	if err == nil {
		t.Fatalf("expected an error for an already-canceled context")
	}
	if _, statErr := os.Stat(filepath.Join(dir, "out_memory_analysis.json")); statErr == nil {
		t.Fatalf("expected no files to be created for a canceled context")
	}
}

func TestPerformanceThroughputBucketsSumToRecordCount(t *testing.T) {
	dir := t.TempDir()
	strs := intern.New()
	scopes := scope.New()
	src := sampleSource(strs)
	base := filepath.Join(dir, "out")

	if err := Stream(context.Background(), src, strs, scopes, base, Options{ExportTimestampNS: 1}); err != nil {
		t.Fatalf("Stream: %v", err)
	}

	data, err := os.ReadFile(base + "_performance.json")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var doc struct {
		Throughput struct {
			AllocationsOverTime []uint64 `json:"allocations_over_time"`
		} `json:"throughput"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(doc.Throughput.AllocationsOverTime) != throughputBuckets {
		t.Fatalf("len(allocations_over_time) = %d, want %d", len(doc.Throughput.AllocationsOverTime), throughputBuckets)
	}
	var sum uint64
	for _, c := range doc.Throughput.AllocationsOverTime {
		sum += c
	}
	if sum != uint64(src.Len()) {
		t.Fatalf("sum(allocations_over_time) = %d, want %d", sum, src.Len())
	}
}

func containsWhitespace(data []byte) bool {
	for _, b := range data {
		if b == ' ' || b == '\n' || b == '\t' {
			return true
		}
	}
	return false
}
