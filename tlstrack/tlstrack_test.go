package tlstrack

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func TestTrackAllocFlushAndReadBack(t *testing.T) {
	dir := t.TempDir()
	policy := DefaultPolicy(42)
	policy.LargeRate = 1.0
	tr, err := Init(dir, policy)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	for i := 0; i < 5; i++ {
		tr.trackAlloc(uint64(0x1000+i), 100000, 7) // large bucket, 100% sampled
	}
	if err := tr.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	matches, _ := filepath.Glob(filepath.Join(dir, "memscope_thread_*.bin"))
	if len(matches) != 1 {
		t.Fatalf("expected exactly one .bin file, got %v", matches)
	}
	result, err := ReadSpillFile(matches[0])
	if err != nil {
		t.Fatalf("ReadSpillFile: %v", err)
	}
	if result.Truncated {
		t.Fatalf("cleanly finalized file reported truncated")
	}
	if len(result.Events) != 5 {
		t.Fatalf("len(Events) = %d, want 5", len(result.Events))
	}
}

func TestFreqFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	policy := DefaultPolicy(1)
	policy.LargeRate = 1.0
	tr, _ := Init(dir, policy)
	tr.trackAlloc(0x1, 999999, 3)
	tr.trackAlloc(0x2, 999999, 3)
	tr.trackAlloc(0x3, 999999, 9)
	if err := tr.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	matches, _ := filepath.Glob(filepath.Join(dir, "memscope_thread_*.freq"))
	if len(matches) != 1 {
		t.Fatalf("expected one .freq file, got %v", matches)
	}
	freq, err := ReadFreqFile(matches[0])
	if err != nil {
		t.Fatalf("ReadFreqFile: %v", err)
	}
	if freq[3] != 2 || freq[9] != 1 {
		t.Fatalf("unexpected frequency map: %+v", freq)
	}
}

func TestTruncatedSpillFileTolerated(t *testing.T) {
	dir := t.TempDir()
	policy := DefaultPolicy(7)
	policy.LargeRate = 1.0
	tr, _ := Init(dir, policy)
	tr.trackAlloc(0x10, 100000, 1)
	tr.trackAlloc(0x20, 100000, 1)
	tr.flush()
	tr.binFile.Close()
	registry.Delete(tr.gid)

	path := filepath.Join(dir, fmt.Sprintf("memscope_thread_%d.bin", tr.gid))
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	truncated := data[:len(data)-5]
	if err := os.WriteFile(path, truncated, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	result, err := ReadSpillFile(path)
	if err != nil {
		t.Fatalf("ReadSpillFile: %v", err)
	}
	if !result.Truncated {
		t.Fatalf("expected Truncated=true")
	}
	if len(result.Events) != 1 {
		t.Fatalf("expected to recover 1 whole event, got %d", len(result.Events))
	}
}
