package memscope

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-memscope/memscope/annotate"
	"github.com/go-memscope/memscope/config"
	"github.com/go-memscope/memscope/snapshot"
	"github.com/go-memscope/memscope/tlstrack"
)

func TestAnnotateTracksActiveAllocation(t *testing.T) {
	e := New(config.Config{})

	s := annotate.NewTrackedString("hello")
	rec, err := e.Annotate(s, "greeting", "string")
	if err != nil {
		t.Fatalf("Annotate: %v", err)
	}
	if rec.Size != 5 {
		t.Fatalf("Size = %d, want 5", rec.Size)
	}

	stats := e.CurrentStats()
	if stats.ActiveAllocationCount != 1 {
		t.Fatalf("ActiveAllocationCount = %d, want 1", stats.ActiveAllocationCount)
	}
}

func TestExitScopeMarksLeaked(t *testing.T) {
	e := New(config.Config{})

	handle := e.EnterScope("block")
	v := annotate.NewTrackedString("leaked")
	rec, err := e.Annotate(v, "x", "string")
	if err != nil {
		t.Fatalf("Annotate: %v", err)
	}

	e.ExitScope(handle)

	if rec.Enrichments == nil || !rec.Enrichments.IsLeaked {
		t.Fatalf("expected record to be marked leaked after its scope exited")
	}
	stats := e.CurrentStats()
	if stats.LeakedAllocationCount != 1 {
		t.Fatalf("LeakedAllocationCount = %d, want 1", stats.LeakedAllocationCount)
	}
}

func TestExportSnapshotRoundTrips(t *testing.T) {
	e := New(config.Config{})
	v := annotate.NewTrackedString("payload")
	if _, err := e.Annotate(v, "x", "string"); err != nil {
		t.Fatalf("Annotate: %v", err)
	}

	path := filepath.Join(t.TempDir(), "out.memscope")
	if err := e.ExportSnapshot(path, snapshot.ModeFull); err != nil {
		t.Fatalf("ExportSnapshot: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	snap, status, err := snapshot.Read(f)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if status.Truncated {
		t.Fatalf("unexpected truncation: %+v", status)
	}
	if len(snap.Records) != 1 {
		t.Fatalf("len(Records) = %d, want 1", len(snap.Records))
	}
}

func TestExportJSONWritesFiveFiles(t *testing.T) {
	e := New(config.Config{})
	v := annotate.NewTrackedString("payload")
	if _, err := e.Annotate(v, "x", "string"); err != nil {
		t.Fatalf("Annotate: %v", err)
	}

	base := filepath.Join(t.TempDir(), "run")
	if err := e.ExportJSON(context.Background(), base); err != nil {
		t.Fatalf("ExportJSON: %v", err)
	}

	for _, suffix := range []string{
		"_memory_analysis.json", "_lifetime.json", "_performance.json",
		"_unsafe_ffi.json", "_complex_types.json",
	} {
		if _, err := os.Stat(base + suffix); err != nil {
			t.Fatalf("missing %s: %v", suffix, err)
		}
	}
}

func TestShutdownDisablesHook(t *testing.T) {
	e := New(config.Config{})
	if !e.Hook().Enabled() {
		t.Fatalf("expected hook enabled before Shutdown")
	}
	if err := e.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if e.Hook().Enabled() {
		t.Fatalf("expected hook disabled after Shutdown")
	}
	// Idempotent.
	if err := e.Shutdown(); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
}

func TestDefaultBasePathMatchesLayout(t *testing.T) {
	e := New(config.Config{OutputDir: "MemoryAnalysis"})
	got := e.DefaultBasePath("myproj")
	want := filepath.Join("MemoryAnalysis", "myproj", "myproj")
	if got != want {
		t.Fatalf("DefaultBasePath = %q, want %q", got, want)
	}
}

func TestThreadLocalTrackingRoundTripsThroughAggregation(t *testing.T) {
	e := New(config.Config{OutputDir: t.TempDir()})

	tr, err := e.InitThreadLocalTracking(tlstrack.DefaultPolicy(1))
	if err != nil {
		t.Fatalf("InitThreadLocalTracking: %v", err)
	}
	tlstrack.TrackAlloc(0x9000, 128, 0)
	tlstrack.TrackDealloc(0x9000, 0)
	if err := tr.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	_, report, err := e.MergeThreadSpills(e.cfg.OutputDir)
	if err != nil {
		t.Fatalf("MergeThreadSpills: %v", err)
	}
	if report == nil {
		t.Fatalf("expected a non-nil report")
	}
}

func TestPackageLevelInitIsIdempotent(t *testing.T) {
	defaultMu.Lock()
	defaultEngine = nil
	defaultMu.Unlock()

	if !Init() {
		t.Fatalf("first Init() should report fresh=true")
	}
	if Init() {
		t.Fatalf("second Init() should report fresh=false")
	}
}
