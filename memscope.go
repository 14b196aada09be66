// Package memscope is the engine's host-program API (spec §6.1): a
// process-wide singleton wiring every subsystem (C1-C13) into the seven
// calls a host program makes — Init, Annotate, EnterScope/ExitScope,
// CurrentStats, ExportSnapshot, ExportJSON, and Shutdown.
//
// A process-wide singleton is an unusual shape for a Go library, but
// it is the same shape net/http/pprof and expvar use for instrumentation
// that a host links in once and calls from anywhere without threading
// a handle through every call site: a package-level default instance
// built on top of an exported, independently constructible type (here
// Engine), so tests and hosts that want more than one isolated engine
// still can.
package memscope

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-memscope/memscope/aggregate"
	"github.com/go-memscope/memscope/annotate"
	"github.com/go-memscope/memscope/callstack"
	"github.com/go-memscope/memscope/clock"
	"github.com/go-memscope/memscope/config"
	"github.com/go-memscope/memscope/enrich"
	"github.com/go-memscope/memscope/hook"
	"github.com/go-memscope/memscope/intern"
	"github.com/go-memscope/memscope/jsonexport"
	"github.com/go-memscope/memscope/rangecheck"
	"github.com/go-memscope/memscope/record"
	"github.com/go-memscope/memscope/scope"
	"github.com/go-memscope/memscope/snapshot"
	"github.com/go-memscope/memscope/store"
	"github.com/go-memscope/memscope/tlstrack"
)

// MemoryStats is the snapshot of aggregate counters CurrentStats
// returns (§6.1's "MemoryStats"); it is exactly the central store's
// Stats, re-exported under the host-facing name.
type MemoryStats = store.Stats

// Trackable is re-exported from package annotate so callers of
// Annotate don't need a second import for the capability interface
// their types must implement (§4.6).
type Trackable = annotate.Trackable

// callStackStride is the default call-stack capture sampling stride
// (§4.9's dual-dimension policy is applied inside package tlstrack;
// package hook applies only this stride, used only for
// stacks attached directly to Engine.hook's Alloc/Free calls).
const callStackStride = 1

// Engine is one fully wired instance of the engine: store, interner,
// scope tracker, allocator hook, and annotator, plus the
// configuration they were built from. The zero value is not usable;
// construct with New.
type Engine struct {
	cfg config.Config

	store     *store.Store
	strings   *intern.Table
	scopes    *scope.Tracker
	hook      *hook.Hook
	annotator *annotate.Annotator

	shutdownOnce sync.Once
}

// New wires a fresh Engine from cfg. Most hosts want the package-level
// singleton (Init and the top-level functions) instead; New is
// exported for tests and for hosts that need more than one
// independently configured instance.
func New(cfg config.Config) *Engine {
	clock.Init()

	validateSyntheticRanges()

	st := store.New(cfg.HistoryCap)
	st.FastMode.Store(cfg.FastMode)

	e := &Engine{
		cfg:     cfg,
		store:   st,
		strings: intern.New(),
		scopes:  scope.New(),
		hook:    hook.New(st, callStackStride),
	}
	e.hook.SetEnabled(!cfg.DisableHook)
	e.annotator = annotate.New(st, e.strings, e.scopes, cfg.FastMode)
	return e
}

// validateSyntheticRanges runs rangecheck.Validate against the
// synthetic address bases package annotate fabricates pointers from,
// logging and continuing on failure rather than aborting (§4.14:
// "nothing in the core aborts the host process on a tracking
// failure"). The ranges themselves are a generous span above each
// base; annotate hands out offsets within them one clock.NextID() at
// a time; see annotate.go's fabricateAddress.
func validateSyntheticRanges() {
	const syntheticRangeSize = 1 << 40
	ranges := []rangecheck.AddressRange{
		{Name: "smart_pointer", Base: 0x7F00_0000_0000, Size: syntheticRangeSize},
		{Name: "generic_synthetic", Base: 0x7F10_0000_0000, Size: syntheticRangeSize},
	}
	if err := rangecheck.Validate(ranges...); err != nil {
		log.Printf("memscope: synthetic address range validation failed, continuing anyway: %v", err)
	}
}

// Annotate implements annotate(var_reference, name) (§6.1, §4.6).
// typeName is the Go-domain elaboration of the spec's single-argument
// macro form: Go has no macro that can capture a literal's static
// type name the way the source language's does, so callers pass it
// explicitly.
func (e *Engine) Annotate(v Trackable, name, typeName string) (*record.Allocation, error) {
	return e.annotator.Annotate(v, name, typeName)
}

// EnterScope implements enter_scope(name) -> scope_handle (§6.1).
func (e *Engine) EnterScope(name string) scope.ID {
	return e.scopes.Enter(name)
}

// ExitScope implements exit_scope(scope_handle) (§6.1). Any record
// still active and associated with handle is marked leaked
// immediately (§3.5, §8.1 P8) — this is the live, real-time leak
// detection path; package enrich's LeakCandidacy reruns the same
// classification offline, for records loaded from a saved snapshot
// where no live scope.Tracker observed the exit.
func (e *Engine) ExitScope(handle scope.ID) {
	e.scopes.Exit(handle)
	for _, r := range e.store.AllActive() {
		if r.HasScopeID && scope.ID(r.ScopeID) == handle {
			e.store.MarkLeaked(r)
			if r.Enrichments == nil {
				r.Enrichments = &record.Enrichments{FragmentationGroup: -1}
			}
			r.Enrichments.IsLeaked = true
		}
	}
}

// CurrentStats implements current_stats() -> MemoryStats (§6.1).
func (e *Engine) CurrentStats() MemoryStats {
	return e.store.Snapshot()
}

// snapshotFragmentationBuckets sizes the fragmentation histogram ADVD
// segment attached to every exported snapshot, matching jsonexport's
// own default bucket count so the two exports stay comparable.
const snapshotFragmentationBuckets = 10

// ExportSnapshot implements export_snapshot(path, mode) (§6.1, §4.10):
// it writes every currently known record (history, oldest first, then
// active) as a bit-exact binary snapshot to path, with a fragmentation
// histogram and a concurrency summary attached as ADVD segments (C13
// analysis folded into the exported file rather than requiring a
// second pass over a loaded snapshot to reconstruct them).
func (e *Engine) ExportSnapshot(path string, mode snapshot.ExportMode) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("memscope: export snapshot: %w", err)
	}
	defer f.Close()

	active := e.store.AllActive()
	records := e.store.AllHistory()
	records = append(records, active...)
	src := snapshot.NewSliceSource(records)

	histogram := enrich.FragmentationHistogram(active, snapshotFragmentationBuckets)
	summary := enrich.Summarize(records)
	metrics := []snapshot.MetricSegment{
		enrich.EncodeFragmentationSegment(histogram),
		enrich.EncodeConcurrencySegment(summary),
	}

	return snapshot.Write(f, src, e.strings, e.hook.Stacks(), mode, metrics)
}

// ExportJSON implements export_json(base_path) (§6.1, §4.11): it
// streams the five category JSON files derived from the live store to
// <base_path>_<category>.json.
func (e *Engine) ExportJSON(ctx context.Context, basePath string) error {
	records := e.store.AllHistory()
	records = append(records, e.store.AllActive()...)
	src := jsonexport.NewSliceSource(records)

	stats := e.store.Snapshot()
	opts := jsonexport.Options{
		Source:                jsonexport.SourceLiveStore,
		ActiveAllocationCount: int(stats.ActiveAllocationCount),
		CallStacks:            e.hook.Stacks().AllSymbolized(),
	}
	return jsonexport.Stream(ctx, src, e.strings, e.scopes, basePath, opts)
}

// DefaultBasePath joins the engine's configured output directory with
// the filesystem layout §6.2 specifies: MemoryAnalysis/<project_name>/<project_name>.
func (e *Engine) DefaultBasePath(projectName string) string {
	dir := filepath.Join(e.cfg.OutputDir, projectName)
	return filepath.Join(dir, projectName)
}

// EnsureOutputDir creates the directory component of
// DefaultBasePath(projectName), for hosts that want the default
// layout without managing directories themselves.
func (e *Engine) EnsureOutputDir(projectName string) error {
	dir := filepath.Join(e.cfg.OutputDir, projectName)
	return os.MkdirAll(dir, 0o755)
}

// Shutdown implements shutdown() (§6.1): it disables the hook (no
// further tracking events are recorded) and releases nothing else —
// the store, interner, and scope tracker are plain in-memory
// structures with no file handles or goroutines of their own to stop.
// Idempotent: a second call is a no-op.
func (e *Engine) Shutdown() error {
	e.shutdownOnce.Do(func() {
		e.hook.SetEnabled(false)
	})
	return nil
}

// Hook returns the engine's allocator-hook facade, for host code that
// wants to call hook.TrackedAlloc directly rather than going through
// Annotate (§4.4).
func (e *Engine) Hook() *hook.Hook { return e.hook }

// InitThreadLocalTracking opts the calling goroutine into C9's
// per-goroutine lock-free tracker instead of the central store's
// try-lock path, spilling events to per-thread .bin/.freq files under
// the engine's configured output directory (§4.8, §6.2). It is a
// separate, higher-throughput tracking mode from the rest of Engine:
// events recorded through the returned Tracker (via the package-level
// tlstrack.TrackAlloc/TrackDealloc while it is current) never reach
// e's store directly — MergeThreadSpills (or the package-level
// AggregateThreadSpills) reconstructs them from the spilled files
// later, offline.
func (e *Engine) InitThreadLocalTracking(policy tlstrack.SamplingPolicy) (*tlstrack.Tracker, error) {
	if err := os.MkdirAll(e.cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("memscope: init thread-local tracking: %w", err)
	}
	return tlstrack.Init(e.cfg.OutputDir, policy)
}

// MergeThreadSpills implements C10's offline aggregation step: it
// discovers every per-thread .bin/.freq file InitThreadLocalTracking
// produced under dir, reconstructs a unified snapshot from them, and
// computes the cross-thread Report (§4.9).
func (e *Engine) MergeThreadSpills(dir string) (*snapshot.Snapshot, *aggregate.Report, error) {
	return aggregate.Merge(dir)
}

// Strings returns the engine's string interner, for host code
// resolving interned IDs outside of the export paths.
func (e *Engine) Strings() *intern.Table { return e.strings }

var (
	defaultMu     sync.Mutex
	defaultEngine *Engine
)

// Init implements init() (§6.1): it builds the package-level engine
// from MEMSCOPE_-prefixed environment variables (§6.5) and installs
// it as the target of every top-level function in this package.
// Idempotent: a second call reports false and leaves the existing
// engine in place rather than replacing it mid-flight.
func Init() (fresh bool) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultEngine != nil {
		return false
	}
	defaultEngine = New(config.FromEnv())
	return true
}

// current returns the package-level engine, initializing it
// implicitly on first use (mirroring package clock's Init/Now
// contract) so a host that forgets the explicit Init call still gets
// a working engine rather than a nil-pointer panic. Hosts should still
// call Init explicitly so configuration is read, and the epoch
// pinned, at startup rather than at first use.
func current() *Engine {
	defaultMu.Lock()
	if defaultEngine == nil {
		defaultMu.Unlock()
		Init()
		defaultMu.Lock()
	}
	defer defaultMu.Unlock()
	return defaultEngine
}

// Annotate calls Annotate on the package-level engine.
func Annotate(v Trackable, name, typeName string) (*record.Allocation, error) {
	return current().Annotate(v, name, typeName)
}

// EnterScope calls EnterScope on the package-level engine.
func EnterScope(name string) scope.ID { return current().EnterScope(name) }

// ExitScope calls ExitScope on the package-level engine.
func ExitScope(handle scope.ID) { current().ExitScope(handle) }

// CurrentStats calls CurrentStats on the package-level engine.
func CurrentStats() MemoryStats { return current().CurrentStats() }

// ExportSnapshot calls ExportSnapshot on the package-level engine.
func ExportSnapshot(path string, mode snapshot.ExportMode) error {
	return current().ExportSnapshot(path, mode)
}

// ExportJSON calls ExportJSON on the package-level engine.
func ExportJSON(ctx context.Context, basePath string) error {
	return current().ExportJSON(ctx, basePath)
}

// Shutdown calls Shutdown on the package-level engine.
func Shutdown() error { return current().Shutdown() }

// Stacks exposes the package-level engine's call-stack normalizer, for
// host code building its own jsonexport.Options outside of ExportJSON.
func Stacks() *callstack.Normalizer { return current().hook.Stacks() }

// InitThreadLocalTracking calls InitThreadLocalTracking on the
// package-level engine.
func InitThreadLocalTracking(policy tlstrack.SamplingPolicy) (*tlstrack.Tracker, error) {
	return current().InitThreadLocalTracking(policy)
}

// AggregateThreadSpills discovers and merges per-thread spill files
// under dir (§4.9, §6.2). It does not depend on any engine state —
// package aggregate reads straight from disk — so it is exposed at
// package level even though it is wired through Engine.MergeThreadSpills
// for symmetry with the rest of the host API.
func AggregateThreadSpills(dir string) (*snapshot.Snapshot, *aggregate.Report, error) {
	return aggregate.Merge(dir)
}
