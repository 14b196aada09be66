package jsonexport

import (
	"bufio"
	"runtime"

	"github.com/go-memscope/memscope/record"
)

// writeUnsafeFFI writes <base>_unsafe_ffi.json (§4.11, §6.3:
// "metadata, unsafe_operations[], ffi_boundaries[]").
//
// This engine has no foreign-function boundary or unsafe block in the
// source-language sense it was distilled from; Go's nearest analogues
// are used instead (§9's domain-substitution approach, as with
// "thread" -> goroutine elsewhere):
//   - unsafe_operations: KindSynthetic records, whose address was
//     fabricated via package annotate's unsafe-adjacent address
//     arithmetic rather than observed from a real allocator (§3.2).
//   - ffi_boundaries: Arc records, the one smart-pointer kind meant to
//     cross a goroutine boundary safely — the closest Go concept to
//     a value crossing into foreign-owned code.
func writeUnsafeFFI(w *bufio.Writer, src RecordSource, opts Options, exportTS uint64) error {
	opts = opts.resolved()

	j := newJWriter(w)
	j.objStart()
	writeMetadata(j, exportTS, src.Len(), opts.ActiveAllocationCount, opts.Source)

	j.key("unsafe_operations")
	j.arrStart()
	firstUnsafe := true
	n := src.Len()
	for s := 0; s < n; s += opts.BatchSize {
		for _, r := range src.Batch(s, opts.BatchSize) {
			if r.Kind != record.KindSynthetic || r.Synthetic == nil {
				continue
			}
			if !firstUnsafe {
				j.comma()
			}
			firstUnsafe = false
			j.objStart()
			j.key("id")
			j.u64(r.ID)
			j.comma()
			j.key("address")
			j.u64(r.Address)
			j.comma()
			j.key("reason")
			j.str(r.Synthetic.Reason.String())
			j.objEnd()
		}
		runtime.Gosched()
	}
	j.arrEnd()
	j.comma()

	j.key("ffi_boundaries")
	j.arrStart()
	firstFFI := true
	for s := 0; s < n; s += opts.BatchSize {
		for _, r := range src.Batch(s, opts.BatchSize) {
			if r.Kind != record.KindSmartPointer || r.SmartPointer == nil || r.SmartPointer.PType != record.SmartArc {
				continue
			}
			if !firstFFI {
				j.comma()
			}
			firstFFI = false
			j.objStart()
			j.key("id")
			j.u64(r.ID)
			j.comma()
			j.key("thread_id")
			j.str(r.ThreadID)
			j.objEnd()
		}
		runtime.Gosched()
	}
	j.arrEnd()
	j.objEnd()
	return j.flush()
}
