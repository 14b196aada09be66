package hook

import (
	"runtime"
	"unsafe"
)

// sliceAddress returns the numeric address of s's backing array. The
// value is used only as an opaque tracking key (the map key in
// package store); it is never converted back into a pointer, so this
// does not defeat Go's garbage collector — the finalizer installed by
// TrackedAlloc, not this address, is what keeps dealloc tracking
// correct.
func sliceAddress[T any](s []T) uint64 {
	return uint64(uintptr(unsafe.Pointer(&s[0])))
}

func sizeOf[T any](v T) uint64 {
	return uint64(unsafe.Sizeof(v))
}

// runtimeSetFreeFinalizer arranges for h.Free(addr) to run once elem's
// backing array becomes unreachable, the closest Go equivalent of
// observing a smart pointer's drop or a heap block's release: nothing
// in this program calls free() explicitly, so the garbage collector
// finalizing the object is the only deallocation event available.
func runtimeSetFreeFinalizer[T any](h *Hook, elem *T, addr uint64) {
	runtime.SetFinalizer(elem, func(*T) {
		h.Free(addr)
	})
}
