// Package snapshot implements the binary snapshot container (spec
// C11, §4.10/§6.4): a fixed header, a string table, a call-stack
// table, a stream of TLV-ish allocation records, and optional
// "Advanced Metrics" (ADVD) segments contributed by enrichment passes.
//
// The layout and the buffered-reader/decoder approach are grounded
// directly on perffile's header-then-sections-then-records structure
// (perffile/reader.go, perffile/buf.go, perffile/bufdecoder.go); the
// optional-field bitmap follows the same technique as perffile's
// bitmask-conditional sample field decoding.
package snapshot

import (
	"errors"
	"fmt"

	"github.com/go-memscope/memscope/callstack"
	"github.com/go-memscope/memscope/record"
)

// Magic is the fixed 8-byte header identifier, "MEMSCOPE".
var Magic = [8]byte{'M', 'E', 'M', 'S', 'C', 'O', 'P', 'E'}

// Version is the current writer's format version. A reader refuses
// any file whose header version exceeds this (§4.10: "forward
// compatibility is not promised").
const Version = 1

// ExportMode selects which records Write emits.
type ExportMode uint8

const (
	// ModeUserOnly emits only records with a variable name present.
	ModeUserOnly ExportMode = iota
	// ModeFull emits every record.
	ModeFull
)

func (m ExportMode) String() string {
	if m == ModeUserOnly {
		return "user_only"
	}
	return "full"
}

// Header mirrors the fixed-size header block of §4.10.
type Header struct {
	Version     uint32
	TotalCount  uint32
	ExportMode  ExportMode
	UserCount   uint16
	SystemCount uint16
}

// Snapshot is the in-memory form of a read-back snapshot file: the
// header, resolved string and call-stack tables, the allocation
// records, and any advanced-metrics segments.
type Snapshot struct {
	Header     Header
	Strings    map[uint32]string
	CallStacks map[callstack.ID][]callstack.Frame
	Records    []*record.Allocation
	Metrics    []MetricSegment
}

// ReadStatus reports how completely a snapshot was read.
type ReadStatus struct {
	// TruncatedAtRecord is the number of allocation records
	// successfully read before the file ended unexpectedly. It is
	// meaningful only when Truncated is true.
	TruncatedAtRecord int
	Truncated         bool
}

// VersionError is returned when a snapshot's header version exceeds
// the reader's (§8.3 B5).
type VersionError struct {
	FileVersion, ReaderVersion uint32
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("snapshot: file version %d newer than reader version %d", e.FileVersion, e.ReaderVersion)
}

// ErrBadMagic is returned when a file's header magic does not match
// Magic.
var ErrBadMagic = errors.New("snapshot: bad or missing MEMSCOPE magic")
