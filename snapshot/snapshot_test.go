package snapshot

import (
	"bytes"
	"testing"

	"github.com/go-memscope/memscope/callstack"
	"github.com/go-memscope/memscope/intern"
	"github.com/go-memscope/memscope/record"
)

func sampleRecords(strs *intern.Table) []*record.Allocation {
	name := strs.Intern("numbers")
	typ := strs.Intern("Vec<i32>")
	return []*record.Allocation{
		{ID: 1, Address: 0x1000, Size: 20, TimestampAlloc: 5, ThreadID: "g1", Kind: record.KindOwnedHeap, VarNameID: name, HasVarName: true, TypeNameID: typ, HasTypeName: true},
		{ID: 2, Address: 0x2000, Size: 8, TimestampAlloc: 6, ThreadID: "g1", Kind: record.KindSynthetic, Synthetic: &record.SyntheticInfo{Reason: record.ReasonInferredFromSize}},
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	strs := intern.New()
	stacks := callstack.New(1)
	recs := sampleRecords(strs)

	var buf bytes.Buffer
	err := Write(&buf, NewSliceSource(recs), strs, stacks, ModeFull, nil)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	snap, status, err := Read(&buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if status.Truncated {
		t.Fatalf("unexpected truncation: %+v", status)
	}
	if len(snap.Records) != 2 {
		t.Fatalf("len(Records) = %d, want 2", len(snap.Records))
	}
	if snap.Strings[recs[0].VarNameID] != "numbers" {
		t.Fatalf("string table missing var name, got %+v", snap.Strings)
	}
	if snap.Records[1].Synthetic == nil || snap.Records[1].Synthetic.Reason != record.ReasonInferredFromSize {
		t.Fatalf("synthetic payload not round-tripped: %+v", snap.Records[1])
	}
}

func TestModeUserOnlyFiltersUnnamedRecords(t *testing.T) {
	strs := intern.New()
	stacks := callstack.New(1)
	recs := sampleRecords(strs)

	var buf bytes.Buffer
	if err := Write(&buf, NewSliceSource(recs), strs, stacks, ModeUserOnly, nil); err != nil {
		t.Fatalf("Write: %v", err)
	}
	snap, _, err := Read(&buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(snap.Records) != 1 {
		t.Fatalf("UserOnly mode should keep only the named record, got %d", len(snap.Records))
	}
}

func TestReadTruncatedRecordStream(t *testing.T) {
	strs := intern.New()
	stacks := callstack.New(1)
	recs := sampleRecords(strs)

	var buf bytes.Buffer
	if err := Write(&buf, NewSliceSource(recs), strs, stacks, ModeFull, nil); err != nil {
		t.Fatalf("Write: %v", err)
	}
	truncated := buf.Bytes()[:buf.Len()-3]

	snap, status, err := Read(bytes.NewReader(truncated))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !status.Truncated {
		t.Fatalf("expected Truncated=true")
	}
	if status.TruncatedAtRecord != 1 {
		t.Fatalf("TruncatedAtRecord = %d, want 1 (first record intact, second cut)", status.TruncatedAtRecord)
	}
	if len(snap.Records) != 1 {
		t.Fatalf("expected 1 recovered record, got %d", len(snap.Records))
	}
}

func TestReadVersionMismatch(t *testing.T) {
	strs := intern.New()
	stacks := callstack.New(1)

	var buf bytes.Buffer
	if err := Write(&buf, NewSliceSource(nil), strs, stacks, ModeFull, nil); err != nil {
		t.Fatalf("Write: %v", err)
	}
	raw := buf.Bytes()
	// Bump the version field (bytes 8..12, little-endian) past Version.
	raw[8] = byte(Version + 1)

	_, _, err := Read(bytes.NewReader(raw))
	if err == nil {
		t.Fatalf("expected a version mismatch error")
	}
	var verErr *VersionError
	if !asVersionError(err, &verErr) {
		t.Fatalf("expected *VersionError, got %T: %v", err, err)
	}
}

func asVersionError(err error, target **VersionError) bool {
	ve, ok := err.(*VersionError)
	if ok {
		*target = ve
	}
	return ok
}
