// Command memscopedump prints the contents of a .memscope binary
// snapshot, the engine's counterpart to go-perf's perfdump.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/go-memscope/memscope/record"
	"github.com/go-memscope/memscope/snapshot"
)

func main() {
	var (
		flagInput      = flag.String("i", "out.memscope", "input `file`")
		flagActiveOnly = flag.Bool("active", false, "print only records with no recorded deallocation")
		flagLeakedOnly = flag.Bool("leaked", false, "print only records flagged leaked by an enrichment pass")
	)
	flag.Parse()
	if flag.NArg() > 0 {
		flag.Usage()
		os.Exit(1)
	}

	f, err := os.Open(*flagInput)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()

	snap, status, err := snapshot.Read(f)
	if err != nil {
		log.Fatal(err)
	}
	if status.Truncated {
		fmt.Fprintf(os.Stderr, "memscopedump: file is truncated at record %d; showing what was recovered\n", status.TruncatedAtRecord)
	}

	fmt.Printf("version=%d total=%d mode=%v user=%d system=%d\n",
		snap.Header.Version, snap.Header.TotalCount, snap.Header.ExportMode,
		snap.Header.UserCount, snap.Header.SystemCount)
	fmt.Printf("strings=%d call_stacks=%d metric_segments=%d\n",
		len(snap.Strings), len(snap.CallStacks), len(snap.Metrics))

	records := make([]*record.Allocation, len(snap.Records))
	copy(records, snap.Records)
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })

	for _, r := range records {
		if *flagActiveOnly && !r.Active() {
			continue
		}
		if *flagLeakedOnly && (r.Enrichments == nil || !r.Enrichments.IsLeaked) {
			continue
		}
		printRecord(r, snap.Strings)
	}
}

func printRecord(r *record.Allocation, strings map[uint32]string) {
	varName := "-"
	if r.HasVarName {
		if s, ok := strings[r.VarNameID]; ok {
			varName = s
		}
	}
	typeName := "-"
	if r.HasTypeName {
		if s, ok := strings[r.TypeNameID]; ok {
			typeName = s
		}
	}
	status := "active"
	if r.HasDealloc {
		status = "freed"
	}
	fmt.Printf("id=%d addr=0x%x size=%d kind=%v var=%s type=%s thread=%s %s",
		r.ID, r.Address, r.Size, r.Kind, varName, typeName, r.ThreadID, status)
	if r.SmartPointer != nil {
		fmt.Printf(" smart={ptype=%v strong=%d weak=%d}", r.SmartPointer.PType, r.SmartPointer.StrongCount, r.SmartPointer.WeakCount)
	}
	if r.Enrichments != nil && r.Enrichments.IsLeaked {
		fmt.Printf(" LEAKED")
	}
	fmt.Println()
}
