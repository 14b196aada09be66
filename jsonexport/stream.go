package jsonexport

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-memscope/memscope/intern"
	"github.com/go-memscope/memscope/scope"
)

const writerBufferSize = 64 * 1024

type fileSpec struct {
	suffix string
	write  func(w *bufio.Writer) error
}

// Stream writes the five category JSON files (§4.11) derived from
// src to <basePath><suffix> (each suffix ends in ".json"), one
// goroutine per file sharing only
// src's read-only view (§4.11: "writers do not share mutable state").
//
// If ctx is already canceled, Stream returns ctx.Err() without
// creating any files. Once writing starts it runs to completion
// regardless of later cancellation (§5: "Export operations are
// non-cancellable once started; they run to completion or report
// failure").
func Stream(ctx context.Context, src RecordSource, strings *intern.Table, scopes *scope.Tracker, basePath string, opts Options) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	opts = opts.resolved()
	if opts.Source == SourceBinarySnapshot {
		active := 0
		for start, n := 0, src.Len(); start < n; start += opts.BatchSize {
			for _, r := range src.Batch(start, opts.BatchSize) {
				if r.Active() {
					active++
				}
			}
		}
		opts.ActiveAllocationCount = active
	}
	exportTS := opts.ExportTimestampNS
	if exportTS == 0 {
		exportTS = uint64(time.Now().UnixNano())
	}

	specs := []fileSpec{
		{"_memory_analysis.json", func(w *bufio.Writer) error {
			return writeMemoryAnalysis(w, src, strings, opts, exportTS)
		}},
		{"_lifetime.json", func(w *bufio.Writer) error {
			return writeLifetime(w, src, scopes, opts, exportTS)
		}},
		{"_performance.json", func(w *bufio.Writer) error {
			return writePerformance(w, src, opts, exportTS)
		}},
		{"_unsafe_ffi.json", func(w *bufio.Writer) error {
			return writeUnsafeFFI(w, src, opts, exportTS)
		}},
		{"_complex_types.json", func(w *bufio.Writer) error {
			return writeComplexTypes(w, src, strings, opts, exportTS)
		}},
	}

	var wg sync.WaitGroup
	errs := make([]*FileError, len(specs))
	wg.Add(len(specs))
	for i, spec := range specs {
		i, spec := i, spec
		path := basePath + spec.suffix
		go func() {
			defer wg.Done()
			if err := writeFile(path, spec.write); err != nil {
				errs[i] = &FileError{File: path, Err: err}
			}
		}()
	}
	wg.Wait()

	var multi MultiError
	for _, e := range errs {
		if e != nil {
			multi.Errors = append(multi.Errors, e)
		}
	}
	if !multi.empty() {
		return &multi
	}
	return nil
}

func writeFile(path string, write func(w *bufio.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	bw := bufio.NewWriterSize(f, writerBufferSize)
	if err = write(bw); err != nil {
		return err
	}
	return nil
}
