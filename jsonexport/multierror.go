package jsonexport

import "strings"

// FileError names which category file a Stream failure belongs to
// (§4.11: "the error identifies which file failed").
type FileError struct {
	File string
	Err  error
}

func (e *FileError) Error() string { return e.File + ": " + e.Err.Error() }
func (e *FileError) Unwrap() error { return e.Err }

// MultiError aggregates the failures of however many of the five
// files did not generate successfully, so the caller can see exactly
// which ones failed while the others' output is kept (§4.11's
// failure semantics; §4.14's "JSON export: one file fails -> keep the
// others, return multi-error").
type MultiError struct {
	Errors []*FileError
}

func (m *MultiError) Error() string {
	parts := make([]string, len(m.Errors))
	for i, e := range m.Errors {
		parts[i] = e.Error()
	}
	return "jsonexport: " + strings.Join(parts, "; ")
}

// empty reports whether no errors were recorded.
func (m *MultiError) empty() bool { return m == nil || len(m.Errors) == 0 }
