// Package frame is the columnar table the pipeline stages pass between each other.
//
// A Frame holds one timestamp per row and any number of named float64 columns.
// Missing values are NaN. Columns are immutable once set: stages add or replace
// whole columns and never write into a slice they did not allocate, so clones
// can share column storage safely.
package frame

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

// ErrMissingColumn is returned when a required column is absent.
var ErrMissingColumn = errors.New("missing column")

type Frame struct {
	ts    []time.Time
	names []string
	cols  map[string][]float64
}

// New creates a frame over a copy of the given timestamps (normalised to UTC).
func New(timestamps []time.Time) *Frame {
	ts := make([]time.Time, len(timestamps))
	for i, t := range timestamps {
		ts[i] = t.UTC()
	}
	return &Frame{ts: ts, cols: make(map[string][]float64)}
}

func (f *Frame) Len() int { return len(f.ts) }

// Timestamps returns the row timestamps. Callers must not modify the slice.
func (f *Frame) Timestamps() []time.Time { return f.ts }

func (f *Frame) Has(name string) bool {
	_, ok := f.cols[name]
	return ok
}

// Names returns column names in insertion order.
func (f *Frame) Names() []string {
	out := make([]string, len(f.names))
	copy(out, f.names)
	return out
}

// Col returns the column or nil when absent. The slice is read-only.
func (f *Frame) Col(name string) []float64 { return f.cols[name] }

// Column is Col with a descriptive error for absent columns.
func (f *Frame) Column(name string) ([]float64, error) {
	c, ok := f.cols[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMissingColumn, name)
	}
	return c, nil
}

// Require checks that every named column is present.
func (f *Frame) Require(names ...string) error {
	var missing []string
	for _, n := range names {
		if !f.Has(n) {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %v", ErrMissingColumn, missing)
	}
	return nil
}

// Set adds or replaces a whole column. The frame takes ownership of values.
func (f *Frame) Set(name string, values []float64) {
	if len(values) != len(f.ts) {
		panic(fmt.Sprintf("frame: column %q has %d rows, frame has %d", name, len(values), len(f.ts)))
	}
	if _, ok := f.cols[name]; !ok {
		f.names = append(f.names, name)
	}
	f.cols[name] = values
}

// Drop removes columns if present.
func (f *Frame) Drop(names ...string) {
	for _, n := range names {
		if _, ok := f.cols[n]; !ok {
			continue
		}
		delete(f.cols, n)
		for i, existing := range f.names {
			if existing == n {
				f.names = append(f.names[:i:i], f.names[i+1:]...)
				break
			}
		}
	}
}

// Clone returns a new frame sharing column storage with f.
func (f *Frame) Clone() *Frame {
	out := &Frame{
		ts:    f.ts,
		names: make([]string, len(f.names)),
		cols:  make(map[string][]float64, len(f.cols)),
	}
	copy(out.names, f.names)
	for k, v := range f.cols {
		out.cols[k] = v
	}
	return out
}

// Take builds a new frame from the given row indices, in that order.
func (f *Frame) Take(idx []int) *Frame {
	ts := make([]time.Time, len(idx))
	for i, j := range idx {
		ts[i] = f.ts[j]
	}
	out := &Frame{ts: ts, cols: make(map[string][]float64, len(f.cols))}
	for _, n := range f.names {
		src := f.cols[n]
		dst := make([]float64, len(idx))
		for i, j := range idx {
			dst[i] = src[j]
		}
		out.Set(n, dst)
	}
	return out
}

// SortByTime returns f itself when already sorted, otherwise a stably sorted copy.
func (f *Frame) SortByTime() *Frame {
	sorted := sort.SliceIsSorted(f.ts, func(i, j int) bool { return f.ts[i].Before(f.ts[j]) })
	if sorted {
		return f
	}
	idx := make([]int, len(f.ts))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return f.ts[idx[a]].Before(f.ts[idx[b]]) })
	return f.Take(idx)
}

// DedupKeepLast sorts by time and keeps the last row seen for each timestamp.
func (f *Frame) DedupKeepLast() *Frame {
	s := f.SortByTime()
	idx := make([]int, 0, s.Len())
	for i := 0; i < s.Len(); i++ {
		if i+1 < s.Len() && s.ts[i+1].Equal(s.ts[i]) {
			continue
		}
		idx = append(idx, i)
	}
	if len(idx) == s.Len() {
		return s
	}
	return s.Take(idx)
}

// DropNA keeps rows where none of the subset columns is NaN.
// An empty subset means every column.
func (f *Frame) DropNA(subset ...string) *Frame {
	if len(subset) == 0 {
		subset = f.names
	}
	idx := make([]int, 0, f.Len())
rows:
	for i := 0; i < f.Len(); i++ {
		for _, n := range subset {
			c, ok := f.cols[n]
			if ok && math.IsNaN(c[i]) {
				continue rows
			}
		}
		idx = append(idx, i)
	}
	return f.Take(idx)
}

// Select returns a frame with only the named columns.
func (f *Frame) Select(names ...string) (*Frame, error) {
	if err := f.Require(names...); err != nil {
		return nil, err
	}
	out := New(nil)
	out.ts = f.ts
	for _, n := range names {
		out.Set(n, f.cols[n])
	}
	return out, nil
}

// Rename returns a clone with columns renamed per mapping (old -> new).
func (f *Frame) Rename(mapping map[string]string) *Frame {
	out := &Frame{ts: f.ts, cols: make(map[string][]float64, len(f.cols))}
	for _, n := range f.names {
		name := n
		if to, ok := mapping[n]; ok {
			name = to
		}
		out.Set(name, f.cols[n])
	}
	return out
}

// Row returns the named values of row i.
func (f *Frame) Row(i int) map[string]float64 {
	row := make(map[string]float64, len(f.names))
	for _, n := range f.names {
		row[n] = f.cols[n][i]
	}
	return row
}
