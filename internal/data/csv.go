// Package data loads the raw spot and quote series into frames.
package data

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"btc-updown-study/internal/frame"
	"btc-updown-study/internal/service"
)

// DefaultTimestampCol is the timestamp header of both raw feeds.
const DefaultTimestampCol = "timestamp"

// ErrNoTimestamp is returned when the timestamp header is absent.
var ErrNoTimestamp = errors.New("timestamp column not found")

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
}

// ParseTimestamp accepts RFC3339-like strings (UTC when no offset is given)
// and unix epochs in seconds or milliseconds.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		if math.Abs(v) >= 1e12 {
			return time.UnixMilli(int64(v)).UTC(), nil
		}
		sec, frac := math.Modf(v)
		return time.Unix(int64(sec), int64(math.Round(frac*1e9))).UTC(), nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}

// LoadCSV reads a headered CSV into a frame keyed by timestampCol. Every
// other column becomes a float column; empty cells are NaN. Columns holding
// any non-numeric cell are skipped. Rows come back sorted with duplicate
// timestamps resolved to the last row read.
func LoadCSV(path, timestampCol string) (*frame.Frame, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer fh.Close()

	f, err := ReadCSV(fh, timestampCol)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	service.Logger.Info("csv loaded",
		zap.String("path", path),
		zap.Int("rows", f.Len()),
		zap.Int("columns", len(f.Names())))
	return f, nil
}

// ReadCSV is LoadCSV over a reader.
func ReadCSV(r io.Reader, timestampCol string) (*frame.Frame, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	header = append([]string(nil), header...)
	tsIdx := -1
	for i, h := range header {
		header[i] = strings.TrimSpace(h)
		if header[i] == timestampCol {
			tsIdx = i
		}
	}
	if tsIdx < 0 {
		return nil, fmt.Errorf("%w: %q", ErrNoTimestamp, timestampCol)
	}

	var ts []time.Time
	cols := make([][]float64, len(header))
	bad := make([]bool, len(header))
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		t, err := ParseTimestamp(rec[tsIdx])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		ts = append(ts, t)
		for i, cell := range rec {
			if i == tsIdx || bad[i] {
				continue
			}
			v, err := service.StringToFloat(cell)
			if err != nil {
				bad[i] = true
				cols[i] = nil
				continue
			}
			cols[i] = append(cols[i], v)
		}
	}

	f := frame.New(ts)
	for i, name := range header {
		if i == tsIdx {
			continue
		}
		if bad[i] {
			service.Logger.Debug("skipping non-numeric column", zap.String("column", name))
			continue
		}
		if cols[i] == nil {
			cols[i] = []float64{}
		}
		f.Set(name, cols[i])
	}
	return f.DedupKeepLast(), nil
}

// Concat stacks frames with the same columns (missing ones become NaN) and
// resolves duplicate timestamps to the later frame.
func Concat(frames ...*frame.Frame) *frame.Frame {
	var ts []time.Time
	var names []string
	seen := map[string]bool{}
	for _, f := range frames {
		ts = append(ts, f.Timestamps()...)
		for _, n := range f.Names() {
			if !seen[n] {
				seen[n] = true
				names = append(names, n)
			}
		}
	}
	out := frame.New(ts)
	for _, n := range names {
		col := make([]float64, 0, len(ts))
		for _, f := range frames {
			if c := f.Col(n); c != nil {
				col = append(col, c...)
			} else {
				col = append(col, frame.Filled(f.Len(), math.NaN())...)
			}
		}
		out.Set(n, col)
	}
	return out.DedupKeepLast()
}

// Between keeps rows with start <= t <= end.
func Between(f *frame.Frame, start, end time.Time) *frame.Frame {
	var idx []int
	for i, t := range f.Timestamps() {
		if !t.Before(start) && !t.After(end) {
			idx = append(idx, i)
		}
	}
	return f.Take(idx)
}
