// Package reader implements row-range reads over delimited sensor-reading
// files. It streams records through encoding/csv without whole-file buffering;
// rows outside the requested range are consumed and discarded, never
// materialized as records.
//
// Bad-row policy: a data row the csv reader cannot parse, or whose width
// disagrees with the header, is soft-dropped and counted in
// ReadResult.Malformed. Dropped rows still consume their row index so chunk
// boundaries planned from CountRows stay aligned with what ReadRange sees.
package reader

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"sensoringest/pkg/records"
)

// ReadResult carries the records of one range read plus the count of rows that
// were soft-dropped as malformed inside that range.
type ReadResult struct {
	Batch     records.Batch
	Malformed int
}

// ReadRange reads the data rows whose 0-based index (header excluded) lies in
// [start, end).
//
// Contract:
//   - start >= end returns an empty batch, not an error.
//   - end past EOF returns all rows from start to EOF.
//   - a missing or unreadable file returns a wrapped filesystem error; callers
//     can still use errors.Is(err, os.ErrNotExist).
func ReadRange(ctx context.Context, path string, start, end int) (ReadResult, error) {
	if start < 0 {
		start = 0
	}
	if start >= end {
		return ReadResult{}, nil
	}
	return read(ctx, path, start, end)
}

// ReadAll reads every data row in the file. Equivalent to ReadRange over the
// whole file but without the pre-count.
func ReadAll(ctx context.Context, path string) (ReadResult, error) {
	return read(ctx, path, 0, -1)
}

// read is the shared streaming loop. end < 0 means "until EOF".
func read(ctx context.Context, path string, start, end int) (ReadResult, error) {
	f, err := open(ctx, path)
	if err != nil {
		return ReadResult{}, err
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.ReuseRecord = true
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1 // width enforced against the header below

	hdr, err := cr.Read()
	if err != nil {
		if err == io.EOF {
			return ReadResult{}, fmt.Errorf("reader: %s: empty file, header required", path)
		}
		return ReadResult{}, fmt.Errorf("reader: read header: %w", err)
	}
	columns := normalizeHeader(hdr)

	res := ReadResult{}
	idx := 0 // next data-row index
	for {
		select {
		case <-ctx.Done():
			return res, ctx.Err()
		default:
		}

		if end >= 0 && idx >= end {
			return res, nil
		}

		rec, err := cr.Read()
		if err == io.EOF {
			return res, nil
		}
		if err != nil {
			var pe *csv.ParseError
			if !errors.As(err, &pe) {
				return res, fmt.Errorf("reader: row %d: %w", idx, err)
			}
			// Soft drop; the row keeps its index.
			if idx >= start {
				res.Malformed++
			}
			idx++
			continue
		}
		inRange := idx >= start
		idx++

		if !inRange {
			continue
		}
		if len(rec) != len(columns) {
			res.Malformed++
			continue
		}

		row := make(records.Record, len(columns))
		for i, col := range columns {
			if v := rec[i]; v != "" {
				row[col] = v
			} else {
				row[col] = nil
			}
		}
		res.Batch.Records = append(res.Batch.Records, row)
	}
}

// CountRows returns the number of data rows in the file without parsing field
// values: newline-terminated lines after the header, plus a final
// non-newline-terminated line when it is non-empty. A file with only a header
// (or nothing at all) has zero data rows.
func CountRows(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("reader: open %s: %w", path, err)
	}
	defer f.Close()

	var (
		buf         = make([]byte, 64*1024)
		lines       int
		tailPending bool // bytes seen after the last newline
	)
	for {
		n, err := f.Read(buf)
		chunk := buf[:n]
		lines += bytes.Count(chunk, []byte{'\n'})
		if n > 0 {
			// Anything non-blank after the last newline counts as a line.
			if i := bytes.LastIndexByte(chunk, '\n'); i >= 0 {
				tailPending = len(bytes.TrimSpace(chunk[i+1:])) > 0
			} else if len(bytes.TrimSpace(chunk)) > 0 {
				tailPending = true
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("reader: count %s: %w", path, err)
		}
	}
	if tailPending {
		lines++
	}
	if lines == 0 {
		return 0, nil
	}
	return lines - 1, nil // minus header
}

// open opens path for reading, honoring prior context cancellation.
func open(ctx context.Context, path string) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reader: open %s: %w", path, err)
	}
	return f, nil
}

// normalizeHeader maps raw header cells to canonical column names: BOM
// stripped from the first cell, surrounding space trimmed, diacritics folded
// to ASCII, lowercased, inner spaces replaced with underscores.
func normalizeHeader(hdr []string) []string {
	out := make([]string, len(hdr))
	for i, h := range hdr {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		h = strings.TrimSpace(h)
		h = foldASCII(h)
		h = strings.ReplaceAll(strings.ToLower(h), " ", "_")
		out[i] = h
	}
	return out
}

// foldASCII removes combining marks so "Zařízení" becomes "Zarizeni".
func foldASCII(s string) string {
	t := transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		norm.NFC,
	)
	ascii, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return ascii
}
