// Package httprange parses single-range HTTP Range headers against a known
// resource size. It covers the three byte-range forms (start-end, start-,
// -suffix). Multi-range requests are not served and parse as unsatisfiable,
// as does anything malformed: the download path answers 416 rather than
// guessing at intent.
package httprange

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnsatisfiable means the Range header cannot be satisfied against the
// resource size, or is malformed. Callers answer 416 with
// "Content-Range: bytes */<size>".
var ErrUnsatisfiable = errors.New("range not satisfiable")

// Range is a resolved inclusive byte range.
type Range struct {
	Start int64
	End   int64
}

// Length returns the number of bytes in the range.
func (r Range) Length() int64 {
	return r.End - r.Start + 1
}

// ContentRange renders the Content-Range header value for a 206 response.
func (r Range) ContentRange(size int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, size)
}

// Unsatisfiable renders the Content-Range header value for a 416 response.
func Unsatisfiable(size int64) string {
	return fmt.Sprintf("bytes */%d", size)
}

// Parse resolves a non-empty Range header against size. Callers serve the
// full resource when the header is absent; once a Range header is present,
// anything that does not resolve to a single satisfiable bytes range
// returns ErrUnsatisfiable.
func Parse(header string, size int64) (Range, error) {
	const prefix = "bytes="
	if !strings.HasPrefix(header, prefix) {
		return Range{}, ErrUnsatisfiable
	}
	spec := strings.TrimSpace(strings.TrimPrefix(header, prefix))

	// Multi-range requests are not served.
	if strings.Contains(spec, ",") {
		return Range{}, ErrUnsatisfiable
	}

	dash := strings.Index(spec, "-")
	if dash < 0 {
		return Range{}, ErrUnsatisfiable
	}
	startPart := strings.TrimSpace(spec[:dash])
	endPart := strings.TrimSpace(spec[dash+1:])

	if startPart == "" && endPart == "" {
		return Range{}, ErrUnsatisfiable
	}

	// Suffix form: -N means the final N bytes.
	if startPart == "" {
		n, err := strconv.ParseInt(endPart, 10, 64)
		if err != nil || n <= 0 || size == 0 {
			return Range{}, ErrUnsatisfiable
		}
		if n > size {
			n = size
		}
		return Range{Start: size - n, End: size - 1}, nil
	}

	start, err := strconv.ParseInt(startPart, 10, 64)
	if err != nil || start < 0 {
		return Range{}, ErrUnsatisfiable
	}
	if start >= size {
		return Range{}, ErrUnsatisfiable
	}

	// Open form: S- means from S to the end.
	if endPart == "" {
		return Range{Start: start, End: size - 1}, nil
	}

	end, err := strconv.ParseInt(endPart, 10, 64)
	if err != nil || end < start {
		return Range{}, ErrUnsatisfiable
	}
	// An end past the last byte clamps rather than failing.
	if end > size-1 {
		end = size - 1
	}
	return Range{Start: start, End: end}, nil
}
