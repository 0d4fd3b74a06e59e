package httprange

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	const size = 100

	tests := []struct {
		name   string
		header string
		start  int64
		end    int64
	}{
		{"closed range", "bytes=0-49", 0, 49},
		{"interior range", "bytes=10-19", 10, 19},
		{"single byte", "bytes=5-5", 5, 5},
		{"open range", "bytes=30-", 30, 99},
		{"open range from zero", "bytes=0-", 0, 99},
		{"suffix", "bytes=-10", 90, 99},
		{"suffix longer than resource", "bytes=-500", 0, 99},
		{"end clamped to size", "bytes=90-150", 90, 99},
		{"last byte", "bytes=99-99", 99, 99},
		{"short interior range", "bytes=1-3", 1, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rng, err := Parse(tt.header, size)
			require.NoError(t, err)
			assert.Equal(t, tt.start, rng.Start)
			assert.Equal(t, tt.end, rng.End)
		})
	}
}

func TestParseUnsatisfiable(t *testing.T) {
	const size = 100

	tests := []struct {
		name   string
		header string
	}{
		{"wrong unit", "items=0-10"},
		{"no dash", "bytes=10"},
		{"empty spec", "bytes=-"},
		{"garbage start", "bytes=abc-10"},
		{"garbage end", "bytes=0-xyz"},
		{"negative suffix", "bytes=--5"},
		{"zero suffix", "bytes=-0"},
		{"end before start", "bytes=50-10"},
		{"start at size", "bytes=100-"},
		{"start past size", "bytes=500-600"},
		{"multi range", "bytes=0-10,20-30"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.header, size)
			assert.ErrorIs(t, err, ErrUnsatisfiable)
		})
	}
}

func TestParseEmptyResource(t *testing.T) {
	// No byte range is satisfiable against a zero-byte resource.
	_, err := Parse("bytes=0-", 0)
	assert.ErrorIs(t, err, ErrUnsatisfiable)

	_, err = Parse("bytes=-1", 0)
	assert.ErrorIs(t, err, ErrUnsatisfiable)
}

func TestContentRangeHeaders(t *testing.T) {
	rng := Range{Start: 1, End: 3}
	assert.Equal(t, "bytes 1-3/7", rng.ContentRange(7))
	assert.Equal(t, int64(3), rng.Length())
	assert.Equal(t, "bytes */7", Unsatisfiable(7))
}
