package source

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrNotArray is returned when a source does not start with a JSON array
var ErrNotArray = errors.New("source is not a JSON array")

// Record is one raw element of a source array
type Record struct {
	Offset int64 // zero-based element index
	Raw    json.RawMessage
}

// ArrayReader streams the elements of a top-level JSON array without
// holding the whole document in memory. Elements are returned as raw
// bytes; decoding them into typed records is left to the caller.
type ArrayReader struct {
	dec     *json.Decoder
	offset  int64
	started bool
	done    bool
	err     error
}

// NewArrayReader creates a reader over r
func NewArrayReader(r io.Reader) *ArrayReader {
	return &ArrayReader{dec: json.NewDecoder(r)}
}

// Next returns the next element, or io.EOF after the closing bracket.
// A syntax error inside the array ends the stream: the decoder cannot
// resynchronise, so the error is returned and later calls return it too.
func (a *ArrayReader) Next() (Record, error) {
	if a.err != nil {
		return Record{}, a.err
	}
	if a.done {
		return Record{}, io.EOF
	}
	if !a.started {
		tok, err := a.dec.Token()
		if err != nil {
			if err == io.EOF {
				return Record{}, fmt.Errorf("%w: empty input", ErrNotArray)
			}
			return Record{}, fmt.Errorf("failed to read array start: %w", err)
		}
		if delim, ok := tok.(json.Delim); !ok || delim != '[' {
			return Record{}, fmt.Errorf("%w: starts with %v", ErrNotArray, tok)
		}
		a.started = true
	}

	if !a.dec.More() {
		if _, err := a.dec.Token(); err != nil {
			return Record{}, fmt.Errorf("failed to read array end: %w", err)
		}
		a.done = true
		return Record{}, io.EOF
	}

	var raw json.RawMessage
	if err := a.dec.Decode(&raw); err != nil {
		a.err = fmt.Errorf("failed to read element %d: %w", a.offset, err)
		return Record{}, a.err
	}
	rec := Record{Offset: a.offset, Raw: raw}
	a.offset++
	return rec, nil
}

// Count returns the number of elements read so far
func (a *ArrayReader) Count() int64 {
	return a.offset
}

// BytesRead returns the decompressed input offset
func (a *ArrayReader) BytesRead() int64 {
	return a.dec.InputOffset()
}
