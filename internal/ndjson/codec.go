package ndjson

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
)

// MaxLineSize bounds a single transcript or audit line (256 KiB)
const MaxLineSize = 256 * 1024

// Encoder appends one JSON record per line
type Encoder struct {
	w      *bufio.Writer
	logger *slog.Logger
}

func NewEncoder(w io.Writer, logger *slog.Logger) *Encoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Encoder{w: bufio.NewWriter(w), logger: logger}
}

// Encode writes v on its own line. The line is flushed before Encode returns
// so a file watcher never sees half a record.
func (e *Encoder) Encode(v any) error {
	line, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	if len(line) > MaxLineSize {
		e.logger.Error("dropping oversized record", "size", len(line), "limit", MaxLineSize)
		return fmt.Errorf("record size %d exceeds limit %d", len(line), MaxLineSize)
	}

	line = append(line, '\n')
	if _, err := e.w.Write(line); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	if err := e.w.Flush(); err != nil {
		return fmt.Errorf("failed to flush record: %w", err)
	}
	return nil
}

// Decoder reads one JSON record per line. Blank lines and CRLF endings are
// tolerated since transcripts are sometimes written by hand.
type Decoder struct {
	scanner *bufio.Scanner
	logger  *slog.Logger
	line    int
}

func NewDecoder(r io.Reader, logger *slog.Logger) *Decoder {
	if logger == nil {
		logger = slog.Default()
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), MaxLineSize)
	return &Decoder{scanner: scanner, logger: logger}
}

// Decode reads the next record into v. It returns io.EOF at end of input.
func (d *Decoder) Decode(v any) error {
	for d.scanner.Scan() {
		d.line++
		data := bytes.TrimSpace(d.scanner.Bytes())
		if len(data) == 0 {
			continue
		}
		if err := json.Unmarshal(data, v); err != nil {
			d.logger.Warn("unreadable record", "line", d.line, "error", err,
				"data", string(data[:min(100, len(data))]))
			return fmt.Errorf("failed to decode line %d: %w", d.line, err)
		}
		return nil
	}
	if err := d.scanner.Err(); err != nil {
		return fmt.Errorf("failed to read line %d: %w", d.line+1, err)
	}
	return io.EOF
}

// Line returns the number of lines consumed so far, blank ones included
func (d *Decoder) Line() int {
	return d.line
}

// ReadAll decodes every record in r
func ReadAll[T any](r io.Reader, logger *slog.Logger) ([]T, error) {
	dec := NewDecoder(r, logger)
	out := make([]T, 0)
	for {
		var rec T
		err := dec.Decode(&rec)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
}
