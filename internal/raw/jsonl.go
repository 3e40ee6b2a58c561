package raw

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"github.com/segmentio/encoding/json"
)

// MaxLineCapacity is the maximum size of one JSON line (4MB).
const MaxLineCapacity = 4 * 1024 * 1024

// ContentType is the content type used when storing raw files.
const ContentType = "application/json"

// LineError describes a line that could not be decoded.
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("parsing line %d: %v", e.Line, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }

// Decode reads JSON lines from r and tags each record with format.
// Empty lines are skipped. Lines that fail to decode are reported as
// LineErrors and skipped; only read failures end decoding early.
func Decode(r io.Reader, format Format) ([]Record, []*LineError, error) {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 64*1024)
	scanner.Buffer(buf, MaxLineCapacity)

	var records []Record
	var bad []*LineError
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			bad = append(bad, &LineError{Line: lineNum, Err: err})
			continue
		}
		rec.Format = format
		records = append(records, rec)
	}

	if err := scanner.Err(); err != nil {
		return records, bad, fmt.Errorf("reading raw records: %w", err)
	}
	return records, bad, nil
}

// Encode writes records as JSON lines.
func Encode(w io.Writer, records []Record) error {
	for i, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encoding record %d: %w", i, err)
		}
		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("writing record %d: %w", i, err)
		}
		if _, err := io.WriteString(w, "\n"); err != nil {
			return fmt.Errorf("writing newline: %w", err)
		}
	}
	return nil
}

// Marshal returns records as a JSON lines document.
func Marshal(records []Record) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
