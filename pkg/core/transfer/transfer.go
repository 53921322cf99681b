// Package transfer reads and writes the registry interchange format.
//
// One record per line, newline-terminated, UTF-8, no header:
//
//	phone;tag1,tag2,...
package transfer

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/wadjakorntonsri/go-phone-tags/pkg/core/domain"
)

const (
	FieldSeparator = ";"
	TagSeparator   = ","

	// MaxLineBytes bounds a single input line.
	MaxLineBytes = 1 << 20
)

// Record is one parsed line: a raw phone field and its non-empty, trimmed tags.
type Record struct {
	Line  int
	Phone string
	Tags  []string
}

// Parse reads every record from r. Blank lines and lines with an empty phone
// field are skipped. Lines without tags are returned with an empty Tags slice.
func Parse(r io.Reader) ([]Record, error) {
	var records []Record
	err := Scan(r, func(rec Record) error {
		records = append(records, rec)
		return nil
	})
	return records, err
}

// Scan calls fn for each record in r, in input order.
func Scan(r io.Reader, fn func(Record) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), MaxLineBytes)

	lineNo := 0
	for sc.Scan() {
		lineNo++
		rec, ok := ParseLine(sc.Text())
		if !ok {
			continue
		}
		rec.Line = lineNo
		if err := fn(rec); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return domain.InvalidInputf("line %d exceeds %d bytes", lineNo+1, MaxLineBytes)
		}
		return fmt.Errorf("read import: %w", err)
	}
	return nil
}

// ParseLine parses a single line. ok is false for blank lines and empty phone fields.
// Fields beyond the second are ignored.
func ParseLine(line string) (Record, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Record{}, false
	}

	fields := strings.Split(line, FieldSeparator)
	phone := strings.TrimSpace(fields[0])
	if phone == "" {
		return Record{}, false
	}

	rec := Record{Phone: phone, Tags: []string{}}
	if len(fields) > 1 {
		for _, t := range strings.Split(fields[1], TagSeparator) {
			if t = strings.TrimSpace(t); t != "" {
				rec.Tags = append(rec.Tags, t)
			}
		}
	}
	return rec, true
}

// Writer writes phone groups in the interchange format.
type Writer struct {
	w *bufio.Writer
}

// NewWriter returns a Writer buffering output to w. Call Flush when done.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// Write emits one line for g. Groups with no tags are omitted.
func (w *Writer) Write(g domain.PhoneGroup) error {
	if g.Phone == "" || len(g.Tags) == 0 {
		return nil
	}
	if _, err := w.w.WriteString(FormatLine(g)); err != nil {
		return err
	}
	return w.w.WriteByte('\n')
}

// Flush writes any buffered data to the underlying writer.
func (w *Writer) Flush() error {
	return w.w.Flush()
}

// FormatLine renders g without the trailing newline.
func FormatLine(g domain.PhoneGroup) string {
	return g.Phone + FieldSeparator + strings.Join(g.Tags, TagSeparator)
}

// ContainsSeparator reports whether s cannot be stored as a tag without breaking the format.
func ContainsSeparator(s string) bool {
	return strings.ContainsAny(s, FieldSeparator+TagSeparator+"\r\n")
}
