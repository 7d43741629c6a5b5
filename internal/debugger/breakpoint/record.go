package breakpoint

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// Record is one entry of the saved-breakpoints file.
//
// The file holds one breakpoint per line in the form
//
//	b <file>:<line>[, <condition>]
type Record struct {
	File      string
	Line      int
	Temporary bool
	Condition string
	FuncName  string
}

// String formats the record as a saved-breakpoints line (without newline).
func (r Record) String() string {
	line := fmt.Sprintf("b %s:%d", r.File, r.Line)
	if r.Condition != "" {
		line += ", " + r.Condition
	}
	return line
}

// RecordError describes a saved-breakpoints line that could not be parsed.
type RecordError struct {
	// Line is the 1-based position of the entry in the input.
	Line int
	// Text is the offending entry.
	Text string
	// Message describes the problem.
	Message string
}

// Error implements the error interface.
func (e *RecordError) Error() string {
	return fmt.Sprintf("breakpoint entry %d %q: %s", e.Line, e.Text, e.Message)
}

// ParseRecords parses saved-breakpoints lines.
//
// Malformed entries are skipped. The returned error, when non-nil, is a
// *multierror.Error listing every skipped entry; the records that did parse are
// returned alongside it.
func ParseRecords(lines []string) ([]Record, error) {
	var (
		records []Record
		errs    *multierror.Error
	)

	for i, raw := range lines {
		text := strings.TrimSpace(raw)
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		rec, msg := parseRecord(text)
		if msg != "" {
			errs = multierror.Append(errs, &RecordError{Line: i + 1, Text: text, Message: msg})
			continue
		}
		records = append(records, rec)
	}

	return records, errs.ErrorOrNil()
}

// parseRecord parses a single trimmed entry.
func parseRecord(text string) (Record, string) {
	if text[0] != 'b' {
		return Record{}, "expected 'b' command"
	}
	arg := text[1:]

	var rec Record
	if comma := strings.Index(arg, ","); comma > 0 {
		rec.Condition = strings.TrimSpace(arg[comma+1:])
		arg = arg[:comma]
	}
	arg = strings.TrimSpace(arg)

	colon := strings.LastIndex(arg, ":")
	if colon <= 0 {
		return Record{}, "missing file:line location"
	}

	rec.File = strings.TrimSpace(arg[:colon])
	if rec.File == "" {
		return Record{}, "missing file name"
	}

	line, err := strconv.Atoi(strings.TrimSpace(arg[colon+1:]))
	if err != nil {
		return Record{}, "invalid line number"
	}
	if line <= 0 {
		return Record{}, "line number must be positive"
	}
	rec.Line = line

	return rec, ""
}

// ReadRecords parses saved-breakpoints entries from r.
func ReadRecords(r io.Reader) ([]Record, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read breakpoints: %w", err)
	}
	return ParseRecords(lines)
}

// Load reads the saved-breakpoints file at path.
// A missing file yields no records and no error.
func Load(path string) ([]Record, error) {
	if path == "" {
		return nil, nil
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open breakpoints file: %w", err)
	}
	defer f.Close()

	return ReadRecords(f)
}

// RecordsFor converts breakpoints into records, dropping temporary and
// disabled ones and duplicates of the same file, line and condition. The file
// format cannot mark an entry disabled, so a disabled breakpoint is not saved.
func RecordsFor(bps []*Breakpoint) []Record {
	type key struct {
		file string
		line int
		cond string
	}

	seen := make(map[key]bool, len(bps))
	records := make([]Record, 0, len(bps))
	for _, bp := range bps {
		if bp.Temporary || !bp.Enabled {
			continue
		}
		k := key{bp.File, bp.Line, bp.Condition}
		if seen[k] {
			continue
		}
		seen[k] = true
		records = append(records, Record{
			File:      bp.File,
			Line:      bp.Line,
			Condition: bp.Condition,
		})
	}

	sort.SliceStable(records, func(i, j int) bool {
		if records[i].File != records[j].File {
			return records[i].File < records[j].File
		}
		return records[i].Line < records[j].Line
	})
	return records
}

// WriteRecords writes the enabled, non-temporary breakpoints to w.
func WriteRecords(w io.Writer, bps []*Breakpoint) error {
	bw := bufio.NewWriter(w)
	for _, rec := range RecordsFor(bps) {
		if _, err := bw.WriteString(rec.String() + "\n"); err != nil {
			return fmt.Errorf("write breakpoints: %w", err)
		}
	}
	return bw.Flush()
}

// Save writes the enabled, non-temporary breakpoints to the file at path,
// creating its directory when needed.
func Save(path string, bps []*Breakpoint) error {
	if path == "" {
		return fmt.Errorf("breakpoints file path not set")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create breakpoints file: %w", err)
	}

	if err := WriteRecords(f, bps); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
