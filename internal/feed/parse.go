// Package feed decodes third-party price feed files into normalized row
// mappings. Feeds arrive as delimited text or XLSX workbooks with no
// agreed schema; headers are matched case-insensitively against alias
// sets and unrecognized columns are carried along untouched.
package feed

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

// ParseError means the file could not be decoded in any supported format.
// It is fatal to the run; there is no per-row recovery from it.
type ParseError struct {
	Filename string
	Reason   string
	Err      error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse %s: %s: %v", e.Filename, e.Reason, e.Err)
	}
	return fmt.Sprintf("parse %s: %s", e.Filename, e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Row is one data row keyed by lowercased, trimmed header name. Line is
// the 1-based position in the source file, counting the header.
type Row struct {
	Line   int
	Fields map[string]string
}

// Document is the ordered row sequence decoded from one feed file.
type Document struct {
	Filename string
	Rows     []Row
}

var workbookExts = map[string]bool{
	".xlsx": true,
	".xlsm": true,
	".xltx": true,
	".xltm": true,
}

// Parse decodes a feed file into a Document. The format is chosen by
// file extension: workbook extensions go through the XLSX reader,
// everything else is treated as delimited text.
func Parse(data []byte, filename string) (*Document, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &ParseError{Filename: filename, Reason: "empty file"}
	}

	if workbookExts[strings.ToLower(filepath.Ext(filename))] {
		return parseWorkbook(data, filename)
	}
	return parseDelimited(data, filename)
}

func parseWorkbook(data []byte, filename string) (*Document, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, &ParseError{Filename: filename, Reason: "unreadable workbook", Err: err}
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, &ParseError{Filename: filename, Reason: "workbook has no sheets"}
	}

	// Only the first sheet is read; multi-sheet feeds are not supported.
	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, &ParseError{Filename: filename, Reason: "read sheet", Err: err}
	}
	if len(records) == 0 {
		return nil, &ParseError{Filename: filename, Reason: "sheet has no header row"}
	}

	lines := make([]int, len(records))
	for i := range lines {
		lines[i] = i + 1
	}
	return buildDocument(filename, records, lines), nil
}

func parseDelimited(data []byte, filename string) (*Document, error) {
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
	data = sanitizeUTF8(data)

	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = sniffDelimiter(data)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	// Read record by record so FieldPos can report true file lines; the
	// csv reader silently skips blank lines, so a running index would
	// drift below the real position.
	var records [][]string
	var lines []int
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &ParseError{Filename: filename, Reason: "unreadable delimited text", Err: err}
		}
		line, _ := r.FieldPos(0)
		records = append(records, rec)
		lines = append(lines, line)
	}
	if len(records) == 0 {
		return nil, &ParseError{Filename: filename, Reason: "no header row"}
	}

	return buildDocument(filename, records, lines), nil
}

// buildDocument turns raw records into rows keyed by normalized header.
// The first record is the header; blank records are skipped. When the
// same header appears twice, the first occurrence wins.
func buildDocument(filename string, records [][]string, lines []int) *Document {
	header := records[0]
	keys := make([]string, len(header))
	for i, h := range header {
		keys[i] = strings.ToLower(strings.TrimSpace(h))
	}

	doc := &Document{Filename: filename}
	for i, rec := range records[1:] {
		if isEmptyRecord(rec) {
			continue
		}
		fields := make(map[string]string, len(keys))
		for j, key := range keys {
			if key == "" || j >= len(rec) {
				continue
			}
			if _, dup := fields[key]; dup {
				continue
			}
			fields[key] = strings.TrimSpace(rec[j])
		}
		doc.Rows = append(doc.Rows, Row{Line: lines[i+1], Fields: fields})
	}
	return doc
}

// sniffDelimiter picks the delimiter from the header line. Comma wins
// ties; semicolon and tab cover the common regional exports.
func sniffDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}

	commas := bytes.Count(line, []byte{','})
	semis := bytes.Count(line, []byte{';'})
	tabs := bytes.Count(line, []byte{'\t'})

	switch {
	case tabs > commas && tabs > semis:
		return '\t'
	case semis > commas:
		return ';'
	default:
		return ','
	}
}

func isEmptyRecord(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// sanitizeUTF8 replaces invalid byte sequences with the Unicode
// replacement character so the csv reader never chokes on mixed
// encodings from legacy exports.
func sanitizeUTF8(data []byte) []byte {
	if utf8.Valid(data) {
		return data
	}

	var buf bytes.Buffer
	buf.Grow(len(data))

	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size == 1 {
			buf.WriteRune('�')
			data = data[1:]
		} else {
			buf.WriteRune(r)
			data = data[size:]
		}
	}

	return buf.Bytes()
}
