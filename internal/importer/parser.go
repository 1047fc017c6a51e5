package importer

// parser.go turns uploaded bytes into RawRecords.
//
// CSV input may carry a UTF-8 or UTF-16 byte order mark and stray invalid
// bytes; both are cleaned before the reader sees them. Spreadsheets are read
// from the first sheet only and always treat row 1 as the header.

import (
	"bytes"
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ParseOptions control how a file is split into records.
type ParseOptions struct {
	// HasHeaderRow applies to CSV only.
	HasHeaderRow bool
	// Delimiter is the CSV field separator; zero means ','.
	Delimiter rune
}

// ParsedFile is the fully materialized content of an uploaded file.
type ParsedFile struct {
	// Labels are the header labels in column order, or the column indexes
	// as strings when the file has no header.
	Labels    []string
	HasHeader bool
	Records   []RawRecord
}

// Parse reads data in the given format into records. Empty rows are skipped
// and do not consume a row number.
func Parse(data []byte, format FileFormat, opts ParseOptions) (*ParsedFile, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}

	switch format {
	case FormatCSV:
		return parseCSV(data, opts)
	case FormatSpreadsheet:
		return parseSpreadsheet(data)
	}
	return nil, errors.Wrapf(ErrUnsupportedFormat, "%q", format)
}

func parseCSV(data []byte, opts ParseOptions) (*ParsedFile, error) {
	data = sanitizeUTF8(data)

	decoded := transform.NewReader(bytes.NewReader(data), unicode.BOMOverride(unicode.UTF8.NewDecoder()))

	r := csv.NewReader(decoded)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	if opts.Delimiter != 0 {
		r.Comma = opts.Delimiter
	}

	out := &ParsedFile{HasHeader: opts.HasHeaderRow}
	var labels []string

	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "invalid csv")
		}
		if isEmptyRow(row) {
			continue
		}

		if opts.HasHeaderRow && labels == nil {
			labels = headerLabels(row)
			out.Labels = labels
			continue
		}

		if !opts.HasHeaderRow {
			labels = indexLabels(len(row), labels)
			out.Labels = labels
		}

		out.Records = append(out.Records, RawRecord{
			Row:    len(out.Records) + 1 + headerOffset(opts.HasHeaderRow),
			Values: rowValues(labels, row),
		})
	}

	return out, nil
}

func parseSpreadsheet(data []byte) (*ParsedFile, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "invalid spreadsheet")
	}
	defer f.Close()

	out := &ParsedFile{HasHeader: true}

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return out, nil
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, errors.Wrapf(err, "invalid spreadsheet: read sheet %q", sheets[0])
	}
	if len(rows) == 0 {
		return out, nil
	}

	labels := headerLabels(rows[0])
	out.Labels = labels

	for _, row := range rows[1:] {
		if isEmptyRow(row) {
			continue
		}
		out.Records = append(out.Records, RawRecord{
			Row:    len(out.Records) + 2,
			Values: rowValues(labels, row),
		})
	}

	return out, nil
}

func headerOffset(hasHeader bool) int {
	if hasHeader {
		return 1
	}
	return 0
}

// headerLabels cleans header cells. Blank labels stay in place so column
// positions line up, but never become record keys.
func headerLabels(row []string) []string {
	labels := make([]string, len(row))
	for i, h := range row {
		labels[i] = NormalizeKey(CleanCell(h))
	}
	return labels
}

// indexLabels extends labels with zero-based column indexes up to n.
func indexLabels(n int, labels []string) []string {
	for i := len(labels); i < n; i++ {
		labels = append(labels, strconv.Itoa(i))
	}
	return labels
}

// rowValues keys the cells of row by label. Missing trailing cells become
// empty strings, extra cells are dropped, and for duplicate labels the first
// column wins.
func rowValues(labels []string, row []string) map[string]string {
	values := make(map[string]string, len(labels))
	for i, label := range labels {
		if label == "" {
			continue
		}
		if _, dup := values[label]; dup {
			continue
		}
		cell := ""
		if i < len(row) {
			cell = CleanCell(row[i])
		}
		values[label] = cell
	}
	return values
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
