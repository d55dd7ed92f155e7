package core

// sheet.go reads uploaded CSV and XLSX files into raw rows and locates the
// header row.

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/stockimport/internal/headers"
)

// MaxHeaderSearchRows is how many leading non-empty rows are scanned for the
// header row. Title and banner rows above the table are skipped.
const MaxHeaderSearchRows = 20

// Format is a spreadsheet file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

var zipMagic = []byte("PK\x03\x04")

// DetectFormat picks the format from the file extension, falling back to
// content sniffing when head is given.
func DetectFormat(fileName string, head []byte) (Format, error) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".csv", ".txt", ".tsv":
		return FormatCSV, nil
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	case ".xls", ".ods", ".numbers":
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(fileName))
	}

	if len(head) > 0 {
		if bytes.HasPrefix(head, zipMagic) {
			return FormatXLSX, nil
		}
		return FormatCSV, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, fileName)
}

// Sheet is the non-empty rows of the first worksheet, in file order.
type Sheet struct {
	Format Format
	Rows   []RawRow
}

// ReadSheet parses data. Fully empty rows are dropped; every kept row keeps
// its original 1-based line number.
func ReadSheet(data []byte, fileName string) (*Sheet, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty file", ErrUnreadableFile)
	}

	format, err := DetectFormat(fileName, data)
	if err != nil {
		return nil, err
	}

	var rows []RawRow
	switch format {
	case FormatXLSX:
		rows, err = readXLSX(data)
	default:
		rows, err = readCSV(data)
	}
	if err != nil {
		return nil, err
	}

	return &Sheet{Format: format, Rows: rows}, nil
}

func readCSV(data []byte) ([]RawRow, error) {
	br := bufio.NewReader(DecodeText(data))
	first, _ := br.Peek(4096)

	r := csv.NewReader(br)
	r.Comma = detectDelimiter(first)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var rows []RawRow
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: invalid csv: %w", ErrUnreadableFile, err)
		}
		line, _ := r.FieldPos(0)
		if isEmptyRow(record) {
			continue
		}
		rows = append(rows, RawRow{Line: line, Cells: record})
	}
	return rows, nil
}

// delimiterSampleLines is how many leading lines detectDelimiter reads.
const delimiterSampleLines = 10

// detectDelimiter picks the separator that occurs most often outside quotes
// in the first lines of head. Spanish-locale Excel writes ';'.
func detectDelimiter(head []byte) rune {
	counts := map[rune]int{}
	inQuotes := false
	lines := 0

scan:
	for _, r := range string(head) {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case inQuotes:
		case r == '\n':
			lines++
			if lines == delimiterSampleLines {
				break scan
			}
		case r == ',' || r == ';' || r == '\t' || r == '|':
			counts[r]++
		}
	}

	best := ','
	for _, r := range []rune{';', '\t', '|'} {
		if counts[r] > counts[best] {
			best = r
		}
	}
	return best
}

func readXLSX(data []byte) ([]RawRow, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreadableFile, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: workbook has no sheets", ErrUnreadableFile)
	}

	it, err := f.Rows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreadableFile, err)
	}
	defer it.Close()

	var rows []RawRow
	line := 0
	for it.Next() {
		line++
		// Raw values keep dates as serial numbers and numbers unformatted.
		cells, err := it.Columns(excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %w", ErrUnreadableFile, line, err)
		}
		if isEmptyRow(cells) {
			continue
		}
		rows = append(rows, RawRow{Line: line, Cells: cells})
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreadableFile, err)
	}
	return rows, nil
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// HeaderResult is the located header row and its column map.
type HeaderResult struct {
	Index    int // Position of the header in Sheet.Rows
	Line     int
	Columns  headers.ColumnMap
	Warnings []headers.Warning
}

// LocateHeader scans the first MaxHeaderSearchRows rows and picks the one
// with the most mapped columns. Ties go to the earlier row; when nothing
// maps, the first row is the header.
//
// Only banner-like rows may sit above the header: a row with no mapped
// column, or with fewer non-empty cells than the header. Skipped rows are
// reported as a warning.
func LocateHeader(rows []RawRow, dict *headers.Dictionary) (HeaderResult, bool) {
	if len(rows) == 0 {
		return HeaderResult{}, false
	}

	limit := min(len(rows), MaxHeaderSearchRows)
	best := HeaderResult{Index: -1}
	bestCount := -1

	// Widest row above i that maps at least one column.
	widestMapped := 0
	for i := 0; i < limit; i++ {
		cm, warnings := dict.MapHeaders(rows[i].Cells)
		width := nonEmptyCells(rows[i].Cells)
		if i == 0 || widestMapped < width {
			if cm.MappedCount() > bestCount {
				bestCount = cm.MappedCount()
				best = HeaderResult{Index: i, Line: rows[i].Line, Columns: cm, Warnings: warnings}
			}
		}
		if cm.MappedCount() > 0 {
			widestMapped = max(widestMapped, width)
		}
	}

	if best.Index > 0 {
		lines := make([]int, best.Index)
		for i := range lines {
			lines[i] = rows[i].Line
		}
		best.Warnings = append([]headers.Warning{headers.SkippedRows(lines)}, best.Warnings...)
	}
	return best, true
}

func nonEmptyCells(cells []string) int {
	n := 0
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			n++
		}
	}
	return n
}
