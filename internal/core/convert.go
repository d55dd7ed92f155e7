package core

// convert.go turns spreadsheet cell text into typed values.
//
// Cells come from hand-edited files in Spanish and English locales:
//   - decimal comma or decimal point, with or without thousands separators
//   - currency symbols and accounting negatives "(12.50)"
//   - day-first and month-first dates, Excel serial dates
//   - Excel formula prefixes (="value")

import (
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

var (
	errInvalidNumber = errors.New("invalid number")
	errInvalidDate   = errors.New("invalid date")
)

// numericRegex validates a number after separators are normalized.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// serialRegex matches a bare Excel serial date.
var serialRegex = regexp.MustCompile(`^\d{1,7}(\.\d+)?$`)

// maxExcelSerial is 9999-12-31.
const maxExcelSerial = 2958465

// Date layouts in resolution order. Day-first wins over month-first, so
// 03/04/2024 is 3 April.
var (
	isoLayouts = []string{
		"2006-01-02",
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02 15:04",
		"2006/01/02",
	}
	dmySlashLayouts = []string{"2/1/2006", "2/1/2006 15:04", "2/1/2006 15:04:05"}
	dmyDashLayouts  = []string{"2-1-2006", "2-1-2006 15:04", "2-1-2006 15:04:05"}
	mdySlashLayouts = []string{"1/2/2006", "1/2/2006 15:04", "1/2/2006 15:04:05"}

	dateLayouts = concatLayouts(isoLayouts, dmySlashLayouts, dmyDashLayouts, mdySlashLayouts)
)

func concatLayouts(groups ...[]string) []string {
	var out []string
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

// CleanCell removes common spreadsheet artifacts from a cell value:
// surrounding whitespace, the Excel formula prefix (="...") and
// surrounding quotes.
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	s = strings.Trim(s, `"'`)
	return strings.TrimSpace(s)
}

// ParseNumber parses a locale-formatted number.
//
// When both separators appear, the last one is the decimal separator. A lone
// comma is a decimal comma unless exactly three digits follow it, so "12,5"
// is 12.5 and "1,234" is 1234. Several dots with no comma are thousands
// separators ("1.234.567").
func ParseNumber(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errInvalidNumber
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}

	s = strings.Map(func(r rune) rune {
		switch r {
		case '$', '\u20ac', '\u00a3', ' ', '\u00a0', '\'':
			return -1
		}
		return r
	}, s)

	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(s, ",") == 1 && len(s)-lastComma-1 != 3 {
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case strings.Count(s, ".") > 1:
		s = strings.ReplaceAll(s, ".", "")
	}

	if !numericRegex.MatchString(s) {
		return 0, errInvalidNumber
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, errInvalidNumber
	}
	if negative {
		v = -v
	}
	return v, nil
}

// ParseDate parses a date trying ISO 8601, DD/MM/YYYY, DD-MM-YYYY and
// MM/DD/YYYY in that order; the first layout that yields a valid calendar
// date wins. A bare number is read as an Excel serial date.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errInvalidDate
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}

	if serialRegex.MatchString(s) {
		f, err := strconv.ParseFloat(s, 64)
		if err == nil && f >= 1 && f <= maxExcelSerial {
			if t, err := excelize.ExcelDateToTime(f, false); err == nil {
				return t.UTC(), nil
			}
		}
	}

	return time.Time{}, errInvalidDate
}

// afterDay reports whether t falls on a later calendar day than now.
func afterDay(t, now time.Time) bool {
	ty, tm, td := t.Date()
	ny, nm, nd := now.Date()
	switch {
	case ty != ny:
		return ty > ny
	case tm != nm:
		return tm > nm
	default:
		return td > nd
	}
}
