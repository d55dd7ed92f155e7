package imports

import (
	"strings"
	"unicode"
)

// units maps common spellings to a canonical unit of measure.
var units = map[string]string{
	"unidad":     "unidad",
	"unidades":   "unidad",
	"un":         "unidad",
	"u":          "unidad",
	"und":        "unidad",
	"unit":       "unidad",
	"units":      "unidad",
	"pcs":        "unidad",
	"pieza":      "unidad",
	"piezas":     "unidad",
	"kg":         "kg",
	"kilo":       "kg",
	"kilos":      "kg",
	"kilogramo":  "kg",
	"kilogramos": "kg",
	"g":          "g",
	"gr":         "g",
	"gramo":      "g",
	"gramos":     "g",
	"l":          "l",
	"lt":         "l",
	"litro":      "l",
	"litros":     "l",
	"ml":         "ml",
	"m":          "m",
	"metro":      "m",
	"metros":     "m",
	"caja":       "caja",
	"cajas":      "caja",
	"paquete":    "paquete",
	"paquetes":   "paquete",
	"docena":     "docena",
	"docenas":    "docena",
}

// NormalizeUnit converts unit spellings to their canonical form.
// Unrecognized values are returned lowercased.
func NormalizeUnit(s string) string {
	lower := strings.ToLower(strings.TrimSpace(strings.TrimSuffix(s, ".")))
	if u, ok := units[lower]; ok {
		return u
	}
	return lower
}

// NormalizeDocument strips separators from a tax or identity document
// number: "20-12345678-9" and "20.12345678.9" both become "20123456789".
func NormalizeDocument(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}

// NormalizePhone keeps digits and a leading plus sign.
func NormalizePhone(s string) string {
	s = strings.TrimSpace(s)
	var b strings.Builder
	for i, r := range s {
		if unicode.IsDigit(r) || (i == 0 && r == '+') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeBarcode drops spaces and dashes from a barcode.
func NormalizeBarcode(s string) string {
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return -1
		}
		return r
	}, s)
}

// NormalizeEmail lowercases an email address.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
