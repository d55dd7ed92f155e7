package core

// streaming.go wraps raw CSV bytes in decoding readers.
//
// Spreadsheet exports arrive in whatever encoding the user's Excel picked:
//
//   - UTF-8, with or without a BOM
//   - UTF-16 ("Unicode text"), always with a BOM
//   - Windows-1252 from Spanish-locale Excel, which breaks accented headers
//
// DecodeText sniffs the bytes and returns a reader that yields valid UTF-8.

import (
	"bytes"
	"io"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var (
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// DecodeText returns a UTF-8 reader over data.
//
// A BOM selects UTF-8 or UTF-16. Without one, valid UTF-8 is passed through
// and anything else is decoded as Windows-1252. Invalid UTF-8 sequences in
// BOM-marked input become U+FFFD.
func DecodeText(data []byte) io.Reader {
	r := bytes.NewReader(data)
	if bytes.HasPrefix(data, bomUTF16LE) || bytes.HasPrefix(data, bomUTF16BE) || utf8.Valid(data) {
		return transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	}
	return transform.NewReader(r, charmap.Windows1252.NewDecoder())
}
