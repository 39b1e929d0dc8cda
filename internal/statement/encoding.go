package statement

import (
	"bytes"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// Encoding names reported on results and import batches.
const (
	EncodingUTF8        = "utf-8"
	EncodingWindows1252 = "windows-1252"
	EncodingISO88591    = "iso-8859-1"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// decodeText tries UTF-8, then Windows-1252, then ISO-8859-1. The first
// decode that yields clean text wins.
func decodeText(content []byte) (string, string) {
	data := bytes.TrimPrefix(content, utf8BOM)
	if utf8.Valid(data) {
		return string(data), EncodingUTF8
	}
	if out, err := charmap.Windows1252.NewDecoder().Bytes(data); err == nil && !bytes.ContainsRune(out, utf8.RuneError) {
		return string(out), EncodingWindows1252
	}
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return string(data), EncodingISO88591
	}
	return string(out), EncodingISO88591
}
