package constants

import "strings"

// AllowedExtensions holds the file extensions accepted for intake.
var AllowedExtensions = map[string]struct{}{
	"pdf":  {},
	"jpg":  {},
	"jpeg": {},
	"png":  {},
	"csv":  {},
	"tsv":  {},
	"txt":  {},
	"xlsx": {},
}

// TabularExtensions are parsed by the statement parser instead of OCR.
var TabularExtensions = map[string]struct{}{
	"csv":  {},
	"tsv":  {},
	"txt":  {},
	"xlsx": {},
}

var tabularMIME = map[string]struct{}{
	"text/csv":                  {},
	"text/tab-separated-values": {},
	"application/vnd.ms-excel":  {},
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// IsAllowedExt reports whether ext (with or without dot) can be submitted.
func IsAllowedExt(ext string) bool {
	_, ok := AllowedExtensions[NormalizeExt(ext)]
	return ok
}

// IsTabularMIME reports whether a MIME type denotes a spreadsheet or delimited file.
func IsTabularMIME(mime string) bool {
	m := strings.ToLower(strings.TrimSpace(mime))
	if i := strings.IndexByte(m, ';'); i >= 0 {
		m = strings.TrimSpace(m[:i])
	}
	_, ok := tabularMIME[m]
	return ok
}

// MIMEForExt guesses a content type from an extension.
func MIMEForExt(ext string) string {
	switch NormalizeExt(ext) {
	case "pdf":
		return "application/pdf"
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "csv":
		return "text/csv"
	case "tsv":
		return "text/tab-separated-values"
	case "txt":
		return "text/plain"
	case "xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/octet-stream"
	}
}
