package utils

import (
	"bytes"
	"path/filepath"
	"regexp"
	"strings"
)

var pdfMagic = []byte("%PDF-")

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._\s-]`)

// SanitizeFilename cleans a user-supplied filename for safe storage and
// logging. It trims spaces and dots, removes parent directory references,
// and filters out non-alphanumeric characters except for safe punctuation.
func SanitizeFilename(filename string) string {
	sanitized := strings.Trim(filename, " .")
	sanitized = strings.ReplaceAll(sanitized, "..", "")
	sanitized = unsafeFilenameChars.ReplaceAllString(sanitized, "")
	if len(sanitized) > 255 {
		sanitized = sanitized[:255]
	}
	return sanitized
}

// HasPDFExtension reports whether the filename ends in .pdf, case-insensitive.
func HasPDFExtension(filename string) bool {
	return strings.EqualFold(filepath.Ext(filename), ".pdf")
}

// IsPDF sniffs the %PDF- magic at the start of the bytes. Upload validation
// runs this before any content enters the pipeline.
func IsPDF(data []byte) bool {
	return bytes.HasPrefix(data, pdfMagic)
}
