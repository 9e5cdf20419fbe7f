package attachments

import (
	"bytes"
	"mime"
	"path/filepath"
	"strings"

	"github.com/goliatone/go-mailroom/core"
)

var pdfMagic = []byte("%PDF-")

// NormalizeMediaType lowercases a media type and strips its parameters, so
// "Application/PDF; name=a.pdf" classifies the same as "application/pdf".
func NormalizeMediaType(mediaType string) string {
	mediaType = strings.TrimSpace(mediaType)
	if mediaType == "" {
		return ""
	}
	if idx := strings.Index(mediaType, ";"); idx >= 0 {
		mediaType = mediaType[:idx]
	}
	return strings.ToLower(strings.TrimSpace(mediaType))
}

// IsPDF reports whether a media type selects the attachment for extraction.
func IsPDF(mediaType string) bool {
	return NormalizeMediaType(mediaType) == core.MediaTypePDF
}

// HasPDFMagic reports whether content starts with the PDF file signature.
// The pipeline uses it to separate decode failures from engine failures.
func HasPDFMagic(content []byte) bool {
	return bytes.HasPrefix(content, pdfMagic)
}

// DetectMediaType resolves a usable media type for an attachment, preferring
// the declared type, then the filename extension, then the PDF signature.
func DetectMediaType(declared, filename string, content []byte) string {
	if normalized := NormalizeMediaType(declared); normalized != "" && normalized != "application/octet-stream" {
		return normalized
	}
	if ext := strings.ToLower(filepath.Ext(filename)); ext != "" {
		if byExt := NormalizeMediaType(mime.TypeByExtension(ext)); byExt != "" {
			return byExt
		}
	}
	if HasPDFMagic(content) {
		return core.MediaTypePDF
	}
	return "application/octet-stream"
}
