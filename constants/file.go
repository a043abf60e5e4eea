package constants

import "strings"

// MaxUploadBytes is the default upload ceiling (5 MiB).
const MaxUploadBytes int64 = 5 << 20

// PDFMagic is the header every accepted upload must start with.
const PDFMagic = "%PDF-"

// AllowedExtensions holds the file extensions accepted for analysis.
var AllowedExtensions = map[string]struct{}{
	"pdf": {},
}

// AllowedContentTypes holds the upload content types accepted for analysis.
var AllowedContentTypes = map[string]struct{}{
	"application/pdf":   {},
	"application/x-pdf": {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// IsAllowedExt reports whether a file name or extension is accepted.
func IsAllowedExt(ext string) bool {
	if i := strings.LastIndexByte(ext, '.'); i >= 0 {
		ext = ext[i:]
	}
	_, ok := AllowedExtensions[NormalizeExt(ext)]
	return ok
}
