package document

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

// MaxFileSize is the largest file the server accepts.
const MaxFileSize = 50 * 1024 * 1024

// SupportedExtensions lists the file extensions the server can index.
var SupportedExtensions = []string{".pdf", ".docx", ".xlsx", ".pptx", ".txt", ".md", ".csv"}

var (
	// ErrUnsupportedType is returned for files with an unsupported extension.
	ErrUnsupportedType = errors.New("unsupported file type")

	// ErrTooLarge is returned for files over MaxFileSize.
	ErrTooLarge = errors.New("file too large")
)

// mimeTypes maps supported extensions to the content type sent on upload.
var mimeTypes = map[string]string{
	".pdf":  "application/pdf",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".txt":  "text/plain",
	".md":   "text/markdown",
	".csv":  "text/csv",
}

// IsSupported reports whether name has a supported extension. The check is
// case-insensitive.
func IsSupported(name string) bool {
	return slices.Contains(SupportedExtensions, strings.ToLower(filepath.Ext(name)))
}

// MimeType returns the content type for name, or application/octet-stream
// when the extension is not supported.
func MimeType(name string) string {
	if mt, ok := mimeTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return mt
	}
	return "application/octet-stream"
}

// Validate checks that a file can be uploaded.
func Validate(name string, size int64) error {
	if !IsSupported(name) {
		return fmt.Errorf("%w: %q (supported: %s)", ErrUnsupportedType, filepath.Base(name), strings.Join(SupportedExtensions, ", "))
	}
	if size > MaxFileSize {
		return fmt.Errorf("%w: %s exceeds %s", ErrTooLarge, FormatSize(size), FormatSize(MaxFileSize))
	}
	return nil
}

// FormatSize renders a byte count with one decimal place of the largest
// fitting unit: "0 B", "512 B", "1.5 KB", "50 MB".
func FormatSize(bytes int64) string {
	if bytes <= 0 {
		return "0 B"
	}

	units := []string{"B", "KB", "MB", "GB"}
	i := min(int(math.Floor(math.Log(float64(bytes))/math.Log(1024))), len(units)-1)

	value := math.Round(float64(bytes)/math.Pow(1024, float64(i))*10) / 10
	return strconv.FormatFloat(value, 'f', -1, 64) + " " + units[i]
}
