// Package export renders a list subtree to HTML or PDF and optionally
// stores the artifact in object storage.
package export

import (
	"errors"
	"time"
)

// Format represents the export output format
type Format string

const (
	FormatHTML Format = "html"
	FormatPDF  Format = "pdf"
)

// ParseFormat maps a query value to a Format; empty means HTML.
func ParseFormat(value string) (Format, error) {
	switch Format(value) {
	case "", FormatHTML:
		return FormatHTML, nil
	case FormatPDF:
		return FormatPDF, nil
	default:
		return "", ErrUnsupportedFormat
	}
}

// Request contains parameters for an export operation
type Request struct {
	NodeID string
	Depth  int
	Format Format
	// Store uploads the artifact and returns a download link instead of
	// relying on the response body alone.
	Store bool
}

// Result contains the export output
type Result struct {
	Data        []byte
	Filename    string
	MimeType    string
	DownloadURL string
	ExpiresAt   *time.Time
}

var (
	ErrUnsupportedFormat = errors.New("export format must be html or pdf")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrStorageUnavailable is returned when Store is requested without object storage.
	ErrStorageUnavailable = errors.New("export storage is not configured")
)
