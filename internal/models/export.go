// internal/models/export.go
package models

import (
	"time"
)

// ExportFormat names a supported story export
type ExportFormat string

const (
	ExportPDF      ExportFormat = "pdf"
	ExportMarkdown ExportFormat = "markdown"
	ExportText     ExportFormat = "txt"
)

// ContentType returns the MIME type served for the format
func (f ExportFormat) ContentType() string {
	switch f {
	case ExportPDF:
		return "application/pdf"
	case ExportMarkdown:
		return "text/markdown; charset=utf-8"
	default:
		return "text/plain; charset=utf-8"
	}
}

// Extension returns the filename suffix for the format
func (f ExportFormat) Extension() string {
	switch f {
	case ExportMarkdown:
		return ".md"
	case ExportText:
		return ".txt"
	default:
		return ".pdf"
	}
}

// ExportResult is a rendered story export ready to be served
type ExportResult struct {
	StoryID     int          `json:"story_id"`
	Title       string       `json:"title"`
	Format      ExportFormat `json:"format"`
	Filename    string       `json:"filename"`
	Content     []byte       `json:"-"`
	GeneratedAt time.Time    `json:"generated_at"`
	FileSize    int64        `json:"file_size"`
}
