// internal/services/export_service.go
package services

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Corphon/shakescript/internal/errors"
	"github.com/Corphon/shakescript/internal/models"
	"github.com/go-pdf/fpdf"
)

// Page layout of the PDF export, in millimetres
const (
	pdfMargin     = 20.0
	pdfLineHeight = 7.0
	pdfAuthor     = "by: shakescript AI"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// ExportService renders stories for download
type ExportService struct {
	library *LibraryService
	now     func() time.Time
}

// NewExportService exports stories loaded through library
func NewExportService(library *LibraryService) *ExportService {
	return &ExportService{library: library, now: time.Now}
}

// ParseExportFormat maps a query value to a format. Empty means PDF.
func ParseExportFormat(value string) (models.ExportFormat, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "pdf":
		return models.ExportPDF, nil
	case "markdown", "md":
		return models.ExportMarkdown, nil
	case "txt", "text":
		return models.ExportText, nil
	default:
		return "", errors.NewValidationError(fmt.Sprintf("unsupported export format %q, use pdf, markdown or txt", value), nil)
	}
}

// ExportStory loads story id and renders it
func (s *ExportService) ExportStory(ctx context.Context, id int, format models.ExportFormat) (*models.ExportResult, error) {
	story, err := s.library.GetStory(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.Render(story, format)
}

// Render turns an already fetched story into a downloadable file
func (s *ExportService) Render(story *models.StoryDetail, format models.ExportFormat) (*models.ExportResult, error) {
	var (
		content []byte
		err     error
	)
	switch format {
	case models.ExportPDF:
		content, err = renderPDF(story)
	case models.ExportMarkdown:
		content = renderMarkdown(story)
	case models.ExportText:
		content = renderText(story)
	default:
		return nil, errors.NewValidationError(fmt.Sprintf("unsupported export format %q", format), nil)
	}
	if err != nil {
		return nil, errors.NewProcessingError("failed to render export", err)
	}

	return &models.ExportResult{
		StoryID:     story.ID,
		Title:       story.Title,
		Format:      format,
		Filename:    ExportFilename(story, format),
		Content:     content,
		GeneratedAt: s.now(),
		FileSize:    int64(len(content)),
	}, nil
}

// ExportFilename is the lowercased title with whitespace runs replaced by
// dashes, plus the format extension
func ExportFilename(story *models.StoryDetail, format models.ExportFormat) string {
	base := whitespaceRun.ReplaceAllString(strings.ToLower(strings.TrimSpace(story.Title)), "-")
	base = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', '"', ':', '*', '?', '<', '>', '|':
			return -1
		}
		return r
	}, base)
	if base == "" {
		base = "story-" + strconv.Itoa(story.ID)
	}
	return base + format.Extension()
}

func chapterNumber(ep models.Episode, i int) int {
	if ep.Number > 0 {
		return ep.Number
	}
	return i + 1
}

func paragraphs(content string) []string {
	var out []string
	for _, p := range strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func renderPDF(story *models.StoryDetail) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A5", "")
	pdf.SetMargins(pdfMargin, pdfMargin, pdfMargin)
	pdf.SetAutoPageBreak(true, pdfMargin)
	pdf.SetTitle(story.Title, true)
	pdf.SetAuthor("shakescript AI", true)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	// the title page is unnumbered
	pdf.SetFooterFunc(func() {
		if pdf.PageNo() < 2 {
			return
		}
		pdf.SetY(-pdfMargin + 5)
		pdf.SetFont("Helvetica", "", 9)
		pdf.CellFormat(0, 10, strconv.Itoa(pdf.PageNo()), "", 0, "C", false, 0, "")
	})

	pdf.AddPage()
	pdf.SetY(70)
	pdf.SetFont("Helvetica", "B", 22)
	pdf.MultiCell(0, 10, tr(story.Title), "", "C", false)
	pdf.Ln(6)
	pdf.SetFont("Helvetica", "I", 12)
	pdf.CellFormat(0, pdfLineHeight, pdfAuthor, "", 1, "C", false, 0, "")

	for i, ep := range story.Episodes {
		pdf.AddPage()
		pdf.SetFont("Helvetica", "B", 14)
		pdf.MultiCell(0, 8, tr(fmt.Sprintf("Chapter %d: %s", chapterNumber(ep, i), ep.Title)), "", "L", false)
		pdf.Ln(4)

		pdf.SetFont("Times", "", 11)
		for _, p := range paragraphs(ep.Content) {
			pdf.MultiCell(0, pdfLineHeight, tr(p), "", "J", false)
			pdf.Ln(2)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func renderMarkdown(story *models.StoryDetail) []byte {
	var content strings.Builder

	content.WriteString(fmt.Sprintf("# %s\n\n", story.Title))
	content.WriteString(fmt.Sprintf("_%s_\n\n", pdfAuthor))
	if story.Summary != "" {
		content.WriteString(fmt.Sprintf("> %s\n\n", story.Summary))
	}

	for i, ep := range story.Episodes {
		content.WriteString(fmt.Sprintf("## Chapter %d: %s\n\n", chapterNumber(ep, i), ep.Title))
		for _, p := range paragraphs(ep.Content) {
			content.WriteString(p + "\n\n")
		}
	}
	return []byte(content.String())
}

func renderText(story *models.StoryDetail) []byte {
	var content strings.Builder

	content.WriteString(strings.Repeat("=", 60) + "\n")
	content.WriteString(fmt.Sprintf("    %s\n", story.Title))
	content.WriteString(fmt.Sprintf("    %s\n", pdfAuthor))
	content.WriteString(strings.Repeat("=", 60) + "\n\n")
	if story.Summary != "" {
		content.WriteString(story.Summary + "\n\n")
	}

	for i, ep := range story.Episodes {
		content.WriteString(fmt.Sprintf("Chapter %d: %s\n", chapterNumber(ep, i), ep.Title))
		content.WriteString(strings.Repeat("-", 30) + "\n")
		for _, p := range paragraphs(ep.Content) {
			content.WriteString(p + "\n\n")
		}
	}
	return []byte(content.String())
}
