package services

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Corphon/shakescript/internal/errors"
	"github.com/Corphon/shakescript/internal/models"
)

func TestStats_Improvement(t *testing.T) {
	improvement := NewStatsService().Improvement()

	assert.InDelta(t, 1.8667, improvement.Story1, 0.001)
	assert.InDelta(t, 1.9833, improvement.Story2, 0.001)
	assert.InDelta(t, 1.925, improvement.Overall, 0.001)
}

func TestStats_Dashboard(t *testing.T) {
	dash := NewStatsService().Dashboard()

	require.Len(t, dash.Scores, 6)
	assert.Equal(t, "Plot / Structure", dash.Scores[0].Attribute)

	require.Len(t, dash.Series, 3)
	assert.Equal(t, SeriesStory1, dash.Series[0].Name)
	assert.Equal(t, SeriesBaseline, dash.Series[2].Name)
	for _, s := range dash.Series {
		assert.Len(t, s.Points, 6)
	}
	assert.InDelta(t, 95.0, dash.Series[0].Points[0].Percent, 1e-9)
	assert.Equal(t, "P/S", dash.Series[0].Points[0].Label)
}

func TestStats_ScoresAreCopied(t *testing.T) {
	svc := NewStatsService()
	scores := svc.Scores()
	scores[0].Story1 = 0
	assert.Equal(t, 9.5, svc.Scores()[0].Story1)
}

func knightDetail() *models.StoryDetail {
	return &models.StoryDetail{
		ID:      42,
		Title:   "The  Knight's\tJourney",
		Summary: "A knight leaves and returns.",
		Episodes: []models.Episode{
			{Number: 1, Title: "Oath", Content: "The knight swears.\n\nHe leaves at dawn."},
			{Number: 2, Title: "Road", Content: "The road is long."},
		},
	}
}

func TestParseExportFormat(t *testing.T) {
	tests := map[string]models.ExportFormat{
		"":         models.ExportPDF,
		"PDF":      models.ExportPDF,
		"markdown": models.ExportMarkdown,
		"md":       models.ExportMarkdown,
		"txt":      models.ExportText,
		"text":     models.ExportText,
	}
	for input, want := range tests {
		got, err := ParseExportFormat(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got, input)
	}

	_, err := ParseExportFormat("docx")
	assert.True(t, errors.IsValidationError(err))
}

func TestExportFilename(t *testing.T) {
	assert.Equal(t, "the-knight's-journey.pdf", ExportFilename(knightDetail(), models.ExportPDF))
	assert.Equal(t, "the-knight's-journey.md", ExportFilename(knightDetail(), models.ExportMarkdown))
	assert.Equal(t, "story-9.txt", ExportFilename(&models.StoryDetail{ID: 9, Title: "  "}, models.ExportText))
	assert.Equal(t, "a-b.pdf", ExportFilename(&models.StoryDetail{Title: "A/ B"}, models.ExportPDF))
}

func TestExport_Markdown(t *testing.T) {
	svc := NewExportService(nil)
	result, err := svc.Render(knightDetail(), models.ExportMarkdown)
	require.NoError(t, err)

	md := string(result.Content)
	assert.True(t, strings.HasPrefix(md, "# The  Knight's\tJourney\n"))
	assert.Contains(t, md, "_by: shakescript AI_")
	assert.Contains(t, md, "## Chapter 1: Oath")
	assert.Contains(t, md, "He leaves at dawn.")
	assert.Less(t, strings.Index(md, "Chapter 1"), strings.Index(md, "Chapter 2"))
	assert.Equal(t, int64(len(result.Content)), result.FileSize)
}

func TestExport_Text(t *testing.T) {
	svc := NewExportService(nil)
	result, err := svc.Render(knightDetail(), models.ExportText)
	require.NoError(t, err)

	txt := string(result.Content)
	assert.Contains(t, txt, "Chapter 2: Road")
	assert.Contains(t, txt, "by: shakescript AI")
}

func TestExport_PDF(t *testing.T) {
	svc := NewExportService(nil)
	result, err := svc.Render(knightDetail(), models.ExportPDF)
	require.NoError(t, err)

	assert.True(t, bytes.HasPrefix(result.Content, []byte("%PDF-")))
	assert.Equal(t, "the-knight's-journey.pdf", result.Filename)
	assert.Equal(t, models.ExportPDF, result.Format)
}

func TestExport_ExportStoryUsesLibrary(t *testing.T) {
	api := newFakeAPI()
	api.details[42] = knightDetail()
	svc := NewExportService(newTestLibrary(t, api))
	fixed := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	result, err := svc.ExportStory(context.Background(), 42, models.ExportText)
	require.NoError(t, err)
	assert.Equal(t, 42, result.StoryID)
	assert.Equal(t, fixed, result.GeneratedAt)

	_, err = svc.ExportStory(context.Background(), 404, models.ExportText)
	assert.True(t, errors.IsNotFoundError(err))
}
