// internal/services/stats_service.go
package services

import (
	"github.com/Corphon/shakescript/internal/models"
)

const maxScore = 10.0

// Series names and colors shown on the stats dashboard
const (
	SeriesStory1   = "Shakescript AI - Story 1"
	SeriesStory2   = "Shakescript AI - Story 2"
	SeriesBaseline = "Baseline LLM"

	colorStory1   = "rgba(16, 185, 129, 0.7)"
	colorStory2   = "rgba(139, 92, 246, 0.7)"
	colorBaseline = "rgba(249, 115, 22, 0.7)"
)

// benchmarkScores are the evaluated sample scores, 0-10 per attribute
var benchmarkScores = []models.BenchmarkScore{
	{Attribute: "Plot / Structure", Short: "P/S", Story1: 9.5, Story2: 9.0, Baseline: 7.5},
	{Attribute: "World-Building / Setting", Short: "W/S", Story1: 9.5, Story2: 9.8, Baseline: 7.2},
	{Attribute: "Character Development", Short: "CD", Story1: 9.0, Story2: 9.5, Baseline: 7.8},
	{Attribute: "Emotional Engagement / Impact", Short: "E/I", Story1: 9.2, Story2: 9.4, Baseline: 7.4},
	{Attribute: "Writing Style", Short: "WS", Story1: 8.8, Story2: 8.8, Baseline: 7.0},
	{Attribute: "Themes / Symbolism", Short: "T/S", Story1: 9.4, Story2: 9.6, Baseline: 7.3},
}

// StatsService serves the benchmark comparison behind the stats page
type StatsService struct {
	scores []models.BenchmarkScore
}

// NewStatsService creates a service over the built-in scores
func NewStatsService() *StatsService {
	return &StatsService{scores: benchmarkScores}
}

// Scores returns a copy of the per-attribute scores
func (s *StatsService) Scores() []models.BenchmarkScore {
	out := make([]models.BenchmarkScore, len(s.scores))
	copy(out, s.scores)
	return out
}

// Improvement averages the gain of each story over the baseline. Overall
// uses the mean of both stories per attribute.
func (s *StatsService) Improvement() models.ImprovementSummary {
	return models.ImprovementSummary{
		Story1:  averageGain(s.scores, func(b models.BenchmarkScore) float64 { return b.Story1 }),
		Story2:  averageGain(s.scores, func(b models.BenchmarkScore) float64 { return b.Story2 }),
		Overall: averageGain(s.scores, func(b models.BenchmarkScore) float64 { return (b.Story1 + b.Story2) / 2 }),
	}
}

// Dashboard assembles everything the stats page renders
func (s *StatsService) Dashboard() *models.StatsDashboard {
	series := []models.ChartSeries{
		{Name: SeriesStory1, Color: colorStory1},
		{Name: SeriesStory2, Color: colorStory2},
		{Name: SeriesBaseline, Color: colorBaseline},
	}
	for _, score := range s.scores {
		series[0].Points = append(series[0].Points, chartPoint(score.Short, score.Story1))
		series[1].Points = append(series[1].Points, chartPoint(score.Short, score.Story2))
		series[2].Points = append(series[2].Points, chartPoint(score.Short, score.Baseline))
	}

	return &models.StatsDashboard{
		Scores:      s.Scores(),
		Series:      series,
		Improvement: s.Improvement(),
	}
}

func chartPoint(label string, value float64) models.ChartPoint {
	return models.ChartPoint{Label: label, Value: value, Percent: value / maxScore * 100}
}

func averageGain(scores []models.BenchmarkScore, value func(models.BenchmarkScore) float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	sum := 0.0
	for _, score := range scores {
		sum += value(score) - score.Baseline
	}
	return sum / float64(len(scores))
}
