// internal/models/stats.go
package models

// BenchmarkScore is one evaluated attribute on the stats dashboard
type BenchmarkScore struct {
	Attribute string  `json:"attribute"` // full name, e.g. "Plot / Structure"
	Short     string  `json:"short"`     // axis label, e.g. "P/S"
	Story1    float64 `json:"story1"`
	Story2    float64 `json:"story2"`
	Baseline  float64 `json:"baseline"`
}

// ImprovementSummary holds the average gain over the baseline model
type ImprovementSummary struct {
	Story1  float64 `json:"story1"`
	Story2  float64 `json:"story2"`
	Overall float64 `json:"overall"`
}

// ChartPoint is a single labelled value scaled for rendering
type ChartPoint struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
	// Percent of the 0-10 score range, used for bar widths
	Percent float64 `json:"percent"`
}

// ChartSeries is one named line or bar group of the dashboard
type ChartSeries struct {
	Name   string       `json:"name"`
	Color  string       `json:"color"`
	Points []ChartPoint `json:"points"`
}

// StatsDashboard is everything the stats page renders
type StatsDashboard struct {
	Scores      []BenchmarkScore   `json:"scores"`
	Series      []ChartSeries      `json:"series"`
	Improvement ImprovementSummary `json:"improvement"`
}
