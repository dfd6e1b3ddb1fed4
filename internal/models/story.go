// internal/models/story.go
package models

import (
	"encoding/json"
	"strings"
)

// RefineMethod selects how the backend refines generated episodes
type RefineMethod string

const (
	RefineHuman RefineMethod = "human"
	RefineAI    RefineMethod = "ai"
)

// Valid reports whether the method is one the backend accepts
func (m RefineMethod) Valid() bool {
	return m == RefineHuman || m == RefineAI
}

// StorySummary identifies a story in list views
type StorySummary struct {
	ID    int    `json:"story_id"`
	Title string `json:"title"`
}

// StoryDetail is a fully fetched story with its episodes in narrative order
type StoryDetail struct {
	ID       int       `json:"story_id"`
	Title    string    `json:"title"`
	Summary  string    `json:"summary"`
	Episodes []Episode `json:"episodes"`
}

// ToSummary returns the list-view projection of the detail
func (d *StoryDetail) ToSummary() StorySummary {
	return StorySummary{ID: d.ID, Title: d.Title}
}

// Episode is one narrative unit of a story, numbered from 1.
//
// The backend uses two encodings: the story detail endpoint emits
// number/title/content/summary while the generate endpoint emits the
// episode_-prefixed names. Both decode into the same value.
type Episode struct {
	ID      int    `json:"id,omitempty"`
	Number  int    `json:"number"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Summary string `json:"summary"`
}

type episodeWire struct {
	ID      int    `json:"id"`
	Number  int    `json:"number"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Summary string `json:"summary"`

	EpisodeID      int    `json:"episode_id"`
	EpisodeNumber  int    `json:"episode_number"`
	EpisodeTitle   string `json:"episode_title"`
	EpisodeContent string `json:"episode_content"`
	EpisodeSummary string `json:"episode_summary"`
}

// UnmarshalJSON accepts both episode encodings
func (e *Episode) UnmarshalJSON(data []byte) error {
	var w episodeWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	*e = Episode{
		ID:      firstInt(w.ID, w.EpisodeID),
		Number:  firstInt(w.Number, w.EpisodeNumber),
		Title:   firstString(w.Title, w.EpisodeTitle),
		Content: firstString(w.Content, w.EpisodeContent),
		Summary: firstString(w.Summary, w.EpisodeSummary),
	}
	return nil
}

// GenerationRequest carries the parameters of one story submission
type GenerationRequest struct {
	Prompt       string       `json:"prompt"`
	EpisodeCount int          `json:"episode_count"`
	BatchSize    int          `json:"batch_size"`
	RefineMethod RefineMethod `json:"refine_method"`
	IsHinglish   bool         `json:"is_hinglish"`
}

// StoryView is the rendered state of a story on the dashboard or in the library
type StoryView struct {
	StoryID  int       `json:"story_id"`
	Title    string    `json:"title"`
	Summary  string    `json:"summary,omitempty"`
	Episodes []Episode `json:"episodes"`
}

// NewStoryView builds a view from a fetched detail
func NewStoryView(d *StoryDetail) *StoryView {
	episodes := make([]Episode, len(d.Episodes))
	copy(episodes, d.Episodes)
	return &StoryView{
		StoryID:  d.ID,
		Title:    d.Title,
		Summary:  d.Summary,
		Episodes: episodes,
	}
}

// FilterByTitle keeps the stories whose title contains query, ignoring case
func FilterByTitle(stories []StorySummary, query string) []StorySummary {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return stories
	}

	filtered := make([]StorySummary, 0, len(stories))
	for _, s := range stories {
		if strings.Contains(strings.ToLower(s.Title), query) {
			filtered = append(filtered, s)
		}
	}
	return filtered
}

func firstInt(values ...int) int {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}

func firstString(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
