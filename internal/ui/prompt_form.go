// internal/ui/prompt_form.go
package ui

import (
	"strings"

	"github.com/Corphon/shakescript/internal/models"
	"github.com/go-playground/validator/v10"
)

// Form limits and defaults
const (
	MinEpisodes = 1
	MaxEpisodes = 50

	DefaultEpisodes  = 5
	DefaultBatchSize = 2
	DefaultMethod    = models.RefineAI
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return v
}

// PromptForm holds the story generation parameters a visitor is editing.
// Invalid input never produces a user-facing error: the form simply
// refuses to submit.
type PromptForm struct {
	Prompt       string              `form:"prompt" json:"prompt" validate:"notblank"`
	EpisodeCount int                 `form:"episodes" json:"episode_count" validate:"min=1,max=50"`
	BatchSize    int                 `form:"batch_size" json:"batch_size" validate:"min=1,ltefield=EpisodeCount"`
	RefineMethod models.RefineMethod `form:"method" json:"refine_method" validate:"oneof=human ai"`
	IsHinglish   bool                `form:"hinglish" json:"is_hinglish"`
}

// NewPromptForm returns a form with the default settings
func NewPromptForm() *PromptForm {
	return &PromptForm{
		EpisodeCount: DefaultEpisodes,
		BatchSize:    DefaultBatchSize,
		RefineMethod: DefaultMethod,
	}
}

// Validate returns the validator error, or nil when the form can be
// submitted
func (f *PromptForm) Validate() error {
	return validate.Struct(f)
}

// CanSubmit reports whether Submit would go through
func (f *PromptForm) CanSubmit() bool {
	return f.Validate() == nil
}

// Request packages the form as a generation request
func (f *PromptForm) Request() models.GenerationRequest {
	return models.GenerationRequest{
		Prompt:       strings.TrimSpace(f.Prompt),
		EpisodeCount: f.EpisodeCount,
		BatchSize:    f.BatchSize,
		RefineMethod: f.RefineMethod,
		IsHinglish:   f.IsHinglish,
	}
}

// Submit calls onSubmit once with the packaged request if the form is
// valid. It returns false without calling anything otherwise.
func (f *PromptForm) Submit(onSubmit func(models.GenerationRequest)) bool {
	if !f.CanSubmit() {
		return false
	}
	onSubmit(f.Request())
	return true
}

// IncrementEpisodes adds an episode, up to MaxEpisodes
func (f *PromptForm) IncrementEpisodes() {
	if f.EpisodeCount < MaxEpisodes {
		f.EpisodeCount++
	}
}

// DecrementEpisodes removes an episode, down to MinEpisodes. The batch
// size follows so it never exceeds the episode count.
func (f *PromptForm) DecrementEpisodes() {
	if f.EpisodeCount > MinEpisodes {
		f.EpisodeCount--
	}
	if f.BatchSize > f.EpisodeCount {
		f.BatchSize = f.EpisodeCount
	}
}

// IncrementBatch grows the batch, up to the episode count
func (f *PromptForm) IncrementBatch() {
	if f.BatchSize < f.EpisodeCount {
		f.BatchSize++
	}
}

// DecrementBatch shrinks the batch, down to 1
func (f *PromptForm) DecrementBatch() {
	if f.BatchSize > 1 {
		f.BatchSize--
	}
}

// Step applies a named stepper action from the dashboard. Unknown actions
// are ignored.
func (f *PromptForm) Step(action string) {
	switch action {
	case "episodes+":
		f.IncrementEpisodes()
	case "episodes-":
		f.DecrementEpisodes()
	case "batch+":
		f.IncrementBatch()
	case "batch-":
		f.DecrementBatch()
	}
}
