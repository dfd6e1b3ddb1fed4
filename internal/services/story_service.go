// internal/services/story_service.go
package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Corphon/shakescript/internal/errors"
	"github.com/Corphon/shakescript/internal/models"
	"github.com/Corphon/shakescript/internal/storyapi"
	"github.com/Corphon/shakescript/internal/ui"
	"github.com/Corphon/shakescript/internal/utils"
	"go.uber.org/zap"
)

// Generation outcomes recorded in metrics
const (
	outcomeCompleted = "completed"
	outcomeFailed    = "failed"
	outcomeRejected  = "rejected"
)

// GenerationError reports a submission whose story was created but whose
// episodes were not. StoryID is the story left on the backend unless
// Compensated is true.
type GenerationError struct {
	StoryID     int
	Compensated bool
	Err         error
}

func (e *GenerationError) Error() string {
	if e.Compensated {
		return fmt.Sprintf("episode generation failed, story %d deleted: %v", e.StoryID, e.Err)
	}
	return fmt.Sprintf("episode generation failed, story %d left without episodes: %v", e.StoryID, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// StoryServiceConfig tunes the orchestrator
type StoryServiceConfig struct {
	// CompensateOnFailure deletes the created story when generation fails
	CompensateOnFailure bool
	// Timeout bounds a background submission, 0 means none
	Timeout time.Duration
}

// StoryService creates a story and generates its episodes
type StoryService struct {
	api      StoryAPI
	library  *LibraryService
	progress *ProgressService
	metrics  *utils.Metrics
	logger   *zap.Logger
	config   StoryServiceConfig

	// background submissions
	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewStoryService creates the orchestrator. library and progress may be
// nil.
func NewStoryService(api StoryAPI, library *LibraryService, progress *ProgressService, metrics *utils.Metrics, logger *zap.Logger, config StoryServiceConfig) *StoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &StoryService{
		api:      api,
		library:  library,
		progress: progress,
		metrics:  metrics,
		logger:   logger,
		config:   config,
		baseCtx:  ctx,
		cancel:   cancel,
	}
}

// Submit runs both steps of a generation and returns the rendered story.
// taskID names the progress tracker to publish to; it may be empty.
//
// The generate call is issued only once the create call returned a story
// id. If generation then fails the created story stays on the backend
// unless compensation is enabled, and the error is a *GenerationError.
func (s *StoryService) Submit(ctx context.Context, taskID string, req models.GenerationRequest) (*models.StoryView, error) {
	return s.submit(ctx, taskID, req, nil)
}

// submit calls settle, when set, before the final status is published so
// subscribers never observe a finished run ahead of its result
func (s *StoryService) submit(ctx context.Context, taskID string, req models.GenerationRequest, settle func(*models.StoryView)) (*models.StoryView, error) {
	if settle == nil {
		settle = func(*models.StoryView) {}
	}
	tracker := s.progress.Tracker(taskID)
	tracker.Start("Creating story")
	logger := s.logger.With(zap.String("task_id", taskID))

	created, err := s.api.CreateStory(ctx, storyapi.CreateStoryRequest{
		Prompt:      req.Prompt,
		NumEpisodes: req.EpisodeCount,
		IsHinglish:  req.IsHinglish,
		Hinglish:    req.IsHinglish,
		BatchSize:   req.BatchSize,
		Refinement:  string(req.RefineMethod),
	})
	if err != nil {
		settle(nil)
		return nil, s.fail(tracker, logger, errors.WrapError(err, "failed to create story", errors.ErrorTypeNetwork))
	}
	if created.Story == nil || created.Story.ID == 0 {
		settle(nil)
		return nil, s.fail(tracker, logger, errors.NewMalformedError("create story response has no story id", nil))
	}

	storyID := created.Story.ID
	logger = logger.With(zap.Int("story_id", storyID))
	logger.Info("story created", zap.String("title", created.Story.Title))
	tracker.UpdateProgress(30, "Writing episodes", storyID)

	episodes, err := s.api.GenerateEpisodes(ctx, storyID, storyapi.GenerateParams{
		Hinglish:  req.IsHinglish,
		All:       true,
		Method:    req.RefineMethod,
		BatchSize: req.BatchSize,
	})
	if err != nil {
		genErr := &GenerationError{StoryID: storyID, Err: err}
		if s.config.CompensateOnFailure {
			genErr.Compensated = s.compensate(ctx, logger, storyID)
		}
		settle(nil)
		return nil, s.fail(tracker, logger, genErr)
	}

	if s.library != nil {
		s.library.InvalidateList(ctx)
	}

	view := &models.StoryView{
		StoryID:  storyID,
		Title:    created.Story.Title,
		Episodes: episodes,
	}

	settle(view)
	s.metrics.Generation(outcomeCompleted)
	tracker.Complete(fmt.Sprintf("%s is ready", view.Title), storyID)
	logger.Info("story generated", zap.Int("episodes", len(episodes)), zap.Duration("elapsed", tracker.Elapsed()))
	return view, nil
}

// SubmitForm validates form and, when valid, runs the submission for sess
// in the background. It returns false without side effects when the form
// is invalid or the session is already generating.
func (s *StoryService) SubmitForm(sess *Session, form ui.PromptForm) bool {
	if !sess.BeginGeneration() {
		s.metrics.Generation(outcomeRejected)
		return false
	}

	accepted := form.Submit(func(req models.GenerationRequest) {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.runBackground(sess, req)
		}()
	})
	if !accepted {
		s.logger.Debug("prompt form rejected", zap.String("session", sess.ID), zap.Error(form.Validate()))
		sess.FinishGeneration(nil)
		s.metrics.Generation(outcomeRejected)
	}
	return accepted
}

func (s *StoryService) runBackground(sess *Session, req models.GenerationRequest) {
	ctx := s.baseCtx
	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	// errors are logged by submit; the dashboard falls back to its idle state
	_, _ = s.submit(ctx, sess.ID, req, sess.FinishGeneration)
}

// Close cancels background submissions and waits for them to return
func (s *StoryService) Close() {
	s.cancel()
	s.wg.Wait()
}

func (s *StoryService) compensate(ctx context.Context, logger *zap.Logger, storyID int) bool {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	if err := s.api.DeleteStory(ctx, storyID); err != nil {
		logger.Error("failed to delete story after generation failure", zap.Error(err))
		return false
	}
	logger.Info("deleted story after generation failure")
	return true
}

func (s *StoryService) fail(tracker *ProgressTracker, logger *zap.Logger, err error) error {
	s.metrics.Generation(outcomeFailed)
	tracker.Fail("Story generation failed")
	logger.Error("story generation failed", zap.Error(err))
	return err
}
