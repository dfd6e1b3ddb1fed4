// internal/services/library_service.go
package services

import (
	"context"
	"fmt"
	"strconv"

	"github.com/Corphon/shakescript/internal/errors"
	"github.com/Corphon/shakescript/internal/models"
	"github.com/Corphon/shakescript/internal/storage"
	"github.com/Corphon/shakescript/internal/storyapi"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	storyListKey     = "all"
	prefetchParallel = 4
)

// StoryAPI is the part of the story backend the services use
type StoryAPI interface {
	ListStories(ctx context.Context) ([]models.StorySummary, error)
	GetStory(ctx context.Context, id int) (*models.StoryDetail, error)
	CreateStory(ctx context.Context, req storyapi.CreateStoryRequest) (*storyapi.CreateStoryResponse, error)
	GenerateEpisodes(ctx context.Context, id int, params storyapi.GenerateParams) ([]models.Episode, error)
	DeleteStory(ctx context.Context, id int) error
}

// LibraryService reads stories through the response caches
type LibraryService struct {
	api     StoryAPI
	lists   *storage.Loader[[]models.StorySummary]
	details *storage.Loader[models.StoryDetail]
	logger  *zap.Logger
}

// NewLibraryService wires api behind the list and detail caches
func NewLibraryService(api StoryAPI, lists storage.Cache[[]models.StorySummary], details storage.Cache[models.StoryDetail], logger *zap.Logger) *LibraryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LibraryService{
		api:     api,
		lists:   storage.NewLoader(lists),
		details: storage.NewLoader(details),
		logger:  logger,
	}
}

// ListStories returns every story, from cache when fresh
func (s *LibraryService) ListStories(ctx context.Context) ([]models.StorySummary, error) {
	stories, cached, err := s.lists.Fetch(ctx, storyListKey, s.api.ListStories)
	if err != nil {
		return nil, errors.WrapError(err, "failed to load stories", errors.ErrorTypeNetwork)
	}
	s.logger.Debug("story list loaded", zap.Int("count", len(stories)), zap.Bool("cached", cached))
	return stories, nil
}

// SearchStories returns the stories whose title contains query
func (s *LibraryService) SearchStories(ctx context.Context, query string) ([]models.StorySummary, error) {
	stories, err := s.ListStories(ctx)
	if err != nil {
		return nil, err
	}
	return models.FilterByTitle(stories, query), nil
}

// GetStory returns one story with its episodes. A story without episodes
// is rejected as malformed and not cached.
func (s *LibraryService) GetStory(ctx context.Context, id int) (*models.StoryDetail, error) {
	if id <= 0 {
		return nil, errors.NewValidationError(fmt.Sprintf("invalid story id %d", id), nil)
	}

	story, cached, err := s.details.Fetch(ctx, strconv.Itoa(id), func(ctx context.Context) (models.StoryDetail, error) {
		detail, err := s.api.GetStory(ctx, id)
		if err != nil {
			return models.StoryDetail{}, err
		}
		if len(detail.Episodes) == 0 {
			return models.StoryDetail{}, errors.NewMalformedError(fmt.Sprintf("story %d has no episodes", id), nil)
		}
		return *detail, nil
	})
	if err != nil {
		return nil, errors.WrapError(err, fmt.Sprintf("failed to load story %d", id), errors.ErrorTypeNetwork)
	}

	s.logger.Debug("story loaded", zap.Int("story_id", id), zap.Bool("cached", cached))
	return &story, nil
}

// GetStories loads several stories concurrently, keeping the order of ids
func (s *LibraryService) GetStories(ctx context.Context, ids []int) ([]models.StoryDetail, error) {
	stories := make([]models.StoryDetail, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(prefetchParallel)
	for i, id := range ids {
		g.Go(func() error {
			story, err := s.GetStory(gctx, id)
			if err != nil {
				return err
			}
			stories[i] = *story
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return stories, nil
}

// InvalidateList drops the cached story list
func (s *LibraryService) InvalidateList(ctx context.Context) {
	s.lists.Forget(ctx, storyListKey)
}

// DeleteStory removes a story from the backend and both caches
func (s *LibraryService) DeleteStory(ctx context.Context, id int) error {
	if err := s.api.DeleteStory(ctx, id); err != nil {
		return errors.WrapError(err, fmt.Sprintf("failed to delete story %d", id), errors.ErrorTypeNetwork)
	}
	s.details.Forget(ctx, strconv.Itoa(id))
	s.InvalidateList(ctx)
	return nil
}
