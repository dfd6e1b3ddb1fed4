package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Corphon/shakescript/internal/errors"
	"github.com/Corphon/shakescript/internal/models"
	"github.com/Corphon/shakescript/internal/storage"
	"github.com/Corphon/shakescript/internal/storyapi"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreAnyFunction("github.com/patrickmn/go-cache.(*janitor).Run"))
}

// fakeAPI is an in-memory story backend that records calls
type fakeAPI struct {
	mu sync.Mutex

	stories  []models.StorySummary
	details  map[int]*models.StoryDetail
	created  *storyapi.CreateStoryResponse
	episodes []models.Episode

	listErr     error
	getErr      error
	createErr   error
	generateErr error
	deleteErr   error

	calls          []string
	createRequests []storyapi.CreateStoryRequest
	generateIDs    []int
	generateParams []storyapi.GenerateParams
	deletedIDs     []int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{details: make(map[int]*models.StoryDetail)}
}

func (f *fakeAPI) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *fakeAPI) count(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (f *fakeAPI) ListStories(context.Context) ([]models.StorySummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("list")
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]models.StorySummary, len(f.stories))
	copy(out, f.stories)
	return out, nil
}

func (f *fakeAPI) GetStory(_ context.Context, id int) (*models.StoryDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("get")
	if f.getErr != nil {
		return nil, f.getErr
	}
	d, ok := f.details[id]
	if !ok {
		return nil, errors.NewNotFoundError("story not found", nil)
	}
	copied := *d
	return &copied, nil
}

func (f *fakeAPI) CreateStory(_ context.Context, req storyapi.CreateStoryRequest) (*storyapi.CreateStoryResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("create")
	f.createRequests = append(f.createRequests, req)
	if f.createErr != nil {
		return nil, f.createErr
	}
	return f.created, nil
}

func (f *fakeAPI) GenerateEpisodes(_ context.Context, id int, params storyapi.GenerateParams) ([]models.Episode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("generate")
	f.generateIDs = append(f.generateIDs, id)
	f.generateParams = append(f.generateParams, params)
	if f.generateErr != nil {
		return nil, f.generateErr
	}
	return f.episodes, nil
}

func (f *fakeAPI) DeleteStory(_ context.Context, id int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("delete")
	f.deletedIDs = append(f.deletedIDs, id)
	return f.deleteErr
}

func threeEpisodes() []models.Episode {
	return []models.Episode{
		{ID: 1, Number: 1, Title: "Oath", Content: "The knight swears."},
		{ID: 2, Number: 2, Title: "Road", Content: "The knight rides."},
		{ID: 3, Number: 3, Title: "Return", Content: "The knight comes home."},
	}
}

func newTestLibrary(t *testing.T, api StoryAPI) *LibraryService {
	t.Helper()
	lists, err := storage.NewResponseCache[[]models.StorySummary](4, time.Minute)
	require.NoError(t, err)
	details, err := storage.NewResponseCache[models.StoryDetail](16, time.Minute)
	require.NoError(t, err)
	return NewLibraryService(api, lists, details, nil)
}
