package storyapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Corphon/shakescript/internal/errors"
	"github.com/Corphon/shakescript/internal/models"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Options{BaseURL: srv.URL + "/api/v1", Timeout: 2 * time.Second})
}

func TestListStories(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/v1/stories/all", r.URL.Path)
		_, _ = w.Write([]byte(`{"stories":[{"story_id":1,"title":"One"},{"story_id":2,"title":"Two"}]}`))
	})

	stories, err := client.ListStories(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.StorySummary{{ID: 1, Title: "One"}, {ID: 2, Title: "Two"}}, stories)
}

func TestListStories_EmptyIsNotNil(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})

	stories, err := client.ListStories(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, stories)
	assert.Empty(t, stories)
}

func TestGetStory_DetailEncoding(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/stories/9", r.URL.Path)
		_, _ = w.Write([]byte(`{"story":{"story_id":9,"title":"Tides","summary":"Sea","episodes":[
			{"id":3,"number":1,"title":"Ebb","content":"c1","summary":"s1"},
			{"id":4,"number":2,"title":"Flow","content":"c2","summary":"s2"}]}}`))
	})

	story, err := client.GetStory(context.Background(), 9)
	require.NoError(t, err)
	assert.Equal(t, 9, story.ID)
	assert.Equal(t, "Sea", story.Summary)
	require.Len(t, story.Episodes, 2)
	assert.Equal(t, "Ebb", story.Episodes[0].Title)
	assert.Equal(t, 2, story.Episodes[1].Number)
}

func TestGetStory_MissingStoryIsMalformed(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"detail":"weird"}`))
	})

	_, err := client.GetStory(context.Background(), 1)
	assert.True(t, apperrors.IsMalformedError(err))
}

func TestGetStory_NotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"Story not found"}`, http.StatusNotFound)
	})

	_, err := client.GetStory(context.Background(), 404)
	assert.True(t, apperrors.IsNotFoundError(err))
}

func TestCreateStory_Body(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/stories/", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "A knight's journey", body["prompt"])
		assert.Equal(t, 3.0, body["num_episodes"])
		assert.Equal(t, false, body["is_hinglish"])
		assert.Equal(t, false, body["hinglish"])
		assert.Equal(t, 1.0, body["batch_size"])
		assert.Equal(t, "ai", body["refinement"])

		_, _ = w.Write([]byte(`{"status":"success","story":{"story_id":42,"title":"The Knight"},"message":"ok"}`))
	})

	resp, err := client.CreateStory(context.Background(), CreateStoryRequest{
		Prompt:      "A knight's journey",
		NumEpisodes: 3,
		BatchSize:   1,
		Refinement:  "ai",
	})
	require.NoError(t, err)
	require.NotNil(t, resp.Story)
	assert.Equal(t, 42, resp.Story.ID)
	assert.Equal(t, "The Knight", resp.Story.Title)
	assert.Equal(t, "success", resp.Status)
}

func TestGenerateEpisodes_QueryAndOrder(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/episodes/42/generate", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "true", q.Get("hinglish"))
		assert.Equal(t, "true", q.Get("all"))
		assert.Equal(t, "human", q.Get("method"))
		assert.Equal(t, "2", q.Get("batch_size"))

		_, _ = w.Write([]byte(`[
			{"episode_id":1,"episode_number":1,"episode_title":"First","episode_content":"a"},
			{"episode_id":2,"episode_number":2,"episode_title":"Second","episode_content":"b"},
			{"episode_id":3,"episode_number":3,"episode_title":"Third","episode_content":"c"}]`))
	})

	episodes, err := client.GenerateEpisodes(context.Background(), 42, GenerateParams{
		Hinglish: true, All: true, Method: models.RefineHuman, BatchSize: 2,
	})
	require.NoError(t, err)
	require.Len(t, episodes, 3)
	for i, ep := range episodes {
		assert.Equal(t, i+1, ep.Number)
	}
	assert.Equal(t, "Second", episodes[1].Title)
}

func TestGenerateEpisodes_WrappedResponse(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"episodes":[{"number":1,"title":"Only"}]}`))
	})

	episodes, err := client.GenerateEpisodes(context.Background(), 1, GenerateParams{All: true})
	require.NoError(t, err)
	require.Len(t, episodes, 1)
	assert.Equal(t, "Only", episodes[0].Title)
}

func TestGenerateEpisodes_Malformed(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"queued"}`))
	})

	_, err := client.GenerateEpisodes(context.Background(), 1, GenerateParams{})
	assert.True(t, apperrors.IsMalformedError(err))
}

func TestDeleteStory(t *testing.T) {
	var called bool
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/api/v1/stories/5", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, client.DeleteStory(context.Background(), 5))
	assert.True(t, called)
}

func TestUpstreamError_CarriesStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	})

	_, err := client.ListStories(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsUpstreamError(err))

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, http.StatusServiceUnavailable, appErr.StatusCode)
	assert.Contains(t, appErr.Message, "overloaded")
}

func TestDecodeFailureIsMalformed(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>`))
	})

	_, err := client.ListStories(context.Background())
	assert.True(t, apperrors.IsMalformedError(err))
}

func TestNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := New(Options{BaseURL: url, Timeout: time.Second})
	_, err := client.ListStories(context.Background())
	assert.True(t, apperrors.IsNetworkError(err))
}

func TestTimeout(t *testing.T) {
	release := make(chan struct{})
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.ListStories(ctx)
	assert.Equal(t, apperrors.ErrorTypeTimeout, apperrors.TypeOf(err))
}

func TestRateLimiterThrottles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"stories":[]}`))
	}))
	defer srv.Close()

	client := New(Options{BaseURL: srv.URL, RateLimit: 20, RateBurst: 1})

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := client.ListStories(context.Background())
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}
