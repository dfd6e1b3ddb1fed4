// internal/storyapi/client.go
package storyapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	apperrors "github.com/Corphon/shakescript/internal/errors"
	"github.com/Corphon/shakescript/internal/models"
	"github.com/Corphon/shakescript/internal/utils"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const maxErrorBody = 4 << 10

// Options configures a Client
type Options struct {
	BaseURL   string        // e.g. http://localhost:8000/api/v1
	Timeout   time.Duration // per request, 0 means no limit
	RateLimit float64       // requests per second, 0 disables throttling
	RateBurst int

	HTTPClient *http.Client
	Logger     *zap.Logger
	Metrics    *utils.Metrics
}

// Client talks to the story generation API
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
	metrics *utils.Metrics
}

// CreateStoryRequest is the body of POST /stories/
type CreateStoryRequest struct {
	Prompt      string `json:"prompt"`
	NumEpisodes int    `json:"num_episodes"`
	IsHinglish  bool   `json:"is_hinglish"`
	Hinglish    bool   `json:"hinglish"`
	BatchSize   int    `json:"batch_size,omitempty"`
	Refinement  string `json:"refinement,omitempty"`
}

// CreateStoryResponse is what POST /stories/ returns. Story is nil when the
// backend omitted it.
type CreateStoryResponse struct {
	Status  string               `json:"status"`
	Story   *models.StorySummary `json:"story"`
	Message string               `json:"message"`
}

// GenerateParams are the query parameters of the generate call
type GenerateParams struct {
	Hinglish  bool
	All       bool
	Method    models.RefineMethod
	BatchSize int
}

type storyListResponse struct {
	Stories []models.StorySummary `json:"stories"`
}

type storyDetailResponse struct {
	Story *models.StoryDetail `json:"story"`
}

// New creates a client
func New(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		baseURL: opts.BaseURL,
		http:    httpClient,
		limiter: limiter,
		logger:  logger,
		metrics: opts.Metrics,
	}
}

// ListStories returns every story known to the backend
func (c *Client) ListStories(ctx context.Context) ([]models.StorySummary, error) {
	var resp storyListResponse
	if err := c.do(ctx, "list_stories", http.MethodGet, "/stories/all", nil, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Stories == nil {
		return []models.StorySummary{}, nil
	}
	return resp.Stories, nil
}

// GetStory fetches one story with its episodes
func (c *Client) GetStory(ctx context.Context, id int) (*models.StoryDetail, error) {
	var resp storyDetailResponse
	if err := c.do(ctx, "get_story", http.MethodGet, "/stories/"+strconv.Itoa(id), nil, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Story == nil {
		return nil, apperrors.NewMalformedError(fmt.Sprintf("story %d: response has no story", id), nil)
	}
	return resp.Story, nil
}

// CreateStory registers a new story from a prompt. Episodes are generated
// separately with GenerateEpisodes.
func (c *Client) CreateStory(ctx context.Context, req CreateStoryRequest) (*CreateStoryResponse, error) {
	var resp CreateStoryResponse
	if err := c.do(ctx, "create_story", http.MethodPost, "/stories/", nil, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GenerateEpisodes asks the backend to write the episodes of story id.
// Episodes are returned in narrative order.
func (c *Client) GenerateEpisodes(ctx context.Context, id int, params GenerateParams) ([]models.Episode, error) {
	query := url.Values{}
	query.Set("hinglish", strconv.FormatBool(params.Hinglish))
	query.Set("all", strconv.FormatBool(params.All))
	if params.Method != "" {
		query.Set("method", string(params.Method))
	}
	if params.BatchSize > 0 {
		query.Set("batch_size", strconv.Itoa(params.BatchSize))
	}

	var raw json.RawMessage
	path := fmt.Sprintf("/episodes/%d/generate", id)
	if err := c.do(ctx, "generate_episodes", http.MethodPost, path, query, struct{}{}, &raw); err != nil {
		return nil, err
	}
	return decodeEpisodes(raw)
}

// DeleteStory removes a story and its episodes
func (c *Client) DeleteStory(ctx context.Context, id int) error {
	return c.do(ctx, "delete_story", http.MethodDelete, "/stories/"+strconv.Itoa(id), nil, nil, nil)
}

// decodeEpisodes accepts a bare array or an object with an episodes field
func decodeEpisodes(raw json.RawMessage) ([]models.Episode, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, apperrors.NewMalformedError("generate response is empty", nil)
	}

	var episodes []models.Episode
	if raw[0] == '[' {
		if err := json.Unmarshal(raw, &episodes); err != nil {
			return nil, apperrors.NewMalformedError("decode episodes", err)
		}
		return episodes, nil
	}

	var wrapped struct {
		Episodes []models.Episode `json:"episodes"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, apperrors.NewMalformedError("decode episodes", err)
	}
	if wrapped.Episodes == nil {
		return nil, apperrors.NewMalformedError("generate response has no episodes", nil)
	}
	return wrapped.Episodes, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body, out interface{}) (err error) {
	start := time.Now()
	defer func() {
		c.metrics.ObserveBackend(op, start, err)
		if err != nil {
			c.logger.Warn("story api call failed",
				zap.String("op", op),
				zap.String("method", method),
				zap.String("path", path),
				zap.Duration("elapsed", time.Since(start)),
				zap.Error(err))
		}
	}()

	if err := c.limiter.Wait(ctx); err != nil {
		return transportError(op, err)
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return apperrors.NewProcessingError("encode request", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return apperrors.NewProcessingError("build request", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return transportError(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		msg := fmt.Sprintf("%s: backend returned %d: %s", op, resp.StatusCode, bytes.TrimSpace(detail))
		if resp.StatusCode == http.StatusNotFound {
			return apperrors.NewNotFoundError(msg, nil)
		}
		return apperrors.NewUpstreamError(resp.StatusCode, msg, nil)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.NewMalformedError(op+": decode response", err)
	}
	return nil
}

func transportError(op string, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return apperrors.NewAppError(apperrors.ErrorTypeTimeout, op+": timed out", err)
	}
	return apperrors.NewNetworkError(op+": request failed", err)
}
