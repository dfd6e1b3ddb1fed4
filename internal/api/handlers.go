// internal/api/handlers.go
package api

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Corphon/shakescript/internal/errors"
	"github.com/Corphon/shakescript/internal/models"
	"github.com/Corphon/shakescript/internal/services"
	"github.com/Corphon/shakescript/internal/ui"
)

const (
	sessionCookie = "sid"
	sessionKey    = "session"

	noticeRateLimited = "rate_limited"
)

// Feature is one card of the home page feature grid
type Feature struct {
	Title       string
	Description string
}

var homeFeatures = []Feature{
	{"Postgres Database", "Stores metadata related to each story. Structured, and scalable, with row level security for fine-grained data access control."},
	{"Vector Database", "Stores embedding vectors for fast similarity searching and retrieval of relevant context chunks."},
	{"FastAPI Backend", "Serves as the core API layer for handling requests and integrating frontend, AI model, and databases."},
	{"Storage", "Splits long episodes into smaller, manageable text chunks and stores them with vector representations."},
	{"Similarity Search", "Finds the passages most relevant to the next episode so characters and plot stay consistent."},
	{"AI Model", "Writes each episode from the processed prompt and contextual data."},
}

var notices = map[string]string{
	noticeRateLimited: "Too many stories requested. Try again in a minute.",
}

// pageData is what every page template receives
type pageData struct {
	Title  string
	Active string
	Notice string
	Error  string

	Session  services.SessionSnapshot
	Features []Feature
	Stories  []models.StorySummary
	Query    string
	Stats    *models.StatsDashboard

	MinEpisodes int
	MaxEpisodes int
	Methods     []models.RefineMethod
}

// Handler serves the pages, the JSON API and the status socket
type Handler struct {
	library  *services.LibraryService
	stories  *services.StoryService
	sessions *services.SessionService
	exports  *services.ExportService
	stats    *services.StatsService
	hub      *StatusHub
	logger   *zap.Logger
	rh       *ResponseHelper

	// SecureCookies marks the session cookie Secure
	SecureCookies bool
}

// NewHandler creates the HTTP handler
func NewHandler(
	library *services.LibraryService,
	stories *services.StoryService,
	sessions *services.SessionService,
	exports *services.ExportService,
	stats *services.StatsService,
	hub *StatusHub,
	logger *zap.Logger,
) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		library:  library,
		stories:  stories,
		sessions: sessions,
		exports:  exports,
		stats:    stats,
		hub:      hub,
		logger:   logger.Named("http"),
		rh:       NewResponseHelper(),
	}
}

// ===============================
// sessions
// ===============================

// SessionMiddleware attaches the visitor's session, issuing a new sid
// cookie when the old one is missing or expired
func (h *Handler) SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, _ := c.Cookie(sessionCookie)
		sess, created := h.sessions.Resolve(id)
		if created {
			h.logger.Debug("session created", zap.String("session_id", sess.ID))
		}
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(sessionCookie, sess.ID, int(h.sessions.TTL().Seconds()), "/", "", h.SecureCookies, true)
		c.Set(sessionKey, sess)
		c.Next()
	}
}

func currentSession(c *gin.Context) *services.Session {
	return c.MustGet(sessionKey).(*services.Session)
}

func (h *Handler) page(c *gin.Context, title, active string) pageData {
	data := pageData{
		Title:       title,
		Active:      active,
		Notice:      notices[c.Query("notice")],
		MinEpisodes: ui.MinEpisodes,
		MaxEpisodes: ui.MaxEpisodes,
		Methods:     []models.RefineMethod{models.RefineHuman, models.RefineAI},
	}
	if sess, ok := c.Get(sessionKey); ok {
		data.Session = sess.(*services.Session).Snapshot()
	}
	return data
}

func (h *Handler) errorPage(c *gin.Context, status int, title string) {
	c.HTML(status, "error.html", h.page(c, title, ""))
}

// parseStoryID reads a positive :id path parameter
func parseStoryID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// formIndex reads the jump target, -1 when absent or not a number
func formIndex(c *gin.Context) int {
	index, err := strconv.Atoi(c.PostForm("index"))
	if err != nil {
		return -1
	}
	return index
}

// ===============================
// pages
// ===============================

// HomePage renders the marketing page
func (h *Handler) HomePage(c *gin.Context) {
	data := h.page(c, "", "home")
	data.Features = homeFeatures
	c.HTML(http.StatusOK, "home.html", data)
}

// DashboardPage renders the prompt form and the generated story
func (h *Handler) DashboardPage(c *gin.Context) {
	c.HTML(http.StatusOK, "dashboard.html", h.page(c, "Story Generator", "dashboard"))
}

// GenerateStory submits the prompt form. Invalid input is dropped without
// a message.
func (h *Handler) GenerateStory(c *gin.Context) {
	sess := currentSession(c)
	form := sess.Form()
	if err := c.ShouldBind(&form); err != nil {
		h.logger.Debug("prompt form rejected", zap.Error(err))
		c.Redirect(http.StatusSeeOther, "/dashboard")
		return
	}
	sess.UpdateForm(form)

	if !h.stories.SubmitForm(sess, form) {
		h.logger.Debug("prompt form not submitted",
			zap.String("session_id", sess.ID),
			zap.Bool("generating", sess.Generating()),
		)
	}
	c.Redirect(http.StatusSeeOther, "/dashboard")
}

// StepForm keeps the typed fields and applies one stepper button
func (h *Handler) StepForm(c *gin.Context) {
	sess := currentSession(c)
	form := sess.Form()
	if err := c.ShouldBind(&form); err == nil {
		sess.UpdateForm(form)
	}
	sess.StepForm(c.PostForm("step"))
	c.Redirect(http.StatusSeeOther, "/dashboard")
}

// DashboardEpisodes moves the paginator of the generated story
func (h *Handler) DashboardEpisodes(c *gin.Context) {
	sess := currentSession(c)
	services.StepPaginator(sess.Pager(), c.Param("action"), formIndex(c))
	c.Redirect(http.StatusSeeOther, "/dashboard#story")
}

// LibraryPage lists the stories, filtered by ?q=
func (h *Handler) LibraryPage(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	data := h.page(c, "Library", "library")
	data.Query = query

	stories, err := h.library.SearchStories(c.Request.Context(), query)
	if err != nil {
		h.logger.Warn("library not loaded", zap.Error(err))
		data.Error = "Stories could not be loaded."
	}
	data.Stories = stories
	c.HTML(http.StatusOK, "library.html", data)
}

// LibraryStoryPage opens a story in the reader
func (h *Handler) LibraryStoryPage(c *gin.Context) {
	id, ok := parseStoryID(c)
	if !ok {
		h.errorPage(c, http.StatusBadRequest, "Invalid story id")
		return
	}
	sess := currentSession(c)

	story, err := h.library.GetStory(c.Request.Context(), id)
	if err != nil {
		sess.CloseLibraryStory()
		if errors.IsNotFoundError(err) {
			h.errorPage(c, http.StatusNotFound, "Story not found")
			return
		}
		h.logger.Warn("story not loaded", zap.Int("story_id", id), zap.Error(err))
		data := h.page(c, "Library", "library")
		data.Error = "Story could not be loaded."
		c.HTML(http.StatusBadGateway, "story.html", data)
		return
	}

	// links from the story list start over at the first episode
	sess.OpenLibraryStory(models.NewStoryView(story), c.Query("from") == "list")
	c.HTML(http.StatusOK, "story.html", h.page(c, story.Title, "library"))
}

// LibraryEpisodes moves the paginator of the open library story
func (h *Handler) LibraryEpisodes(c *gin.Context) {
	id, ok := parseStoryID(c)
	if !ok {
		h.errorPage(c, http.StatusBadRequest, "Invalid story id")
		return
	}
	target := fmt.Sprintf("/dashboard/library/%d", id)

	sess := currentSession(c)
	if sess.LibraryStoryID() == id {
		services.StepPaginator(sess.LibraryPager(), c.Param("action"), formIndex(c))
	}
	c.Redirect(http.StatusSeeOther, target)
}

// DownloadStory serves a story export, PDF by default
func (h *Handler) DownloadStory(c *gin.Context) {
	id, ok := parseStoryID(c)
	if !ok {
		h.errorPage(c, http.StatusBadRequest, "Invalid story id")
		return
	}
	format, err := services.ParseExportFormat(c.DefaultQuery("format", string(models.ExportPDF)))
	if err != nil {
		h.errorPage(c, http.StatusBadRequest, "Unsupported export format")
		return
	}

	result, err := h.exports.ExportStory(c.Request.Context(), id, format)
	if err != nil {
		if errors.IsNotFoundError(err) {
			h.errorPage(c, http.StatusNotFound, "Story not found")
			return
		}
		h.logger.Warn("export failed", zap.Int("story_id", id), zap.String("format", string(format)), zap.Error(err))
		h.errorPage(c, http.StatusBadGateway, "Story could not be exported")
		return
	}
	h.rh.ExportResponse(c, result)
}

// StatsPage renders the benchmark dashboard
func (h *Handler) StatsPage(c *gin.Context) {
	data := h.page(c, "Statistics", "stats")
	data.Stats = h.stats.Dashboard()
	c.HTML(http.StatusOK, "stats.html", data)
}

// NotFoundPage answers unknown routes
func (h *Handler) NotFoundPage(c *gin.Context) {
	if strings.HasPrefix(c.Request.URL.Path, "/api/") {
		h.rh.NotFound(c, "route")
		return
	}
	h.errorPage(c, http.StatusNotFound, "Page not found")
}

// generateLimited is the page flow's answer to the generate rate limit
func generateLimited(c *gin.Context) {
	c.Redirect(http.StatusSeeOther, "/dashboard?notice="+noticeRateLimited)
}

// ===============================
// websocket
// ===============================

// StatusWebSocket streams the session's generation status
func (h *Handler) StatusWebSocket(c *gin.Context) {
	sess := currentSession(c)
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	h.hub.Serve(conn, sess.ID)
}

// Health reports liveness
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"sessions":       h.sessions.Count(),
		"status_sockets": h.hub.Count(""),
	})
}

// ===============================
// JSON API
// ===============================

// ListStories returns the story summaries, or the full stories with
// ?detail=true
func (h *Handler) ListStories(c *gin.Context) {
	ctx := c.Request.Context()
	stories, err := h.library.SearchStories(ctx, c.Query("q"))
	if err != nil {
		h.rh.AppError(c, err)
		return
	}

	if detail, _ := strconv.ParseBool(c.Query("detail")); !detail {
		h.rh.Success(c, stories)
		return
	}

	ids := make([]int, len(stories))
	for i, s := range stories {
		ids[i] = s.ID
	}
	details, err := h.library.GetStories(ctx, ids)
	if err != nil {
		h.rh.AppError(c, err)
		return
	}
	h.rh.Success(c, details)
}

// GetStory returns one story with its episodes
func (h *Handler) GetStory(c *gin.Context) {
	id, ok := parseStoryID(c)
	if !ok {
		h.rh.Error(c, http.StatusBadRequest, ErrorStoryInvalidID, "story id must be a positive integer")
		return
	}
	story, err := h.library.GetStory(c.Request.Context(), id)
	if err != nil {
		h.rh.AppError(c, err)
		return
	}
	h.rh.Success(c, models.NewStoryView(story))
}

// CreateStory runs a generation synchronously and returns the story
func (h *Handler) CreateStory(c *gin.Context) {
	form := *ui.NewPromptForm()
	if err := c.ShouldBindJSON(&form); err != nil {
		h.rh.BadRequest(c, "invalid request body", err.Error())
		return
	}
	if err := form.Validate(); err != nil {
		h.rh.Error(c, http.StatusBadRequest, ErrorGenerationInvalid, "invalid generation request", err.Error())
		return
	}

	view, err := h.stories.Submit(c.Request.Context(), c.GetString(requestIDKey), form.Request())
	if err != nil {
		var genErr *services.GenerationError
		if stderrors.As(err, &genErr) {
			status, _ := statusForError(genErr.Err)
			h.rh.Error(c, status, ErrorGenerationFailed, "episode generation failed",
				fmt.Sprintf("story %d was created; removed: %t", genErr.StoryID, genErr.Compensated))
			return
		}
		h.rh.AppError(c, err)
		return
	}
	h.rh.Created(c, view, "story generated")
}

// ExportStory returns a story as pdf, markdown or txt
func (h *Handler) ExportStory(c *gin.Context) {
	id, ok := parseStoryID(c)
	if !ok {
		h.rh.Error(c, http.StatusBadRequest, ErrorStoryInvalidID, "story id must be a positive integer")
		return
	}
	format, err := services.ParseExportFormat(c.DefaultQuery("format", string(models.ExportPDF)))
	if err != nil {
		h.rh.Error(c, http.StatusBadRequest, ErrorExportFormatInvalid, err.Error())
		return
	}

	result, err := h.exports.ExportStory(c.Request.Context(), id, format)
	if err != nil {
		h.rh.AppError(c, err)
		return
	}
	h.rh.ExportResponse(c, result)
}

// GetStats returns the benchmark dashboard data
func (h *Handler) GetStats(c *gin.Context) {
	h.rh.Success(c, h.stats.Dashboard())
}
