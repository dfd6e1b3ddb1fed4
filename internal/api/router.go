// internal/api/router.go
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Corphon/shakescript/internal/web"
)

// RouterOptions configures the engine around the handler
type RouterOptions struct {
	Logger *zap.Logger
	// Gatherer backs /metrics; nil leaves the route out
	Gatherer prometheus.Gatherer
	// GenerateLimiter throttles story submissions per client; nil disables it
	GenerateLimiter *RateLimiter
	// RedirectHTTPS sends plain-HTTP requests behind a TLS proxy to https
	RedirectHTTPS bool
}

// NewRouter wires the routes
func NewRouter(handler *Handler, opts RouterOptions) (*gin.Engine, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	tmpl, err := web.Templates()
	if err != nil {
		return nil, err
	}

	r := gin.New()
	r.Use(RequestID(), AccessLog(logger), Recovery(logger))

	if opts.RedirectHTTPS {
		r.Use(func(c *gin.Context) {
			if c.Request.Header.Get("X-Forwarded-Proto") == "http" {
				c.Redirect(http.StatusPermanentRedirect, "https://"+c.Request.Host+c.Request.URL.RequestURI())
				c.Abort()
				return
			}
			c.Next()
		})
	}

	r.SetHTMLTemplate(tmpl)
	r.StaticFS("/static", web.Static())
	r.NoRoute(handler.NotFoundPage)

	r.GET("/healthz", handler.Health)
	if opts.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	passthrough := gin.HandlerFunc(func(c *gin.Context) { c.Next() })
	pageLimit, apiLimit := passthrough, passthrough
	if opts.GenerateLimiter != nil {
		pageLimit = RateLimitByIP(opts.GenerateLimiter, generateLimited)
		apiLimit = RateLimitByIP(opts.GenerateLimiter, nil)
	}

	// ===============================
	// pages
	// ===============================
	pages := r.Group("/", handler.SessionMiddleware())
	{
		pages.GET("", handler.HomePage)
		pages.GET("stats", handler.StatsPage)
		pages.GET("ws/status", handler.StatusWebSocket)

		dashboard := pages.Group("/dashboard")
		{
			dashboard.GET("", handler.DashboardPage)
			dashboard.POST("/generate", pageLimit, handler.GenerateStory)
			dashboard.POST("/form", handler.StepForm)
			dashboard.POST("/episodes/:action", handler.DashboardEpisodes)

			library := dashboard.Group("/library")
			{
				library.GET("", handler.LibraryPage)
				library.GET("/:id", handler.LibraryStoryPage)
				library.POST("/:id/episodes/:action", handler.LibraryEpisodes)
				library.GET("/:id/download", handler.DownloadStory)
			}
		}
	}

	// ===============================
	// JSON API
	// ===============================
	api := r.Group("/api", corsMiddleware())
	{
		api.OPTIONS("/*path", func(c *gin.Context) {})

		stories := api.Group("/stories")
		{
			stories.GET("", handler.ListStories)
			stories.POST("", apiLimit, handler.CreateStory)
			stories.GET("/:id", handler.GetStory)
			stories.GET("/:id/export", handler.ExportStory)
		}
		api.GET("/stats", handler.GetStats)
	}

	return r, nil
}
