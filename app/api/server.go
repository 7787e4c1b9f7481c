package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewServer creates a new HTTP server with all routes configured
func NewServer(handler *Handler, apiAccessKey string) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
		SkipPaths: []string{"/health", "/metrics"},
	}))

	r.Use(gin.Recovery())

	// CORS: the playback routes are called from the host page
	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, X-API-Key, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	setupRoutes(r, handler, apiAccessKey)

	return r
}

func setupRoutes(r *gin.Engine, handler *Handler, apiAccessKey string) {
	r.GET("/health", handler.GetHealth)
	r.GET("/stats", handler.GetStats)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/digest.rss", handler.GetDigestRSS)

	api := r.Group("/api")
	if apiAccessKey != "" {
		api.Use(authMiddleware(apiAccessKey))
		slog.Info("API authentication enabled")
	} else {
		slog.Warn("API authentication disabled (API_ACCESS_KEY not set)")
	}

	playback := api.Group("/playback/:client")
	{
		playback.GET("", handler.GetPlayback)
		playback.POST("/start", handler.StartPlayback)
		playback.POST("/state", handler.UpdatePlaybackState)
		playback.POST("/seek", handler.SeekPlayback)
		playback.POST("/input", handler.RecordInput)
		playback.POST("/visibility", handler.SetVisibility)
		playback.POST("/stop", handler.StopPlayback)
	}

	sources := api.Group("/sources")
	{
		sources.GET("", handler.ListSources)
		sources.GET("/:id", handler.GetSource)
		sources.GET("/:id/score", handler.GetScore)
		sources.GET("/:id/similar", handler.GetSimilar)
		sources.POST("/:id/approve", handler.ApproveSource)
		sources.POST("/:id/deny", handler.DenySource)
	}

	api.POST("/configs/:key/reload", handler.ReloadConfig)

	api.GET("/digest", handler.GetDigest)
	api.POST("/digest/flush", handler.FlushDigest)

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service":     "tubewatch",
			"version":     handler.Version,
			"description": "Watch-history tracker with relationship scoring and upload notifications",
			"endpoints": map[string]string{
				"playback": "/api/playback/<client>/{start,state,seek,input,visibility,stop}",
				"sources":  "/api/sources",
				"digest":   "/api/digest",
				"rss":      "/digest.rss",
				"health":   "/health",
				"stats":    "/stats",
				"metrics":  "/metrics",
			},
			"api_status": map[string]interface{}{
				"auth_required": apiAccessKey != "",
				"header":        "X-API-Key",
			},
		})
	})

	r.GET("/favicon.ico", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
}

// authMiddleware creates authentication middleware for API endpoints
func authMiddleware(apiAccessKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		providedKey := c.GetHeader("X-API-Key")

		if providedKey == "" {
			authHeader := c.GetHeader("Authorization")
			if strings.HasPrefix(authHeader, "Bearer ") {
				providedKey = strings.TrimPrefix(authHeader, "Bearer ")
			}
		}

		if providedKey == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "API key required",
				"message": "Provide API key in X-API-Key header or Authorization: Bearer <key>",
			})
			c.Abort()
			return
		}

		if providedKey != apiAccessKey {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "Invalid API key",
				"message": "The provided API key is not valid",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
