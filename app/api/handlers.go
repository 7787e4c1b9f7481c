package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lysyi3m/tubewatch/app/database"
	"github.com/lysyi3m/tubewatch/app/score"
	"github.com/lysyi3m/tubewatch/app/source"
	"github.com/lysyi3m/tubewatch/app/tasks"
)

const (
	defaultSimilarLimit = 5
	defaultDigestLimit  = 50
)

func NewHandler(deps Deps) *Handler {
	return &Handler{
		Deps:    deps,
		players: newPlayerRegistry(),
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	ctx := c.Request.Context()

	status := http.StatusOK
	health := map[string]interface{}{
		"timestamp": h.Clock.Now().In(time.Local).Format(time.RFC3339),
		"version":   h.Version,
	}

	for name, checker := range h.Health {
		component := checker.Health(ctx)
		if component["status"] != "healthy" {
			status = http.StatusServiceUnavailable
		}
		health[name] = component
	}

	if h.ConfigCache != nil {
		health["loaded_configurations"] = h.ConfigCache.GetConfigCount()
	}

	c.JSON(status, health)
}

func (h *Handler) GetStats(c *gin.Context) {
	ctx := c.Request.Context()

	stats := map[string]interface{}{
		"active_sessions": h.Tracker.Active(),
	}

	if sourceStats, err := h.Sources.GetSourceStats(ctx); err == nil {
		stats["sources"] = sourceStats
	} else {
		slog.Error("Database error", "operation", "get_source_stats", "error", err)
	}

	if h.DigestStats != nil {
		if pending, sent, err := h.DigestStats.GetDigestStats(ctx); err == nil {
			stats["digest"] = map[string]int{"pending": pending, "sent": sent}
		} else {
			slog.Error("Database error", "operation", "get_digest_stats", "error", err)
		}
	}

	if h.ConfigCache != nil {
		stats["configurations"] = h.ConfigCache.GetConfigCount()
	}

	c.JSON(http.StatusOK, stats)
}

func (h *Handler) ListSources(c *gin.Context) {
	sources, err := h.Sources.ListSources(c.Request.Context())
	if err != nil {
		slog.Error("Database error", "operation", "list_sources", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if sources == nil {
		sources = []*source.Source{}
	}

	c.JSON(http.StatusOK, gin.H{
		"sources": sources,
		"total":   len(sources),
	})
}

func (h *Handler) GetSource(c *gin.Context) {
	id := c.Param("id")

	src, err := h.Sources.GetSource(c.Request.Context(), id)
	if err != nil {
		h.sourceError(c, id, "get_source", err)
		return
	}
	c.JSON(http.StatusOK, src)
}

func (h *Handler) GetScore(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	src, err := h.Sources.GetSource(ctx, id)
	if err != nil {
		h.sourceError(c, id, "get_source", err)
		return
	}

	result, err := h.Scores.Relationship(ctx, id)
	if err != nil {
		h.sourceError(c, id, "relationship", err)
		return
	}

	now := h.Clock.Now()
	resp := scoreResponse{
		Result:         result,
		Priority:       score.PriorityFor(result),
		LikelyWatchNow: score.IsLikelyWatchTime(src.Patterns, now),
	}
	if next, ok := score.NextLikelyWatch(src.Patterns, now); ok {
		resp.NextLikelyWatch = &next
	}

	c.JSON(http.StatusOK, resp)
}

func (h *Handler) GetSimilar(c *gin.Context) {
	id := c.Param("id")

	limit, err := queryLimit(c, defaultSimilarLimit)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	matches, err := h.Scores.Similar(c.Request.Context(), id, limit)
	if err != nil {
		h.sourceError(c, id, "similar", err)
		return
	}
	if matches == nil {
		matches = []score.Match{}
	}

	c.JSON(http.StatusOK, gin.H{
		"source":  id,
		"similar": matches,
	})
}

func (h *Handler) ApproveSource(c *gin.Context) {
	id := c.Param("id")

	src, err := h.Sources.Approve(c.Request.Context(), id)
	if err != nil {
		h.sourceError(c, id, "approve", err)
		return
	}
	slog.Info("Source approved", "source", id)
	c.JSON(http.StatusOK, src)
}

func (h *Handler) DenySource(c *gin.Context) {
	id := c.Param("id")

	src, err := h.Sources.Deny(c.Request.Context(), id)
	if err != nil {
		h.sourceError(c, id, "deny", err)
		return
	}
	slog.Info("Source denied", "source", id)
	c.JSON(http.StatusOK, src)
}

// ReloadConfig re-reads one source YAML and enqueues its sync.
func (h *Handler) ReloadConfig(c *gin.Context) {
	key := c.Param("key")

	if h.ConfigCache == nil || h.Scheduler == nil || h.Resolver == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Source configuration is not enabled"})
		return
	}

	if _, err := h.ConfigCache.GetConfig(key); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Source configuration not found"})
		return
	}

	config, err := h.ConfigCache.LoadConfig(key)
	if err != nil {
		slog.Error("Error reloading configuration", "config", key, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to reload configuration",
			"details": err.Error(),
		})
		return
	}

	task := tasks.NewSyncSourceConfigTask(config, h.Sources, h.Resolver)
	if err := h.Scheduler.EnqueueTask(task); err != nil {
		slog.Error("Error enqueueing sync task", "config", key, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to enqueue sync task",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"config": gin.H{
			"key":     config.Key,
			"channel": config.Channel,
			"name":    config.Name,
			"enabled": config.Enabled,
		},
		"task": gin.H{
			"id":   task.ID,
			"type": task.Type,
		},
	})
}

func (h *Handler) GetDigest(c *gin.Context) {
	if h.Digest == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Digest is disabled"})
		return
	}

	limit, err := queryLimit(c, defaultDigestLimit)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entries, err := h.Digest.Pending(c.Request.Context(), limit)
	if err != nil {
		slog.Error("Database error", "operation", "pending_digest", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"total":   len(entries),
	})
}

func (h *Handler) FlushDigest(c *gin.Context) {
	if h.Digest == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Digest is disabled"})
		return
	}

	entries, err := h.Digest.Flush(c.Request.Context())
	if err != nil {
		slog.Error("Database error", "operation", "flush_digest", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"total":   len(entries),
	})
}

// GetDigestRSS renders the pending digest without marking it sent.
func (h *Handler) GetDigestRSS(c *gin.Context) {
	if h.Digest == nil || h.RSS == nil {
		c.Status(http.StatusServiceUnavailable)
		return
	}

	entries, err := h.Digest.Pending(c.Request.Context(), defaultDigestLimit)
	if err != nil {
		slog.Error("Database error", "operation", "pending_digest", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.Header("Content-Type", "application/xml; charset=utf-8")
	c.Header("X-Digest-Items", strconv.Itoa(len(entries)))
	c.String(http.StatusOK, h.RSS.Run(entries, h.Clock.Now()))
}

func (h *Handler) sourceError(c *gin.Context, id, operation string, err error) {
	switch {
	case errors.Is(err, database.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Source not found"})
	case errors.Is(err, source.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		slog.Error("Database error", "operation", operation, "source", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
	}
}

func queryLimit(c *gin.Context, def int) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return def, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return 0, errors.New("limit must be a positive integer")
	}
	return limit, nil
}
