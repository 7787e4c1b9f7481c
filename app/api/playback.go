package api

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/lysyi3m/tubewatch/app/watch"
)

// playerRegistry keeps the pushed player state of each page context.
type playerRegistry struct {
	mu      sync.Mutex
	players map[string]*watch.RemotePlayer
}

func newPlayerRegistry() *playerRegistry {
	return &playerRegistry{players: make(map[string]*watch.RemotePlayer)}
}

func (r *playerRegistry) put(clientID string, p *watch.RemotePlayer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.players[clientID] = p
}

func (r *playerRegistry) get(clientID string) (*watch.RemotePlayer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.players[clientID]
	return p, ok
}

func (r *playerRegistry) remove(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.players, clientID)
}

func (h *Handler) StartPlayback(c *gin.Context) {
	clientID := c.Param("client")

	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	player := watch.NewRemotePlayer(req.Position, req.Duration, req.Paused)
	session, err := h.Tracker.Start(clientID, watch.StartRequest{
		SourceID:   req.SourceID,
		SourceName: req.SourceName,
		ItemID:     req.ItemID,
		ItemTitle:  req.ItemTitle,
		Player:     player,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.players.put(clientID, player)

	c.JSON(http.StatusOK, newSessionResponse(session))
}

func (h *Handler) UpdatePlaybackState(c *gin.Context) {
	clientID := c.Param("client")

	var req stateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	player, ok := h.players.get(clientID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": watch.ErrNoSession.Error()})
		return
	}
	player.Update(req.Position, req.Duration, req.Paused)

	session, err := h.Tracker.Observe(clientID)
	if err != nil {
		h.playbackError(c, clientID, err)
		return
	}
	c.JSON(http.StatusOK, newSessionResponse(session))
}

func (h *Handler) SeekPlayback(c *gin.Context) {
	clientID := c.Param("client")

	var req seekRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	if player, ok := h.players.get(clientID); ok {
		player.Update(req.Position, 0, player.IsPaused())
	}

	session, err := h.Tracker.Seek(clientID, req.Position)
	if err != nil {
		h.playbackError(c, clientID, err)
		return
	}
	c.JSON(http.StatusOK, newSessionResponse(session))
}

func (h *Handler) RecordInput(c *gin.Context) {
	clientID := c.Param("client")

	if err := h.Tracker.RecordInput(clientID); err != nil {
		h.playbackError(c, clientID, err)
		return
	}
	h.respondSession(c, clientID)
}

func (h *Handler) SetVisibility(c *gin.Context) {
	clientID := c.Param("client")

	var req visibilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	if err := h.Tracker.SetHidden(clientID, req.Hidden); err != nil {
		h.playbackError(c, clientID, err)
		return
	}
	h.respondSession(c, clientID)
}

func (h *Handler) StopPlayback(c *gin.Context) {
	clientID := c.Param("client")

	session, err := h.Tracker.Stop(clientID)
	h.players.remove(clientID)
	if err != nil {
		h.playbackError(c, clientID, err)
		return
	}
	c.JSON(http.StatusOK, newSessionResponse(session))
}

func (h *Handler) GetPlayback(c *gin.Context) {
	h.respondSession(c, c.Param("client"))
}

func (h *Handler) respondSession(c *gin.Context, clientID string) {
	session, ok := h.Tracker.Session(clientID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": watch.ErrNoSession.Error()})
		return
	}
	c.JSON(http.StatusOK, newSessionResponse(session))
}

func (h *Handler) playbackError(c *gin.Context, clientID string, err error) {
	if errors.Is(err, watch.ErrNoSession) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	slog.Error("Playback update failed", "client", clientID, "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
