package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/iamasit07/connect4-remote/internal/service/relay"
)

type GamesHandler struct {
	Service *relay.Service
	logger  zerolog.Logger
}

func NewGamesHandler(svc *relay.Service, logger zerolog.Logger) *GamesHandler {
	return &GamesHandler{Service: svc, logger: logger.With().Str("component", "http").Logger()}
}

// fail maps service errors to status codes.
func (h *GamesHandler) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, relay.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, relay.ErrConflict), errors.Is(err, relay.ErrFull):
		status = http.StatusConflict
	case errors.Is(err, relay.ErrInvalidGame):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		h.logger.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// Create is POST /api/games.
func (h *GamesHandler) Create(c *gin.Context) {
	g, err := h.Service.Create(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, g)
}

// Get is GET /api/games/:id.
func (h *GamesHandler) Get(c *gin.Context) {
	g, err := h.Service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, g)
}

// Join is POST /api/games/:id/join.
func (h *GamesHandler) Join(c *gin.Context) {
	g, err := h.Service.Join(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, g)
}

// Update is PUT /api/games/:id, a compare-and-swap on version.
func (h *GamesHandler) Update(c *gin.Context) {
	var u relay.Update
	if err := c.ShouldBindJSON(&u); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	g, err := h.Service.Update(c.Request.Context(), c.Param("id"), u)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, g)
}

// Reset is POST /api/games/:id/reset.
func (h *GamesHandler) Reset(c *gin.Context) {
	g, err := h.Service.Reset(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, g)
}

// Delete is DELETE /api/games/:id.
func (h *GamesHandler) Delete(c *gin.Context) {
	if err := h.Service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
