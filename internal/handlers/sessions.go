package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"grid_adequacy/internal/service"

	"github.com/gin-gonic/gin"
)

const (
	statusOK = "ok"

	commandTimeout = 5 * time.Second

	errInvalidBodyPref = "invalid body: "
)

// Centralized error logging and response.
func (h *Handler) logAndJSONError(c *gin.Context, httpCode int, userMsg, logKey string, err error, kv ...interface{}) {
	if h.log != nil && err != nil {
		fields := append([]interface{}{"err", err}, kv...)
		h.log.Errorw(logKey, fields...)
	}
	c.JSON(httpCode, gin.H{"error": userMsg})
}

// sessionErrorStatus maps service errors onto HTTP status codes.
func sessionErrorStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrNotLoaded), errors.Is(err, service.ErrNotFailed):
		return http.StatusConflict
	case errors.Is(err, service.ErrEngineClosed):
		return http.StatusGone
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// ScrubRequest is the scrub payload.
type ScrubRequest struct {
	// Target position in the year series; clamped to the valid range.
	Index *int `json:"index" binding:"required" example:"3"`
}

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": statusOK})
}

// @Summary      List live sessions
// @Tags         sessions
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "count, sessions"
// @Failure      401  {object}  map[string]string
// @Router       /api/v1/sessions [get]
// @Security     BearerAuth
func (h *Handler) listSessions(c *gin.Context) {
	snaps := h.services.Sessions.Snapshots()
	c.JSON(http.StatusOK, gin.H{"count": len(snaps), "sessions": snaps})
}

// @Summary      Get session state
// @Tags         sessions
// @Produce      json
// @Param        id   path      string  true  "Session id"
// @Success      200  {object}  models.Snapshot
// @Failure      401  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /api/v1/sessions/{id} [get]
// @Security     BearerAuth
func (h *Handler) getSession(c *gin.Context) {
	sess, ok := h.lookupSession(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, sess.Snapshot())
}

// @Summary      Toggle playback
// @Tags         sessions
// @Produce      json
// @Param        id   path      string  true  "Session id"
// @Success      200  {object}  models.Snapshot
// @Failure      401  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Router       /api/v1/sessions/{id}/toggle [post]
// @Security     BearerAuth
func (h *Handler) toggleSession(c *gin.Context) {
	h.runCommand(c, "session_toggle_failed", func(ctx context.Context, s service.Session) error {
		return s.TogglePlay(ctx)
	})
}

// @Summary      Scrub to a year
// @Description  Moves to the given index (clamped) and pauses playback.
// @Tags         sessions
// @Accept       json
// @Produce      json
// @Param        id    path      string        true  "Session id"
// @Param        body  body      ScrubRequest  true  "Scrub payload"
// @Success      200   {object}  models.Snapshot
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Router       /api/v1/sessions/{id}/scrub [post]
// @Security     BearerAuth
func (h *Handler) scrubSession(c *gin.Context) {
	var req ScrubRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}
	h.runCommand(c, "session_scrub_failed", func(ctx context.Context, s service.Session) error {
		return s.Scrub(ctx, *req.Index)
	})
}

// @Summary      Retry a failed load
// @Tags         sessions
// @Produce      json
// @Param        id   path      string  true  "Session id"
// @Success      200  {object}  models.Snapshot
// @Failure      401  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Router       /api/v1/sessions/{id}/retry [post]
// @Security     BearerAuth
func (h *Handler) retrySession(c *gin.Context) {
	h.runCommand(c, "session_retry_failed", func(ctx context.Context, s service.Session) error {
		return s.Retry(ctx)
	})
}

func (h *Handler) lookupSession(c *gin.Context) (service.Session, bool) {
	id := c.Param("id")
	sess, err := h.services.Sessions.Get(id)
	if err != nil {
		c.JSON(sessionErrorStatus(err), gin.H{"error": err.Error()})
		return nil, false
	}
	return sess, true
}

// runCommand applies cmd to the addressed session and answers with its new snapshot.
func (h *Handler) runCommand(c *gin.Context, logKey string, cmd func(context.Context, service.Session) error) {
	sess, ok := h.lookupSession(c)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), commandTimeout)
	defer cancel()

	if err := cmd(ctx, sess); err != nil {
		code := sessionErrorStatus(err)
		if code >= http.StatusInternalServerError {
			h.logAndJSONError(c, code, err.Error(), logKey, err, "session", sess.ID())
			return
		}
		c.JSON(code, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, sess.Snapshot())
}
