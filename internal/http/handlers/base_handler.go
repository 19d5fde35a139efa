// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"pilgrim/internal/modules/geoloc"
	"pilgrim/internal/modules/narration"
	"pilgrim/internal/modules/waypoint"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

func writeWaypointError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, waypoint.ErrBadRequest):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, waypoint.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, waypoint.ErrOutOfRange):
		writeError(c, http.StatusConflict, err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

func writeGuideError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, narration.ErrInsufficientTokens):
		writeError(c, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, narration.ErrProviderUnavailable):
		writeError(c, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, waypoint.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

func writePositionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, geoloc.ErrGeolocationUnavailable):
		writeError(c, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, geoloc.ErrNoValidPosition),
		errors.Is(err, geoloc.ErrPositionUnavailable),
		errors.Is(err, geoloc.ErrAcquireTimeout):
		writeError(c, http.StatusConflict, err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}
