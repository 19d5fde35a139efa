// README: AI trail-guide narration handler.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"pilgrim/internal/http/middleware"
	"pilgrim/internal/modules/narration"
	"pilgrim/internal/types"
)

type GuideHandler struct {
	guide *narration.Service
}

func NewGuideHandler(svc *narration.Service) *GuideHandler {
	return &GuideHandler{guide: svc}
}

type narrateReq struct {
	WaypointID string `json:"waypoint_id"`
	Language   string `json:"language"`
}

func (h *GuideHandler) Narrate(c *gin.Context) {
	var req narrateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.WaypointID == "" {
		writeError(c, http.StatusBadRequest, "missing waypoint_id")
		return
	}
	uid := middleware.CallerUID(c)
	intro, err := h.guide.Narrate(c.Request.Context(), uid, types.ID(req.WaypointID), req.Language)
	if err != nil {
		writeGuideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, intro)
}
