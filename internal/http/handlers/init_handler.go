// README: Startup orchestration handlers (progress polling, failed-service restart).
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"pilgrim/internal/bootstrap"
)

type InitHandler struct {
	orch *bootstrap.Orchestrator
}

func NewInitHandler(orch *bootstrap.Orchestrator) *InitHandler {
	return &InitHandler{orch: orch}
}

type stepView struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Status     string     `json:"status"`
	Progress   int        `json:"progress"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Error      string     `json:"error,omitempty"`
}

func stepViews(steps []bootstrap.Step) []stepView {
	views := make([]stepView, 0, len(steps))
	for _, s := range steps {
		v := stepView{
			ID:         s.ID,
			Name:       s.Name,
			Status:     string(s.Status),
			Progress:   s.Progress,
			StartedAt:  s.StartedAt,
			FinishedAt: s.FinishedAt,
		}
		if s.Err != nil {
			v.Error = s.Err.Error()
		}
		views = append(views, v)
	}
	return views
}

func (h *InitHandler) Progress(c *gin.Context) {
	p := h.orch.Progress()
	writeJSON(c, http.StatusOK, map[string]any{
		"overall_percent": p.OverallPercent,
		"current_step":    p.CurrentStep,
		"ready":           h.orch.Ready(),
		"steps":           stepViews(p.Steps),
	})
}

func (h *InitHandler) Restart(c *gin.Context) {
	res, err := h.orch.RestartFailedServices(c.Request.Context())
	if err != nil {
		writeError(c, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{
		"success":         res.Success,
		"elapsed_ms":      res.Elapsed.Milliseconds(),
		"failed_services": res.FailedServices,
		"warnings":        res.Warnings,
		"steps":           stepViews(res.Steps),
	})
}
