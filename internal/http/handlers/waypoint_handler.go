// README: Waypoint handlers (nearby listing, detail, check-in, journal).
package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"pilgrim/internal/http/middleware"
	"pilgrim/internal/modules/waypoint"
	"pilgrim/internal/types"
)

type WaypointHandler struct {
	waypoints *waypoint.Service
}

func NewWaypointHandler(svc *waypoint.Service) *WaypointHandler {
	return &WaypointHandler{waypoints: svc}
}

type waypointView struct {
	ID          string  `json:"id"`
	Slug        string  `json:"slug"`
	Name        string  `json:"name"`
	NameLocal   string  `json:"name_local,omitempty"`
	Description string  `json:"description"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	RadiusM     float64 `json:"radius_m"`
	Seq         int     `json:"seq"`
	DistanceM   float64 `json:"distance_m,omitempty"`
}

func waypointViewOf(w waypoint.Waypoint) waypointView {
	return waypointView{
		ID:          string(w.ID),
		Slug:        w.Slug,
		Name:        w.Name,
		NameLocal:   w.NameLocal,
		Description: w.Description,
		Lat:         w.Position.Lat,
		Lng:         w.Position.Lng,
		RadiusM:     w.RadiusM,
		Seq:         w.Seq,
	}
}

type visitView struct {
	WaypointID string  `json:"waypoint_id"`
	VisitedAt  string  `json:"visited_at"`
	Source     string  `json:"source"`
	Confidence float64 `json:"confidence"`
	DistanceM  float64 `json:"distance_m"`
}

func (h *WaypointHandler) Nearby(c *gin.Context) {
	lat, err1 := strconv.ParseFloat(c.Query("lat"), 64)
	lng, err2 := strconv.ParseFloat(c.Query("lng"), 64)
	if err1 != nil || err2 != nil {
		writeError(c, http.StatusBadRequest, "lat and lng query parameters are required")
		return
	}
	radiusM := 5000.0
	if raw := c.Query("radius_m"); raw != "" {
		r, err := strconv.ParseFloat(raw, 64)
		if err != nil || r <= 0 {
			writeError(c, http.StatusBadRequest, "radius_m must be a positive number")
			return
		}
		radiusM = r
	}
	nearby, err := h.waypoints.Nearby(c.Request.Context(), types.Point{Lat: lat, Lng: lng}, radiusM)
	if err != nil {
		writeWaypointError(c, err)
		return
	}
	views := make([]waypointView, 0, len(nearby))
	for _, wd := range nearby {
		v := waypointViewOf(wd.Waypoint)
		v.DistanceM = wd.DistanceM
		views = append(views, v)
	}
	writeJSON(c, http.StatusOK, map[string]any{"waypoints": views})
}

func (h *WaypointHandler) Get(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		writeError(c, http.StatusBadRequest, "missing waypoint id")
		return
	}
	w, err := h.waypoints.Get(c.Request.Context(), types.ID(id))
	if err != nil {
		writeWaypointError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, waypointViewOf(*w))
}

func (h *WaypointHandler) CheckIn(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		writeError(c, http.StatusBadRequest, "missing waypoint id")
		return
	}
	uid := middleware.CallerUID(c)
	visit, err := h.waypoints.CheckIn(c.Request.Context(), uid, types.ID(id))
	if err != nil {
		writeWaypointError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, visitView{
		WaypointID: string(visit.WaypointID),
		VisitedAt:  visit.VisitedAt.UTC().Format(time.RFC3339),
		Source:     visit.Source,
		Confidence: visit.Confidence,
		DistanceM:  visit.DistanceM,
	})
}

func (h *WaypointHandler) Journal(c *gin.Context) {
	uid := middleware.CallerUID(c)
	visits, err := h.waypoints.Journal(c.Request.Context(), uid)
	if err != nil {
		writeWaypointError(c, err)
		return
	}
	views := make([]visitView, 0, len(visits))
	for _, v := range visits {
		views = append(views, visitView{
			WaypointID: string(v.WaypointID),
			VisitedAt:  v.VisitedAt.UTC().Format(time.RFC3339),
			Source:     v.Source,
			Confidence: v.Confidence,
			DistanceM:  v.DistanceM,
		})
	}
	writeJSON(c, http.StatusOK, map[string]any{"visits": views})
}
