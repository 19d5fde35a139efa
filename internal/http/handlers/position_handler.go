// README: Position handlers (resolve, refresh, raw report intake, watch control).
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"pilgrim/internal/modules/geoloc"
)

type PositionHandler struct {
	resolver *geoloc.Resolver
	engine   *geoloc.Engine
	feed     *geoloc.Feed
}

func NewPositionHandler(resolver *geoloc.Resolver, engine *geoloc.Engine, feed *geoloc.Feed) *PositionHandler {
	return &PositionHandler{resolver: resolver, engine: engine, feed: feed}
}

type positionView struct {
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
	AccuracyM  float64 `json:"accuracy_m"`
	Source     string  `json:"source"`
	Confidence float64 `json:"confidence"`
	AgeMs      int64   `json:"age_ms"`
}

func positionViewOf(s geoloc.Sample, source geoloc.Source, confidence float64) positionView {
	return positionView{
		Lat:        s.Lat,
		Lng:        s.Lng,
		AccuracyM:  s.AccuracyM,
		Source:     string(source),
		Confidence: confidence,
		AgeMs:      s.Age(time.Now()).Milliseconds(),
	}
}

// Current runs the fallback chain. Never fails: the last tier always
// answers, just with a very low confidence.
func (h *PositionHandler) Current(c *gin.Context) {
	res := h.resolver.Resolve(c.Request.Context())
	writeJSON(c, http.StatusOK, positionViewOf(res.Sample, res.Source, res.Confidence))
}

type refreshReq struct {
	HighAccuracy     bool    `json:"high_accuracy"`
	DesiredAccuracyM float64 `json:"desired_accuracy_m"`
	TimeoutMs        int64   `json:"timeout_ms"`
}

// Refresh forces a fresh multi-attempt acquisition from the primitive.
func (h *PositionHandler) Refresh(c *gin.Context) {
	var req refreshReq
	// Body is optional; defaults acquire at standard accuracy.
	_ = c.ShouldBindJSON(&req)

	opts := geoloc.AcquireOptions{
		HighAccuracy:     req.HighAccuracy,
		DesiredAccuracyM: req.DesiredAccuracyM,
	}
	if req.TimeoutMs > 0 {
		opts.Timeout = time.Duration(req.TimeoutMs) * time.Millisecond
	}
	s, src, err := h.engine.Acquire(c.Request.Context(), opts)
	if err != nil {
		writePositionError(c, err)
		return
	}
	// A degraded acquisition serves the last-known sample; label it cached
	// with an age-decayed confidence rather than passing it off as fresh.
	writeJSON(c, http.StatusOK, positionViewOf(s, src, geoloc.ConfidenceFor(src, s.Age(time.Now()))))
}

// Report takes one raw reading from the client's positioning primitive and
// feeds it into the provider so pending acquisitions and watches see it.
func (h *PositionHandler) Report(c *gin.Context) {
	var s geoloc.Sample
	if err := c.ShouldBindJSON(&s); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if s.Timestamp.IsZero() {
		s.Timestamp = time.Now()
	}
	h.feed.Report(s)
	writeJSON(c, http.StatusAccepted, map[string]any{"accepted": true})
}

type watchReq struct {
	HighAccuracy     bool    `json:"high_accuracy"`
	DesiredAccuracyM float64 `json:"desired_accuracy_m"`
}

func (h *PositionHandler) WatchStart(c *gin.Context) {
	var req watchReq
	_ = c.ShouldBindJSON(&req)

	err := h.engine.StartWatch(geoloc.AcquireOptions{
		HighAccuracy:     req.HighAccuracy,
		DesiredAccuracyM: req.DesiredAccuracyM,
	})
	if err != nil {
		writePositionError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"watching": true})
}

func (h *PositionHandler) WatchStop(c *gin.Context) {
	h.engine.StopWatch()
	writeJSON(c, http.StatusOK, map[string]any{"watching": false})
}

func (h *PositionHandler) WatchStatus(c *gin.Context) {
	resp := map[string]any{"watching": h.engine.WatchActive()}
	if avg, ok := h.engine.AverageAccuracy(); ok {
		resp["average_accuracy_m"] = avg
	}
	if s, src, ok := h.engine.Current(); ok {
		resp["current"] = positionViewOf(s, src, geoloc.ConfidenceFor(src, s.Age(time.Now())))
	}
	writeJSON(c, http.StatusOK, resp)
}
