// README: API gateway; registers HTTP routes and delegates to module services.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"pilgrim/internal/bootstrap"
	"pilgrim/internal/http/handlers"
	"pilgrim/internal/http/middleware"
	"pilgrim/internal/infra"
	"pilgrim/internal/modules/geoloc"
	"pilgrim/internal/modules/narration"
	"pilgrim/internal/modules/waypoint"
)

type ServerDeps struct {
	Orchestrator *bootstrap.Orchestrator
	Resolver     *geoloc.Resolver
	Engine       *geoloc.Engine
	Feed         *geoloc.Feed
	Waypoints    *waypoint.Service
	Guide        *narration.Service
	Verifier     infra.TokenVerifier
}

type Server struct {
	deps ServerDeps
}

func NewServer(deps ServerDeps) *Server {
	return &Server{deps: deps}
}

// Routes builds the gin engine. /health and /api/init/* stay reachable while
// startup orchestration is still running; everything else gates on readiness,
// and the journal/check-in/narration routes additionally require auth.
func (s *Server) Routes() http.Handler {
	r := gin.New()
	r.Use(middleware.Recovery(), middleware.Logging())

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	initHandler := handlers.NewInitHandler(s.deps.Orchestrator)
	r.GET("/api/init/progress", initHandler.Progress)
	r.POST("/api/init/restart", initHandler.Restart)

	api := r.Group("/api", middleware.Ready(s.deps.Orchestrator.Ready))

	positionHandler := handlers.NewPositionHandler(s.deps.Resolver, s.deps.Engine, s.deps.Feed)
	api.GET("/position", positionHandler.Current)
	api.POST("/position/refresh", positionHandler.Refresh)
	api.POST("/position/report", positionHandler.Report)
	api.POST("/position/watch", positionHandler.WatchStart)
	api.DELETE("/position/watch", positionHandler.WatchStop)
	api.GET("/position/watch", positionHandler.WatchStatus)

	waypointHandler := handlers.NewWaypointHandler(s.deps.Waypoints)
	api.GET("/waypoints", waypointHandler.Nearby)
	api.GET("/waypoints/:id", waypointHandler.Get)

	authed := api.Group("", middleware.Auth(s.deps.Verifier))
	authed.POST("/waypoints/:id/checkin", waypointHandler.CheckIn)
	authed.GET("/journal", waypointHandler.Journal)

	guideHandler := handlers.NewGuideHandler(s.deps.Guide)
	authed.POST("/guide/narrate", guideHandler.Narrate)

	return r
}
