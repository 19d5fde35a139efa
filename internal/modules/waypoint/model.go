// README: Trail waypoint aggregate and visit journal definitions.
package waypoint

import (
	"errors"
	"time"

	"pilgrim/internal/types"
)

var (
	ErrNotFound   = errors.New("waypoint not found")
	ErrOutOfRange = errors.New("not within waypoint discovery radius")
	ErrBadRequest = errors.New("bad request")
)

// Waypoint is one site on the trail.
type Waypoint struct {
	ID          types.ID
	Slug        string
	Name        string
	NameLocal   string
	Description string
	Position    types.Point
	// RadiusM is the discovery radius: a visitor inside it may check in.
	RadiusM float64
	// Seq orders waypoints along the trail.
	Seq int
}

// Visit is one journal entry: a user discovered a waypoint. Source and
// Confidence record how the position was resolved at check-in time, so an
// estimated position is never presented as a precise one later.
type Visit struct {
	ID         int64
	UID        string
	WaypointID types.ID
	VisitedAt  time.Time
	Source     string
	Confidence float64
	DistanceM  float64
}

// WithDistance pairs a waypoint with its distance from a query origin.
type WithDistance struct {
	Waypoint  Waypoint
	DistanceM float64
}
