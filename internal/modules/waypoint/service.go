// README: Waypoint discovery service: nearby queries, GPS check-ins, visit journal.
package waypoint

import (
	"context"
	"time"

	"pilgrim/internal/modules/geoloc"
	"pilgrim/internal/types"
)

// Storage is the persistence the service needs; *Store implements it and
// tests substitute an in-memory double.
type Storage interface {
	ListWaypoints(ctx context.Context) ([]Waypoint, error)
	GetWaypoint(ctx context.Context, id types.ID) (*Waypoint, error)
	RecordVisit(ctx context.Context, v *Visit) error
	ListVisits(ctx context.Context, uid string) ([]Visit, error)
}

// PositionResolver hands back a best-effort position; geoloc.Resolver
// implements it.
type PositionResolver interface {
	Resolve(ctx context.Context) geoloc.Resolved
}

type Service struct {
	store    Storage
	resolver PositionResolver
}

func NewService(store Storage, resolver PositionResolver) *Service {
	return &Service{store: store, resolver: resolver}
}

// Nearby returns waypoints within radiusM of origin, nearest first.
func (s *Service) Nearby(ctx context.Context, origin types.Point, radiusM float64) ([]WithDistance, error) {
	all, err := s.store.ListWaypoints(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]WithDistance, 0, len(all))
	for _, w := range all {
		d := geoloc.DistanceM(origin, w.Position)
		if radiusM <= 0 || d <= radiusM {
			out = append(out, WithDistance{Waypoint: w, DistanceM: d})
		}
	}
	geoloc.SortByDistance(out, func(wd WithDistance) float64 { return wd.DistanceM })
	return out, nil
}

// Get returns one waypoint by id or slug.
func (s *Service) Get(ctx context.Context, id types.ID) (*Waypoint, error) {
	if id == "" {
		return nil, ErrBadRequest
	}
	return s.store.GetWaypoint(ctx, id)
}

// CheckIn resolves the caller's current position and journals a discovery if
// it falls inside the waypoint's radius. The resolved source and confidence
// travel with the visit record.
func (s *Service) CheckIn(ctx context.Context, uid string, waypointID types.ID) (*Visit, error) {
	if uid == "" || waypointID == "" {
		return nil, ErrBadRequest
	}
	w, err := s.store.GetWaypoint(ctx, waypointID)
	if err != nil {
		return nil, err
	}

	res := s.resolver.Resolve(ctx)
	d := geoloc.DistanceM(res.Sample.Point(), w.Position)
	if d > w.RadiusM {
		return nil, ErrOutOfRange
	}

	v := &Visit{
		UID:        uid,
		WaypointID: w.ID,
		VisitedAt:  time.Now(),
		Source:     string(res.Source),
		Confidence: res.Confidence,
		DistanceM:  d,
	}
	if err := s.store.RecordVisit(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}

// Journal lists the user's discoveries in visit order.
func (s *Service) Journal(ctx context.Context, uid string) ([]Visit, error) {
	if uid == "" {
		return nil, ErrBadRequest
	}
	return s.store.ListVisits(ctx, uid)
}
