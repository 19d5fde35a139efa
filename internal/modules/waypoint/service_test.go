package waypoint

import (
	"context"
	"errors"
	"testing"

	"pilgrim/internal/modules/geoloc"
	"pilgrim/internal/types"
)

// memStore is an in-memory Storage double.
type memStore struct {
	waypoints []Waypoint
	visits    []Visit
}

func (m *memStore) ListWaypoints(context.Context) ([]Waypoint, error) {
	return m.waypoints, nil
}

func (m *memStore) GetWaypoint(_ context.Context, id types.ID) (*Waypoint, error) {
	for _, w := range m.waypoints {
		if w.ID == id || types.ID(w.Slug) == id {
			cp := w
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memStore) RecordVisit(_ context.Context, v *Visit) error {
	for _, existing := range m.visits {
		if existing.UID == v.UID && existing.WaypointID == v.WaypointID {
			return nil // idempotent
		}
	}
	m.visits = append(m.visits, *v)
	return nil
}

func (m *memStore) ListVisits(_ context.Context, uid string) ([]Visit, error) {
	var out []Visit
	for _, v := range m.visits {
		if v.UID == uid {
			out = append(out, v)
		}
	}
	return out, nil
}

// fixedResolver always resolves to the same position.
type fixedResolver struct {
	res geoloc.Resolved
}

func (r fixedResolver) Resolve(context.Context) geoloc.Resolved { return r.res }

func trailStore() *memStore {
	return &memStore{waypoints: []Waypoint{
		{ID: "wp-gate", Slug: "main-gate", Name: "Main Gate",
			Position: types.Point{Lat: 22.7552, Lng: 120.4436}, RadiusM: 50, Seq: 1},
		{ID: "wp-buddha", Slug: "big-buddha", Name: "Big Buddha",
			Position: types.Point{Lat: 22.7500, Lng: 120.4400}, RadiusM: 80, Seq: 2},
		{ID: "wp-hall", Slug: "sutra-hall", Name: "Sutra Hall",
			Position: types.Point{Lat: 22.7580, Lng: 120.4470}, RadiusM: 50, Seq: 3},
	}}
}

func resolvedAt(lat, lng float64, src geoloc.Source, conf float64) geoloc.Resolved {
	return geoloc.Resolved{
		Sample:     geoloc.Sample{Lat: lat, Lng: lng, AccuracyM: 10},
		Source:     src,
		Confidence: conf,
	}
}

func TestNearby_SortedByDistance(t *testing.T) {
	svc := NewService(trailStore(), fixedResolver{})
	origin := types.Point{Lat: 22.7552, Lng: 120.4436} // at the gate

	got, err := svc.Nearby(context.Background(), origin, 0)
	if err != nil {
		t.Fatalf("nearby: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d waypoints, want 3", len(got))
	}
	if got[0].Waypoint.ID != "wp-gate" {
		t.Errorf("nearest = %s, want wp-gate", got[0].Waypoint.ID)
	}
	for i := 1; i < len(got); i++ {
		if got[i-1].DistanceM > got[i].DistanceM {
			t.Fatalf("results not sorted by distance: %v then %v", got[i-1].DistanceM, got[i].DistanceM)
		}
	}
}

func TestNearby_RadiusFilter(t *testing.T) {
	svc := NewService(trailStore(), fixedResolver{})
	origin := types.Point{Lat: 22.7552, Lng: 120.4436}

	got, err := svc.Nearby(context.Background(), origin, 100)
	if err != nil {
		t.Fatalf("nearby: %v", err)
	}
	if len(got) != 1 || got[0].Waypoint.ID != "wp-gate" {
		t.Errorf("within 100 m: got %v, want only wp-gate", got)
	}
}

func TestCheckIn_WithinRadius(t *testing.T) {
	store := trailStore()
	svc := NewService(store, fixedResolver{res: resolvedAt(22.7552, 120.4436, geoloc.SourceLiveGPS, 0.9)})

	v, err := svc.CheckIn(context.Background(), "u1", "wp-gate")
	if err != nil {
		t.Fatalf("check-in: %v", err)
	}
	if v.Source != "live-gps" || v.Confidence != 0.9 {
		t.Errorf("visit provenance = %s/%v, want live-gps/0.9", v.Source, v.Confidence)
	}
	if len(store.visits) != 1 {
		t.Errorf("journal has %d entries, want 1", len(store.visits))
	}
}

func TestCheckIn_OutOfRange(t *testing.T) {
	// resolved position sits at the gate; the buddha is ~700 m away
	svc := NewService(trailStore(), fixedResolver{res: resolvedAt(22.7552, 120.4436, geoloc.SourceLiveGPS, 0.9)})

	if _, err := svc.CheckIn(context.Background(), "u1", "wp-buddha"); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("err = %v, want ErrOutOfRange", err)
	}
}

func TestCheckIn_EstimatedPositionKeepsItsConfidence(t *testing.T) {
	store := trailStore()
	svc := NewService(store, fixedResolver{res: resolvedAt(22.7552, 120.4436, geoloc.SourceEstimated, 0.4)})

	v, err := svc.CheckIn(context.Background(), "u1", "wp-gate")
	if err != nil {
		t.Fatalf("check-in: %v", err)
	}
	if v.Source != "estimated" || v.Confidence != 0.4 {
		t.Errorf("visit provenance = %s/%v, want estimated/0.4", v.Source, v.Confidence)
	}
}

func TestCheckIn_UnknownWaypoint(t *testing.T) {
	svc := NewService(trailStore(), fixedResolver{res: resolvedAt(22.7552, 120.4436, geoloc.SourceLiveGPS, 0.9)})
	if _, err := svc.CheckIn(context.Background(), "u1", "wp-ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestJournal(t *testing.T) {
	store := trailStore()
	svc := NewService(store, fixedResolver{res: resolvedAt(22.7552, 120.4436, geoloc.SourceLiveGPS, 0.9)})

	if _, err := svc.CheckIn(context.Background(), "u1", "wp-gate"); err != nil {
		t.Fatalf("check-in: %v", err)
	}
	// repeat check-in must not duplicate the journal entry
	if _, err := svc.CheckIn(context.Background(), "u1", "wp-gate"); err != nil {
		t.Fatalf("repeat check-in: %v", err)
	}

	visits, err := svc.Journal(context.Background(), "u1")
	if err != nil {
		t.Fatalf("journal: %v", err)
	}
	if len(visits) != 1 {
		t.Errorf("journal has %d entries, want 1", len(visits))
	}
	if _, err := svc.Journal(context.Background(), ""); !errors.Is(err, ErrBadRequest) {
		t.Errorf("empty uid err = %v, want ErrBadRequest", err)
	}
}
