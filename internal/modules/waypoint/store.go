// README: Waypoint catalog and visit journal backed by PostgreSQL.
package waypoint

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"pilgrim/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) ListWaypoints(ctx context.Context) ([]Waypoint, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, slug, name, name_local, description, lat, lng, radius_m, seq
		FROM waypoints
		ORDER BY seq
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Waypoint
	for rows.Next() {
		var w Waypoint
		var id string
		if err := rows.Scan(&id, &w.Slug, &w.Name, &w.NameLocal, &w.Description,
			&w.Position.Lat, &w.Position.Lng, &w.RadiusM, &w.Seq); err != nil {
			return nil, err
		}
		w.ID = types.ID(id)
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *Store) GetWaypoint(ctx context.Context, id types.ID) (*Waypoint, error) {
	var w Waypoint
	var wid string
	err := s.db.QueryRow(ctx, `
		SELECT id, slug, name, name_local, description, lat, lng, radius_m, seq
		FROM waypoints
		WHERE id = $1 OR slug = $1
	`, string(id)).Scan(&wid, &w.Slug, &w.Name, &w.NameLocal, &w.Description,
		&w.Position.Lat, &w.Position.Lng, &w.RadiusM, &w.Seq)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	w.ID = types.ID(wid)
	return &w, nil
}

// CountWaypoints is used by the orchestrator's catalog warm-up step.
func (s *Store) CountWaypoints(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `SELECT count(*) FROM waypoints`).Scan(&n)
	return n, err
}

// RecordVisit journals a discovery. One row per (uid, waypoint): a repeat
// check-in is silently skipped so the operation stays idempotent.
func (s *Store) RecordVisit(ctx context.Context, v *Visit) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO visits (uid, waypoint_id, visited_at, source, confidence, distance_m)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (uid, waypoint_id) DO NOTHING
	`, v.UID, string(v.WaypointID), v.VisitedAt, v.Source, v.Confidence, v.DistanceM)
	return err
}

func (s *Store) ListVisits(ctx context.Context, uid string) ([]Visit, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, uid, waypoint_id, visited_at, source, confidence, distance_m
		FROM visits
		WHERE uid = $1
		ORDER BY visited_at
	`, uid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Visit
	for rows.Next() {
		var v Visit
		var wid string
		if err := rows.Scan(&v.ID, &v.UID, &wid, &v.VisitedAt, &v.Source, &v.Confidence, &v.DistanceM); err != nil {
			return nil, err
		}
		v.WaypointID = types.ID(wid)
		out = append(out, v)
	}
	return out, rows.Err()
}
