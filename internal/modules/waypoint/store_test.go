// README: Postgres-backed waypoint store tests (DSN-gated).
package waypoint

import (
	"bufio"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

func TestStore_CatalogSeeded(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	n, err := store.CountWaypoints(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n == 0 {
		t.Fatal("expected the migration to seed trail waypoints")
	}

	all, err := store.ListWaypoints(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].Seq > all[i].Seq {
			t.Fatalf("waypoints not ordered by seq: %v then %v", all[i-1].Seq, all[i].Seq)
		}
	}
}

func TestStore_GetWaypointBySlug(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	w, err := store.GetWaypoint(ctx, "main-gate")
	if err != nil {
		t.Fatalf("get by slug: %v", err)
	}
	if w.Slug != "main-gate" {
		t.Errorf("slug = %q, want main-gate", w.Slug)
	}

	if _, err := store.GetWaypoint(ctx, "no-such-site"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestStore_RecordVisitIdempotent(t *testing.T) {
	store, db := setupTestStore(t)
	ctx := context.Background()

	w, err := store.GetWaypoint(ctx, "main-gate")
	if err != nil {
		t.Fatalf("get waypoint: %v", err)
	}

	v := &Visit{
		UID:        "visitor_1",
		WaypointID: w.ID,
		VisitedAt:  time.Now(),
		Source:     "live-gps",
		Confidence: 0.9,
		DistanceM:  12,
	}
	for i := 0; i < 2; i++ {
		if err := store.RecordVisit(ctx, v); err != nil {
			t.Fatalf("record visit %d: %v", i, err)
		}
	}

	var n int
	if err := db.QueryRow(ctx, "SELECT count(*) FROM visits WHERE uid = 'visitor_1'").Scan(&n); err != nil {
		t.Fatalf("count visits: %v", err)
	}
	if n != 1 {
		t.Fatalf("visits = %d, want 1 (repeat check-in skipped)", n)
	}

	visits, err := store.ListVisits(ctx, "visitor_1")
	if err != nil {
		t.Fatalf("list visits: %v", err)
	}
	if len(visits) != 1 || visits[0].Source != "live-gps" {
		t.Fatalf("journal = %+v, want one live-gps entry", visits)
	}
}

// setupTestStore creates a real postgres-backed Store for integration tests.
// It skips the test when PILGRIM_TEST_DSN is not set.
func setupTestStore(t *testing.T) (*Store, *pgxpool.Pool) {
	t.Helper()

	dsn := os.Getenv("PILGRIM_TEST_DSN")
	if dsn == "" {
		t.Skip("PILGRIM_TEST_DSN not set; skipping DB-backed tests")
	}

	ctx := context.Background()
	db, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := applyMigrations(ctx, db); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	if _, err := db.Exec(ctx, "TRUNCATE TABLE visits"); err != nil {
		t.Fatalf("truncate visits: %v", err)
	}

	return NewStore(db), db
}

func applyMigrations(ctx context.Context, db *pgxpool.Pool) error {
	root, err := repoRoot()
	if err != nil {
		return err
	}
	content, err := os.ReadFile(filepath.Join(root, "migrations", "0001_init.sql"))
	if err != nil {
		return err
	}
	cleaned := stripSQLComments(string(content))
	for _, stmt := range splitSQL(cleaned) {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func repoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for i := 0; i < 6; i++ {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", os.ErrNotExist
}

func stripSQLComments(input string) string {
	var b strings.Builder
	scanner := bufio.NewScanner(strings.NewReader(input))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		b.WriteString(scanner.Text())
		b.WriteString("\n")
	}
	return b.String()
}

func splitSQL(input string) []string {
	parts := strings.Split(input, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		stmt := strings.TrimSpace(p)
		if stmt == "" {
			continue
		}
		out = append(out, stmt)
	}
	return out
}
