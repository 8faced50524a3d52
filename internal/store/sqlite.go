package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/timberline/sortline/internal/geom"
	"github.com/timberline/sortline/internal/roi"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore persists the registry in a SQLite database. The schema is
// managed through embedded migrations so deployments upgrade in place.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (creating if necessary) the registry database at
// path and applies pending migrations.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open registry db: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrateUp() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("open embedded migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("init migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Save replaces the stored registry with doc inside one transaction.
func (s *SQLiteStore) Save(doc roi.Document) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin registry save: %w", err)
	}
	// Rollback is a no-op after a successful commit.
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM roi_definitions`); err != nil {
		return fmt.Errorf("clear registry rows: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO roi_definitions (
			camera, roi_id, x1, y1, x2, y2, active, name, overlap_threshold, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, UNIXEPOCH('subsec'))
	`)
	if err != nil {
		return fmt.Errorf("prepare registry insert: %w", err)
	}
	defer stmt.Close()

	for camera, rois := range doc.Cameras {
		for id, def := range rois {
			active := 0
			if def.Active {
				active = 1
			}
			if _, err := stmt.Exec(
				camera, id,
				def.Rect.X1, def.Rect.Y1, def.Rect.X2, def.Rect.Y2,
				active, def.Name, def.OverlapThreshold,
			); err != nil {
				return fmt.Errorf("insert roi %s/%s: %w", camera, id, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit registry save: %w", err)
	}
	return nil
}

// Load reads the stored registry. ok is false when no rows have ever been
// saved; an intentionally emptied registry reloads the same way, which is
// indistinguishable and equivalent for callers.
func (s *SQLiteStore) Load() (roi.Document, bool, error) {
	rows, err := s.db.Query(`
		SELECT camera, roi_id, x1, y1, x2, y2, active, name, overlap_threshold
		FROM roi_definitions
		ORDER BY camera, roi_id
	`)
	if err != nil {
		return roi.Document{}, false, fmt.Errorf("query registry rows: %w", err)
	}
	defer rows.Close()

	doc := roi.NewDocument()
	count := 0
	for rows.Next() {
		var (
			camera, id, name string
			x1, y1, x2, y2   int
			active           int
			threshold        float64
		)
		if err := rows.Scan(&camera, &id, &x1, &y1, &x2, &y2, &active, &name, &threshold); err != nil {
			return roi.Document{}, false, fmt.Errorf("scan roi row: %w", err)
		}
		if doc.Cameras[camera] == nil {
			doc.Cameras[camera] = make(map[string]roi.Definition)
		}
		doc.Cameras[camera][id] = roi.Definition{
			Camera:           camera,
			ID:               id,
			Rect:             geom.Rect{X1: x1, Y1: y1, X2: x2, Y2: y2},
			Active:           active != 0,
			Name:             name,
			OverlapThreshold: threshold,
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return roi.Document{}, false, fmt.Errorf("iterate roi rows: %w", err)
	}

	return doc, count > 0, nil
}
