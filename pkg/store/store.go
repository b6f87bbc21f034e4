// Package store persists screening submissions in SQLite. The schema is
// migrated on open; the database file is created on demand.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/knhealth/knscreen/pkg/flow"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// User is one screened person (or the operator screening relatives).
type User struct {
	ID        string
	Name      string
	Phone     string
	Age       int
	Language  string
	CreatedAt time.Time
}

// Assessment is one persisted screening run.
type Assessment struct {
	ID           string
	UserID       string
	QRNo         string
	LocationCode string
	Unit         string
	Zone         string
	PriorityCode string
	Mode         string
	Language     string
	Answers      flow.AnswerSet
	CreatedAt    time.Time
}

// ZoneCount is one row of the digest aggregate.
type ZoneCount struct {
	LocationCode string
	Zone         string
	Count        int
}

// Store wraps the SQLite handle.
type Store struct {
	db  *sql.DB
	log *zap.Logger
}

// Open opens (creating if needed) the database at path and migrates it.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: create dir: %w", err)
		}
	}
	db, err := openDB("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	s := &Store{db: db, log: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS users (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	phone      TEXT NOT NULL DEFAULT '',
	age        INTEGER NOT NULL,
	language   TEXT NOT NULL DEFAULT 'en',
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS assessments (
	id            TEXT PRIMARY KEY,
	user_id       TEXT NOT NULL REFERENCES users(id),
	qr_no         TEXT NOT NULL,
	location_code TEXT NOT NULL,
	unit          TEXT NOT NULL DEFAULT '',
	zone          TEXT NOT NULL,
	priority_code TEXT NOT NULL,
	mode          TEXT NOT NULL DEFAULT 'self',
	language      TEXT NOT NULL DEFAULT 'en',
	answers       TEXT NOT NULL,
	created_at    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_assessments_created ON assessments(created_at);
CREATE INDEX IF NOT EXISTS idx_assessments_location ON assessments(location_code);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// SaveUser inserts a user, assigning an id when empty.
func (s *Store) SaveUser(u *User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(
		`INSERT INTO users (id, name, phone, age, language, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.Name, u.Phone, u.Age, u.Language, u.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("store: save user: %w", err)
	}
	return nil
}

// SaveAssessment inserts an assessment, assigning an id when empty.
func (s *Store) SaveAssessment(a *Assessment) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	answers, err := json.Marshal(a.Answers)
	if err != nil {
		return fmt.Errorf("store: marshal answers: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO assessments
		 (id, user_id, qr_no, location_code, unit, zone, priority_code, mode, language, answers, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, a.QRNo, a.LocationCode, a.Unit, a.Zone, a.PriorityCode,
		a.Mode, a.Language, string(answers), a.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("store: save assessment: %w", err)
	}
	s.log.Info("assessment saved",
		zap.String("id", a.ID),
		zap.String("zone", a.Zone),
		zap.String("location", a.LocationCode),
	)
	return nil
}

// GetAssessment fetches one assessment by id.
func (s *Store) GetAssessment(id string) (*Assessment, error) {
	row := s.db.QueryRow(
		`SELECT id, user_id, qr_no, location_code, unit, zone, priority_code, mode, language, answers, created_at
		 FROM assessments WHERE id = ?`, id)
	return scanAssessment(row)
}

type rowScanner interface{ Scan(dest ...any) error }

func scanAssessment(row rowScanner) (*Assessment, error) {
	var (
		a         Assessment
		answers   string
		createdAt string
	)
	err := row.Scan(&a.ID, &a.UserID, &a.QRNo, &a.LocationCode, &a.Unit,
		&a.Zone, &a.PriorityCode, &a.Mode, &a.Language, &answers, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: assessment not found")
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan assessment: %w", err)
	}
	if err := json.Unmarshal([]byte(answers), &a.Answers); err != nil {
		return nil, fmt.Errorf("store: unmarshal answers: %w", err)
	}
	if a.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("store: parse created_at: %w", err)
	}
	return &a, nil
}

// ListSince returns assessments created at or after since, oldest first.
func (s *Store) ListSince(since time.Time) ([]Assessment, error) {
	rows, err := s.db.Query(
		`SELECT id, user_id, qr_no, location_code, unit, zone, priority_code, mode, language, answers, created_at
		 FROM assessments WHERE created_at >= ? ORDER BY created_at ASC`,
		since.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("store: list since: %w", err)
	}
	defer rows.Close()

	var out []Assessment
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// ZoneCounts aggregates assessments per location and zone since the given
// time. Feeds the daily digest and the /api/summary endpoint.
func (s *Store) ZoneCounts(since time.Time) ([]ZoneCount, error) {
	rows, err := s.db.Query(
		`SELECT location_code, zone, COUNT(*)
		 FROM assessments WHERE created_at >= ?
		 GROUP BY location_code, zone
		 ORDER BY location_code, zone`,
		since.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("store: zone counts: %w", err)
	}
	defer rows.Close()

	var out []ZoneCount
	for rows.Next() {
		var zc ZoneCount
		if err := rows.Scan(&zc.LocationCode, &zc.Zone, &zc.Count); err != nil {
			return nil, fmt.Errorf("store: scan zone count: %w", err)
		}
		out = append(out, zc)
	}
	return out, rows.Err()
}
