package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const timeFormat = time.RFC3339

const memoryPath = ":memory:"

var migrations = []string{
	`CREATE TABLE challenges (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE teams (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`,
	// No foreign keys: solves are owned by the platform and may reference
	// rows this service never saw.
	`CREATE TABLE solves (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		challenge_id INTEGER NOT NULL,
		user_id INTEGER NOT NULL,
		team_id INTEGER,
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX idx_solves_challenge ON solves (challenge_id, id)`,
	`CREATE TABLE config (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
}

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, zero CGO).
type SQLiteStore struct {
	reader
	db *sql.DB

	mu        sync.RWMutex
	observers []SolveObserver
}

// NewSQLiteStore opens (or creates) a SQLite database and runs migrations.
// The database file is created with 0600 permissions and its parent directory with 0700.
// The path ":memory:" opens a private in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path != memoryPath {
		if err := prepareFile(path); err != nil {
			return nil, err
		}
	}

	// _txlock=immediate makes every transaction take the write lock at BEGIN,
	// so concurrent solve inserts are evaluated strictly one after another.
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite handles one writer at a time
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0) // an in-memory database lives only as long as its connection

	s := &SQLiteStore{reader: reader{q: db}, db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

func prepareFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating database directory: %w", err)
	}

	// Pre-create the file with restrictive permissions if it doesn't exist
	if _, err := os.Stat(path); os.IsNotExist(err) {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0600)
		if err != nil {
			return fmt.Errorf("creating database file: %w", err)
		}
		_ = f.Close()
	}
	return nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	var current int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err := row.Scan(&current); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	for i := current; i < len(migrations); i++ {
		slog.Info("applying migration", "version", i+1)
		if _, err := s.db.Exec(migrations[i]); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_version (version) VALUES (?)", i+1); err != nil {
			return fmt.Errorf("recording migration %d: %w", i+1, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Platform entities ---

func (s *SQLiteStore) CreateChallenge(ctx context.Context, c *ChallengeRecord) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO challenges (name, category, created_at) VALUES (?, ?, ?)`,
		c.Name, c.Category, formatTime(c.CreatedAt))
	if err != nil {
		return fmt.Errorf("inserting challenge: %w", err)
	}
	c.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading challenge id: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CreateUser(ctx context.Context, u *UserRecord) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO users (name, created_at) VALUES (?, ?)`,
		u.Name, formatTime(u.CreatedAt))
	if err != nil {
		return fmt.Errorf("inserting user: %w", err)
	}
	u.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading user id: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CreateTeam(ctx context.Context, t *TeamRecord) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO teams (name, created_at) VALUES (?, ?)`,
		t.Name, formatTime(t.CreatedAt))
	if err != nil {
		return fmt.Errorf("inserting team: %w", err)
	}
	t.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading team id: %w", err)
	}
	return nil
}

// --- Solves ---

// OnSolveCreated registers an observer for every subsequent CreateSolve.
func (s *SQLiteStore) OnSolveCreated(o SolveObserver) {
	s.mu.Lock()
	s.observers = append(s.observers, o)
	s.mu.Unlock()
}

// CreateSolve inserts a solve and runs the registered observers inside the
// same transaction. Observer callbacks returned for after-commit run only if
// the commit succeeds. Observers cannot make CreateSolve fail.
func (s *SQLiteStore) CreateSolve(ctx context.Context, rec *SolveRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning solve transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }() // no-op after commit

	res, err := tx.ExecContext(ctx, `INSERT INTO solves (challenge_id, user_id, team_id, created_at) VALUES (?, ?, ?, ?)`,
		rec.ChallengeID, rec.UserID, nullableID(rec.TeamID), formatTime(rec.CreatedAt))
	if err != nil {
		return fmt.Errorf("inserting solve: %w", err)
	}
	rec.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading solve id: %w", err)
	}

	s.mu.RLock()
	observers := s.observers
	s.mu.RUnlock()

	txReader := reader{q: tx}
	var afterCommit []func(context.Context)
	for _, o := range observers {
		snapshot := *rec
		if fn := o.SolveCreated(ctx, txReader, &snapshot); fn != nil {
			afterCommit = append(afterCommit, fn)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing solve: %w", err)
	}

	for _, fn := range afterCommit {
		fn(ctx)
	}
	return nil
}

// ListFirstBloods returns the earliest solve of every solved challenge, newest first.
func (s *SQLiteStore) ListFirstBloods(ctx context.Context) ([]FirstBloodRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT s.id, s.challenge_id, COALESCE(c.name, ''), s.user_id,
		COALESCE(s.team_id, 0),
		COALESCE(CASE WHEN s.team_id IS NOT NULL THEN t.name ELSE u.name END, ''),
		s.created_at
		FROM solves s
		LEFT JOIN challenges c ON c.id = s.challenge_id
		LEFT JOIN users u ON u.id = s.user_id
		LEFT JOIN teams t ON t.id = s.team_id
		WHERE s.id = (SELECT MIN(id) FROM solves WHERE challenge_id = s.challenge_id)
		ORDER BY s.id DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing first bloods: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []FirstBloodRecord
	for rows.Next() {
		var fb FirstBloodRecord
		var solvedAt string
		if err := rows.Scan(&fb.SolveID, &fb.ChallengeID, &fb.ChallengeName, &fb.UserID,
			&fb.TeamID, &fb.SolverName, &solvedAt); err != nil {
			return nil, fmt.Errorf("scanning first blood: %w", err)
		}
		fb.SolvedAt = parseTime(solvedAt)
		out = append(out, fb)
	}
	return out, rows.Err()
}

// --- Key-value configuration ---

// GetConfig returns the value stored under key, or "" when unset.
func (s *SQLiteStore) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading config %s: %w", key, err)
	}
	return value, nil
}

// SetConfig stores value under key, replacing any previous value.
func (s *SQLiteStore) SetConfig(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO config (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, formatTime(time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("writing config %s: %w", key, err)
	}
	return nil
}

// --- Reads shared by the store and in-transaction observers ---

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type reader struct {
	q queryer
}

func (r reader) CountSolves(ctx context.Context, challengeID int64) (int, error) {
	var n int
	err := r.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM solves WHERE challenge_id = ?", challengeID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting solves: %w", err)
	}
	return n, nil
}

func (r reader) GetChallenge(ctx context.Context, id int64) (*ChallengeRecord, error) {
	var c ChallengeRecord
	var createdAt string
	err := r.q.QueryRowContext(ctx, "SELECT id, name, category, created_at FROM challenges WHERE id = ?", id).
		Scan(&c.ID, &c.Name, &c.Category, &createdAt)
	if err != nil {
		return nil, notFound("challenge", id, err)
	}
	c.CreatedAt = parseTime(createdAt)
	return &c, nil
}

func (r reader) GetUser(ctx context.Context, id int64) (*UserRecord, error) {
	var u UserRecord
	var createdAt string
	err := r.q.QueryRowContext(ctx, "SELECT id, name, created_at FROM users WHERE id = ?", id).
		Scan(&u.ID, &u.Name, &createdAt)
	if err != nil {
		return nil, notFound("user", id, err)
	}
	u.CreatedAt = parseTime(createdAt)
	return &u, nil
}

func (r reader) GetTeam(ctx context.Context, id int64) (*TeamRecord, error) {
	var t TeamRecord
	var createdAt string
	err := r.q.QueryRowContext(ctx, "SELECT id, name, created_at FROM teams WHERE id = ?", id).
		Scan(&t.ID, &t.Name, &createdAt)
	if err != nil {
		return nil, notFound("team", id, err)
	}
	t.CreatedAt = parseTime(createdAt)
	return &t, nil
}

// --- Helpers ---

func notFound(kind string, id int64, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %d: %w", kind, id, ErrNotFound)
	}
	return fmt.Errorf("scanning %s: %w", kind, err)
}

func nullableID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(timeFormat)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(timeFormat, s)
	return t
}
