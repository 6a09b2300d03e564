// Package store persists entities and voice notes in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/fyrsmithlabs/voxnotes/internal/entity"
)

var (
	// ErrNotFound is returned when no row has the requested ID.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition is returned for a status change out of a
	// terminal state.
	ErrInvalidTransition = entity.ErrInvalidTransition
)

// Query limits.
const (
	DefaultSearchLimit   = 50
	DefaultUpcomingLimit = 10
	DefaultListLimit     = 100
)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const schema = `
CREATE TABLE IF NOT EXISTS voice_notes (
	id TEXT PRIMARY KEY,
	transcript TEXT NOT NULL,
	audio_ref TEXT,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS entities (
	id TEXT PRIMARY KEY,
	type TEXT NOT NULL,
	content TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'active',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	raw_transcript TEXT,
	voice_note_id TEXT,
	due_at TEXT,
	details TEXT
);

CREATE INDEX IF NOT EXISTS idx_entities_type ON entities(type);
CREATE INDEX IF NOT EXISTS idx_entities_status ON entities(status);
CREATE INDEX IF NOT EXISTS idx_entities_created ON entities(created_at);
CREATE INDEX IF NOT EXISTS idx_entities_voice_note ON entities(voice_note_id);
`

const entityColumns = `id, type, content, status, created_at, updated_at, raw_transcript, voice_note_id, details`

// SQLiteStore is the entity store.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
}

// Option configures a SQLiteStore.
type Option func(*SQLiteStore)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *SQLiteStore) { s.logger = l }
}

// WithClock overrides the clock used for updated_at stamps.
func WithClock(now func() time.Time) Option {
	return func(s *SQLiteStore) { s.now = now }
}

// Open opens (creating if needed) the database at path and applies the
// schema. ":memory:" opens a private in-memory database.
func Open(path string, opts ...Option) (*SQLiteStore, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One writer keeps in-memory databases shared and avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	s := &SQLiteStore{db: db, logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks the connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Create inserts e. The ID must come from the caller.
func (s *SQLiteStore) Create(ctx context.Context, e entity.Entity) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("invalid entity: %w", err)
	}
	details, err := encodeDetails(&e)
	if err != nil {
		return err
	}
	var due sql.NullString
	if t, ok := e.DueAt(time.Local); ok {
		due = sql.NullString{String: formatTime(t), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO entities (`+entityColumns+`, due_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, string(e.Type), e.Content, string(e.Status),
		formatTime(e.CreatedAt), formatTime(e.UpdatedAt),
		nullString(e.RawTranscript), nullString(e.VoiceNoteID), details, due)
	if err != nil {
		return fmt.Errorf("insert entity: %w", err)
	}
	return nil
}

// Get returns the entity with id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (entity.Entity, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+entityColumns+` FROM entities WHERE id = ?`, id)
	e, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.Entity{}, fmt.Errorf("entity %s: %w", id, ErrNotFound)
	}
	return e, err
}

// MarkComplete moves an active entity to completed.
func (s *SQLiteStore) MarkComplete(ctx context.Context, id string) error {
	return s.transition(ctx, id, entity.StatusCompleted)
}

// Cancel moves an active entity to cancelled.
func (s *SQLiteStore) Cancel(ctx context.Context, id string) error {
	return s.transition(ctx, id, entity.StatusCancelled)
}

func (s *SQLiteStore) transition(ctx context.Context, id string, to entity.Status) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE entities SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, string(to), formatTime(s.now()), id, string(entity.StatusActive))
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}

	var from string
	err = s.db.QueryRowContext(ctx, `SELECT status FROM entities WHERE id = ?`, id).Scan(&from)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("entity %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("read status: %w", err)
	}
	return fmt.Errorf("entity %s %s -> %s: %w", id, from, to, ErrInvalidTransition)
}

// Delete removes an entity.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM entities WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete entity: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("entity %s: %w", id, ErrNotFound)
	}
	return nil
}

// Filter narrows List. Zero fields match everything.
type Filter struct {
	Type   entity.Type
	Status entity.Status
	Limit  int
}

// List returns entities matching f, newest first.
func (s *SQLiteStore) List(ctx context.Context, f Filter) ([]entity.Entity, error) {
	var (
		where []string
		args  []any
	)
	if f.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(f.Type))
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	q := `SELECT ` + entityColumns + ` FROM entities`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	return s.queryEntities(ctx, q, args...)
}

// QueryByType returns every entity of type t, newest first.
func (s *SQLiteStore) QueryByType(ctx context.Context, t entity.Type) ([]entity.Entity, error) {
	return s.queryEntities(ctx, `
		SELECT `+entityColumns+` FROM entities
		WHERE type = ?
		ORDER BY created_at DESC, id DESC
	`, string(t))
}

// QueryActive returns every active entity, newest first.
func (s *SQLiteStore) QueryActive(ctx context.Context) ([]entity.Entity, error) {
	return s.queryEntities(ctx, `
		SELECT `+entityColumns+` FROM entities
		WHERE status = ?
		ORDER BY created_at DESC, id DESC
	`, string(entity.StatusActive))
}

// QueryUpcoming returns active todos, reminders and events ordered by when
// they are due. Items without a due time sort by creation.
func (s *SQLiteStore) QueryUpcoming(ctx context.Context, limit int) ([]entity.Entity, error) {
	if limit <= 0 {
		limit = DefaultUpcomingLimit
	}
	return s.queryEntities(ctx, `
		SELECT `+entityColumns+` FROM entities
		WHERE status = ? AND type IN ('todo', 'reminder', 'event')
		ORDER BY COALESCE(due_at, created_at) ASC, id ASC
		LIMIT ?
	`, string(entity.StatusActive), limit)
}

// Search matches query as a substring of content or raw transcript,
// newest first.
func (s *SQLiteStore) Search(ctx context.Context, query string, limit int) ([]entity.Entity, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	pattern := "%" + escapeLike(strings.TrimSpace(query)) + "%"
	return s.queryEntities(ctx, `
		SELECT `+entityColumns+` FROM entities
		WHERE content LIKE ? ESCAPE '\' OR raw_transcript LIKE ? ESCAPE '\'
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, pattern, pattern, limit)
}

// CountActive returns the number of active entities per type.
func (s *SQLiteStore) CountActive(ctx context.Context) (map[entity.Type]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT type, COUNT(*) FROM entities WHERE status = ? GROUP BY type
	`, string(entity.StatusActive))
	if err != nil {
		return nil, fmt.Errorf("count entities: %w", err)
	}
	defer rows.Close()

	counts := map[entity.Type]int{}
	for rows.Next() {
		var (
			t string
			n int
		)
		if err := rows.Scan(&t, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[entity.Type(t)] = n
	}
	return counts, rows.Err()
}

func (s *SQLiteStore) queryEntities(ctx context.Context, q string, args ...any) ([]entity.Entity, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query entities: %w", err)
	}
	defer rows.Close()

	var out []entity.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntity(row scanner) (entity.Entity, error) {
	var (
		e                  entity.Entity
		typ, status        string
		createdAt, updated string
		raw, voiceNote     sql.NullString
		details            sql.NullString
	)
	if err := row.Scan(&e.ID, &typ, &e.Content, &status, &createdAt, &updated, &raw, &voiceNote, &details); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entity.Entity{}, err
		}
		return entity.Entity{}, fmt.Errorf("scan entity: %w", err)
	}
	e.Type = entity.Type(typ)
	e.Status = entity.Status(status)
	e.CreatedAt = parseTime(createdAt)
	e.UpdatedAt = parseTime(updated)
	e.RawTranscript = raw.String
	e.VoiceNoteID = voiceNote.String
	if details.Valid {
		if err := decodeDetails(&e, details.String); err != nil {
			return entity.Entity{}, fmt.Errorf("entity %s: %w", e.ID, err)
		}
	}
	return e, nil
}

func encodeDetails(e *entity.Entity) (sql.NullString, error) {
	d := e.Details()
	if d == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(d)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode details: %w", err)
	}
	if string(b) == "null" {
		return sql.NullString{}, nil
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func decodeDetails(e *entity.Entity, raw string) error {
	var target any
	switch e.Type {
	case entity.TypeTodo:
		e.Todo = &entity.TodoDetails{}
		target = e.Todo
	case entity.TypeReminder:
		e.Reminder = &entity.ReminderDetails{}
		target = e.Reminder
	case entity.TypeEvent:
		e.Event = &entity.EventDetails{}
		target = e.Event
	case entity.TypeShopping:
		e.Shopping = &entity.ShoppingDetails{}
		target = e.Shopping
	case entity.TypePerson:
		e.Person = &entity.PersonDetails{}
		target = e.Person
	case entity.TypeIdea:
		e.Idea = &entity.IdeaDetails{}
		target = e.Idea
	case entity.TypeJournal:
		e.Journal = &entity.JournalDetails{}
		target = e.Journal
	default:
		return nil
	}
	if err := json.Unmarshal([]byte(raw), target); err != nil {
		return fmt.Errorf("decode details: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
