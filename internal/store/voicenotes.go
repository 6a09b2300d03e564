package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/voxnotes/internal/entity"
)

// CreateVoiceNote inserts a voice note.
func (s *SQLiteStore) CreateVoiceNote(ctx context.Context, v entity.VoiceNote) error {
	if v.ID == "" {
		return errors.New("voice note id is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO voice_notes (id, transcript, audio_ref, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, v.ID, v.Transcript, nullString(v.AudioRef), v.DurationMs, formatTime(v.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert voice note: %w", err)
	}
	return nil
}

// GetVoiceNote returns the voice note with id.
func (s *SQLiteStore) GetVoiceNote(ctx context.Context, id string) (entity.VoiceNote, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, transcript, audio_ref, duration_ms, created_at
		FROM voice_notes WHERE id = ?
	`, id)
	v, err := scanVoiceNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.VoiceNote{}, fmt.Errorf("voice note %s: %w", id, ErrNotFound)
	}
	return v, err
}

// ListVoiceNotes returns the most recent voice notes.
func (s *SQLiteStore) ListVoiceNotes(ctx context.Context, limit int) ([]entity.VoiceNote, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, transcript, audio_ref, duration_ms, created_at
		FROM voice_notes
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query voice notes: %w", err)
	}
	defer rows.Close()

	var out []entity.VoiceNote
	for rows.Next() {
		v, err := scanVoiceNote(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func scanVoiceNote(row scanner) (entity.VoiceNote, error) {
	var (
		v         entity.VoiceNote
		audioRef  sql.NullString
		createdAt string
	)
	if err := row.Scan(&v.ID, &v.Transcript, &audioRef, &v.DurationMs, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entity.VoiceNote{}, err
		}
		return entity.VoiceNote{}, fmt.Errorf("scan voice note: %w", err)
	}
	v.AudioRef = audioRef.String
	v.CreatedAt = parseTime(createdAt)
	return v, nil
}
