package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cbodonnell/tickstream/pkg/repositories/models"
	_ "github.com/mattn/go-sqlite3"
)

type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository opens the database at path and applies migrations.
// ":memory:" gives a private in-memory database.
func NewSQLiteRepository(ctx context.Context, path string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}
	// A single connection keeps in-memory databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	stmts, err := migrations("sqlite")
	if err != nil {
		db.Close()
		return nil, err
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute migration: %v", err)
		}
	}

	return &SQLiteRepository{
		db: db,
	}, nil
}

func (r *SQLiteRepository) Close(ctx context.Context) error {
	return r.db.Close()
}

func (r *SQLiteRepository) CreateRecording(ctx context.Context, recording *models.Recording) error {
	q := `
	INSERT INTO recordings (recording_id, started_at)
	VALUES (?, ?);
	`
	if _, err := r.db.ExecContext(ctx, q, recording.ID, recording.StartedAt); err != nil {
		return fmt.Errorf("failed to insert recording: %v", err)
	}
	return nil
}

func (r *SQLiteRepository) ListRecordings(ctx context.Context) ([]*models.Recording, error) {
	q := `
	SELECT recording_id, started_at FROM recordings ORDER BY started_at DESC;
	`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to query recordings: %v", err)
	}
	defer rows.Close()

	recordings := []*models.Recording{}
	for rows.Next() {
		rec := &models.Recording{}
		if err := rows.Scan(&rec.ID, &rec.StartedAt); err != nil {
			return nil, fmt.Errorf("failed to scan recording: %v", err)
		}
		recordings = append(recordings, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate recordings: %v", err)
	}
	return recordings, nil
}

func (r *SQLiteRepository) SaveFrame(ctx context.Context, frame *models.Frame) error {
	q := `
	INSERT OR REPLACE INTO frames (recording_id, frame_id, timestamp, bits, scope_count, data)
	VALUES (?, ?, ?, ?, ?, ?);
	`
	_, err := r.db.ExecContext(ctx, q, frame.RecordingID, int64(frame.FrameID), frame.Timestamp, frame.Bits, frame.ScopeCount, frame.Data)
	if err != nil {
		return fmt.Errorf("failed to insert frame: %v", err)
	}
	return nil
}

func (r *SQLiteRepository) LoadFrame(ctx context.Context, recordingID string, frameID uint32) (*models.Frame, error) {
	q := `
	SELECT timestamp, bits, scope_count, data FROM frames WHERE recording_id = ? AND frame_id = ?;
	`
	frame := &models.Frame{RecordingID: recordingID, FrameID: frameID}
	err := r.db.QueryRowContext(ctx, q, recordingID, int64(frameID)).Scan(&frame.Timestamp, &frame.Bits, &frame.ScopeCount, &frame.Data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &ErrNotFound{}
		}
		return nil, fmt.Errorf("failed to scan frame: %v", err)
	}
	return frame, nil
}

func (r *SQLiteRepository) ListFrames(ctx context.Context, recordingID string, limit int) ([]*models.Frame, error) {
	q := `
	SELECT frame_id, timestamp, bits, scope_count FROM frames
	WHERE recording_id = ?
	ORDER BY frame_id DESC
	LIMIT ?;
	`
	rows, err := r.db.QueryContext(ctx, q, recordingID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query frames: %v", err)
	}
	defer rows.Close()

	frames := []*models.Frame{}
	for rows.Next() {
		frame := &models.Frame{RecordingID: recordingID}
		var frameID int64
		if err := rows.Scan(&frameID, &frame.Timestamp, &frame.Bits, &frame.ScopeCount); err != nil {
			return nil, fmt.Errorf("failed to scan frame: %v", err)
		}
		frame.FrameID = uint32(frameID)
		frames = append(frames, frame)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate frames: %v", err)
	}
	return frames, nil
}
