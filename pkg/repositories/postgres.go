package repositories

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cbodonnell/tickstream/pkg/log"
	"github.com/cbodonnell/tickstream/pkg/repositories/models"
	"github.com/jackc/pgx/v5"
)

// PostgresRepository stores frames in Postgres over a single connection.
// pgx.Conn is not safe for concurrent use, so every call holds connLock.
type PostgresRepository struct {
	conn     *pgx.Conn
	connLock sync.Mutex
}

// NewPostgresRepository connects to connStr and applies migrations.
// The caller is responsible for calling Close() on the repository.
func NewPostgresRepository(ctx context.Context, connStr string) (*PostgresRepository, error) {
	conn, err := connectDb(ctx, connStr)
	if err != nil {
		return nil, err
	}

	stmts, err := migrations("postgres")
	if err != nil {
		conn.Close(ctx)
		return nil, err
	}
	for _, stmt := range stmts {
		if _, err := conn.Exec(ctx, stmt); err != nil {
			conn.Close(ctx)
			return nil, fmt.Errorf("failed to execute migration: %v", err)
		}
	}

	return &PostgresRepository{
		conn: conn,
	}, nil
}

func connectDb(ctx context.Context, connStr string) (*pgx.Conn, error) {
	conn, err := pgx.Connect(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %v", err)
	}

	var username string
	var database string
	err = conn.QueryRow(ctx, "SELECT current_user, current_database()").Scan(&username, &database)
	if err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("unable to query database: %v", err)
	}

	log.Info("Connected to %s as %s", database, username)

	return conn, nil
}

func (r *PostgresRepository) Close(ctx context.Context) error {
	r.connLock.Lock()
	defer r.connLock.Unlock()
	return r.conn.Close(ctx)
}

func (r *PostgresRepository) CreateRecording(ctx context.Context, recording *models.Recording) error {
	r.connLock.Lock()
	defer r.connLock.Unlock()

	q := `
	INSERT INTO recordings (recording_id, started_at) VALUES ($1, $2);
	`
	if _, err := r.conn.Exec(ctx, q, recording.ID, recording.StartedAt); err != nil {
		return fmt.Errorf("failed to insert recording: %v", err)
	}
	return nil
}

func (r *PostgresRepository) ListRecordings(ctx context.Context) ([]*models.Recording, error) {
	r.connLock.Lock()
	defer r.connLock.Unlock()

	rows, err := r.conn.Query(ctx, "SELECT recording_id::text, started_at FROM recordings ORDER BY started_at DESC")
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

func (r *PostgresRepository) SaveFrame(ctx context.Context, frame *models.Frame) error {
	r.connLock.Lock()
	defer r.connLock.Unlock()

	q := `
	INSERT INTO frames (recording_id, frame_id, timestamp, bits, scope_count, data)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (recording_id, frame_id) DO UPDATE
	SET timestamp = $3, bits = $4, scope_count = $5, data = $6;
	`
	_, err := r.conn.Exec(ctx, q, frame.RecordingID, int64(frame.FrameID), frame.Timestamp, frame.Bits, frame.ScopeCount, frame.Data)
	if err != nil {
		return fmt.Errorf("failed to insert frame: %v", err)
	}
	return nil
}

func (r *PostgresRepository) LoadFrame(ctx context.Context, recordingID string, frameID uint32) (*models.Frame, error) {
	r.connLock.Lock()
	defer r.connLock.Unlock()

	q := `
	SELECT timestamp, bits, scope_count, data FROM frames WHERE recording_id = $1 AND frame_id = $2;
	`
	frame := &models.Frame{RecordingID: recordingID, FrameID: frameID}
	err := r.conn.QueryRow(ctx, q, recordingID, int64(frameID)).Scan(&frame.Timestamp, &frame.Bits, &frame.ScopeCount, &frame.Data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &ErrNotFound{}
		}
		return nil, fmt.Errorf("failed to scan frame: %v", err)
	}
	return frame, nil
}

func (r *PostgresRepository) ListFrames(ctx context.Context, recordingID string, limit int) ([]*models.Frame, error) {
	r.connLock.Lock()
	defer r.connLock.Unlock()

	q := `
	SELECT frame_id, timestamp, bits, scope_count FROM frames
	WHERE recording_id = $1
	ORDER BY frame_id DESC
	LIMIT $2;
	`
	rows, err := r.conn.Query(ctx, q, recordingID, limit)
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
