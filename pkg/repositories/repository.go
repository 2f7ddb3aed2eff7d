package repositories

import (
	"context"
	"fmt"
	"strings"

	"github.com/cbodonnell/tickstream/pkg/repositories/models"
)

// Repository stores recorded frames for replay and inspection.
type Repository interface {
	Close(ctx context.Context) error
	CreateRecording(ctx context.Context, recording *models.Recording) error
	ListRecordings(ctx context.Context) ([]*models.Recording, error)
	SaveFrame(ctx context.Context, frame *models.Frame) error
	// LoadFrame returns ErrNotFound when the frame was not recorded.
	LoadFrame(ctx context.Context, recordingID string, frameID uint32) (*models.Frame, error)
	// ListFrames returns up to limit frames of a recording, newest first,
	// without their data.
	ListFrames(ctx context.Context, recordingID string, limit int) ([]*models.Frame, error)
}

// NewRepository opens the repository named by url: sqlite://path for SQLite,
// postgres:// or postgresql:// for Postgres.
func NewRepository(ctx context.Context, url string) (Repository, error) {
	switch {
	case strings.HasPrefix(url, "sqlite://"):
		return NewSQLiteRepository(ctx, strings.TrimPrefix(url, "sqlite://"))
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return NewPostgresRepository(ctx, url)
	default:
		return nil, fmt.Errorf("unsupported database url %q", url)
	}
}
