package repositories

import (
	"context"
	"os"
	"testing"

	"github.com/cbodonnell/tickstream/pkg/repositories/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseRepository(t *testing.T, repo Repository) {
	ctx := context.Background()
	rec := &models.Recording{ID: uuid.NewString(), StartedAt: 1700000000000}
	require.NoError(t, repo.CreateRecording(ctx, rec))

	recordings, err := repo.ListRecordings(ctx)
	require.NoError(t, err)
	ids := make([]string, 0, len(recordings))
	for _, r := range recordings {
		ids = append(ids, r.ID)
	}
	assert.Contains(t, ids, rec.ID)

	for i := uint32(1); i <= 5; i++ {
		require.NoError(t, repo.SaveFrame(ctx, &models.Frame{
			RecordingID: rec.ID,
			FrameID:     i,
			Timestamp:   int64(1000 + i),
			Bits:        int(i) * 8,
			ScopeCount:  1,
			Data:        []byte{byte(i)},
		}))
	}

	f, err := repo.LoadFrame(ctx, rec.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, &models.Frame{
		RecordingID: rec.ID,
		FrameID:     3,
		Timestamp:   1003,
		Bits:        24,
		ScopeCount:  1,
		Data:        []byte{3},
	}, f)

	_, err = repo.LoadFrame(ctx, rec.ID, 99)
	assert.True(t, IsNotFound(err))

	frames, err := repo.ListFrames(ctx, rec.ID, 2)
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, uint32(5), frames[0].FrameID)
	assert.Equal(t, uint32(4), frames[1].FrameID)
	assert.Nil(t, frames[0].Data)

	// Saving the same frame again replaces it.
	require.NoError(t, repo.SaveFrame(ctx, &models.Frame{RecordingID: rec.ID, FrameID: 3, Timestamp: 2000, Bits: 8, Data: []byte{9}}))
	f, err = repo.LoadFrame(ctx, rec.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), f.Timestamp)
	assert.Equal(t, []byte{9}, f.Data)
}

func TestSQLiteRepository(t *testing.T) {
	repo, err := NewRepository(context.Background(), "sqlite://:memory:")
	require.NoError(t, err)
	defer repo.Close(context.Background())

	exerciseRepository(t, repo)
}

func TestPostgresRepository(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	repo, err := NewRepository(context.Background(), url)
	require.NoError(t, err)
	defer repo.Close(context.Background())

	exerciseRepository(t, repo)
}

func TestNewRepository_unsupported(t *testing.T) {
	_, err := NewRepository(context.Background(), "mysql://localhost")
	assert.Error(t, err)
}
