package workers

import (
	"context"
	"time"

	"github.com/cbodonnell/tickstream/pkg/frame"
	"github.com/cbodonnell/tickstream/pkg/log"
	"github.com/cbodonnell/tickstream/pkg/repositories"
	"github.com/cbodonnell/tickstream/pkg/repositories/models"
	"github.com/google/uuid"
)

// RecordFrameRequest asks the worker to persist one full frame.
type RecordFrameRequest struct {
	FrameID   uint32
	Timestamp int64
	Frame     *frame.Frame
}

// RecordFrameWorker saves full frames off the tick loop. Every worker writes
// to its own recording, identified by a random UUID.
type RecordFrameWorker struct {
	repository      repositories.Repository
	recordFrameChan <-chan RecordFrameRequest
	recordingID     string
	now             func() time.Time
}

type NewRecordFrameWorkerOptions struct {
	Repository      repositories.Repository
	RecordFrameChan <-chan RecordFrameRequest
}

// NewRecordFrameWorker creates a new RecordFrameWorker.
func NewRecordFrameWorker(opts NewRecordFrameWorkerOptions) *RecordFrameWorker {
	return &RecordFrameWorker{
		repository:      opts.Repository,
		recordFrameChan: opts.RecordFrameChan,
		recordingID:     uuid.NewString(),
		now:             time.Now,
	}
}

// RecordingID returns the ID frames are saved under.
func (w *RecordFrameWorker) RecordingID() string {
	return w.recordingID
}

// Start creates the recording and saves frames until ctx is cancelled or
// the request channel is closed.
func (w *RecordFrameWorker) Start(ctx context.Context) error {
	rec := &models.Recording{ID: w.recordingID, StartedAt: w.now().UnixMilli()}
	if err := w.repository.CreateRecording(ctx, rec); err != nil {
		return err
	}
	log.Info("Recording frames as %s", w.recordingID)

	for {
		select {
		case <-ctx.Done():
			return nil
		case req, ok := <-w.recordFrameChan:
			if !ok {
				return nil
			}
			w.recordFrame(ctx, req)
		}
	}
}

func (w *RecordFrameWorker) recordFrame(ctx context.Context, req RecordFrameRequest) {
	data := req.Frame.Bytes()
	if data == nil {
		data = []byte{}
	}
	f := &models.Frame{
		RecordingID: w.recordingID,
		FrameID:     req.FrameID,
		Timestamp:   req.Timestamp,
		Bits:        req.Frame.Bits(),
		ScopeCount:  len(req.Frame.Sections()),
		Data:        data,
	}
	if err := w.repository.SaveFrame(ctx, f); err != nil {
		log.Error("Failed to save frame %d: %v", req.FrameID, err)
	}
}
