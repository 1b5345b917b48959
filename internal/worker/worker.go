package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/fanzlive/backend/internal/models"
	"github.com/fanzlive/backend/internal/recordings"
	"github.com/fanzlive/backend/internal/streams"
	"github.com/fanzlive/backend/pkg/queue"
	"github.com/fanzlive/backend/pkg/storage"
)

// PostProcessor consumes recording post-processing jobs queued at stream end:
// download the recording from the ingest provider, upload to S3, mark the
// recording completed and attach the playback URL to the stream.
type PostProcessor struct {
	recRepo    *recordings.Repository
	streamRepo *streams.Repository
	s3         *storage.S3
	queue      *queue.Queue
	logger     *zap.Logger
}

// NewPostProcessor creates a recording post-processor.
func NewPostProcessor(recRepo *recordings.Repository, streamRepo *streams.Repository, s3 *storage.S3, q *queue.Queue, logger *zap.Logger) *PostProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostProcessor{recRepo: recRepo, streamRepo: streamRepo, s3: s3, queue: q, logger: logger}
}

// Process executes one post-processing job.
func (p *PostProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypePostProcess {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.PostProcessPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	rec, err := p.recRepo.GetByID(ctx, payload.RecordingID)
	if err != nil || rec == nil {
		return fmt.Errorf("recording not found: %s", payload.RecordingID)
	}
	if rec.Status == models.RecordingStatusCompleted {
		p.logger.Info("recording already completed", zap.String("recording_id", rec.ID.String()))
		return nil
	}

	ingestURL := payload.IngestURL
	if ingestURL == "" {
		ingestURL = rec.IngestURL
	}
	if ingestURL == "" {
		return fmt.Errorf("recording %s has no ingest url", rec.ID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ingestURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download status: %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "video/mp4"
	}
	key := storage.RecordingKey(payload.StreamID.String(), payload.RecordingID.String())

	s3URL, err := p.s3.Upload(ctx, p.s3.RecordingsBucket(), key, contentType, resp.Body, resp.ContentLength)
	if err != nil {
		return fmt.Errorf("s3 upload: %w", err)
	}

	if err := p.recRepo.UpdateS3Result(ctx, payload.RecordingID, s3URL, key, resp.ContentLength, rec.Duration); err != nil {
		return fmt.Errorf("update recording: %w", err)
	}
	if err := p.streamRepo.SetRecordingURL(ctx, payload.StreamID, s3URL); err != nil {
		p.logger.Error("attach recording url to stream", zap.Error(err), zap.String("stream_id", payload.StreamID.String()))
	}

	p.logger.Info("recording post-processing completed",
		zap.String("recording_id", payload.RecordingID.String()),
		zap.String("s3_key", key))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *PostProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("post-processing worker stopping")
			return
		default:
		}

		job, _, err := p.queue.Dequeue(ctx)
		if err != nil {
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			time.Sleep(queue.RetryBackoff)
		}
	}
}
