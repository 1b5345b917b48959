package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func newTestQueue(t *testing.T) (*Queue, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewQueue(client, nil), client
}

func TestEnqueueDequeue(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	payload := PostProcessPayload{
		RecordingID: uuid.New(),
		StreamID:    uuid.New(),
		IngestURL:   "rtmp://ingest.example.com/live/abc",
	}
	if err := q.EnqueuePostProcess(ctx, payload); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	dequeueCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	job, key, err := q.Dequeue(dequeueCtx)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if job == nil {
		t.Fatalf("no job dequeued")
	}
	if key != QueuePostProcess {
		t.Fatalf("key = %s", key)
	}
	if job.Type != JobTypePostProcess {
		t.Fatalf("type = %s", job.Type)
	}
	if job.Attempt != 0 {
		t.Fatalf("attempt = %d", job.Attempt)
	}

	var got PostProcessPayload
	if err := json.Unmarshal(job.Payload, &got); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if got.RecordingID != payload.RecordingID || got.StreamID != payload.StreamID || got.IngestURL != payload.IngestURL {
		t.Fatalf("payload mismatch: %+v", got)
	}
}

func TestDequeueIsFIFO(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	first := uuid.New()
	second := uuid.New()
	for _, id := range []uuid.UUID{first, second} {
		if err := q.EnqueuePostProcess(ctx, PostProcessPayload{RecordingID: id}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	for i, want := range []uuid.UUID{first, second} {
		dequeueCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		job, _, err := q.Dequeue(dequeueCtx)
		cancel()
		if err != nil || job == nil {
			t.Fatalf("dequeue %d: job=%v err=%v", i, job, err)
		}
		var p PostProcessPayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if p.RecordingID != want {
			t.Fatalf("dequeue %d: got %s, want %s", i, p.RecordingID, want)
		}
	}
}

func TestRetryRequeuesUntilDLQ(t *testing.T) {
	q, client := newTestQueue(t)
	ctx := context.Background()

	job := &Job{
		ID:      uuid.New().String(),
		Type:    JobTypePostProcess,
		Payload: json.RawMessage(`{}`),
	}

	// Attempts below the limit go back to the work queue.
	for i := 0; i < MaxRetries-1; i++ {
		if err := q.Retry(ctx, job); err != nil {
			t.Fatalf("retry %d: %v", i, err)
		}
		if n := client.LLen(ctx, QueueDLQ).Val(); n != 0 {
			t.Fatalf("retry %d landed in DLQ", i)
		}
		if n := client.LLen(ctx, QueuePostProcess).Val(); n != int64(i+1) {
			t.Fatalf("work queue length = %d after retry %d", n, i)
		}
	}

	// The attempt that reaches the limit goes to the DLQ instead.
	if err := q.Retry(ctx, job); err != nil {
		t.Fatalf("final retry: %v", err)
	}
	if n := client.LLen(ctx, QueueDLQ).Val(); n != 1 {
		t.Fatalf("DLQ length = %d, want 1", n)
	}
	if job.Attempt != MaxRetries {
		t.Fatalf("attempt = %d, want %d", job.Attempt, MaxRetries)
	}

	raw, err := client.LIndex(ctx, QueueDLQ, 0).Result()
	if err != nil {
		t.Fatalf("read DLQ: %v", err)
	}
	var dead Job
	if err := json.Unmarshal([]byte(raw), &dead); err != nil {
		t.Fatalf("unmarshal DLQ job: %v", err)
	}
	if dead.ID != job.ID {
		t.Fatalf("DLQ holds job %s, want %s", dead.ID, job.ID)
	}
}
