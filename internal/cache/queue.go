package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// EmbeddingJob asks the worker to embed series. An empty SeriesIDs means
// every series that has no vector yet.
type EmbeddingJob struct {
	SeriesIDs []string  `json:"series_ids,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	QueuedAt  time.Time `json:"queued_at"`
}

// DefaultQueue is the list key (before prefixing) of the embedding queue.
const DefaultQueue = "jobs:embeddings"

// Enqueue pushes a job onto the left side of the queue list.
func Enqueue(ctx context.Context, r *Redis, queue string, job EmbeddingJob) error {
	if job.QueuedAt.IsZero() {
		job.QueuedAt = time.Now().UTC()
	}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("queue marshal: %w", err)
	}
	return r.client.LPush(ctx, r.Key(queue), data).Err()
}

// Dequeue blocks until a job is available on the right side of the list or
// the timeout expires. A timeout or a cancelled ctx yields (nil, nil) so the
// caller can loop and check for shutdown.
func Dequeue(ctx context.Context, r *Redis, queue string, timeout time.Duration) (*EmbeddingJob, error) {
	result, err := r.client.BRPop(ctx, timeout, r.Key(queue)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || ctx.Err() != nil {
			return nil, nil
		}
		return nil, fmt.Errorf("queue dequeue: %w", err)
	}
	// BRPop returns [key, value].
	if len(result) < 2 {
		return nil, nil
	}
	var job EmbeddingJob
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return nil, fmt.Errorf("queue unmarshal: %w", err)
	}
	return &job, nil
}

// Len returns the number of queued jobs.
func Len(ctx context.Context, r *Redis, queue string) (int64, error) {
	return r.client.LLen(ctx, r.Key(queue)).Result()
}
