package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const QueueNotify = "jobs:notify"

const (
	JobStatusChange = "status_change"
	JobLowStock     = "low_stock"
)

// Job is the envelope for every queued task.
type Job struct {
	Type     string          `json:"type"`
	Payload  json.RawMessage `json:"payload"`
	Attempts int             `json:"attempts,omitempty"`
}

// Dispatcher enqueues async jobs into Redis lists; the worker pool drains them
// with BRPOP. A nil Dispatcher, or one without a Redis client, drops jobs.
type Dispatcher struct {
	rdb *redis.Client
}

func NewDispatcher(rdb *redis.Client) *Dispatcher {
	return &Dispatcher{rdb: rdb}
}

// EnqueueStatusChange queues a batch status notification.
func (d *Dispatcher) EnqueueStatusChange(ctx context.Context, p StatusChangePayload) error {
	return d.enqueue(ctx, QueueNotify, JobStatusChange, p)
}

// EnqueueLowStock queues a restock alert.
func (d *Dispatcher) EnqueueLowStock(ctx context.Context, p LowStockPayload) error {
	return d.enqueue(ctx, QueueNotify, JobLowStock, p)
}

func (d *Dispatcher) enqueue(ctx context.Context, queue, jobType string, payload any) error {
	if d == nil || d.rdb == nil {
		log.Debug().Str("type", jobType).Msg("dispatcher: no queue configured, job dropped")
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return pushJob(ctx, d.rdb, queue, Job{Type: jobType, Payload: data})
}

func pushJob(ctx context.Context, rdb *redis.Client, queue string, job Job) error {
	encoded, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return rdb.LPush(ctx, queue, encoded).Err()
}

// WorkerHandlers holds the processors the pool routes jobs to.
type WorkerHandlers struct {
	Notify *NotifyWorker
}

// StartWorkerPool launches numWorkers goroutines consuming the notify queue.
// Each goroutine blocks on BRPOP and costs nothing while idle.
func StartWorkerPool(ctx context.Context, rdb *redis.Client, numWorkers int, h WorkerHandlers) {
	for i := 0; i < numWorkers; i++ {
		go runWorker(ctx, rdb, i, h)
	}
	log.Info().Msgf("worker pool started with %d workers", numWorkers)
}

func runWorker(ctx context.Context, rdb *redis.Client, id int, h WorkerHandlers) {
	for {
		select {
		case <-ctx.Done():
			log.Info().Msgf("worker %d shutting down", id)
			return
		default:
			// waits up to 5s then loops to check ctx
			result, err := rdb.BRPop(ctx, 5*time.Second, QueueNotify).Result()
			if err != nil {
				continue
			}
			if len(result) < 2 {
				continue
			}
			processJob(ctx, h, result[0], result[1])
		}
	}
}

func processJob(ctx context.Context, h WorkerHandlers, queue, raw string) {
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		log.Error().Str("queue", queue).Err(err).Msg("failed to unmarshal job")
		return
	}
	switch job.Type {
	case JobStatusChange, JobLowStock:
		if h.Notify == nil {
			log.Warn().Str("type", job.Type).Msg("no notify handler registered")
			return
		}
		h.Notify.Process(ctx, job)
	default:
		log.Warn().Str("type", job.Type).Str("queue", queue).Msg("unknown job type")
	}
}
