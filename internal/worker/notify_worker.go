package worker

// notify_worker.go
// Emails batch status changes and low-stock alerts to the operations inbox.
// Sends go through the SMTP circuit breaker; failed jobs are requeued until
// MaxNotifyAttempts, then parked in the dead-letter queue.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"sostrack/internal/infra"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const MaxNotifyAttempts = 3

// StatusChangePayload describes one batch moving between lifecycle states.
type StatusChangePayload struct {
	BatchID     string    `json:"batch_id"`
	ProductID   string    `json:"product_id"`
	ProductName string    `json:"product_name"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	ChangedAt   time.Time `json:"changed_at"`
}

// LowStockPayload reports a container that fell under its minimum quantity.
type LowStockPayload struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Container   string `json:"container"`
	Quantity    int    `json:"quantity"`
	Minimum     int    `json:"minimum"`
}

// Sender delivers a plain-text message. *infra.Mailer satisfies it.
type Sender interface {
	Send(to, subject, body string) error
}

type NotifyWorker struct {
	sender Sender
	cb     *infra.CircuitBreaker
	rdb    *redis.Client
	to     string
}

// NewNotifyWorker builds the worker. An empty recipient disables delivery.
func NewNotifyWorker(sender Sender, cb *infra.CircuitBreaker, rdb *redis.Client, to string) *NotifyWorker {
	return &NotifyWorker{sender: sender, cb: cb, rdb: rdb, to: to}
}

// Process renders and sends one job.
func (w *NotifyWorker) Process(ctx context.Context, job Job) {
	subject, body, err := render(job)
	if err != nil {
		log.Error().Err(err).Str("type", job.Type).Msg("notify_worker: invalid payload")
		return
	}
	if w.to == "" || w.sender == nil {
		log.Info().Str("type", job.Type).Str("subject", subject).Msg("notify_worker: no recipient configured, skipping")
		return
	}

	send := func() error { return w.sender.Send(w.to, subject, body) }
	if w.cb != nil {
		err = w.cb.Execute(send)
	} else {
		err = send()
	}
	if err == nil {
		log.Info().Str("type", job.Type).Str("to", w.to).Msg("notify_worker: sent")
		return
	}

	job.Attempts++
	if errors.Is(err, infra.ErrCircuitOpen) || job.Attempts >= MaxNotifyAttempts {
		w.deadLetter(ctx, job, err)
		return
	}
	log.Warn().Err(err).Str("type", job.Type).Int("attempts", job.Attempts).Msg("notify_worker: send failed, requeueing")
	if w.rdb != nil {
		if perr := pushJob(ctx, w.rdb, QueueNotify, job); perr != nil {
			log.Error().Err(perr).Msg("notify_worker: requeue failed")
		}
	}
}

func (w *NotifyWorker) deadLetter(ctx context.Context, job Job, cause error) {
	if w.rdb == nil {
		log.Error().Err(cause).Str("type", job.Type).Msg("notify_worker: giving up, no dead-letter queue")
		return
	}
	SendToDLQ(ctx, w.rdb, QueueNotify, job.Type, job.Payload, cause.Error(), job.Attempts)
}

func render(job Job) (subject, body string, err error) {
	switch job.Type {
	case JobStatusChange:
		var p StatusChangePayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			return "", "", err
		}
		subject = fmt.Sprintf("%s batch is now %s", p.ProductName, p.To)
		body = fmt.Sprintf("Batch %s of %s moved from %s to %s at %s.\n",
			p.BatchID, p.ProductName, p.From, p.To, p.ChangedAt.Format(time.RFC1123))
		return subject, body, nil
	case JobLowStock:
		var p LowStockPayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			return "", "", err
		}
		subject = fmt.Sprintf("Low stock: %s %s", p.ProductName, p.Container)
		body = fmt.Sprintf("%s (%s) is at %d, below the minimum of %d.\n",
			p.ProductName, p.Container, p.Quantity, p.Minimum)
		return subject, body, nil
	}
	return "", "", fmt.Errorf("unknown job type %q", job.Type)
}
