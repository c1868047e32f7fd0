package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"sostrack/internal/infra"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	mu    sync.Mutex
	err   error
	sent  []string
	calls int
}

func (f *fakeSender) Send(to, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, to+"|"+subject)
	return nil
}

func statusJob(t *testing.T) Job {
	t.Helper()
	data, err := json.Marshal(StatusChangePayload{
		BatchID:     "b-1",
		ProductName: "Blue Raz Gummies",
		From:        "Package",
		To:          "Ready",
		ChangedAt:   time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return Job{Type: JobStatusChange, Payload: data}
}

func TestNotifyWorker_SendsStatusChange(t *testing.T) {
	sender := &fakeSender{}
	w := NewNotifyWorker(sender, nil, nil, "ops@example.com")

	w.Process(context.Background(), statusJob(t))

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "ops@example.com|Blue Raz Gummies batch is now Ready", sender.sent[0])
}

func TestNotifyWorker_NoRecipientSkips(t *testing.T) {
	sender := &fakeSender{}
	w := NewNotifyWorker(sender, nil, nil, "")
	w.Process(context.Background(), statusJob(t))
	assert.Zero(t, sender.calls)
}

func TestNotifyWorker_BreakerStopsCallingSMTP(t *testing.T) {
	sender := &fakeSender{err: errors.New("smtp down")}
	cb := infra.NewCircuitBreaker(infra.CircuitBreakerConfig{Name: "smtp", FailureThreshold: 2, OpenTimeout: time.Hour})
	w := NewNotifyWorker(sender, cb, nil, "ops@example.com")

	for i := 0; i < 5; i++ {
		w.Process(context.Background(), statusJob(t))
	}
	assert.Equal(t, 2, sender.calls, "open breaker fails fast")
	assert.Equal(t, infra.CBOpen, cb.State())
}

func TestRender_LowStock(t *testing.T) {
	data, _ := json.Marshal(LowStockPayload{ProductName: "Lime Hard Candy", Container: "4oz", Quantity: 2, Minimum: 10})
	subject, body, err := render(Job{Type: JobLowStock, Payload: data})
	require.NoError(t, err)
	assert.Equal(t, "Low stock: Lime Hard Candy 4oz", subject)
	assert.Contains(t, body, "at 2, below the minimum of 10")

	_, _, err = render(Job{Type: "mystery"})
	assert.Error(t, err)
}

func TestNilDispatcherDropsJobs(t *testing.T) {
	var d *Dispatcher
	assert.NoError(t, d.EnqueueStatusChange(context.Background(), StatusChangePayload{}))
	assert.NoError(t, NewDispatcher(nil).EnqueueLowStock(context.Background(), LowStockPayload{}))
}

type countingSweeper struct{ n atomic.Int32 }

func (c *countingSweeper) SweepReady(context.Context) (int, error) {
	c.n.Add(1)
	return 0, nil
}

func TestSweepCron_RunsImmediatelyAndOnTick(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := &countingSweeper{}

	StartSweepCron(ctx, 10*time.Millisecond, s)

	assert.Eventually(t, func() bool { return s.n.Load() >= 3 }, time.Second, 5*time.Millisecond)
}
