package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"BucketDash/internal/mq"
	"BucketDash/internal/repo"
	"BucketDash/internal/service"
	"BucketDash/internal/task"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Config tunes consumption and retry. Rate is tasks started per second and
// zero means unlimited.
type Config struct {
	Prefetch    int
	Concurrency int
	Rate        float64
	Burst       int
	RetryMax    int
	RetryDelays []time.Duration
}

// Processor is the task side of the worker.
type Processor interface {
	ProcessFolderDeleteTask(ctx context.Context, taskID uint64) error
	MarkRetrying(ctx context.Context, taskID uint64, cause error, attempt int, nextRetryAt time.Time) error
	Fail(ctx context.Context, taskID uint64, cause error) error
}

// Broker republishes messages for retry or dead-lettering.
type Broker interface {
	PublishRetry(ctx context.Context, body []byte, delay time.Duration) error
	PublishDLQ(ctx context.Context, body []byte) error
}

type dlqMessage struct {
	TaskID   uint64    `json:"task_id"`
	Attempt  int       `json:"attempt"`
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failed_at"`
}

type Worker struct {
	cfg       Config
	processor Processor
	limiter   *rate.Limiter
}

func New(cfg Config, processor Processor) *Worker {
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 1
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	limit := rate.Inf
	if cfg.Rate > 0 {
		limit = rate.Limit(cfg.Rate)
	}
	return &Worker{
		cfg:       cfg,
		processor: processor,
		limiter:   rate.NewLimiter(limit, cfg.Burst),
	}
}

// Run consumes folder delete tasks until ctx is done, then waits for in-flight tasks.
func (w *Worker) Run(ctx context.Context, client *mq.Client) error {
	if err := client.DeclareTopology(); err != nil {
		return err
	}
	if err := client.Channel.Qos(w.cfg.Prefetch, 0, false); err != nil {
		return err
	}
	deliveries, err := client.Channel.Consume(
		mq.QueueTasks,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return err
	}

	log.Info().Int("concurrency", w.cfg.Concurrency).Int("prefetch", w.cfg.Prefetch).Msg("folder delete worker started")
	return w.dispatch(ctx, deliveries, client)
}

// dispatch runs deliveries on at most Concurrency goroutines. A delivery still
// waiting for a slot at shutdown goes back to the queue.
func (w *Worker) dispatch(ctx context.Context, deliveries <-chan amqp.Delivery, broker Broker) error {
	sem := make(chan struct{}, w.cfg.Concurrency)
	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return nil
		case delivery, ok := <-deliveries:
			if !ok {
				return errors.New("folder delete worker: delivery channel closed")
			}
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				_ = delivery.Nack(false, true)
				return nil
			}
			wg.Add(1)
			go func(d amqp.Delivery) {
				defer wg.Done()
				defer func() { <-sem }()
				w.handle(ctx, broker, d)
			}(delivery)
		}
	}
}

func (w *Worker) handle(ctx context.Context, broker Broker, delivery amqp.Delivery) {
	var msg task.FolderDeleteMessage
	if err := json.Unmarshal(delivery.Body, &msg); err != nil {
		log.Error().Err(err).Msg("folder delete worker: invalid message")
		_ = delivery.Ack(false)
		return
	}

	if err := w.limiter.Wait(ctx); err != nil {
		_ = delivery.Nack(false, true)
		return
	}

	if err := w.processor.ProcessFolderDeleteTask(ctx, msg.TaskID); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			_ = delivery.Nack(false, true)
			return
		}
		log.Warn().Err(err).Uint64("task", msg.TaskID).Int("attempt", msg.Attempt).Msg("folder delete task failed")
		if shouldRetry(err) {
			if err := w.scheduleRetry(ctx, broker, msg, err); err != nil {
				log.Error().Err(err).Uint64("task", msg.TaskID).Msg("folder delete worker: retry schedule failed")
				_ = delivery.Nack(false, true)
				return
			}
		} else if err := w.markFailed(ctx, broker, msg, err); err != nil {
			log.Error().Err(err).Uint64("task", msg.TaskID).Msg("folder delete worker: mark failed failed")
			_ = delivery.Nack(false, true)
			return
		}
	}

	_ = delivery.Ack(false)
}

// shouldRetry retries backend outages and a busy prefix lock. Rejected
// requests and vanished tasks fail at once.
func shouldRetry(err error) bool {
	if errors.Is(err, repo.ErrNotFound) {
		return false
	}
	switch service.KindOf(err) {
	case service.KindBackend, service.KindConflict:
		return true
	case 0:
		return true
	default:
		return false
	}
}

func (w *Worker) scheduleRetry(ctx context.Context, broker Broker, msg task.FolderDeleteMessage, procErr error) error {
	nextAttempt := msg.Attempt + 1
	if w.cfg.RetryMax == 0 || nextAttempt > w.cfg.RetryMax {
		return w.markFailed(ctx, broker, msg, procErr)
	}

	delay := pickRetryDelay(nextAttempt, w.cfg.RetryDelays)
	if err := w.processor.MarkRetrying(ctx, msg.TaskID, procErr, nextAttempt, time.Now().Add(delay)); err != nil {
		return err
	}

	msg.Attempt = nextAttempt
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return broker.PublishRetry(ctx, body, delay)
}

func (w *Worker) markFailed(ctx context.Context, broker Broker, msg task.FolderDeleteMessage, procErr error) error {
	if err := w.processor.Fail(ctx, msg.TaskID, procErr); err != nil && !errors.Is(err, repo.ErrNotFound) {
		return err
	}

	body, err := json.Marshal(dlqMessage{
		TaskID:   msg.TaskID,
		Attempt:  msg.Attempt,
		Error:    procErr.Error(),
		FailedAt: time.Now(),
	})
	if err != nil {
		return err
	}
	if err := broker.PublishDLQ(ctx, body); err != nil {
		log.Warn().Err(err).Uint64("task", msg.TaskID).Msg("folder delete worker: dlq publish failed")
	}
	return nil
}

func pickRetryDelay(attempt int, delays []time.Duration) time.Duration {
	if len(delays) == 0 {
		return 0
	}
	index := attempt - 1
	if index < 0 {
		index = 0
	}
	if index >= len(delays) {
		return delays[len(delays)-1]
	}
	return delays[index]
}
