package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"threatfeed/internal/config"
	"threatfeed/internal/model"
	"threatfeed/internal/scheduler"
)

// TypeFetchSource is the task type for one source's fetch cycle.
const TypeFetchSource = "fetch-source"

const queueName = "ingestion"

// fetchSourcePayload is the task body.
type fetchSourcePayload struct {
	SourceID string `json:"source_id"`
}

func redisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

// QueueDispatcher enqueues fetch jobs on the Redis-backed queue: 3
// attempts with exponential backoff from 5 seconds, dropped on success,
// archived on terminal failure for operator inspection.
type QueueDispatcher struct {
	client *asynq.Client
}

func NewQueueDispatcher(cfg config.RedisConfig) *QueueDispatcher {
	return &QueueDispatcher{client: asynq.NewClient(redisOpt(cfg))}
}

func (d *QueueDispatcher) Dispatch(ctx context.Context, source model.Source) error {
	payload, err := json.Marshal(fetchSourcePayload{SourceID: source.ID})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(TypeFetchSource, payload)
	_, err = d.client.EnqueueContext(ctx, task,
		asynq.Queue(queueName),
		asynq.MaxRetry(2), // 3 attempts total
	)
	if err != nil {
		return fmt.Errorf("enqueue fetch for %s: %w", source.Name, err)
	}
	return nil
}

func (d *QueueDispatcher) Close() error {
	return d.client.Close()
}

// retryDelay grows exponentially from 5 seconds: 5s, 10s, 20s, ...
func retryDelay(n int, _ error, _ *asynq.Task) time.Duration {
	if n < 1 {
		n = 1
	}
	return (5 * time.Second) << (n - 1)
}

// Server consumes fetch jobs. It implements the worker interface so the
// manager can supervise it next to the scheduler loop.
type Server struct {
	srv *asynq.Server
	mux *asynq.ServeMux
}

// NewServer builds the queue consumer. The in-flight marker is released
// when an attempt finishes so the scheduler can dispatch the source again.
func NewServer(cfg config.RedisConfig, concurrency int, ingestor *Ingestor, inflight *scheduler.InFlight) *Server {
	if concurrency <= 0 {
		concurrency = 4
	}
	srv := asynq.NewServer(redisOpt(cfg), asynq.Config{
		Concurrency:    concurrency,
		Queues:         map[string]int{queueName: 1},
		RetryDelayFunc: retryDelay,
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeFetchSource, func(ctx context.Context, task *asynq.Task) error {
		var p fetchSourcePayload
		if err := json.Unmarshal(task.Payload(), &p); err != nil {
			return fmt.Errorf("unmarshal %s payload: %w", TypeFetchSource, err)
		}
		defer inflight.Release(p.SourceID)
		return ingestor.IngestSource(ctx, p.SourceID)
	})

	return &Server{srv: srv, mux: mux}
}

// Start runs the consumer until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if err := s.srv.Start(s.mux); err != nil {
		return fmt.Errorf("start job server: %w", err)
	}
	<-ctx.Done()
	slog.Info("stopping job server")
	s.srv.Shutdown()
	return nil
}
