package service

import (
	"context"
	"fmt"

	"github.com/notify-platform/outcome-engine/internal/queue"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const minWorkerConcurrency = 1

// WorkerPool runs queue consumers until context cancellation. Concurrency is
// spread round-robin over the registered queues.
type WorkerPool struct {
	consumer    queue.Consumer
	handlers    map[string]queue.MessageHandler
	queues      []string
	concurrency int
	logger      *zap.Logger
}

func NewWorkerPool(
	consumer queue.Consumer,
	handlers map[string]queue.MessageHandler,
	concurrency int,
	logger *zap.Logger,
) (*WorkerPool, error) {
	if consumer == nil {
		return nil, fmt.Errorf("consumer is required")
	}
	if len(handlers) == 0 {
		return nil, fmt.Errorf("at least one queue handler is required")
	}
	if concurrency < minWorkerConcurrency {
		concurrency = minWorkerConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	queues := make([]string, 0, len(handlers))
	for name := range handlers {
		queues = append(queues, name)
	}
	if concurrency < len(queues) {
		concurrency = len(queues)
	}

	return &WorkerPool{
		consumer:    consumer,
		handlers:    handlers,
		queues:      queues,
		concurrency: concurrency,
		logger:      logger,
	}, nil
}

func (p *WorkerPool) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	g, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < p.concurrency; i++ {
		queueName := p.queues[i%len(p.queues)]
		handler := p.handlers[queueName]
		workerID := i + 1

		g.Go(func() error {
			p.logger.Info("worker started",
				zap.Int("worker_id", workerID),
				zap.String("queue", queueName))

			err := p.consumer.Consume(groupCtx, queueName, handler)
			if err != nil {
				p.logger.Error("worker stopped with error",
					zap.Int("worker_id", workerID),
					zap.String("queue", queueName),
					zap.Error(err))
				return err
			}

			p.logger.Info("worker stopped",
				zap.Int("worker_id", workerID),
				zap.String("queue", queueName))
			return nil
		})
	}

	return g.Wait()
}
