package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/notify-platform/outcome-engine/internal/domain"
	"github.com/notify-platform/outcome-engine/internal/observability"
	"github.com/notify-platform/outcome-engine/internal/queue"
	"github.com/notify-platform/outcome-engine/internal/ratelimit"
	"github.com/notify-platform/outcome-engine/internal/repository"
	"github.com/notify-platform/outcome-engine/internal/secrets"
	"go.uber.org/zap"
)

const (
	// defaultWebhookTimeout bounds one webhook attempt end to end.
	defaultWebhookTimeout = 60 * time.Second
	// defaultRetryDelay is the spacing between webhook redeliveries.
	defaultRetryDelay = 300 * time.Second
)

// Dispatcher executes callback jobs from the callbacks queue. Each message
// carries a job id; the payload and bearer token are unsealed transiently for
// the attempt and never logged.
type Dispatcher struct {
	jobs       repository.CallbackJobRepository
	configs    repository.CallbackConfigRepository
	box        *secrets.Box
	client     *resty.Client
	publisher  queue.Publisher
	limiter    ratelimit.RateLimiter
	metrics    *observability.Metrics
	logger     *zap.Logger
	retryDelay time.Duration
	now        func() time.Time
}

func NewDispatcher(
	jobs repository.CallbackJobRepository,
	configs repository.CallbackConfigRepository,
	box *secrets.Box,
	publisher queue.Publisher,
	limiter ratelimit.RateLimiter,
	retryDelay time.Duration,
	metrics *observability.Metrics,
	logger *zap.Logger,
) (*Dispatcher, error) {
	client := resty.New()
	client.SetTimeout(defaultWebhookTimeout)
	client.SetRetryCount(0)

	return NewDispatcherWithClient(jobs, configs, box, client, publisher, limiter, retryDelay, metrics, logger)
}

func NewDispatcherWithClient(
	jobs repository.CallbackJobRepository,
	configs repository.CallbackConfigRepository,
	box *secrets.Box,
	client *resty.Client,
	publisher queue.Publisher,
	limiter ratelimit.RateLimiter,
	retryDelay time.Duration,
	metrics *observability.Metrics,
	logger *zap.Logger,
) (*Dispatcher, error) {
	if jobs == nil {
		return nil, fmt.Errorf("callback job repository is required")
	}
	if configs == nil {
		return nil, fmt.Errorf("callback config repository is required")
	}
	if box == nil {
		return nil, fmt.Errorf("secret box is required")
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client.SetRetryCount(0)

	return &Dispatcher{
		jobs:       jobs,
		configs:    configs,
		box:        box,
		client:     client,
		publisher:  publisher,
		limiter:    limiter,
		metrics:    metrics,
		logger:     logger,
		retryDelay: retryDelay,
		now:        time.Now,
	}, nil
}

// HandleCallbackMessage processes one callbacks-queue delivery. Attempt
// failures never propagate as handler errors: retries go through the
// persisted schedule, not broker redelivery, so the spacing between attempts
// stays under our control.
func (d *Dispatcher) HandleCallbackMessage(ctx context.Context, msg queue.Message) error {
	decoded, err := queue.DecodeCallbackMessage(msg)
	if err != nil {
		return err
	}

	job, err := d.jobs.GetByID(ctx, decoded.JobID)
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("%w: unknown callback job %s", queue.ErrMalformedMessage, decoded.JobID)
	}
	if err != nil {
		return fmt.Errorf("failed to load callback job: %w", err)
	}

	// Broker redelivery after the job finalized is a no-op.
	if job.Status != domain.JobPending {
		d.logger.Debug("callback job already finalized, skipping",
			zap.String("job_id", job.ID),
			zap.String("job_status", job.Status.String()))
		return nil
	}

	cfg, err := d.configs.GetByID(ctx, job.ConfigID)
	if errors.Is(err, domain.ErrNotFound) {
		d.logger.Warn("callback config gone, failing job",
			zap.String("job_id", job.ID),
			zap.String("config_id", job.ConfigID))
		return d.jobs.MarkFailed(ctx, job.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to load callback config: %w", err)
	}
	if !cfg.Active {
		d.logger.Info("callback config deactivated, failing job",
			zap.String("job_id", job.ID),
			zap.String("config_id", cfg.ID))
		return d.jobs.MarkFailed(ctx, job.ID)
	}

	payload, err := d.box.Open(job.PayloadSealed)
	if err != nil {
		d.logger.Error("failed to unseal callback payload, failing job",
			zap.String("job_id", job.ID),
			zap.Error(err))
		return d.jobs.MarkFailed(ctx, job.ID)
	}

	start := d.now()
	attemptErr := d.attempt(ctx, cfg, job, payload)
	if d.metrics != nil {
		d.metrics.ObserveCallbackAttemptDuration(cfg.Channel.String(), d.now().Sub(start))
	}

	if attemptErr == nil {
		if d.metrics != nil {
			d.metrics.IncCallbackAttempt(cfg.Channel.String(), "success")
		}
		return d.jobs.MarkDelivered(ctx, job.ID)
	}

	if d.metrics != nil {
		d.metrics.IncCallbackAttempt(cfg.Channel.String(), "failure")
	}

	if !IsRetryable(attemptErr) {
		d.logger.Warn("callback attempt failed permanently",
			zap.String("job_id", job.ID),
			zap.String("notification_id", job.NotificationID),
			zap.String("channel", cfg.Channel.String()),
			zap.Int("attempt", job.AttemptCount+1),
			zap.Error(attemptErr))
		return d.jobs.MarkFailed(ctx, job.ID)
	}

	if job.AttemptCount >= job.MaxRetries {
		d.logger.Warn("callback retries exhausted",
			zap.String("job_id", job.ID),
			zap.String("notification_id", job.NotificationID),
			zap.Int("attempts", job.AttemptCount+1),
			zap.Error(attemptErr))
		return d.jobs.MarkExhausted(ctx, job.ID)
	}

	nextRetryAt := d.now().UTC().Add(d.retryDelay)
	if err := d.jobs.ScheduleRetry(ctx, job.ID, nextRetryAt); err != nil {
		return fmt.Errorf("failed to schedule callback retry: %w", err)
	}
	if d.metrics != nil {
		d.metrics.IncCallbackRetryScheduled()
	}
	d.logger.Info("callback retry scheduled",
		zap.String("job_id", job.ID),
		zap.Int("attempt", job.AttemptCount+1),
		zap.Time("next_retry_at", nextRetryAt),
		zap.Error(attemptErr))
	return nil
}

func (d *Dispatcher) attempt(
	ctx context.Context,
	cfg *domain.ServiceCallbackConfig,
	job *domain.CallbackJob,
	payload []byte,
) error {
	switch cfg.Channel {
	case domain.ChannelWebhook:
		return d.attemptWebhook(ctx, cfg, payload)
	case domain.ChannelQueue:
		return d.attemptQueue(ctx, cfg, job, payload)
	default:
		return &DispatchError{Message: fmt.Sprintf("unsupported callback channel %q", cfg.Channel)}
	}
}

func (d *Dispatcher) attemptWebhook(ctx context.Context, cfg *domain.ServiceCallbackConfig, payload []byte) error {
	token, err := d.box.Open(cfg.BearerTokenSealed)
	if err != nil {
		return &DispatchError{Message: "failed to unseal bearer token", Cause: err}
	}

	if d.limiter != nil {
		if err := d.limiter.Wait(ctx, destinationKey(cfg.URL)); err != nil {
			return &DispatchError{Message: "rate limiter wait failed", Retryable: true, Cause: err}
		}
	}

	response, err := d.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Authorization", "Bearer "+string(token)).
		SetBody(payload).
		Post(cfg.URL)
	if err != nil {
		return &DispatchError{
			Message:   "callback request failed",
			Retryable: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}
	if response == nil {
		return &DispatchError{Message: "callback returned empty response", Retryable: true}
	}

	statusCode := response.StatusCode()
	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return nil
	}

	return &DispatchError{
		StatusCode: statusCode,
		Message:    fmt.Sprintf("callback returned status %d", statusCode),
		Retryable:  statusCode >= http.StatusInternalServerError,
	}
}

// attemptQueue publishes the plaintext payload to the subscriber's queue.
// Publish failures finalize the job: the timed retry schedule exists for
// flaky subscriber endpoints, not for our own broker being down.
func (d *Dispatcher) attemptQueue(ctx context.Context, cfg *domain.ServiceCallbackConfig, job *domain.CallbackJob, payload []byte) error {
	msg := queue.Message{
		Body:      payload,
		MessageID: job.ID,
		Type:      job.Purpose.String(),
	}
	if err := d.publisher.Publish(ctx, cfg.QueueName, msg); err != nil {
		return &DispatchError{Message: "failed to publish callback to queue", Cause: err}
	}
	return nil
}

func destinationKey(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return "unknown"
	}
	return strings.ToLower(parsed.Host)
}
