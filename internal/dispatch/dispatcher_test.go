package dispatch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/notify-platform/outcome-engine/internal/domain"
	"github.com/notify-platform/outcome-engine/internal/observability"
	"github.com/notify-platform/outcome-engine/internal/queue"
	"github.com/notify-platform/outcome-engine/internal/secrets"
)

const testSecretKey = "6368616e676520746869732070617373776f726420746f206120736563726574"

type fakeJobRepo struct {
	mu   sync.Mutex
	jobs map[string]*domain.CallbackJob

	retryTimes []time.Time
}

func newFakeJobRepo(jobs ...*domain.CallbackJob) *fakeJobRepo {
	repo := &fakeJobRepo{jobs: map[string]*domain.CallbackJob{}}
	for _, job := range jobs {
		repo.jobs[job.ID] = job
	}
	return repo
}

func (f *fakeJobRepo) Create(_ context.Context, job *domain.CallbackJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[job.ID] = job
	return nil
}

func (f *fakeJobRepo) GetByID(_ context.Context, id string) (*domain.CallbackJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *job
	return &copied, nil
}

func (f *fakeJobRepo) markFinal(id string, status domain.CallbackJobStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	job.Status = status
	job.AttemptCount++
	job.NextRetryAt = nil
	return nil
}

func (f *fakeJobRepo) MarkDelivered(_ context.Context, id string) error {
	return f.markFinal(id, domain.JobDelivered)
}

func (f *fakeJobRepo) MarkFailed(_ context.Context, id string) error {
	return f.markFinal(id, domain.JobFailed)
}

func (f *fakeJobRepo) MarkExhausted(_ context.Context, id string) error {
	return f.markFinal(id, domain.JobExhausted)
}

func (f *fakeJobRepo) ScheduleRetry(_ context.Context, id string, nextRetryAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	job.Status = domain.JobPending
	job.NextRetryAt = &nextRetryAt
	job.AttemptCount++
	f.retryTimes = append(f.retryTimes, nextRetryAt)
	return nil
}

func (f *fakeJobRepo) GetDueForRetry(_ context.Context, limit int) ([]domain.CallbackJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	due := make([]domain.CallbackJob, 0)
	for _, job := range f.jobs {
		if job.Status == domain.JobPending && job.NextRetryAt != nil && len(due) < limit {
			due = append(due, *job)
		}
	}
	return due, nil
}

func (f *fakeJobRepo) ClearNextRetryAt(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if job, ok := f.jobs[id]; ok {
		job.NextRetryAt = nil
	}
	return nil
}

type fakeConfigRepo struct {
	configs map[string]*domain.ServiceCallbackConfig
}

func (f *fakeConfigRepo) GetActive(_ context.Context, serviceID string, purpose domain.CallbackPurpose) (*domain.ServiceCallbackConfig, error) {
	for _, cfg := range f.configs {
		if cfg.ServiceID == serviceID && cfg.Purpose == purpose && cfg.Active {
			return cfg, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakeConfigRepo) GetByID(_ context.Context, id string) (*domain.ServiceCallbackConfig, error) {
	cfg, ok := f.configs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cfg, nil
}

type fakePublisher struct {
	mu        sync.Mutex
	published []publishedMessage
	err       error
}

type publishedMessage struct {
	Queue string
	Msg   queue.Message
}

func (f *fakePublisher) Publish(_ context.Context, queueName string, msg queue.Message) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, publishedMessage{Queue: queueName, Msg: msg})
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func testBox(t *testing.T) *secrets.Box {
	t.Helper()
	box, err := secrets.NewBox(testSecretKey)
	if err != nil {
		t.Fatalf("NewBox() error = %v", err)
	}
	return box
}

func sealOrFail(t *testing.T, box *secrets.Box, plaintext string) []byte {
	t.Helper()
	sealed, err := box.Seal([]byte(plaintext))
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	return sealed
}

func webhookConfig(t *testing.T, box *secrets.Box, url string) *domain.ServiceCallbackConfig {
	t.Helper()
	return &domain.ServiceCallbackConfig{
		ID:                "cfg-1",
		ServiceID:         "service-1",
		Purpose:           domain.PurposeDeliveryStatus,
		Channel:           domain.ChannelWebhook,
		URL:               url,
		BearerTokenSealed: sealOrFail(t, box, "super-secret-token"),
		Active:            true,
	}
}

func pendingJob(t *testing.T, box *secrets.Box) *domain.CallbackJob {
	t.Helper()
	return &domain.CallbackJob{
		ID:             "job-1",
		ConfigID:       "cfg-1",
		NotificationID: "n1",
		Purpose:        domain.PurposeDeliveryStatus,
		PayloadSealed:  sealOrFail(t, box, `{"id":"n1","status":"delivered"}`),
		Status:         domain.JobPending,
		MaxRetries:     domain.DefaultCallbackMaxRetries,
	}
}

func newTestDispatcher(
	t *testing.T,
	jobs *fakeJobRepo,
	configs *fakeConfigRepo,
	box *secrets.Box,
	publisher *fakePublisher,
) *Dispatcher {
	t.Helper()
	dispatcher, err := NewDispatcherWithClient(
		jobs, configs, box, resty.New(), publisher, nil,
		defaultRetryDelay, observability.NewMetrics(), nil,
	)
	if err != nil {
		t.Fatalf("NewDispatcherWithClient() error = %v", err)
	}
	return dispatcher
}

func callbackMessage(t *testing.T, jobID string) queue.Message {
	t.Helper()
	msg, err := queue.CallbackMessage{JobID: jobID}.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	return msg
}

func TestDispatcherWebhookSuccess(t *testing.T) {
	t.Parallel()

	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	box := testBox(t)
	jobs := newFakeJobRepo(pendingJob(t, box))
	configs := &fakeConfigRepo{configs: map[string]*domain.ServiceCallbackConfig{
		"cfg-1": webhookConfig(t, box, server.URL),
	}}
	dispatcher := newTestDispatcher(t, jobs, configs, box, &fakePublisher{})

	if err := dispatcher.HandleCallbackMessage(context.Background(), callbackMessage(t, "job-1")); err != nil {
		t.Fatalf("HandleCallbackMessage() error = %v", err)
	}

	if gotAuth != "Bearer super-secret-token" {
		t.Fatalf("Authorization header = %q, want bearer token", gotAuth)
	}
	if jobs.jobs["job-1"].Status != domain.JobDelivered {
		t.Fatalf("job status = %s, want delivered", jobs.jobs["job-1"].Status)
	}
}

func TestDispatcherWebhookClientErrorNoRetry(t *testing.T) {
	t.Parallel()

	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	box := testBox(t)
	jobs := newFakeJobRepo(pendingJob(t, box))
	configs := &fakeConfigRepo{configs: map[string]*domain.ServiceCallbackConfig{
		"cfg-1": webhookConfig(t, box, server.URL),
	}}
	dispatcher := newTestDispatcher(t, jobs, configs, box, &fakePublisher{})

	if err := dispatcher.HandleCallbackMessage(context.Background(), callbackMessage(t, "job-1")); err != nil {
		t.Fatalf("HandleCallbackMessage() error = %v", err)
	}

	if attempts != 1 {
		t.Fatalf("attempts = %d, want exactly 1 for a 4xx response", attempts)
	}
	if jobs.jobs["job-1"].Status != domain.JobFailed {
		t.Fatalf("job status = %s, want failed", jobs.jobs["job-1"].Status)
	}
	if len(jobs.retryTimes) != 0 {
		t.Fatalf("retry times = %v, 4xx must not schedule a retry", jobs.retryTimes)
	}
}

func TestDispatcherWebhookServerErrorExhaustsAfterSixAttempts(t *testing.T) {
	t.Parallel()

	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	box := testBox(t)
	jobs := newFakeJobRepo(pendingJob(t, box))
	configs := &fakeConfigRepo{configs: map[string]*domain.ServiceCallbackConfig{
		"cfg-1": webhookConfig(t, box, server.URL),
	}}
	dispatcher := newTestDispatcher(t, jobs, configs, box, &fakePublisher{})

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	dispatcher.now = func() time.Time { return now }

	msg := callbackMessage(t, "job-1")
	for i := 0; i < 10; i++ {
		if err := dispatcher.HandleCallbackMessage(context.Background(), msg); err != nil {
			t.Fatalf("HandleCallbackMessage() attempt %d error = %v", i, err)
		}
		if jobs.jobs["job-1"].Status == domain.JobExhausted {
			break
		}
		// Simulate the retry scanner firing after the scheduled delay.
		now = now.Add(defaultRetryDelay)
	}

	if attempts != 6 {
		t.Fatalf("attempts = %d, want exactly 6 (one original plus five retries)", attempts)
	}
	if jobs.jobs["job-1"].Status != domain.JobExhausted {
		t.Fatalf("job status = %s, want exhausted", jobs.jobs["job-1"].Status)
	}
	if len(jobs.retryTimes) != 5 {
		t.Fatalf("scheduled retries = %d, want 5", len(jobs.retryTimes))
	}
	for i := 1; i < len(jobs.retryTimes); i++ {
		if spacing := jobs.retryTimes[i].Sub(jobs.retryTimes[i-1]); spacing < defaultRetryDelay {
			t.Fatalf("retry spacing %d = %s, want at least %s", i, spacing, defaultRetryDelay)
		}
	}
}

func TestDispatcherSkipsFinalizedJob(t *testing.T) {
	t.Parallel()

	box := testBox(t)
	job := pendingJob(t, box)
	job.Status = domain.JobDelivered
	jobs := newFakeJobRepo(job)
	dispatcher := newTestDispatcher(t, jobs, &fakeConfigRepo{}, box, &fakePublisher{})

	if err := dispatcher.HandleCallbackMessage(context.Background(), callbackMessage(t, "job-1")); err != nil {
		t.Fatalf("HandleCallbackMessage() error = %v", err)
	}
	if jobs.jobs["job-1"].AttemptCount != 0 {
		t.Fatal("finalized job must not be attempted again")
	}
}

func TestDispatcherQueueChannel(t *testing.T) {
	t.Parallel()

	box := testBox(t)
	jobs := newFakeJobRepo(pendingJob(t, box))
	configs := &fakeConfigRepo{configs: map[string]*domain.ServiceCallbackConfig{
		"cfg-1": {
			ID:        "cfg-1",
			ServiceID: "service-1",
			Purpose:   domain.PurposeDeliveryStatus,
			Channel:   domain.ChannelQueue,
			QueueName: "subscriber-updates",
			Active:    true,
		},
	}}
	publisher := &fakePublisher{}
	dispatcher := newTestDispatcher(t, jobs, configs, box, publisher)

	if err := dispatcher.HandleCallbackMessage(context.Background(), callbackMessage(t, "job-1")); err != nil {
		t.Fatalf("HandleCallbackMessage() error = %v", err)
	}

	if len(publisher.published) != 1 {
		t.Fatalf("published = %d messages, want 1", len(publisher.published))
	}
	got := publisher.published[0]
	if got.Queue != "subscriber-updates" {
		t.Fatalf("published to %q, want subscriber-updates", got.Queue)
	}
	if got.Msg.Type != domain.PurposeDeliveryStatus.String() {
		t.Fatalf("message type = %q, want %q", got.Msg.Type, domain.PurposeDeliveryStatus)
	}
	if string(got.Msg.Body) != `{"id":"n1","status":"delivered"}` {
		t.Fatalf("message body = %s, want the unsealed payload", got.Msg.Body)
	}
	if jobs.jobs["job-1"].Status != domain.JobDelivered {
		t.Fatalf("job status = %s, want delivered", jobs.jobs["job-1"].Status)
	}
}

func TestDispatcherQueueChannelPublishErrorFailsJob(t *testing.T) {
	t.Parallel()

	box := testBox(t)
	jobs := newFakeJobRepo(pendingJob(t, box))
	configs := &fakeConfigRepo{configs: map[string]*domain.ServiceCallbackConfig{
		"cfg-1": {
			ID:        "cfg-1",
			ServiceID: "service-1",
			Purpose:   domain.PurposeDeliveryStatus,
			Channel:   domain.ChannelQueue,
			QueueName: "subscriber-updates",
			Active:    true,
		},
	}}
	publisher := &fakePublisher{err: errors.New("broker unavailable")}
	dispatcher := newTestDispatcher(t, jobs, configs, box, publisher)

	if err := dispatcher.HandleCallbackMessage(context.Background(), callbackMessage(t, "job-1")); err != nil {
		t.Fatalf("HandleCallbackMessage() error = %v", err)
	}

	if jobs.jobs["job-1"].Status != domain.JobFailed {
		t.Fatalf("job status = %s, queue publish errors must not retry", jobs.jobs["job-1"].Status)
	}
	if len(jobs.retryTimes) != 0 {
		t.Fatalf("retry times = %v, want none", jobs.retryTimes)
	}
}
