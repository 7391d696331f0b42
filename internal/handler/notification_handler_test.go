package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/notify-platform/outcome-engine/internal/domain"
	"github.com/notify-platform/outcome-engine/internal/service"
	"github.com/notify-platform/outcome-engine/internal/transport"
)

type fakeNotificationService struct {
	mu       sync.Mutex
	created  []service.CreateParams
	stored   map[string]*domain.Notification
	createFn func(service.CreateParams) (*domain.Notification, error)
}

func newFakeNotificationService() *fakeNotificationService {
	return &fakeNotificationService{stored: map[string]*domain.Notification{}}
}

func (f *fakeNotificationService) Create(ctx context.Context, params service.CreateParams) (*domain.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.created = append(f.created, params)
	if f.createFn != nil {
		return f.createFn(params)
	}

	n := &domain.Notification{
		ID:            "11111111-1111-1111-1111-111111111111",
		ServiceID:     params.ServiceID,
		Type:          params.Type,
		Recipient:     params.Recipient,
		International: params.International,
		Status:        domain.StatusCreated,
		StatusReason:  domain.ReasonNone,
		CreatedAt:     time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	f.stored[n.ID] = n
	return n, nil
}

func (f *fakeNotificationService) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if id == "" {
		return nil, fmt.Errorf("%w: notification id is required", domain.ErrValidation)
	}
	n, ok := f.stored[id]
	if !ok {
		return nil, fmt.Errorf("%w: notification %s", domain.ErrNotFound, id)
	}
	copied := *n
	return &copied, nil
}

func newTestApp(t *testing.T, svc NotificationService) *fiber.App {
	t.Helper()

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(nil),
	})
	if err := RegisterNotificationRoutes(app, svc); err != nil {
		t.Fatalf("RegisterNotificationRoutes() error = %v", err)
	}
	return app
}

func TestCreateNotification(t *testing.T) {
	t.Parallel()

	svc := newFakeNotificationService()
	app := newTestApp(t, svc)

	body := map[string]any{
		"serviceId":        "svc-1",
		"notificationType": "email",
		"recipient":        "someone@example.com",
		"international":    false,
	}
	resp := doJSONRequest(t, app, http.MethodPost, "/v1/notifications", body)

	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusAccepted)
	}

	var got notificationResponse
	decodeJSONBody(t, resp, &got)

	if got.ID == "" {
		t.Fatal("response should carry the notification id")
	}
	if got.Status != domain.StatusCreated.String() {
		t.Fatalf("status = %q, want %q", got.Status, domain.StatusCreated)
	}
	if len(svc.created) != 1 {
		t.Fatalf("service received %d create calls, want 1", len(svc.created))
	}
	if svc.created[0].Type != domain.TypeEmail {
		t.Fatalf("created type = %q, want %q", svc.created[0].Type, domain.TypeEmail)
	}
}

func TestCreateNotificationWithProviderPins(t *testing.T) {
	t.Parallel()

	svc := newFakeNotificationService()
	app := newTestApp(t, svc)

	templateProvider := "22222222-2222-2222-2222-222222222222"
	body := map[string]any{
		"serviceId":          "svc-1",
		"notificationType":   "sms",
		"recipient":          "+447700900123",
		"international":      true,
		"templateProviderId": templateProvider,
	}
	resp := doJSONRequest(t, app, http.MethodPost, "/v1/notifications", body)

	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusAccepted)
	}
	if len(svc.created) != 1 {
		t.Fatalf("service received %d create calls, want 1", len(svc.created))
	}

	params := svc.created[0]
	if params.TemplateProviderID == nil || *params.TemplateProviderID != templateProvider {
		t.Fatalf("template provider pin = %v, want %s", params.TemplateProviderID, templateProvider)
	}
	if !params.International {
		t.Fatal("international flag should pass through")
	}
}

func TestCreateNotificationRejectsUnknownType(t *testing.T) {
	t.Parallel()

	svc := newFakeNotificationService()
	app := newTestApp(t, svc)

	body := map[string]any{
		"serviceId":        "svc-1",
		"notificationType": "fax",
		"recipient":        "someone@example.com",
	}
	resp := doJSONRequest(t, app, http.MethodPost, "/v1/notifications", body)

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
	if len(svc.created) != 0 {
		t.Fatal("service should not be called for an invalid type")
	}
}

func TestCreateNotificationNoUsableProvider(t *testing.T) {
	t.Parallel()

	svc := newFakeNotificationService()
	svc.createFn = func(service.CreateParams) (*domain.Notification, error) {
		return nil, fmt.Errorf("%w: no usable provider for letter", domain.ErrNoUsableProvider)
	}
	app := newTestApp(t, svc)

	body := map[string]any{
		"serviceId":        "svc-1",
		"notificationType": "letter",
		"recipient":        "1 Main Street",
	}
	resp := doJSONRequest(t, app, http.MethodPost, "/v1/notifications", body)

	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusConflict)
	}
}

func TestGetNotification(t *testing.T) {
	t.Parallel()

	svc := newFakeNotificationService()
	app := newTestApp(t, svc)

	createResp := doJSONRequest(t, app, http.MethodPost, "/v1/notifications", map[string]any{
		"serviceId":        "svc-1",
		"notificationType": "email",
		"recipient":        "someone@example.com",
	})
	var created notificationResponse
	decodeJSONBody(t, createResp, &created)

	resp := doJSONRequest(t, app, http.MethodGet, "/v1/notifications/"+created.ID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var got notificationResponse
	decodeJSONBody(t, resp, &got)
	if got.ID != created.ID {
		t.Fatalf("id = %q, want %q", got.ID, created.ID)
	}
}

func TestGetNotificationNotFound(t *testing.T) {
	t.Parallel()

	svc := newFakeNotificationService()
	app := newTestApp(t, svc)

	resp := doJSONRequest(t, app, http.MethodGet, "/v1/notifications/33333333-3333-3333-3333-333333333333", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}

func TestToHTTPErrorPassesUnknownErrors(t *testing.T) {
	t.Parallel()

	cause := errors.New("database gone")
	if got := toHTTPError(cause); !errors.Is(got, cause) {
		t.Fatalf("toHTTPError() = %v, want the original error", got)
	}
}

func doJSONRequest(t *testing.T, app *fiber.App, method, target string, body any) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", fiber.MIMEApplicationJSON)
	}

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	t.Cleanup(func() {
		_ = resp.Body.Close()
	})
	return resp
}

func decodeJSONBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
}
