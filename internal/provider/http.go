package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/notify-platform/outcome-engine/internal/domain"
)

const defaultSendTimeout = 10 * time.Second

type sendRequest struct {
	To               string `json:"to"`
	NotificationType string `json:"notification_type"`
	Reference        string `json:"reference"`
	International    bool   `json:"international"`
}

type sendResponse struct {
	MessageID string `json:"messageId"`
}

// HTTPClient sends notifications to an HTTP sending provider.
type HTTPClient struct {
	client   *resty.Client
	endpoint string
}

func NewHTTPClient(endpoint string) (*HTTPClient, error) {
	client := resty.New()
	client.SetTimeout(defaultSendTimeout)
	client.SetRetryCount(0)

	return NewHTTPClientWithResty(endpoint, client)
}

func NewHTTPClientWithResty(endpoint string, client *resty.Client) (*HTTPClient, error) {
	trimmedEndpoint := strings.TrimSpace(endpoint)
	if trimmedEndpoint == "" {
		return nil, fmt.Errorf("provider endpoint is required")
	}
	if _, err := url.ParseRequestURI(trimmedEndpoint); err != nil {
		return nil, fmt.Errorf("invalid provider endpoint: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultSendTimeout)
	}
	client.SetRetryCount(0)

	return &HTTPClient{
		client:   client,
		endpoint: trimmedEndpoint,
	}, nil
}

func (c *HTTPClient) Send(ctx context.Context, notification domain.Notification) (*SendResult, error) {
	if c == nil || c.client == nil {
		return nil, fmt.Errorf("provider client is not initialized")
	}
	if err := notification.Validate(); err != nil {
		return nil, fmt.Errorf("invalid notification: %w", err)
	}

	reqBody := sendRequest{
		To:               notification.Recipient,
		NotificationType: notification.Type.String(),
		Reference:        notification.ID,
		International:    notification.International,
	}

	response, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(reqBody).
		Post(c.endpoint)
	if err != nil {
		return nil, &SendError{
			Message:   "provider request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}
	if response == nil {
		return nil, &SendError{
			Message:   "provider returned empty response",
			Transient: true,
		}
	}

	statusCode := response.StatusCode()
	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return &SendResult{
			StatusCode:        statusCode,
			ProviderReference: providerReference(response),
		}, nil
	}

	return nil, &SendError{
		StatusCode: statusCode,
		Message:    fmt.Sprintf("provider returned status %d", statusCode),
		Transient:  isTransientHTTPStatus(statusCode),
	}
}

func isTransientHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || (statusCode >= http.StatusInternalServerError && statusCode <= 599)
}

// providerReference pulls the accepted-message id from the response body,
// falling back to request-id headers.
func providerReference(response *resty.Response) string {
	var body sendResponse
	if err := json.Unmarshal(response.Body(), &body); err == nil {
		if id := strings.TrimSpace(body.MessageID); id != "" {
			return id
		}
	}

	for _, key := range []string{"X-Message-ID", "X-Message-Id", "X-Request-ID", "X-Request-Id"} {
		if value := strings.TrimSpace(response.Header().Get(key)); value != "" {
			return value
		}
	}

	return ""
}
