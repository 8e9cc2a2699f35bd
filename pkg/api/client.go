// Package api provides the Go client for the notification backend REST API
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/feedpulse/feedpulse/internal/feed/domain/model"
	"github.com/feedpulse/feedpulse/internal/platform/metrics"
)

// Client is the notification backend API client
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
	session    *http.Cookie
	tracer     trace.Tracer
	metrics    *metrics.Metrics

	// Service clients
	Notifications *NotificationService
}

// ClientOption is a function that configures a Client
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithToken sets the bearer token for authentication
func WithToken(token string) ClientOption {
	return func(c *Client) {
		c.token = token
	}
}

// WithSessionCookie sets the ambient session cookie for authentication
func WithSessionCookie(cookie *http.Cookie) ClientOption {
	return func(c *Client) {
		c.session = cookie
	}
}

// WithTracer enables tracing of API requests
func WithTracer(tracer trace.Tracer) ClientOption {
	return func(c *Client) {
		c.tracer = tracer
	}
}

// WithMetrics enables request instrumentation
func WithMetrics(m *metrics.Metrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient creates a new API client
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	c.Notifications = &NotificationService{client: c}

	return c
}

// request makes an HTTP request to the API
func (c *Client) request(ctx context.Context, operation, method, path string, query url.Values, body interface{}) (*http.Response, error) {
	if c.tracer != nil {
		var span trace.Span
		ctx, span = c.tracer.Start(ctx, "api."+operation)
		defer span.End()
	}

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, err
	}
	u.Path = path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), bodyReader)
	if err != nil {
		return nil, err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.session != nil {
		req.AddCookie(c.session)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.observe(operation, start, resp, err)

	if err != nil && c.tracer != nil {
		span := trace.SpanFromContext(ctx)
		span.SetStatus(codes.Error, err.Error())
	}

	return resp, err
}

func (c *Client) observe(operation string, start time.Time, resp *http.Response, err error) {
	if c.metrics == nil {
		return
	}
	status := "error"
	if err == nil {
		status = strconv.Itoa(resp.StatusCode)
	}
	c.metrics.APIRequestsTotal.WithLabelValues(operation, status).Inc()
	c.metrics.APIRequestDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// decodeResponse decodes the JSON response body
func (c *Client) decodeResponse(resp *http.Response, v interface{}) error {
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
			return fmt.Errorf("API error: %d", resp.StatusCode)
		}
		return &errResp
	}

	if v != nil {
		return json.NewDecoder(resp.Body).Decode(v)
	}

	return nil
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ErrorResponse) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ListOptions specifies filters for listing notifications
type ListOptions struct {
	Page     int
	PageSize int
	IsRead   *bool
	Type     string
	Priority string
}

// PageMeta is the server-reported paging envelope
type PageMeta struct {
	Page       int `json:"page"`
	TotalPages int `json:"totalPages"`
	Total      int `json:"total"`
}

// NotificationPage is one page of the notification query
type NotificationPage struct {
	Items []model.Notification `json:"items"`
	Meta  PageMeta             `json:"meta"`
}

// NotificationService handles notification operations
type NotificationService struct {
	client *Client
}

// List retrieves one page of notifications
func (s *NotificationService) List(ctx context.Context, opts *ListOptions) (*NotificationPage, error) {
	query := url.Values{}
	if opts != nil {
		if opts.Page > 0 {
			query.Set("page", strconv.Itoa(opts.Page))
		}
		if opts.PageSize > 0 {
			query.Set("pageSize", strconv.Itoa(opts.PageSize))
		}
		if opts.IsRead != nil {
			query.Set("isRead", strconv.FormatBool(*opts.IsRead))
		}
		if opts.Type != "" {
			query.Set("type", opts.Type)
		}
		if opts.Priority != "" {
			query.Set("priority", opts.Priority)
		}
	}

	resp, err := s.client.request(ctx, "notifications.list", "GET", "/api/v1/notifications", query, nil)
	if err != nil {
		return nil, err
	}

	var page NotificationPage
	if err := s.client.decodeResponse(resp, &page); err != nil {
		return nil, err
	}

	return &page, nil
}

// MarkRead marks a single notification as read
func (s *NotificationService) MarkRead(ctx context.Context, id string) error {
	resp, err := s.client.request(ctx, "notifications.mark_read", "POST",
		fmt.Sprintf("/api/v1/notifications/%s/read", id), nil, nil)
	if err != nil {
		return err
	}

	return s.client.decodeResponse(resp, nil)
}

// MarkAllRead marks every notification of the principal as read
func (s *NotificationService) MarkAllRead(ctx context.Context) error {
	resp, err := s.client.request(ctx, "notifications.mark_all_read", "POST",
		"/api/v1/notifications/read-all", nil, nil)
	if err != nil {
		return err
	}

	return s.client.decodeResponse(resp, nil)
}

// MarkManyRead marks the given notifications as read
func (s *NotificationService) MarkManyRead(ctx context.Context, ids []string) error {
	body := map[string]interface{}{"ids": ids}
	resp, err := s.client.request(ctx, "notifications.mark_many_read", "POST",
		"/api/v1/notifications/read", nil, body)
	if err != nil {
		return err
	}

	return s.client.decodeResponse(resp, nil)
}

// Delete removes a notification
func (s *NotificationService) Delete(ctx context.Context, id string) error {
	resp, err := s.client.request(ctx, "notifications.delete", "DELETE",
		fmt.Sprintf("/api/v1/notifications/%s", id), nil, nil)
	if err != nil {
		return err
	}

	return s.client.decodeResponse(resp, nil)
}
