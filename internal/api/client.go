package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	http "github.com/bogdanfinn/fhttp"
	tls_client "github.com/bogdanfinn/tls-client"
	"github.com/bogdanfinn/tls-client/profiles"
	"github.com/tidwall/gjson"

	apierrors "github.com/diogo/checkin/internal/errors"
	"github.com/diogo/checkin/internal/models"
)

// maxErrorBody caps how much of a failed response is kept for diagnostics
const maxErrorBody = 2048

// Credentials supplies the bearer token for a request. It is passed explicitly
// to every call; a nil value or an empty token sends no Authorization header.
type Credentials interface {
	Token() string
}

// HTTPDoer is the subset of tls_client.HttpClient the client needs
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// BackendClient is the set of backend operations used by the rest of the
// application. Every call takes the caller's credentials explicitly.
type BackendClient interface {
	BaseURL() string
	CheckIn(ctx context.Context, creds Credentials, message string) (*models.CheckInResponse, error)
	Login(ctx context.Context, creds Credentials, username, password string) (string, error)
	Register(ctx context.Context, creds Credentials, username, password string) error
	Exercises(ctx context.Context, creds Credentials) ([]models.Exercise, error)
	MoodHistory(ctx context.Context, creds Credentials) ([]models.MoodEntry, error)
}

// Ensure Client implements BackendClient
var _ BackendClient = (*Client)(nil)

// Client is the authenticated transport for the check-in backend
type Client struct {
	httpClient     HTTPDoer
	baseURL        string
	timeoutSeconds int
}

// ClientOption is a function that configures the client
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client (used by tests)
func WithHTTPClient(doer HTTPDoer) ClientOption {
	return func(c *Client) {
		c.httpClient = doer
	}
}

// WithTimeoutSeconds sets the transport-level ceiling for any request
func WithTimeoutSeconds(seconds int) ClientOption {
	return func(c *Client) {
		c.timeoutSeconds = seconds
	}
}

// NewClient creates a Client for baseURL
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		return nil, fmt.Errorf("base URL must start with http:// or https://: %s", baseURL)
	}

	client := &Client{
		baseURL:        baseURL,
		timeoutSeconds: 300,
	}

	for _, opt := range opts {
		opt(client)
	}

	if client.httpClient == nil {
		options := []tls_client.HttpClientOption{
			tls_client.WithTimeoutSeconds(client.timeoutSeconds),
			tls_client.WithClientProfile(profiles.Chrome_120),
			tls_client.WithNotFollowRedirects(),
		}

		httpClient, err := tls_client.NewHttpClient(tls_client.NewNoopLogger(), options...)
		if err != nil {
			return nil, fmt.Errorf("failed to create HTTP client: %w", err)
		}
		client.httpClient = httpClient
	}

	return client, nil
}

// BaseURL returns the backend address
func (c *Client) BaseURL() string {
	return c.baseURL
}

// doJSON sends payload (if any) as JSON to path and returns the response body
// of a 2xx answer. Non-2xx answers become *APIError.
func (c *Client) doJSON(ctx context.Context, creds Credentials, operation, method, path string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s request: %w", operation, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", operation, err)
	}

	for key, value := range models.DefaultHeaders() {
		req.Header.Set(key, value)
	}
	if creds != nil {
		if token := creds.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(ctx, operation, path, err)
	}
	defer func() {
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errorBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := apierrors.NewAPIError(resp.StatusCode, path, errorMessage(errorBody))
		return nil, apiErr.WithBody(string(errorBody))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransportError(ctx, operation, path, err)
	}
	return data, nil
}

// classifyTransportError maps a failed round trip to a typed error
func classifyTransportError(ctx context.Context, operation, path string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return apierrors.NewTimeoutError(path, ctxErr)
		}
		return apierrors.NewNetworkError(operation, path, ctxErr)
	}
	return apierrors.NewNetworkError(operation, path, err)
}

// errorMessage pulls a human-readable reason out of an error body
func errorMessage(body []byte) string {
	if !gjson.ValidBytes(body) {
		return ""
	}
	for _, path := range []string{PathError, PathMsg, PathMessage} {
		if v := gjson.GetBytes(body, path); v.Type == gjson.String {
			return v.String()
		}
	}
	return ""
}
