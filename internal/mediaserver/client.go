package mediaserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/reelhire/mediaflow/internal/source"
)

// Static errors for media server client operations.
var (
	// ErrBaseURLRequired is returned when the base URL is not provided.
	ErrBaseURLRequired = errors.New("mediaserver: base URL is required")
	// ErrTokenNotSet is returned when no API token is provided and the
	// MEDIASERVER_TOKEN environment variable is not set.
	ErrTokenNotSet = errors.New("mediaserver: API token is required")
	// ErrUploadIDRequired is returned when the upload ID is not provided.
	ErrUploadIDRequired = errors.New("mediaserver: upload ID is required")
	// ErrEntryIDRequired is returned when the entry ID is not provided.
	ErrEntryIDRequired = errors.New("mediaserver: entry ID is required")
	// ErrNoUploadIDReturned is returned when a dispatch response carries no upload ID.
	ErrNoUploadIDReturned = errors.New("mediaserver: no upload ID returned")
	// ErrSubmitFailed is returned when the submit operation fails.
	ErrSubmitFailed = errors.New("mediaserver: submit failed")
	// ErrServerError is returned when the server returns a 5xx status code.
	ErrServerError = errors.New("mediaserver: server error")
	// ErrRateLimited is returned when the server returns a 429 status code.
	ErrRateLimited = errors.New("mediaserver: rate limited")
	// ErrRequestFailed is returned when the request fails with a non-2xx status code.
	ErrRequestFailed = errors.New("mediaserver: request failed")
	// ErrInvalidResponse is returned when a response does not match the
	// canonical schema for the operation.
	ErrInvalidResponse = errors.New("mediaserver: response violates canonical schema")
)

// Client defines the interface for interacting with the encoding backend.
type Client interface {
	// UploadBinary begins an asynchronous ingestion job and returns its ID.
	UploadBinary(ctx context.Context, payload source.Payload, meta UploadMetadata) (uploadID string, err error)

	// PollUploadStatus reads the status and progress of an ingestion job.
	PollUploadStatus(ctx context.Context, uploadID string) (PollStatus, error)

	// DispatchTransform submits a server-side transform of the payload and
	// returns the resulting ingestion job ID. It does not poll.
	DispatchTransform(ctx context.Context, payload source.Payload, params TransformParams) (uploadID string, err error)

	// ReplaceEntryMedia archives the entry's prior version and points it at
	// the new asset. The backend performs the swap atomically on its side.
	ReplaceEntryMedia(ctx context.Context, entryID string, update MediaUpdate) (archivedPrior bool, err error)

	// UpdateEntryMetadata issues a metadata-only entry update.
	UpdateEntryMetadata(ctx context.Context, entryID string, meta EntryMetadata) error

	// DeleteEntry removes an entry. Deleting an already-deleted entry is
	// not an error.
	DeleteEntry(ctx context.Context, entryID string) error

	// FetchEntryInfo reads the canonical entry descriptor.
	FetchEntryInfo(ctx context.Context, entryID string) (EntryInfo, error)
}

// HTTPClient is the HTTP implementation of the Client interface.
type HTTPClient struct {
	token       string
	baseURL     string
	httpClient  *http.Client
	maxRetries  int
	baseBackoff time.Duration
	validate    *validator.Validate
}

// Compile-time checks: HTTPClient implements Client and can locate catalog
// entries for the source resolver.
var (
	_ Client              = (*HTTPClient)(nil)
	_ source.EntryLocator = (*HTTPClient)(nil)
)

// ClientOption is a function that configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithToken sets the API token for authentication.
func WithToken(token string) ClientOption {
	return func(hc *HTTPClient) {
		hc.token = token
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(hc *HTTPClient) {
		hc.httpClient = c
	}
}

// WithMaxRetries sets the maximum number of retries for transient failures.
func WithMaxRetries(n int) ClientOption {
	return func(hc *HTTPClient) {
		hc.maxRetries = n
	}
}

// WithBaseBackoff sets the initial backoff duration for retries.
func WithBaseBackoff(d time.Duration) ClientOption {
	return func(hc *HTTPClient) {
		hc.baseBackoff = d
	}
}

// NewClient creates a new media server HTTP client.
// The token can be set via the WithToken option. If not provided,
// it is read from the environment variable MEDIASERVER_TOKEN.
// The base URL must be provided.
func NewClient(baseURL string, opts ...ClientOption) (*HTTPClient, error) {
	if baseURL == "" {
		return nil, ErrBaseURLRequired
	}

	c := &HTTPClient{
		baseURL:     baseURL,
		httpClient:  &http.Client{Timeout: 120 * time.Second},
		maxRetries:  3,
		baseBackoff: 1 * time.Second,
		validate:    validator.New(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.token == "" {
		c.token = os.Getenv("MEDIASERVER_TOKEN")
	}
	if c.token == "" {
		return nil, ErrTokenNotSet
	}

	return c, nil
}

// UploadBinary begins an asynchronous ingestion job and returns its ID.
func (c *HTTPClient) UploadBinary(ctx context.Context, payload source.Payload, meta UploadMetadata) (string, error) {
	if meta.FileName == "" {
		meta.FileName = payload.Name
	}

	body, contentType, err := buildMultipart(payload, "metadata", meta)
	if err != nil {
		return "", err
	}

	url := c.baseURL + "/uploads"

	var resp uploadResponse
	if err := c.doRequestWithRetry(ctx, http.MethodPost, url, body, contentType, &resp); err != nil {
		return "", err
	}

	if resp.UploadID == "" {
		if resp.Error != "" {
			return "", fmt.Errorf("%w: %s", ErrSubmitFailed, resp.Error)
		}
		return "", ErrNoUploadIDReturned
	}

	return resp.UploadID, nil
}

// PollUploadStatus reads the status and progress of an ingestion job.
// The response is validated against the canonical schema; nonconforming
// payloads are rejected rather than coerced.
func (c *HTTPClient) PollUploadStatus(ctx context.Context, uploadID string) (PollStatus, error) {
	if uploadID == "" {
		return PollStatus{}, ErrUploadIDRequired
	}

	url := fmt.Sprintf("%s/uploads/%s/status", c.baseURL, uploadID)

	var resp PollStatus
	if err := c.doRequestWithRetry(ctx, http.MethodGet, url, nil, "", &resp); err != nil {
		return PollStatus{}, err
	}

	if err := c.validate.Struct(resp); err != nil {
		return PollStatus{}, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	if resp.Status == StatusCompleted {
		if resp.Result == nil {
			return PollStatus{}, fmt.Errorf("%w: completed status without result descriptor", ErrInvalidResponse)
		}
		if err := c.validate.Struct(resp.Result); err != nil {
			return PollStatus{}, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
		}
	}

	return resp, nil
}

// DispatchTransform submits a server-side transform and returns the job ID.
func (c *HTTPClient) DispatchTransform(ctx context.Context, payload source.Payload, params TransformParams) (string, error) {
	body, contentType, err := buildMultipart(payload, "params", params)
	if err != nil {
		return "", err
	}

	url := c.baseURL + "/transforms"

	var resp uploadResponse
	if err := c.doRequestWithRetry(ctx, http.MethodPost, url, body, contentType, &resp); err != nil {
		return "", err
	}

	if resp.UploadID == "" {
		if resp.Error != "" {
			return "", fmt.Errorf("%w: %s", ErrSubmitFailed, resp.Error)
		}
		return "", ErrNoUploadIDReturned
	}

	return resp.UploadID, nil
}

// ReplaceEntryMedia points the entry at the new asset; the backend archives
// the prior version atomically on its side.
func (c *HTTPClient) ReplaceEntryMedia(ctx context.Context, entryID string, update MediaUpdate) (bool, error) {
	if entryID == "" {
		return false, ErrEntryIDRequired
	}

	bodyBytes, err := json.Marshal(update)
	if err != nil {
		return false, fmt.Errorf("mediaserver: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/entries/%s/media", c.baseURL, entryID)

	var resp replaceResponse
	if err := c.doRequestWithRetry(ctx, http.MethodPut, url, bodyBytes, "application/json", &resp); err != nil {
		return false, err
	}

	return resp.ArchivedPriorVersion, nil
}

// UpdateEntryMetadata issues a metadata-only entry update.
func (c *HTTPClient) UpdateEntryMetadata(ctx context.Context, entryID string, meta EntryMetadata) error {
	if entryID == "" {
		return ErrEntryIDRequired
	}

	bodyBytes, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("mediaserver: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/entries/%s", c.baseURL, entryID)
	return c.doRequestWithRetry(ctx, http.MethodPatch, url, bodyBytes, "application/json", nil)
}

// DeleteEntry removes an entry. A 404 is treated as success so the delete
// is idempotent.
func (c *HTTPClient) DeleteEntry(ctx context.Context, entryID string) error {
	if entryID == "" {
		return ErrEntryIDRequired
	}

	url := fmt.Sprintf("%s/entries/%s", c.baseURL, entryID)
	err := c.doRequestWithRetry(ctx, http.MethodDelete, url, nil, "", nil)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) && se.code == http.StatusNotFound {
			return nil
		}
		return err
	}
	return nil
}

// FetchEntryInfo reads the canonical entry descriptor.
func (c *HTTPClient) FetchEntryInfo(ctx context.Context, entryID string) (EntryInfo, error) {
	if entryID == "" {
		return EntryInfo{}, ErrEntryIDRequired
	}

	url := fmt.Sprintf("%s/entries/%s", c.baseURL, entryID)

	var resp EntryInfo
	if err := c.doRequestWithRetry(ctx, http.MethodGet, url, nil, "", &resp); err != nil {
		return EntryInfo{}, err
	}

	if err := c.validate.Struct(resp); err != nil {
		return EntryInfo{}, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}

	return resp, nil
}

// PlaybackURL derives a fetchable address for a catalog entry. It satisfies
// the source resolver's EntryLocator port.
func (c *HTTPClient) PlaybackURL(ctx context.Context, entryID string) (string, error) {
	info, err := c.FetchEntryInfo(ctx, entryID)
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

// buildMultipart assembles a multipart body with the payload as the "file"
// part and the given value JSON-encoded under fieldName.
func buildMultipart(payload source.Payload, fieldName string, value any) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", payload.Name)
	if err != nil {
		return nil, "", fmt.Errorf("mediaserver: create form file: %w", err)
	}
	if _, err := part.Write(payload.Data); err != nil {
		return nil, "", fmt.Errorf("mediaserver: write form file: %w", err)
	}

	encoded, err := json.Marshal(value)
	if err != nil {
		return nil, "", fmt.Errorf("mediaserver: marshal %s: %w", fieldName, err)
	}
	if err := w.WriteField(fieldName, string(encoded)); err != nil {
		return nil, "", fmt.Errorf("mediaserver: write %s field: %w", fieldName, err)
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("mediaserver: close multipart writer: %w", err)
	}

	return buf.Bytes(), w.FormDataContentType(), nil
}

// doRequestWithRetry performs an HTTP request with exponential backoff retry.
func (c *HTTPClient) doRequestWithRetry(ctx context.Context, method, url string, body []byte, contentType string, result interface{}) error {
	var lastErr error
	backoff := c.baseBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("mediaserver: context cancelled: %w", ctx.Err())
			case <-time.After(backoff):
				backoff *= 2 // Exponential backoff
			}
		}

		err := c.doRequest(ctx, method, url, body, contentType, result)
		if err == nil {
			return nil
		}

		if !isRetryable(err) {
			return err
		}

		lastErr = err
	}

	return fmt.Errorf("mediaserver: max retries exceeded: %w", lastErr)
}

// doRequest performs a single HTTP request.
func (c *HTTPClient) doRequest(ctx context.Context, method, url string, body []byte, contentType string, result interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("mediaserver: create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &retryableError{err: fmt.Errorf("mediaserver: request failed: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &retryableError{err: fmt.Errorf("mediaserver: read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if resp.StatusCode >= 500 {
			return &retryableError{err: &statusError{code: resp.StatusCode, err: fmt.Errorf("%w %d: %s", ErrServerError, resp.StatusCode, string(respBody))}}
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			return &retryableError{err: &statusError{code: resp.StatusCode, err: fmt.Errorf("%w: %s", ErrRateLimited, string(respBody))}}
		}
		return &statusError{code: resp.StatusCode, err: fmt.Errorf("%w with status %d: %s", ErrRequestFailed, resp.StatusCode, string(respBody))}
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidResponse, err)
		}
	}

	return nil
}

// statusError carries the HTTP status code of a failed request.
type statusError struct {
	code int
	err  error
}

func (e *statusError) Error() string {
	return e.err.Error()
}

func (e *statusError) Unwrap() error {
	return e.err
}

// retryableError wraps errors that should be retried.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

// isRetryable returns true if the error should be retried.
func isRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}
