package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ferry/internal/config"
	"ferry/internal/failure"
)

const (
	defaultHTTPTimeout = 60 * time.Second
	maxResponseBytes   = 1 << 20
)

// UploadResult is the provider's answer to an upload request.
type UploadResult struct {
	ExternalID string
	Raw        string
}

// StatusResult is the provider's answer to a status check. Status is the
// provider's own vocabulary, upper-cased.
type StatusResult struct {
	Status    string
	PageCount *int
	Raw       string
}

// Client is the ingestion API surface used by the workflow.
type Client interface {
	Upload(ctx context.Context, sourceURL, folderID string) (UploadResult, error)
	CheckStatus(ctx context.Context, externalID string) (StatusResult, error)
}

// Config captures the runtime settings required to talk to the API.
type Config struct {
	BaseURL        string
	APIKey         string
	UserAgent      string
	TimeoutSeconds int
}

// ConfigFromApp extracts client settings from the application config.
func ConfigFromApp(cfg *config.Config) Config {
	if cfg == nil {
		return Config{}
	}
	return Config{
		BaseURL:        cfg.API.BaseURL,
		APIKey:         cfg.API.APIKey,
		UserAgent:      cfg.API.UserAgent,
		TimeoutSeconds: cfg.API.TimeoutSeconds,
	}
}

// HTTPClient implements Client over JSON/HTTP.
type HTTPClient struct {
	cfg        Config
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*HTTPClient)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *HTTPClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewHTTPClient constructs a client using the supplied configuration.
func NewHTTPClient(cfg Config, opts ...Option) *HTTPClient {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &HTTPClient{
		cfg: Config{
			BaseURL:        strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
			APIKey:         strings.TrimSpace(cfg.APIKey),
			UserAgent:      strings.TrimSpace(cfg.UserAgent),
			TimeoutSeconds: cfg.TimeoutSeconds,
		},
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.cfg.UserAgent == "" {
		client.cfg.UserAgent = "ferry"
	}
	return client
}

type uploadRequest struct {
	SourceURL string `json:"source_url"`
	FolderID  string `json:"folder_id"`
}

type uploadResponse struct {
	ID         string `json:"id"`
	ExternalID string `json:"external_id"`
}

type statusResponse struct {
	Status    string `json:"status"`
	PageCount *int   `json:"page_count"`
}

// Upload asks the provider to ingest the document at sourceURL into folderID.
func (c *HTTPClient) Upload(ctx context.Context, sourceURL, folderID string) (UploadResult, error) {
	const op = "upload"
	payload, err := json.Marshal(uploadRequest{SourceURL: sourceURL, FolderID: folderID})
	if err != nil {
		return UploadResult{}, failure.Malformed(op, nil, fmt.Errorf("encode request: %w", err))
	}
	body, err := c.do(ctx, op, http.MethodPost, "documents", payload)
	if err != nil {
		return UploadResult{Raw: errorBody(err)}, err
	}

	result := UploadResult{Raw: string(body)}
	var decoded uploadResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return result, failure.Malformed(op, body, fmt.Errorf("decode response: %w", err))
	}
	result.ExternalID = strings.TrimSpace(decoded.ID)
	if result.ExternalID == "" {
		result.ExternalID = strings.TrimSpace(decoded.ExternalID)
	}
	if result.ExternalID == "" {
		return result, failure.Malformed(op, body, errors.New("response is missing a document id"))
	}
	return result, nil
}

// CheckStatus fetches the provider's processing status for externalID.
func (c *HTTPClient) CheckStatus(ctx context.Context, externalID string) (StatusResult, error) {
	const op = "check status"
	body, err := c.do(ctx, op, http.MethodGet, "documents/"+url.PathEscape(externalID)+"/status", nil)
	if err != nil {
		return StatusResult{Raw: errorBody(err)}, err
	}

	result := StatusResult{Raw: string(body)}
	var decoded statusResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return result, failure.Malformed(op, body, fmt.Errorf("decode response: %w", err))
	}
	result.Status = strings.ToUpper(strings.TrimSpace(decoded.Status))
	if result.Status == "" {
		return result, failure.Malformed(op, body, errors.New("response is missing a status"))
	}
	result.PageCount = decoded.PageCount
	return result, nil
}

func (c *HTTPClient) do(ctx context.Context, op, method, path string, payload []byte) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	endpoint := c.cfg.BaseURL + "/" + path

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, failure.Malformed(op, nil, fmt.Errorf("new request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, failure.FromTransport(op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, failure.FromTransport(op, fmt.Errorf("read body: %w", err))
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return body, failure.FromStatus(op, resp.StatusCode, body)
	}
	return body, nil
}

func errorBody(err error) string {
	var classified *failure.Error
	if errors.As(err, &classified) {
		return classified.Body
	}
	return ""
}
