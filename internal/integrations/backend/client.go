package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"study-tutor/internal/domain"
)

const (
	defaultAppBaseURL    = "http://localhost:3000"
	defaultIngestBaseURL = "http://127.0.0.1:8000"
	maxErrorBody         = 4096
	maxResponseBody      = 1 << 20
)

// HTTPStatusError captures non-2xx responses with status-aware context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("backend: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// BackendError is an application-level failure reported in a 2xx body.
type BackendError struct {
	Message string
}

func (e *BackendError) Error() string {
	return "backend: reported error: " + e.Message
}

func (e *BackendError) BackendMessage() string {
	return e.Message
}

// MalformedResponseError means the body did not match the expected schema.
type MalformedResponseError struct {
	Op  string
	Err error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("backend: malformed %s response: %v", e.Op, e.Err)
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}

func (e *MalformedResponseError) MalformedResponse() bool {
	return true
}

// Client talks to the tutoring backend. Questions go through the app's same-origin
// proxy path; ingestion and health go straight to the ingestion service.
type Client struct {
	appBaseURL    string
	ingestBaseURL string
	httpClient    *http.Client
	logger        *zap.Logger
}

type Option func(*Client)

func WithAppBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.appBaseURL = strings.TrimSpace(baseURL)
	}
}

func WithIngestBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.ingestBaseURL = strings.TrimSpace(baseURL)
	}
}

// WithHTTPClient replaces the transport client. The default has no timeout; call
// deadlines come from the context.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

func NewClient(opts ...Option) (*Client, error) {
	c := &Client{
		appBaseURL:    defaultAppBaseURL,
		ingestBaseURL: defaultIngestBaseURL,
		httpClient:    &http.Client{},
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	for name, raw := range map[string]string{"app": c.appBaseURL, "ingest": c.ingestBaseURL} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("backend: invalid %s base URL %q", name, raw)
		}
	}
	return c, nil
}

func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return http.DefaultClient
}

func chatURL(baseURL string) string {
	return strings.TrimRight(baseURL, "/") + "/api/chat"
}

func pdfURL(baseURL string) string {
	return strings.TrimRight(baseURL, "/") + "/ingest/pdf"
}

func youtubeURL(baseURL, videoURL string) string {
	return strings.TrimRight(baseURL, "/") + "/ingest/youtube?url=" + url.QueryEscape(videoURL)
}

func healthURL(baseURL string) string {
	return strings.TrimRight(baseURL, "/") + "/"
}

type chatRequest struct {
	Question   string               `json:"question"`
	History    []domain.HistoryItem `json:"history"`
	Difficulty string               `json:"difficulty,omitempty"`
}

// Ask posts a question with its history and returns the validated answer.
func (c *Client) Ask(ctx context.Context, in domain.AskRequest) (domain.Answer, error) {
	history := in.History
	if history == nil {
		history = []domain.HistoryItem{}
	}
	body, err := json.Marshal(chatRequest{
		Question:   in.Question,
		History:    history,
		Difficulty: in.Difficulty,
	})
	if err != nil {
		return domain.Answer{}, fmt.Errorf("backend: marshal chat request: %w", err)
	}

	endpoint := chatURL(c.appBaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.Answer{}, fmt.Errorf("backend: create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	raw, err := c.doJSONRequest(req, endpoint)
	if err != nil {
		return domain.Answer{}, fmt.Errorf("backend: chat request failed: %w", err)
	}
	return decodeAnswer(raw)
}

// IngestPDF uploads file as the multipart field "file".
func (c *Client) IngestPDF(ctx context.Context, file domain.PDFFile) (domain.IngestResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", file.Name)
	if err != nil {
		return domain.IngestResult{}, fmt.Errorf("backend: create form file: %w", err)
	}
	if _, err := part.Write(file.Data); err != nil {
		return domain.IngestResult{}, fmt.Errorf("backend: write form file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return domain.IngestResult{}, fmt.Errorf("backend: close multipart body: %w", err)
	}

	endpoint := pdfURL(c.ingestBaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return domain.IngestResult{}, fmt.Errorf("backend: create pdf request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	raw, err := c.doJSONRequest(req, endpoint)
	if err != nil {
		return domain.IngestResult{}, fmt.Errorf("backend: pdf ingest request failed: %w", err)
	}
	return decodePDFResult(raw)
}

// IngestYouTube asks the backend to ingest the transcript of videoURL.
func (c *Client) IngestYouTube(ctx context.Context, videoURL string) (domain.IngestResult, error) {
	endpoint := youtubeURL(c.ingestBaseURL, videoURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return domain.IngestResult{}, fmt.Errorf("backend: create youtube request: %w", err)
	}

	raw, err := c.doJSONRequest(req, endpoint)
	if err != nil {
		return domain.IngestResult{}, fmt.Errorf("backend: youtube ingest request failed: %w", err)
	}
	return decodeYouTubeResult(raw)
}

// Health probes the ingestion service root.
func (c *Client) Health(ctx context.Context) error {
	endpoint := healthURL(c.ingestBaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("backend: create health request: %w", err)
	}
	raw, err := c.doJSONRequest(req, endpoint)
	if err != nil {
		return fmt.Errorf("backend: health request failed: %w", err)
	}
	var payload struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return &MalformedResponseError{Op: "health", Err: err}
	}
	if payload.Status != "ok" {
		return &BackendError{Message: "status " + payload.Status}
	}
	return nil
}

func (c *Client) doJSONRequest(req *http.Request, endpoint string) ([]byte, error) {
	res, err := c.resolvedHTTPClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		c.logger.Debug("backend non-2xx",
			zap.String("url", endpoint),
			zap.Int("status", res.StatusCode),
		)
		return nil, &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        endpoint,
			Body:       string(buf),
		}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return buf, nil
}
