package gemini

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tjfontaine/scene-gateway/internal/domain"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// ClientOption configures the client.
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets the logger used for skipped stream frames.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// Client is a custom HTTP client for the Gemini API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new Gemini API client.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: http.DefaultClient,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RequestOptions contains per-request options.
type RequestOptions struct {
	UserAgent string
}

// GenerateContent sends a non-streaming request.
func (c *Client) GenerateContent(ctx context.Context, model string, req *GenerateContentRequest, opts *RequestOptions) (*GenerateContentResponse, error) {
	resp, err := c.do(ctx, modelPath(model, "generateContent"), req, opts)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result GenerateContentResponse
	if err := decodeBody(resp.Body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// BatchEmbedContents embeds every request content with model.
func (c *Client) BatchEmbedContents(ctx context.Context, model string, req *BatchEmbedContentsRequest, opts *RequestOptions) (*BatchEmbedContentsResponse, error) {
	resp, err := c.do(ctx, modelPath(model, "batchEmbedContents"), req, opts)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result BatchEmbedContentsResponse
	if err := decodeBody(resp.Body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// StreamResult wraps a frame or error from streaming.
type StreamResult struct {
	Frame *GenerateContentResponse
	Err   error
}

// StreamGenerateContent opens an SSE stream. The channel is closed at end of body
// or when ctx is cancelled; the response body is always released.
func (c *Client) StreamGenerateContent(ctx context.Context, model string, req *GenerateContentRequest, opts *RequestOptions) (<-chan StreamResult, error) {
	resp, err := c.do(ctx, modelPath(model, "streamGenerateContent")+"?alt=sse", req, opts)
	if err != nil {
		return nil, err
	}

	out := make(chan StreamResult)
	go c.streamReader(ctx, resp.Body, out)
	return out, nil
}

func (c *Client) streamReader(ctx context.Context, body io.ReadCloser, out chan<- StreamResult) {
	defer close(out)
	defer body.Close()

	scanner := bufio.NewScanner(body)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))

		var frame GenerateContentResponse
		if err := json.Unmarshal([]byte(data), &frame); err != nil {
			c.logger.Debug("skipping malformed stream frame",
				slog.String("api", string(domain.APITypeGemini)),
				slog.String("error", err.Error()),
			)
			continue
		}

		select {
		case out <- StreamResult{Frame: &frame}:
		case <-ctx.Done():
			return
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		select {
		case out <- StreamResult{Err: fmt.Errorf("stream read error: %w", err)}:
		case <-ctx.Done():
		}
	}
}

func modelPath(model, method string) string {
	model = strings.TrimPrefix(model, "models/")
	return "/models/" + model + ":" + method
}

func decodeBody(body io.Reader, result any) error {
	respBody, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, path string, payload any, opts *RequestOptions) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)
	if opts != nil && opts.UserAgent != "" {
		httpReq.Header.Set("User-Agent", opts.UserAgent)
	} else {
		httpReq.Header.Set("User-Agent", "scene-gateway/1.0")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(resp.Body)
		return nil, domain.NewUpstreamError(domain.APITypeGemini, resp.StatusCode, respBody, ParseErrorMessage(respBody))
	}
	return resp, nil
}
