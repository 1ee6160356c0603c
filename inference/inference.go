// Package inference talks to the non-chat endpoints of an OpenAI-compatible
// inference API: model listing, image style listing and image generation.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrEmptyPrompt is returned by GenerateImage for an empty prompt.
var ErrEmptyPrompt = errors.New("inference: empty prompt")

// APIError is a non-2xx response from the inference service.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("inference: unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("inference: status %d: %s", e.StatusCode, e.Message)
}

// Model is one entry of the service's model list.
type Model struct {
	ID      string `json:"id"`
	OwnedBy string `json:"owned_by,omitempty"`
	Created int64  `json:"created,omitempty"`
}

// ImageRequest describes an image generation.
type ImageRequest struct {
	Prompt string `json:"prompt"`
	Model  string `json:"model,omitempty"`
	Style  string `json:"style,omitempty"`
	Size   string `json:"size,omitempty"`
}

// Image is a generated image, returned either by URL or inline as base64.
type Image struct {
	URL           string `json:"url,omitempty"`
	B64JSON       string `json:"b64_json,omitempty"`
	RevisedPrompt string `json:"revised_prompt,omitempty"`
}

// Client is an inference API client. It is safe for concurrent use.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	styles     []string
	logger     *zap.SugaredLogger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient = &http.Client{Timeout: d}
	}
}

// WithStyles sets the styles reported when the service does not list its own.
func WithStyles(styles []string) Option {
	return func(c *Client) {
		c.styles = styles
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// New returns a Client for the API rooted at baseURL (for example
// https://api.openai.com/v1).
func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = zap.NewNop().Sugar()
	}
	return c
}

// ListModels returns the models offered by the service, sorted by ID.
func (c *Client) ListModels(ctx context.Context) ([]Model, error) {
	var body struct {
		Data []Model `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/models", nil, &body); err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	slices.SortFunc(body.Data, func(a, b Model) int { return strings.Compare(a.ID, b.ID) })
	return body.Data, nil
}

// ListStyles returns the image styles offered by the service. When the
// service has no styles endpoint the configured styles are returned.
func (c *Client) ListStyles(ctx context.Context) ([]string, error) {
	var body struct {
		Data []string `json:"data"`
	}
	err := c.do(ctx, http.MethodGet, "/styles", nil, &body)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		c.logger.Debug("styles endpoint not found, using configured styles")
		return slices.Clone(c.styles), nil
	}
	if err != nil {
		return nil, fmt.Errorf("list styles: %w", err)
	}
	return body.Data, nil
}

// GenerateImage generates one image for req.
func (c *Client) GenerateImage(ctx context.Context, req ImageRequest) (*Image, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, ErrEmptyPrompt
	}
	payload := struct {
		ImageRequest
		N int `json:"n"`
	}{ImageRequest: req, N: 1}

	var body struct {
		Data []Image `json:"data"`
	}
	if err := c.do(ctx, http.MethodPost, "/images/generations", payload, &body); err != nil {
		return nil, fmt.Errorf("generate image: %w", err)
	}
	if len(body.Data) == 0 {
		return nil, errors.New("generate image: response contained no images")
	}
	return &body.Data[0], nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var reqBody io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	c.logger.Debugw("inference request", "method", method, "path", path, "status", resp.StatusCode, "elapsed", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &APIError{StatusCode: resp.StatusCode}
	var body struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(b, &body) == nil && body.Error.Message != "" {
		apiErr.Message = body.Error.Message
	} else {
		apiErr.Message = strings.TrimSpace(string(b))
	}
	return apiErr
}
