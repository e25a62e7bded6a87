package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/nhle/deepseek-json/internal/model"
)

const (
	userAgent      = "deepseek-json/0.1.0"
	completionPath = "/chat/completions"
	jsonObjectType = "json_object"
)

// Transport performs a single chat-completion attempt and returns the
// assistant's message text.
type Transport interface {
	Complete(ctx context.Context, req model.ChatRequest) (string, error)
}

// Client calls an OpenAI-compatible /chat/completions endpoint. Each call
// is one attempt bounded by the configured timeout; retries are the
// engine's job.
type Client struct {
	apiKey  string
	baseURL string
	timeout time.Duration
	client  *http.Client
}

var _ Transport = (*Client)(nil)

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.client = hc
		}
	}
}

// NewClient creates a client for baseURL authenticated with apiKey.
func NewClient(
	apiKey string,
	baseURL string,
	timeout time.Duration,
	opts ...ClientOption,
) *Client {
	c := &Client{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		client:  &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Complete makes a single request to the chat-completion endpoint.
func (c *Client) Complete(ctx context.Context, req model.ChatRequest) (string, error) {
	reqBody := apiRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.ForceJSON {
		reqBody.ResponseFormat = &responseFormat{Type: jsonObjectType}
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", &Error{Kind: KindParse, Detail: "marshaling request", Err: err}
	}

	attemptCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(
		attemptCtx, http.MethodPost, c.baseURL+completionPath, bytes.NewReader(bodyBytes),
	)
	if err != nil {
		return "", &Error{Kind: KindConfig, Detail: fmt.Sprintf("creating request: %v", err), Err: err}
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", c.transportError(ctx, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", c.transportError(ctx, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", statusError(resp.StatusCode, respBody)
	}

	var result apiResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", NewParseError("decoding API response", string(respBody), err)
	}
	if len(result.Choices) == 0 {
		return "", NewParseError("no choices in API response", "", nil)
	}

	return result.Choices[0].Message.Content, nil
}

// transportError maps a failed round trip onto the error taxonomy. parent
// is the caller's context: its cancellation wins over any other cause.
func (c *Client) transportError(parent context.Context, err error) error {
	if parent.Err() != nil {
		return Canceled(err)
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &Error{Kind: KindTimeout, Timeout: c.timeout, Err: err}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &Error{
			Kind:   KindNetwork,
			Detail: fmt.Sprintf("DNS resolution failed for %s", dnsErr.Name),
			Err:    err,
		}
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return &Error{Kind: KindNetwork, Detail: "connection refused by server", Err: err}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return &Error{Kind: KindNetwork, Detail: fmt.Sprintf("failed to connect to server: %v", opErr.Err), Err: err}
	}

	return &Error{Kind: KindNetwork, Detail: fmt.Sprintf("request error: %v", err), Err: err}
}

// statusError classifies a non-2xx response. Rate limiting and gateway
// failures mean the service is busy; everything else is an API error.
func statusError(status int, body []byte) error {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return &Error{Kind: KindServerBusy, StatusCode: status, Detail: errorMessage(body)}
	}

	msg := errorMessage(body)
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &Error{Kind: KindAPI, StatusCode: status, Detail: msg}
}

// errorMessage extracts {"error":{"message":...}} when present, otherwise
// the trimmed body text.
func errorMessage(body []byte) string {
	var apiErr apiErrorResponse
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
		return apiErr.Error.Message
	}
	return snippet(strings.TrimSpace(string(body)), 500)
}

// --- chat-completion wire types ---

type apiRequest struct {
	Model          string          `json:"model"`
	Messages       []model.Message `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type apiResponse struct {
	ID      string      `json:"id"`
	Model   string      `json:"model"`
	Choices []apiChoice `json:"choices"`
}

type apiChoice struct {
	Index        int           `json:"index"`
	Message      model.Message `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type apiErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}
