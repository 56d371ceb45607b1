// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api provides the HTTP client for the ItsHere chat backend.
package api

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/itshere/chatsync/internal/model"
)

// Configuration constants for the chat backend API.
const (
	// DefaultBaseURL is where the prototype backend listens.
	DefaultBaseURL = "http://localhost:8000"

	// DefaultTimeout is the default timeout for API requests.
	DefaultTimeout = 15 * time.Second

	// DefaultMaxRetries is the number of attempts for transient GET failures.
	DefaultMaxRetries = 3

	// retryBaseDelay is the base delay for exponential backoff.
	retryBaseDelay = 500 * time.Millisecond

	// retryMaxDelay is the maximum delay for exponential backoff.
	retryMaxDelay = 5 * time.Second

	// MaxResponseSize is the maximum allowed response body size.
	// SECURITY: Response size limit prevents memory exhaustion.
	MaxResponseSize = 4 * 1024 * 1024 // 4MB

	// requestsPerSecond caps the request rate against the backend. The
	// poller plus a burst of sends stays well under this.
	requestsPerSecond = 5
)

// PERFORMANCE: Shared HTTP client with connection pooling for all requests.
var sharedHTTPClient = &http.Client{
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	},
	Timeout: DefaultTimeout,
}

// Error variables for common backend errors.
var (
	// ErrAuthMissing indicates no session token is available. Every engine
	// operation fails fast with this before attempting a network call.
	ErrAuthMissing = errors.New("not authenticated")

	// ErrAuthFailed indicates the backend rejected the session token.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrMalformedResponse indicates the response body did not match the
	// expected shape. Recovered like a network failure, logged distinctly.
	ErrMalformedResponse = errors.New("malformed server response")
)

// APIError represents an error response from the chat backend.
type APIError struct {
	Status  int
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("chat API error (HTTP %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("chat API error (HTTP %d)", e.Status)
}

// IsRetryable reports whether the error is a transient server-side failure.
func (e *APIError) IsRetryable() bool {
	return e.Status >= 500 && e.Status < 600
}

// =============================================================================
// WIRE TYPES
// =============================================================================

// wireMessage is the backend's message shape.
type wireMessage struct {
	ID      string    `json:"id"`
	Sender  string    `json:"sender"`
	Content string    `json:"content"`
	SentAt  time.Time `json:"sentAt"`
}

// messagesResponse is the body of both GET variants.
type messagesResponse struct {
	Status   string        `json:"status"`
	Messages []wireMessage `json:"messages"`
}

// sendResponse is the body of a successful POST. Message is nil when the
// backend does not echo the created message.
type sendResponse struct {
	Status  string       `json:"status"`
	Message *wireMessage `json:"message"`
}

// sendRequest is the POST body.
type sendRequest struct {
	Message string `json:"message"`
}

// =============================================================================
// TOKEN SOURCE
// =============================================================================

// TokenSource supplies the current session token. The client only reads the
// token; it never mutates session state.
type TokenSource interface {
	Token() string
}

// StaticToken is a fixed-token TokenSource, mainly for tests.
type StaticToken string

// Token implements TokenSource.
func (t StaticToken) Token() string { return string(t) }

// =============================================================================
// CLIENT
// =============================================================================

// Client is the HTTP client for the chat backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	maxRetries int
	limiter    *rate.Limiter
}

// NewClient creates a client for the given base URL. The token source is
// consulted on every call so a re-login is picked up without rebuilding
// the client.
func NewClient(baseURL string, tokens TokenSource) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    trimTrailingSlash(baseURL),
		httpClient: sharedHTTPClient,
		tokens:     tokens,
		maxRetries: DefaultMaxRetries,
		limiter:    rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond),
	}
}

// WithTimeout sets the request timeout. This replaces the shared pooled
// client with a dedicated one, so only call it at construction time.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	client := *sharedHTTPClient
	client.Timeout = timeout
	c.httpClient = &client
	return c
}

// WithMaxRetries sets the maximum number of attempts for GET requests.
func (c *Client) WithMaxRetries(maxRetries int) *Client {
	if maxRetries > 0 {
		c.maxRetries = maxRetries
	}
	return c
}

// =============================================================================
// OPERATIONS
// =============================================================================

// Messages retrieves the complete history for a conversation.
func (c *Client) Messages(ctx context.Context, key string) ([]model.Message, error) {
	return c.fetch(ctx, key, time.Time{})
}

// MessagesSince retrieves only messages sent strictly after since.
func (c *Client) MessagesSince(ctx context.Context, key string, since time.Time) ([]model.Message, error) {
	return c.fetch(ctx, key, since)
}

// fetch performs the GET, with ?since= when the cursor is non-zero.
func (c *Client) fetch(ctx context.Context, key string, since time.Time) ([]model.Message, error) {
	token := c.tokens.Token()
	if token == "" {
		return nil, ErrAuthMissing
	}

	requestURL := c.conversationURL(key)
	if !since.IsZero() {
		q := url.Values{}
		q.Set("since", since.UTC().Format(time.RFC3339Nano))
		requestURL += "?" + q.Encode()
	}

	body, err := c.getWithRetry(ctx, requestURL, token)
	if err != nil {
		return nil, err
	}

	var resp messagesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	out := make([]model.Message, 0, len(resp.Messages))
	for _, w := range resp.Messages {
		out = append(out, w.toModel(key))
	}
	return out, nil
}

// Send posts a message to the conversation. On success it returns the
// server's echo of the created message; the echo is nil when the backend
// responds without one. Send is never retried.
func (c *Client) Send(ctx context.Context, key, content string) (*model.Message, error) {
	token := c.tokens.Token()
	if token == "" {
		return nil, ErrAuthMissing
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(sendRequest{Message: content})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.conversationURL(key), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req, token)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request failed: %w", err)
	}
	defer resp.Body.Close()
	c.logResponse(resp, time.Since(start))

	body, err := readResponse(resp)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, c.handleErrorResponse(resp.StatusCode, body)
	}

	var sendResp sendResponse
	if err := json.Unmarshal(body, &sendResp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if sendResp.Message == nil {
		return nil, nil
	}
	m := sendResp.Message.toModel(key)
	return &m, nil
}

// =============================================================================
// INTERNALS
// =============================================================================

// toModel converts a wire message into the domain type. Everything coming
// off the wire is server truth, hence confirmed.
func (w wireMessage) toModel(key string) model.Message {
	return model.Message{
		ID:              w.ID,
		ConversationKey: key,
		Sender:          w.Sender,
		Content:         w.Content,
		SentAt:          w.SentAt,
		Origin:          model.OriginConfirmed,
	}
}

// conversationURL builds the resource URL for one conversation.
func (c *Client) conversationURL(key string) string {
	return c.baseURL + "/api/chat/" + url.PathEscape(key)
}

// getWithRetry performs a GET with exponential backoff on transient errors.
func (c *Client) getWithRetry(ctx context.Context, requestURL, token string) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(calculateBackoff(attempt)):
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		c.setHeaders(req, token)
		c.logRequest(req)

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}
		c.logResponse(resp, time.Since(start))

		body, err := readResponse(resp)
		resp.Body.Close()
		if err != nil {
			return nil, err
		}

		if resp.StatusCode == http.StatusOK {
			return body, nil
		}

		apiErr := c.handleErrorResponse(resp.StatusCode, body)
		var ae *APIError
		if errors.As(apiErr, &ae) && ae.IsRetryable() {
			lastErr = apiErr
			continue
		}
		return nil, apiErr
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// setHeaders sets the required headers for backend requests.
func (c *Client) setHeaders(req *http.Request, token string) {
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "itshere-chatsync/0.1.0")
}

// handleErrorResponse converts HTTP error responses to Go errors.
func (c *Client) handleErrorResponse(statusCode int, body []byte) error {
	if statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden {
		return fmt.Errorf("%w (HTTP %d)", ErrAuthFailed, statusCode)
	}
	return &APIError{
		Status:  statusCode,
		Message: string(bytes.TrimSpace(body)),
	}
}

// readResponse reads the response body with a size limit.
//
// SECURITY: Response size limit prevents memory exhaustion.
func readResponse(resp *http.Response) ([]byte, error) {
	limitedReader := io.LimitReader(resp.Body, MaxResponseSize)
	body, err := io.ReadAll(limitedReader)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) == MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
	}
	return body, nil
}

// calculateBackoff returns the delay before the next retry attempt.
func calculateBackoff(attempt int) time.Duration {
	delay := retryBaseDelay * time.Duration(1<<uint(attempt-1))
	if delay > retryMaxDelay {
		delay = retryMaxDelay
	}
	return delay
}

// logRequest logs an API request without exposing sensitive data.
// Headers are not logged: the Authorization header carries the token.
func (c *Client) logRequest(req *http.Request) {
	log.Printf("chat API request: %s %s", req.Method, req.URL.Path)
}

// logResponse logs status code and duration only, never the body.
func (c *Client) logResponse(resp *http.Response, duration time.Duration) {
	log.Printf("chat API response: %d (%v)", resp.StatusCode, duration)
}

// trimTrailingSlash normalizes the configured base URL.
func trimTrailingSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}
