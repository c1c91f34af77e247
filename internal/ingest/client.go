package ingest

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/terraform-plugin-log/tflog"
)

const (
	// Three attempts in total.
	defaultMaxRetries = 2
	defaultTimeout    = 30 * time.Second
	defaultRetryDelay = time.Second

	// SignatureHeader carries the hex HMAC-SHA256 of the request body.
	SignatureHeader = "X-Blueprint-Signature"
	// APIKeyHeader carries the API key.
	APIKeyHeader = "X-Api-Key"

	presignPath = "/ingest/presign"
	commitPath  = "/ingest/commit"
)

// ClientConfig holds configuration for constructing a new Client.
type ClientConfig struct {
	BaseURL   string
	APIKey    string
	APISecret string
	// MaxRetries is the number of retries after the first attempt. Negative
	// selects the default.
	MaxRetries int
	// Timeout bounds each attempt.
	Timeout time.Duration
	// RetryDelay is the first backoff; it doubles on every retry.
	RetryDelay time.Duration
	HTTPClient *http.Client
}

// Client talks to the governance service's ingestion endpoints.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	apiSecret  string
	maxRetries int
	timeout    time.Duration
	retryDelay time.Duration
}

// NewClient creates a new ingestion client from the given configuration.
func NewClient(cfg ClientConfig) *Client {
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = defaultMaxRetries
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		apiSecret:  cfg.APISecret,
		maxRetries: maxRetries,
		timeout:    timeout,
		retryDelay: retryDelay,
	}
}

// Presign requests an upload location for a payload.
func (c *Client) Presign(ctx context.Context, req PresignRequest) (*PresignResponse, error) {
	var out PresignResponse
	if err := c.postJSON(ctx, "presign", c.baseURL+presignPath, req, &out); err != nil {
		return nil, err
	}
	if out.UploadURL == "" {
		return nil, &ProtocolError{Op: "presign", StatusCode: http.StatusOK, Message: "response has no uploadUrl"}
	}
	return &out, nil
}

// Upload transfers the payload to a presigned location. The URL carries its
// own authorization, so no credentials are attached.
func (c *Client) Upload(ctx context.Context, uploadURL string, body []byte) error {
	_, err := c.do(ctx, "upload", http.MethodPut, uploadURL, body, func(r *http.Request) {
		r.Header.Set("Content-Type", "application/json")
	})
	return err
}

// Commit references an uploaded payload.
func (c *Client) Commit(ctx context.Context, req CommitRequest) (*CommitResponse, error) {
	var out CommitResponse
	if err := c.postJSON(ctx, "commit", c.baseURL+commitPath, req, &out); err != nil {
		return nil, err
	}
	if out.ErrorMessage != "" {
		return nil, &ProtocolError{Op: "commit", StatusCode: http.StatusOK, Message: out.ErrorMessage}
	}
	if !CommitAccepted(out.Status) {
		return nil, &ProtocolError{Op: "commit", StatusCode: http.StatusOK, Message: fmt.Sprintf("commit status %q", out.Status)}
	}
	return &out, nil
}

// CommitAccepted reports whether a commit status means the governance
// service kept the snapshot. A duplicate content hash counts as kept.
func CommitAccepted(status string) bool {
	switch strings.ToUpper(status) {
	case CommitStatusAccepted, CommitStatusProcessed, CommitStatusDuplicate:
		return true
	}
	return false
}

// Sign returns the hex HMAC-SHA256 of body keyed by secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *Client) postJSON(ctx context.Context, op, url string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("ingest: %s: marshal request: %w", op, err)
	}

	respBody, err := c.do(ctx, op, http.MethodPost, url, body, func(r *http.Request) {
		r.Header.Set("Content-Type", "application/json")
		r.Header.Set(APIKeyHeader, c.apiKey)
		if c.apiSecret != "" {
			r.Header.Set(SignatureHeader, Sign(c.apiSecret, body))
		}
	})
	if err != nil {
		return err
	}

	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return &ProtocolError{Op: op, StatusCode: http.StatusOK, Message: "undecodable response: " + err.Error()}
		}
	}
	return nil
}

// do performs an HTTP request with retry logic. Network errors, 429 and
// 5xx responses are retried with doubling backoff; other non-2xx responses
// fail immediately. Each attempt gets its own timeout.
func (c *Client) do(ctx context.Context, op, method, url string, body []byte, decorate func(*http.Request)) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * c.retryDelay
			tflog.Debug(ctx, "Retrying ingestion call", map[string]interface{}{
				"op":      op,
				"attempt": attempt,
				"backoff": backoff.String(),
				"error":   lastErr.Error(),
			})
			select {
			case <-ctx.Done():
				return nil, &TransportError{Op: op, Err: ctx.Err()}
			case <-time.After(backoff):
			}
		}

		respBody, err := c.attempt(ctx, op, method, url, body, decorate)
		if err == nil {
			return respBody, nil
		}
		lastErr = err

		var (
			perr *ProtocolError
			terr *TransportError
		)
		switch {
		case errors.As(err, &perr):
			if !perr.Retryable() {
				return nil, err
			}
		case !errors.As(err, &terr):
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, &TransportError{Op: op, Err: ctx.Err()}
		}
	}

	return nil, lastErr
}

func (c *Client) attempt(ctx context.Context, op, method, url string, body []byte, decorate func(*http.Request)) ([]byte, error) {
	actx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(actx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ingest: %s: create request: %w", op, err)
	}
	decorate(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, parseProtocolError(op, resp.StatusCode, respBody)
	}
	return respBody, nil
}

func parseProtocolError(op string, status int, body []byte) *ProtocolError {
	perr := &ProtocolError{Op: op, StatusCode: status}
	var env apiErrorBody
	if json.Unmarshal(body, &env) == nil {
		switch {
		case env.Error != nil && env.Error.Message != "":
			perr.Message = env.Error.Message
		case env.ErrorMessage != "":
			perr.Message = env.ErrorMessage
		default:
			perr.Message = env.Message
		}
	}
	return perr
}
