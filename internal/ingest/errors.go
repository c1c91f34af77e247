package ingest

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrIngestion is matched by every error the ingestion path produces.
var ErrIngestion = errors.New("ingestion failed")

// TransportError reports a network failure or timeout that outlived the
// retry budget.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("ingest: %s: transport error: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrIngestion }

// ProtocolError reports a non-2xx response from the governance service, or
// a 2xx response that rejects the request.
type ProtocolError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *ProtocolError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("ingest: %s: HTTP %d: %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("ingest: %s: HTTP %d %s", e.Op, e.StatusCode, http.StatusText(e.StatusCode))
}

func (e *ProtocolError) Is(target error) bool { return target == ErrIngestion }

// Retryable reports whether the status is worth another attempt.
func (e *ProtocolError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// SizeLimitError reports a payload larger than the configured guardrail.
// Payloads are never truncated.
type SizeLimitError struct {
	Size  int
	Limit int64
}

func (e *SizeLimitError) Error() string {
	return fmt.Sprintf("ingest: payload is %d bytes, limit is %d", e.Size, e.Limit)
}

func (e *SizeLimitError) Is(target error) bool { return target == ErrIngestion }
