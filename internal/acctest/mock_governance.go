package acctest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/blueprintio/terraform-provider-blueprint/internal/ingest"
)

// MockGovernanceServer records presign, upload and commit calls the way
// the governance service would accept them.
type MockGovernanceServer struct {
	mu       sync.Mutex
	presigns []ingest.PresignRequest
	uploads  map[string][]byte // keyed by event id
	commits  []ingest.CommitRequest
	apiKeys  []string
	failWith int
	Server   *httptest.Server
}

// NewMockGovernanceServer creates a mock governance server. It is closed
// automatically when the test finishes.
func NewMockGovernanceServer(t *testing.T) *MockGovernanceServer {
	t.Helper()

	m := &MockGovernanceServer{
		uploads: make(map[string][]byte),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ingest/presign", m.handlePresign)
	mux.HandleFunc("/ingest/commit", m.handleCommit)
	mux.HandleFunc("/upload/", m.handleUpload)

	m.Server = httptest.NewServer(mux)
	t.Cleanup(m.Server.Close)

	return m
}

// URL returns the base URL of the mock server.
func (m *MockGovernanceServer) URL() string {
	return m.Server.URL
}

// FailWith makes every later presign answer with status. Zero restores
// normal behavior.
func (m *MockGovernanceServer) FailWith(status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = status
}

// Commits returns a copy of the accepted commits in arrival order.
func (m *MockGovernanceServer) Commits() []ingest.CommitRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ingest.CommitRequest(nil), m.commits...)
}

// Upload returns the payload uploaded for eventID.
func (m *MockGovernanceServer) Upload(eventID string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.uploads[eventID]
	return data, ok
}

// APIKeys returns the API key sent with every presign request.
func (m *MockGovernanceServer) APIKeys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.apiKeys...)
}

func (m *MockGovernanceServer) handlePresign(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failWith != 0 {
		writeAPIError(w, m.failWith, "governance service unavailable")
		return
	}

	var req ingest.PresignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if r.Header.Get(ingest.APIKeyHeader) == "" {
		writeAPIError(w, http.StatusUnauthorized, "missing API key")
		return
	}
	m.apiKeys = append(m.apiKeys, r.Header.Get(ingest.APIKeyHeader))
	m.presigns = append(m.presigns, req)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ingest.PresignResponse{
		UploadURL: m.Server.URL + "/upload/" + req.EventID,
		ExpiresAt: time.Now().Add(15 * time.Minute).UTC().Format(time.RFC3339),
	})
}

func (m *MockGovernanceServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploads[strings.TrimPrefix(r.URL.Path, "/upload/")] = data
	w.WriteHeader(http.StatusOK)
}

func (m *MockGovernanceServer) handleCommit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var req ingest.CommitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if _, ok := m.uploads[req.EventID]; !ok {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ingest.CommitResponse{
			EventID:      req.EventID,
			Status:       "REJECTED",
			ErrorMessage: "no upload for event " + req.EventID,
		})
		return
	}
	m.commits = append(m.commits, req)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ingest.CommitResponse{
		EventID:     req.EventID,
		Status:      "ACCEPTED",
		ProcessedAt: time.Now().UTC().Format(time.RFC3339),
	})
}

func writeAPIError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]string{
			"message": message,
		},
	})
}
