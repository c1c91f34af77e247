// Package ingest delivers staged snapshots to the governance service at
// apply time.
//
// Every delivery follows the same three calls: request an upload location
// (presign), PUT the canonical payload there, then commit a reference to
// it. Deletes send a DELETE snapshot with a null schema through the same
// path. Event IDs are recorded in a per-binding ledger next to the staged
// bundle, so a retried request reuses the event ID of the first attempt.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/terraform-plugin-log/tflog"

	"github.com/blueprintio/terraform-provider-blueprint/internal/bundle"
	"github.com/blueprintio/terraform-provider-blueprint/internal/config"
	"github.com/blueprintio/terraform-provider-blueprint/internal/credentials"
	"github.com/blueprintio/terraform-provider-blueprint/internal/engine"
	"github.com/blueprintio/terraform-provider-blueprint/internal/eventid"
	"github.com/blueprintio/terraform-provider-blueprint/internal/snapshot"
	"github.com/blueprintio/terraform-provider-blueprint/internal/target"
)

// RequestType is the lifecycle event that triggered a delivery.
type RequestType string

const (
	RequestCreate RequestType = "Create"
	RequestUpdate RequestType = "Update"
	RequestDelete RequestType = "Delete"
)

// Ingest statuses reported in the response.
const (
	StatusSuccess = "SUCCESS"
	StatusFailed  = "FAILED"
)

// Request locates a staged bundle and says what to do with it.
type Request struct {
	RequestType        RequestType
	BundleKey          string
	PhysicalResourceID string
	Credentials        credentials.Ref
	// FailureMode overrides the mode recorded in the bundle manifest.
	FailureMode string
}

// Response is what the lifecycle hook hands back to the orchestrator.
type Response struct {
	PhysicalResourceID string
	Data               ResponseData
	// Snapshot is the snapshot that was sent, when one was built.
	Snapshot *snapshot.Snapshot
}

// ResponseData carries the outcome of one delivery.
type ResponseData struct {
	EventID      string
	IngestStatus string
	ContentHash  string
	Timestamp    string
	Error        string
}

// Settings configures deliveries.
type Settings struct {
	BaseURL          string
	MaxSnapshotBytes int64
	Timeout          time.Duration
	MaxRetries       int
	RetryDelay       time.Duration
	LedgerRetain     int
}

// Handler runs deliveries. Engine and Target locate staged bundles and hold
// the event ledger.
type Handler struct {
	Engine      *engine.Engine
	Target      target.Target
	Credentials credentials.Resolver
	Settings    Settings
	HTTPClient  *http.Client
	Now         func() time.Time
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// Handle delivers the bundle named by req. Under BEST_EFFORT a failed
// delivery returns a FAILED response and a nil error; under STRICT the
// error is returned alongside the response.
func (h *Handler) Handle(ctx context.Context, req Request) (*Response, error) {
	resp := &Response{
		PhysicalResourceID: req.PhysicalResourceID,
		Data:               ResponseData{Timestamp: h.now().UTC().Format(time.RFC3339)},
	}
	mode := req.FailureMode

	ctx = tflog.SetField(ctx, "bundle_key", req.BundleKey)
	ctx = tflog.SetField(ctx, "request_type", string(req.RequestType))

	staged, err := h.Engine.Load(ctx, h.Target, req.BundleKey)
	if err != nil {
		return h.fail(ctx, resp, mode, fmt.Errorf("load staged bundle: %w", err))
	}
	if mode == "" {
		mode = staged.Manifest.FailureMode
	}

	s, err := snapshot.Decode(staged.Files[bundle.SnapshotFile])
	if err != nil {
		return h.fail(ctx, resp, mode, err)
	}
	if resp.PhysicalResourceID == "" {
		resp.PhysicalResourceID = s.ResourceID
	}

	if err := h.deliver(ctx, req, s, resp); err != nil {
		return h.fail(ctx, resp, mode, err)
	}
	resp.Data.IngestStatus = StatusSuccess

	tflog.Info(ctx, "Snapshot ingested", map[string]interface{}{
		"resource_id":  s.ResourceID,
		"event_id":     resp.Data.EventID,
		"content_hash": resp.Data.ContentHash,
	})

	if req.RequestType != RequestDelete && h.Settings.LedgerRetain > 0 {
		pruned, err := h.Engine.PruneLedger(ctx, h.Target, req.BundleKey, h.Settings.LedgerRetain)
		if err != nil {
			tflog.Warn(ctx, "Failed to prune event ledger", map[string]interface{}{"error": err.Error()})
		} else if len(pruned) > 0 {
			tflog.Debug(ctx, "Pruned event ledger", map[string]interface{}{"pruned": pruned})
		}
	}
	return resp, nil
}

func (h *Handler) fail(ctx context.Context, resp *Response, mode string, err error) (*Response, error) {
	resp.Data.IngestStatus = StatusFailed
	resp.Data.Error = err.Error()

	if mode == config.FailureModeStrict {
		return resp, err
	}
	tflog.Warn(ctx, "Snapshot ingestion failed, continuing (BEST_EFFORT)", map[string]interface{}{
		"error": err.Error(),
	})
	return resp, nil
}

// deliver runs presign, upload and commit for s.
func (h *Handler) deliver(ctx context.Context, req Request, s *snapshot.Snapshot, resp *Response) error {
	fp, err := snapshot.Fingerprint(s)
	if err != nil {
		return err
	}
	requestID := RequestID(s.ResourceID, req.RequestType, fp)

	eventID, err := h.eventID(ctx, req.BundleKey, requestID)
	if err != nil {
		return fmt.Errorf("event ledger: %w", err)
	}

	// The DELETE variant is stamped with the event time so a retried
	// delete hashes the same.
	if req.RequestType == RequestDelete {
		ts, err := eventid.Parse(eventID)
		if err != nil {
			return err
		}
		s = snapshot.Builder{Now: func() time.Time { return ts }}.Delete(s)
	}
	resp.Snapshot = s

	payload, err := snapshot.NewPayload(s, eventID)
	if err != nil {
		return err
	}
	resp.Data.EventID = eventID
	resp.Data.ContentHash = payload.ContentHash

	if limit := h.Settings.MaxSnapshotBytes; limit > 0 && int64(len(payload.Body)) > limit {
		return &SizeLimitError{Size: len(payload.Body), Limit: limit}
	}

	arn, ok := s.DataStore.ResourceARN().Get()
	if !ok {
		return fmt.Errorf("data store ARN of %s is unresolved", s.ResourceID)
	}

	pair, err := h.Credentials.Resolve(ctx, req.Credentials)
	if err != nil {
		return err
	}

	client := NewClient(ClientConfig{
		BaseURL:    h.Settings.BaseURL,
		APIKey:     pair.APIKey,
		APISecret:  pair.APISecret,
		MaxRetries: h.Settings.MaxRetries,
		Timeout:    h.Settings.Timeout,
		RetryDelay: h.Settings.RetryDelay,
		HTTPClient: h.HTTPClient,
	})

	presigned, err := client.Presign(ctx, PresignRequest{
		AppID:       s.AppID,
		EventID:     eventID,
		ContentHash: payload.ContentHash,
	})
	if err != nil {
		return err
	}
	tflog.Debug(ctx, "Upload location granted", map[string]interface{}{"expires_at": presigned.ExpiresAt})

	if err := client.Upload(ctx, presigned.UploadURL, payload.Body); err != nil {
		return err
	}

	committed, err := client.Commit(ctx, CommitRequest{
		Action:        string(s.Action),
		AppID:         s.AppID,
		EventID:       eventID,
		ContentHash:   payload.ContentHash,
		DataStoreType: s.DatastoreType,
		DataStoreArn:  arn,
		ResourceID:    s.ResourceID,
		StackName:     s.StackName,
	})
	if err != nil {
		return err
	}
	if committed.EventID != "" && committed.EventID != eventID {
		tflog.Warn(ctx, "Commit acknowledged a different event", map[string]interface{}{
			"sent":     eventID,
			"received": committed.EventID,
		})
	}

	// Only an unfinished request may reuse its event ID. A later request
	// for the same content is a new event.
	if err := h.Target.Delete(ctx, engine.LedgerKey(req.BundleKey, requestID)); err != nil && !errors.Is(err, target.ErrNotFound) {
		tflog.Warn(ctx, "Failed to clear event ledger entry", map[string]interface{}{
			"event_id": eventID,
			"error":    err.Error(),
		})
	}
	return nil
}

// eventID returns the event ID recorded for requestID, recording a fresh
// one if none exists. Entries live until the request is delivered.
func (h *Handler) eventID(ctx context.Context, bundleKey, requestID string) (string, error) {
	key := engine.LedgerKey(bundleKey, requestID)

	if id, err := h.readLedger(ctx, key); err != nil || id != "" {
		return id, err
	}

	id := eventid.NewAt(h.now())
	err := h.Target.PutIfAbsent(ctx, key, []byte(id), target.PutOptions{ContentType: "text/plain; charset=utf-8"})
	switch {
	case err == nil:
		return id, nil
	case errors.Is(err, target.ErrExists):
		existing, err := h.readLedger(ctx, key)
		if err != nil {
			return "", err
		}
		if existing != "" {
			return existing, nil
		}
		// Malformed entry: replace it.
		if err := h.Target.Put(ctx, key, []byte(id), target.PutOptions{ContentType: "text/plain; charset=utf-8"}); err != nil {
			return "", err
		}
		return id, nil
	default:
		return "", err
	}
}

// readLedger returns the recorded event ID, or "" when there is none or it
// is malformed.
func (h *Handler) readLedger(ctx context.Context, key string) (string, error) {
	data, err := h.Target.Get(ctx, key)
	if errors.Is(err, target.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	id := strings.TrimSpace(string(data))
	if !eventid.IsValid(id) {
		return "", nil
	}
	return id, nil
}

// RequestID identifies one lifecycle request for one snapshot content.
func RequestID(resourceID string, rt RequestType, fingerprint string) string {
	sum := sha256.Sum256([]byte(resourceID + "\x00" + string(rt) + "\x00" + fingerprint))
	return hex.EncodeToString(sum[:])
}
