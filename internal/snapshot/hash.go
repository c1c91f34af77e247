package snapshot

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

const hashPrefix = "sha256:"

// Canonical returns the canonical JSON encoding of v: object keys sorted
// recursively, no insignificant whitespace, HTML characters unescaped and
// numbers reproduced exactly as encoded.
func Canonical(v any) ([]byte, error) {
	generic, err := toGeneric(v)
	if err != nil {
		return nil, err
	}
	return encodeCompact(generic)
}

// ContentHash returns the SHA-256 digest of b as "sha256:<hex>".
func ContentHash(b []byte) string {
	sum := sha256.Sum256(b)
	return hashPrefix + hex.EncodeToString(sum[:])
}

// Fingerprint hashes the canonical form of s without capturedAt, so two
// snapshots built from the same inputs at different times agree.
func Fingerprint(s *Snapshot) (string, error) {
	generic, err := toGeneric(s)
	if err != nil {
		return "", err
	}
	if m, ok := generic.(map[string]any); ok {
		delete(m, "capturedAt")
	}
	b, err := encodeCompact(generic)
	if err != nil {
		return "", err
	}
	return ContentHash(b), nil
}

// Payload is the wire form of a snapshot: the snapshot fields plus an event
// id and content hash.
type Payload struct {
	EventID     string
	ContentHash string
	// Body is the canonical JSON transmitted to the upload location.
	Body []byte
}

// NewPayload builds the transmission payload for s. The content hash covers
// the canonical snapshot only, so the same content always hashes the same
// regardless of which event carries it.
func NewPayload(s *Snapshot, eventID string) (*Payload, error) {
	generic, err := toGeneric(s)
	if err != nil {
		return nil, err
	}
	m, ok := generic.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("snapshot: payload: unexpected %T", generic)
	}

	content, err := encodeCompact(m)
	if err != nil {
		return nil, err
	}
	hash := ContentHash(content)

	m["eventId"] = eventID
	m["contentHash"] = hash
	body, err := encodeCompact(m)
	if err != nil {
		return nil, err
	}

	return &Payload{EventID: eventID, ContentHash: hash, Body: body}, nil
}

func toGeneric(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("snapshot: canonical: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("snapshot: canonical: %w", err)
	}
	return out, nil
}

// encodeCompact relies on encoding/json sorting map keys.
func encodeCompact(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("snapshot: canonical: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
