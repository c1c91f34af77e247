package target

import (
	"context"
	"fmt"
)

// NewTarget creates a Target based on the provided Config.
// It dispatches to the backend constructor and wraps the result in a
// RetryTarget if MaxRetries > 0. Memory targets are never wrapped.
func NewTarget(ctx context.Context, cfg Config) (Target, error) {
	var (
		t   Target
		err error
	)

	switch cfg.Type {
	case "local", "":
		t, err = newLocalTarget(cfg)
	case "s3":
		t, err = newS3Target(ctx, cfg)
	case "azure":
		t, err = newAzureTarget(cfg)
	case "gcs":
		t, err = newGCSTarget(ctx, cfg)
	case "memory":
		return GetOrCreateMemoryTarget(cfg.Name), nil
	default:
		return nil, fmt.Errorf("unsupported target type: %q (must be local, s3, azure, gcs, or memory)", cfg.Type)
	}

	if err != nil {
		return nil, fmt.Errorf("creating %s target %q: %w", cfg.Type, cfg.Name, err)
	}

	if cfg.MaxRetries > 0 {
		backoff := cfg.RetryBackoff
		if backoff == "" {
			backoff = "exponential"
		}
		t = NewRetryTarget(t, cfg.MaxRetries, backoff)
	}

	return t, nil
}
