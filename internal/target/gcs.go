package target

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	gcsstorage "cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
)

// gcsTarget implements Target for Google Cloud Storage.
type gcsTarget struct {
	client     *gcsstorage.Client
	bucket     string
	prefix     string
	kmsKeyName string
	name       string
}

// newGCSTarget constructs a GCS-backed Target using Application Default Credentials.
func newGCSTarget(ctx context.Context, cfg Config) (Target, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("gcs target requires a bucket")
	}

	client, err := gcsstorage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating GCS client: %w", err)
	}

	return &gcsTarget{
		client:     client,
		bucket:     cfg.Bucket,
		prefix:     normalizePrefix(cfg.Prefix),
		kmsKeyName: cfg.KMSKeyName,
		name:       cfg.Name,
	}, nil
}

func (t *gcsTarget) Name() string {
	return t.name
}

func (t *gcsTarget) obj(key string) *gcsstorage.ObjectHandle {
	return t.client.Bucket(t.bucket).Object(t.prefix + key)
}

func (t *gcsTarget) write(ctx context.Context, o *gcsstorage.ObjectHandle, data []byte, opts PutOptions) error {
	w := o.NewWriter(ctx)
	if opts.ContentType != "" {
		w.ContentType = opts.ContentType
	}
	if len(opts.Metadata) > 0 {
		w.Metadata = opts.Metadata
	}
	if t.kmsKeyName != "" {
		w.KMSKeyName = t.kmsKeyName
	}

	if _, err := w.Write(data); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

func (t *gcsTarget) Put(ctx context.Context, key string, data []byte, opts PutOptions) error {
	if err := t.write(ctx, t.obj(key), data, opts); err != nil {
		return fmt.Errorf("gcs write %q: %w", key, err)
	}
	return nil
}

func (t *gcsTarget) PutIfAbsent(ctx context.Context, key string, data []byte, opts PutOptions) error {
	o := t.obj(key).If(gcsstorage.Conditions{DoesNotExist: true})
	if err := t.write(ctx, o, data, opts); err != nil {
		if isGCSPreconditionFailed(err) {
			return ErrExists
		}
		return fmt.Errorf("gcs conditional write %q: %w", key, err)
	}
	return nil
}

func (t *gcsTarget) Get(ctx context.Context, key string) ([]byte, error) {
	reader, err := t.obj(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, gcsstorage.ErrObjectNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("gcs NewReader %q: %w", key, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("gcs read %q: %w", key, err)
	}
	return data, nil
}

func (t *gcsTarget) Exists(ctx context.Context, key string) (bool, error) {
	if _, err := t.obj(key).Attrs(ctx); err != nil {
		if errors.Is(err, gcsstorage.ErrObjectNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("gcs Attrs %q: %w", key, err)
	}
	return true, nil
}

func (t *gcsTarget) Delete(ctx context.Context, key string) error {
	if err := t.obj(key).Delete(ctx); err != nil {
		if errors.Is(err, gcsstorage.ErrObjectNotExist) {
			return nil
		}
		return fmt.Errorf("gcs Delete %q: %w", key, err)
	}
	return nil
}

func (t *gcsTarget) List(ctx context.Context, prefix string) ([]string, error) {
	it := t.client.Bucket(t.bucket).Objects(ctx, &gcsstorage.Query{
		Prefix: t.prefix + prefix,
	})

	var keys []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("gcs List prefix %q: %w", prefix, err)
		}
		keys = append(keys, strings.TrimPrefix(attrs.Name, t.prefix))
	}

	sort.Strings(keys)
	return keys, nil
}

// isGCSPreconditionFailed checks if the error is a GCS 412 Precondition Failed.
func isGCSPreconditionFailed(err error) bool {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return gErr.Code == http.StatusPreconditionFailed
	}
	return strings.Contains(err.Error(), "conditionNotMet")
}
