package target

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// s3Target implements Target for Amazon S3.
type s3Target struct {
	client   *s3.Client
	bucket   string
	prefix   string
	kmsKeyID string
	name     string
}

// newS3Target constructs an S3-backed Target from the provided Config.
func newS3Target(ctx context.Context, cfg Config) (Target, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 target requires a bucket")
	}

	var optFns []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		optFns = append(optFns, awsconfig.WithRegion(cfg.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	return &s3Target{
		client:   s3.NewFromConfig(awsCfg),
		bucket:   cfg.Bucket,
		prefix:   normalizePrefix(cfg.Prefix),
		kmsKeyID: cfg.KMSKeyID,
		name:     cfg.Name,
	}, nil
}

func (t *s3Target) Name() string {
	return t.name
}

func (t *s3Target) fullKey(key string) string {
	return t.prefix + key
}

func (t *s3Target) putInput(key string, data []byte, opts PutOptions) *s3.PutObjectInput {
	input := &s3.PutObjectInput{
		Bucket: aws.String(t.bucket),
		Key:    aws.String(t.fullKey(key)),
		Body:   bytes.NewReader(data),
	}
	if opts.ContentType != "" {
		input.ContentType = aws.String(opts.ContentType)
	}
	if len(opts.Metadata) > 0 {
		input.Metadata = opts.Metadata
	}
	if t.kmsKeyID != "" {
		input.ServerSideEncryption = types.ServerSideEncryptionAwsKms
		input.SSEKMSKeyId = aws.String(t.kmsKeyID)
	}
	return input
}

func (t *s3Target) Put(ctx context.Context, key string, data []byte, opts PutOptions) error {
	if _, err := t.client.PutObject(ctx, t.putInput(key, data, opts)); err != nil {
		return fmt.Errorf("s3 PutObject %q: %w", key, err)
	}
	return nil
}

func (t *s3Target) PutIfAbsent(ctx context.Context, key string, data []byte, opts PutOptions) error {
	input := t.putInput(key, data, opts)
	input.IfNoneMatch = aws.String("*")

	if _, err := t.client.PutObject(ctx, input); err != nil {
		if isS3PreconditionFailed(err) {
			return ErrExists
		}
		return fmt.Errorf("s3 PutObject (if-none-match) %q: %w", key, err)
	}
	return nil
}

func (t *s3Target) Get(ctx context.Context, key string) ([]byte, error) {
	output, err := t.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(t.bucket),
		Key:    aws.String(t.fullKey(key)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("s3 GetObject %q: %w", key, err)
	}
	defer output.Body.Close()

	data, err := io.ReadAll(output.Body)
	if err != nil {
		return nil, fmt.Errorf("s3 read body %q: %w", key, err)
	}
	return data, nil
}

func (t *s3Target) Exists(ctx context.Context, key string) (bool, error) {
	_, err := t.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(t.bucket),
		Key:    aws.String(t.fullKey(key)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("s3 HeadObject %q: %w", key, err)
	}
	return true, nil
}

func (t *s3Target) Delete(ctx context.Context, key string) error {
	_, err := t.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(t.bucket),
		Key:    aws.String(t.fullKey(key)),
	})
	if err != nil && !isS3NotFound(err) {
		return fmt.Errorf("s3 DeleteObject %q: %w", key, err)
	}
	return nil
}

func (t *s3Target) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string

	paginator := s3.NewListObjectsV2Paginator(t.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(t.bucket),
		Prefix: aws.String(t.fullKey(prefix)),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3 ListObjectsV2 prefix %q: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			// Strip the internal prefix so callers see the logical key.
			keys = append(keys, strings.TrimPrefix(aws.ToString(obj.Key), t.prefix))
		}
	}

	sort.Strings(keys)
	return keys, nil
}

// isS3NotFound returns true if the error indicates the object was not found.
func isS3NotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	// HeadObject returns a generic error with status 404.
	var respErr interface{ HTTPStatusCode() int }
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == 404 {
		return true
	}
	return false
}

// isS3PreconditionFailed returns true for HTTP 412, and for the 409 S3
// returns when a concurrent conditional write wins the race.
func isS3PreconditionFailed(err error) bool {
	var respErr interface{ HTTPStatusCode() int }
	if errors.As(err, &respErr) {
		code := respErr.HTTPStatusCode()
		return code == 412 || code == 409
	}
	return false
}
