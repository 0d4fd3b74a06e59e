// Package s3 implements the blob store on an S3-compatible object store.
//
// Uploads spool to a local temp file and are published with a single
// PutObject at commit time; S3 object puts are atomic, so a reader never
// observes a partially written blob. Range reads map directly onto ranged
// GetObject requests.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/teledrop/teledrop/pkg/blob"
	"github.com/teledrop/teledrop/pkg/models"
)

// Config describes the bucket the store operates on.
type Config struct {
	Bucket string
	Region string

	// Endpoint overrides the AWS endpoint for S3-compatible stores
	// (MinIO, Ceph RGW, localstack). Empty means AWS.
	Endpoint string

	// Prefix is prepended to every storage key, so one bucket can host
	// several deployments.
	Prefix string

	// Static credentials. Empty values fall back to the default AWS
	// credential chain (env, shared config, instance role).
	AccessKeyID     string
	SecretAccessKey string

	// UsePathStyle forces path-style addressing, required by most
	// S3-compatible stores.
	UsePathStyle bool
}

// Store is an S3-backed blob store.
type Store struct {
	client *awss3.Client
	bucket string
	prefix string
}

// New builds a Store from the configuration.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &Store{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// NewWithClient builds a Store around an existing client. Used by tests.
func NewWithClient(client *awss3.Client, bucket, prefix string) *Store {
	return &Store{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

func (s *Store) objectKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return path.Join(s.prefix, key)
}

// isNotFoundError returns true if the error indicates the object doesn't exist.
func isNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NoSuchKey" || code == "NotFound"
	}
	return false
}

// isInvalidRangeError returns true for a 416 from the object store.
func isInvalidRangeError(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode() == "InvalidRange"
	}
	return false
}

// writeSession spools the upload to a local temp file; Commit performs the
// actual PutObject with a seekable body and known content length.
type writeSession struct {
	store *Store
	ctx   context.Context
	key   string
	spool *os.File
	done  bool
}

func (w *writeSession) Write(p []byte) (int, error) {
	return w.spool.Write(p)
}

func (w *writeSession) Commit() error {
	if w.done {
		return nil
	}
	defer w.cleanup()

	if _, err := w.spool.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("%w: rewind spool: %v", models.ErrStorage, err)
	}
	info, err := w.spool.Stat()
	if err != nil {
		return fmt.Errorf("%w: stat spool: %v", models.ErrStorage, err)
	}

	_, err = w.store.client.PutObject(w.ctx, &awss3.PutObjectInput{
		Bucket:        aws.String(w.store.bucket),
		Key:           aws.String(w.store.objectKey(w.key)),
		Body:          w.spool,
		ContentLength: aws.Int64(info.Size()),
	})
	if err != nil {
		return fmt.Errorf("%w: put %q: %v", models.ErrStorage, w.key, err)
	}
	w.done = true
	return nil
}

func (w *writeSession) Abort() error {
	if w.done {
		return nil
	}
	w.cleanup()
	w.done = true
	return nil
}

func (w *writeSession) cleanup() {
	name := w.spool.Name()
	w.spool.Close()
	os.Remove(name)
}

// OpenWrite starts a streaming write for key.
func (s *Store) OpenWrite(ctx context.Context, key string) (blob.WriteSession, error) {
	spool, err := os.CreateTemp("", "teledrop-upload-*"+blob.TempSuffix)
	if err != nil {
		return nil, fmt.Errorf("%w: create spool: %v", models.ErrStorage, err)
	}
	return &writeSession{store: s, ctx: ctx, key: key, spool: spool}, nil
}

// Read opens the whole blob for sequential reading.
func (s *Store) Read(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		if isNotFoundError(err) {
			return nil, models.ErrBlobNotFound
		}
		return nil, fmt.Errorf("%w: get %q: %v", models.ErrStorage, key, err)
	}
	return out.Body, nil
}

// ReadRange opens the inclusive byte range [start, end] for reading.
func (s *Store) ReadRange(ctx context.Context, key string, start, end int64) (io.ReadCloser, error) {
	if start < 0 || end < start {
		return nil, models.ErrRangeInvalid
	}
	out, err := s.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", start, end)),
	})
	if err != nil {
		if isNotFoundError(err) {
			return nil, models.ErrBlobNotFound
		}
		if isInvalidRangeError(err) {
			return nil, models.ErrRangeInvalid
		}
		return nil, fmt.Errorf("%w: get range %q: %v", models.ErrStorage, key, err)
	}
	return out.Body, nil
}

// Stat returns the blob size in bytes.
func (s *Store) Stat(ctx context.Context, key string) (int64, error) {
	out, err := s.client.HeadObject(ctx, &awss3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		if isNotFoundError(err) {
			return 0, models.ErrBlobNotFound
		}
		return 0, fmt.Errorf("%w: head %q: %v", models.ErrStorage, key, err)
	}
	return aws.ToInt64(out.ContentLength), nil
}

// Delete removes the blob. S3 DeleteObject succeeds for absent keys, which
// matches the idempotency contract.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil && !isNotFoundError(err) {
		return fmt.Errorf("%w: delete %q: %v", models.ErrStorage, key, err)
	}
	return nil
}

// Move copies src to dst server-side, then deletes src.
func (s *Store) Move(ctx context.Context, src, dst string) error {
	_, err := s.client.CopyObject(ctx, &awss3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		Key:        aws.String(s.objectKey(dst)),
		CopySource: aws.String(s.bucket + "/" + s.objectKey(src)),
	})
	if err != nil {
		if isNotFoundError(err) {
			return models.ErrBlobNotFound
		}
		return fmt.Errorf("%w: copy %q to %q: %v", models.ErrStorage, src, dst, err)
	}
	return s.Delete(ctx, src)
}
