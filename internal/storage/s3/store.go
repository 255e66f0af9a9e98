package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/anysoft/askql/internal/storage"
)

type Config struct {
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

// bucketAPI is the slice of the S3 API the result store needs.
type bucketAPI interface {
	PutObject(ctx context.Context, bucket, name string, data []byte, contentType string) error
	GetObject(ctx context.Context, bucket, name string) (storage.Object, error)
	RemoveObject(ctx context.Context, bucket, name string) error
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket, region string) error
}

// Store keeps archived query results in an S3-compatible bucket. Only keys
// laid out by storage.BuildResultArchivePath are accepted.
type Store struct {
	api    bucketAPI
	bucket string
	prefix string
}

func New(ctx context.Context, cfg Config) (*Store, error) {
	host, secure, err := endpointHost(cfg.Endpoint, cfg.UseSSL)
	if err != nil {
		return nil, err
	}
	client, err := minio.New(host, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: secure,
		Region: strings.TrimSpace(cfg.Region),
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}

	store, err := newStore(strings.TrimSpace(cfg.Bucket), cfg.Prefix, minioAPI{client: client})
	if err != nil {
		return nil, err
	}
	if cfg.AutoCreateBucket {
		if err := store.ensureBucket(ctx, strings.TrimSpace(cfg.Region)); err != nil {
			return nil, err
		}
	}
	return store, nil
}

func newStore(bucket, prefix string, api bucketAPI) (*Store, error) {
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix != "" {
		prefix = path.Clean(prefix)
		if prefix == "." || strings.HasPrefix(prefix, "..") {
			return nil, fmt.Errorf("invalid s3 prefix %q", prefix)
		}
	}
	return &Store{api: api, bucket: bucket, prefix: prefix}, nil
}

func (s *Store) Put(ctx context.Context, key string, data []byte, contentType string) error {
	name, err := s.objectName(key)
	if err != nil {
		return err
	}
	if err := s.api.PutObject(ctx, s.bucket, name, data, contentType); err != nil {
		return fmt.Errorf("put result %q: %w", name, err)
	}
	return nil
}

func (s *Store) Open(ctx context.Context, key string) (storage.Object, error) {
	name, err := s.objectName(key)
	if err != nil {
		return storage.Object{}, err
	}
	object, err := s.api.GetObject(ctx, s.bucket, name)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return storage.Object{}, storage.ErrObjectNotFound
		}
		return storage.Object{}, fmt.Errorf("open result %q: %w", name, err)
	}
	return object, nil
}

// Delete removes the object; a missing object is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	name, err := s.objectName(key)
	if err != nil {
		return err
	}
	if err := s.api.RemoveObject(ctx, s.bucket, name); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
		return fmt.Errorf("delete result %q: %w", name, err)
	}
	return nil
}

// HealthCheck reports whether the archive bucket is reachable.
func (s *Store) HealthCheck(ctx context.Context) error {
	exists, err := s.api.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %q: %w", s.bucket, err)
	}
	if !exists {
		return fmt.Errorf("bucket %q does not exist", s.bucket)
	}
	return nil
}

func (s *Store) ensureBucket(ctx context.Context, region string) error {
	exists, err := s.api.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %q: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.api.MakeBucket(ctx, s.bucket, region); err != nil {
		return fmt.Errorf("create bucket %q: %w", s.bucket, err)
	}
	return nil
}

func (s *Store) objectName(key string) (string, error) {
	if _, err := storage.ResultArchiveOwner(key); err != nil {
		return "", err
	}
	if s.prefix == "" {
		return key, nil
	}
	return s.prefix + "/" + key, nil
}

// endpointHost accepts either a bare host:port or a URL whose scheme decides TLS.
func endpointHost(raw string, useSSL bool) (string, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false, fmt.Errorf("s3 endpoint is required")
	}
	if !strings.Contains(raw, "://") {
		return raw, useSSL, nil
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", false, fmt.Errorf("parse s3 endpoint: %w", err)
	}
	if parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return "", false, fmt.Errorf("invalid s3 endpoint %q", raw)
	}
	return parsed.Host, parsed.Scheme == "https", nil
}

type minioAPI struct {
	client *minio.Client
}

func (m minioAPI) PutObject(ctx context.Context, bucket, name string, data []byte, contentType string) error {
	_, err := m.client.PutObject(ctx, bucket, name, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{ContentType: contentType})
	return notFound(err)
}

func (m minioAPI) GetObject(ctx context.Context, bucket, name string) (storage.Object, error) {
	obj, err := m.client.GetObject(ctx, bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return storage.Object{}, notFound(err)
	}
	// GetObject is lazy; Stat surfaces a missing key before the caller streams.
	info, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		return storage.Object{}, notFound(err)
	}
	return storage.Object{Body: obj, Size: info.Size, ContentType: info.ContentType}, nil
}

func (m minioAPI) RemoveObject(ctx context.Context, bucket, name string) error {
	return notFound(m.client.RemoveObject(ctx, bucket, name, minio.RemoveObjectOptions{}))
}

func (m minioAPI) BucketExists(ctx context.Context, bucket string) (bool, error) {
	exists, err := m.client.BucketExists(ctx, bucket)
	return exists, notFound(err)
}

func (m minioAPI) MakeBucket(ctx context.Context, bucket, region string) error {
	return notFound(m.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region}))
}

func notFound(err error) error {
	if err == nil {
		return nil
	}
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		return storage.ErrObjectNotFound
	}
	return err
}
