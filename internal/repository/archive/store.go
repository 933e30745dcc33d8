// Package archive exports dead letters to S3-compatible object storage.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/synctask"
)

// Config describes the target bucket.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	Region    string
	UseSSL    bool
}

// Store writes archive objects into one bucket.
type Store struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewClient creates a minio client from cfg.
func NewClient(cfg Config) (*minio.Client, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("archive endpoint and bucket are required")
	}
	c, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create archive client: %w", err)
	}
	return c, nil
}

// NewStore creates an archive store. rootPrefix is prepended to every object name.
func NewStore(client *minio.Client, bucket, rootPrefix string) *Store {
	return &Store{client: client, bucket: bucket, prefix: rootPrefix}
}

// EnsureBucket creates the bucket when it does not exist.
func (s *Store) EnsureBucket(ctx context.Context) error {
	ok, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if ok {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	return nil
}

// ObjectName returns the name of the archive written at ts.
func ObjectName(ts time.Time) string {
	return "deadletters/" + ts.UTC().Format("2006/01/02/150405.000000000") + ".ndjson"
}

// PutDeadLetters writes letters as newline-delimited JSON and returns the object key.
func (s *Store) PutDeadLetters(ctx context.Context, letters []synctask.DeadLetter, ts time.Time) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, dl := range letters {
		if err := enc.Encode(dl); err != nil {
			return "", fmt.Errorf("encode dead letter %s: %w", dl.Task.Ref(), err)
		}
	}
	key := path.Join(s.prefix, ObjectName(ts))
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(buf.Bytes()), int64(buf.Len()),
		minio.PutObjectOptions{ContentType: "application/x-ndjson"})
	if err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}
	return key, nil
}
