// Package objectstore persists finished artifacts to S3-compatible object
// storage (Cloudflare R2 in production).
package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"reelforge/internal/config"
	"reelforge/internal/services"
)

// Store uploads artifacts to a single bucket.
type Store struct {
	client    *s3.Client
	presigner *s3.PresignClient
	bucket    string
	publicURL string
}

// New builds a store from storage configuration. The endpoint is derived
// from the account id when not set explicitly.
func New(ctx context.Context, cfg config.Storage) (*Store, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "archive", "storage", "bucket not configured", nil)
	}
	if strings.TrimSpace(cfg.AccessKeyID) == "" || strings.TrimSpace(cfg.SecretAccessKey) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "archive", "storage", "storage credentials not configured", nil)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion("auto"),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("objectstore: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
	})
	return &Store{
		client:    client,
		presigner: s3.NewPresignClient(client),
		bucket:    cfg.Bucket,
		publicURL: strings.TrimRight(cfg.PublicURL, "/"),
	}, nil
}

// Put writes an object and returns its stable URL. Re-uploading the same key
// overwrites in place, so retried archivals converge on the same object.
func (s *Store) Put(ctx context.Context, key, contentType string, payload []byte) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "archive", "put-object", fmt.Sprintf("upload %s", key), err)
	}
	return s.URL(key), nil
}

// URL returns the public URL for a stored key.
func (s *Store) URL(key string) string {
	return s.publicURL + "/" + strings.TrimLeft(key, "/")
}

// SignedGet returns a time-limited download URL for a stored key.
func (s *Store) SignedGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = time.Hour
	}
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "archive", "presign", fmt.Sprintf("presign %s", key), err)
	}
	return req.URL, nil
}
