package service

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/Gandorini/S-T-Station/config"
	"github.com/Gandorini/S-T-Station/pkg/logger"
)

// ObjectPrefix is prepended to every stored object key.
const ObjectPrefix = "uploads/"

var unsafeKey = regexp.MustCompile(`[^a-zA-Z0-9_.-]`)

// publicReadPolicy lets anonymous clients GET objects, so stored URLs resolve
// without signing.
const publicReadPolicy = `{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Principal":{"AWS":["*"]},"Action":["s3:GetObject"],"Resource":["arn:aws:s3:::%s/*"]}]}`

type MinioService struct {
	client  *minio.Client
	config  *config.MinioConfig
	ensured sync.Map // bucket name -> struct{}
}

func NewMinioService(cfg *config.MinioConfig) (*MinioService, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &MinioService{
		client: client,
		config: cfg,
	}, nil
}

// ObjectKey turns a file name into a safe object key under ObjectPrefix.
func ObjectKey(name string) string {
	return ObjectPrefix + unsafeKey.ReplaceAllString(name, "_")
}

// EnsureBucket creates the bucket with a public-read policy if it doesn't exist.
// Buckets already checked by this process are skipped.
func (s *MinioService) EnsureBucket(ctx context.Context, bucket string) error {
	if _, ok := s.ensured.Load(bucket); ok {
		return nil
	}

	exists, err := s.client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}

	if !exists {
		err = s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: s.config.Region})
		if err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
		if err := s.client.SetBucketPolicy(ctx, bucket, fmt.Sprintf(publicReadPolicy, bucket)); err != nil {
			return fmt.Errorf("failed to set bucket policy: %w", err)
		}
		logger.Info(ctx, "bucket created", "bucket", bucket)
	}

	s.ensured.Store(bucket, struct{}{})
	return nil
}

// Store uploads data under a sanitized key and returns its public URL.
func (s *MinioService) Store(ctx context.Context, bucket, name string, data []byte, contentType string) (string, error) {
	if err := s.EnsureBucket(ctx, bucket); err != nil {
		return "", err
	}

	key := ObjectKey(name)
	_, err := s.client.PutObject(ctx, bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload file: %w", err)
	}

	logger.Debug(ctx, "object stored", "bucket", bucket, "key", key, "bytes", len(data))
	return s.GetPublicURL(bucket, key), nil
}

// GetPublicURL returns a public URL for the object (the bucket policy allows
// anonymous reads). A configured PublicURL replaces the API endpoint.
func (s *MinioService) GetPublicURL(bucket, objectName string) string {
	if base := strings.TrimRight(s.config.PublicURL, "/"); base != "" {
		return fmt.Sprintf("%s/%s/%s", base, bucket, objectName)
	}
	protocol := "http"
	if s.config.UseSSL {
		protocol = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", protocol, s.config.Endpoint, bucket, objectName)
}
