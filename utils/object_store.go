package utils

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/cppla/vibemusic/config"
)

// ObjectStore keeps uploaded media in an S3 compatible bucket and hands out public URLs.
type ObjectStore struct {
	client  *minio.Client
	bucket  string
	baseURL string
}

// NewObjectStore connects to the configured endpoint and makes sure the bucket exists.
func NewObjectStore(ctx context.Context, cfg config.AppConfig) (*ObjectStore, error) {
	if cfg.MinioEndpoint == "" {
		return nil, fmt.Errorf("minio endpoint not configured")
	}
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	exists, err := client.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}
	base := cfg.MinioPublicURL
	if base == "" {
		scheme := "http"
		if cfg.MinioUseSSL {
			scheme = "https"
		}
		base = scheme + "://" + cfg.MinioEndpoint
	}
	return &ObjectStore{client: client, bucket: cfg.MinioBucket, baseURL: strings.TrimRight(base, "/")}, nil
}

// ObjectName builds "<folder>/<uuid>-<filename>".
func ObjectName(folder, filename string) string {
	return folder + "/" + uuid.NewString() + "-" + filename
}

// Upload stores file under folder and returns its public URL.
func (s *ObjectStore) Upload(ctx context.Context, folder string, file UploadFile) (string, error) {
	name := ObjectName(folder, file.Filename)
	_, err := s.client.PutObject(ctx, s.bucket, name, file.Reader, file.Size, minio.PutObjectOptions{
		ContentType: file.ContentType,
	})
	if err != nil {
		return "", fmt.Errorf("put %s: %w", name, err)
	}
	return s.URL(name), nil
}

// URL returns the public URL of an object.
func (s *ObjectStore) URL(name string) string {
	return s.baseURL + "/" + s.bucket + "/" + name
}

// Delete removes the object behind a URL produced by Upload. Foreign URLs are ignored.
func (s *ObjectStore) Delete(ctx context.Context, rawURL string) error {
	name, ok := s.objectName(rawURL)
	if !ok {
		return nil
	}
	if err := s.client.RemoveObject(ctx, s.bucket, name, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove %s: %w", name, err)
	}
	return nil
}

// Ping checks that the bucket is reachable.
func (s *ObjectStore) Ping(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucket)
	return err
}

func (s *ObjectStore) objectName(rawURL string) (string, bool) {
	prefix := s.baseURL + "/" + s.bucket + "/"
	if !strings.HasPrefix(rawURL, prefix) {
		return "", false
	}
	name, err := url.PathUnescape(strings.TrimPrefix(rawURL, prefix))
	if err != nil || name == "" {
		return "", false
	}
	return name, true
}
