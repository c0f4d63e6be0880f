// Package media stores message attachments (image/file payloads) in
// S3-compatible object storage. Clients upload via presigned PUT tickets;
// history hydration mints presigned GET URLs, so attachment bytes never
// transit the chat server.
package media

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config holds object storage connection settings.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

// DefaultConfig returns settings for a local MinIO instance.
func DefaultConfig() Config {
	return Config{
		Endpoint:  "localhost:9000",
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
		UseSSL:    false,
		Bucket:    "skillswap-attachments",
	}
}

// UploadTicket is a presigned PUT grant handed to the client. The object
// key becomes the content of the resulting image/file message.
type UploadTicket struct {
	ObjectKey string    `json:"object_key"`
	UploadURL string    `json:"upload_url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Store wraps the MinIO client for attachment storage.
type Store struct {
	cfg    Config
	client *minio.Client
}

// NewStore connects to object storage and ensures the bucket exists.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	cl, err := minio.New(strings.TrimPrefix(cfg.Endpoint, "http://"), &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("media: connect: %w", err)
	}

	s := &Store{cfg: cfg, client: cl}
	if err := s.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.cfg.Bucket)
	if err != nil {
		return fmt.Errorf("media: bucket check: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("media: bucket create: %w", err)
		}
	}
	return nil
}

// NewUploadTicket mints a presigned PUT URL for one attachment upload. The
// object key is namespaced by uploader so keys cannot collide across users.
func (s *Store) NewUploadTicket(ctx context.Context, uploaderID, filename string, ttl time.Duration) (*UploadTicket, error) {
	key := "attachments/" + uploaderID + "/" + uuid.New().String() + path.Ext(filename)

	u, err := s.client.PresignedPutObject(ctx, s.cfg.Bucket, key, ttl)
	if err != nil {
		return nil, fmt.Errorf("media: presign put: %w", err)
	}
	return &UploadTicket{
		ObjectKey: key,
		UploadURL: u.String(),
		ExpiresAt: time.Now().Add(ttl),
	}, nil
}

// PresignGet mints a presigned download URL for an attachment object key.
func (s *Store) PresignGet(ctx context.Context, objectKey string, ttl time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.cfg.Bucket, objectKey, ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("media: presign get: %w", err)
	}
	return u.String(), nil
}

// Remove deletes an attachment object (account-deletion cascade path).
func (s *Store) Remove(ctx context.Context, objectKey string) error {
	if err := s.client.RemoveObject(ctx, s.cfg.Bucket, objectKey, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("media: remove %s: %w", objectKey, err)
	}
	return nil
}
