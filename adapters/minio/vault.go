package minio

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/arimedika/server/domain"
	"github.com/arimedika/server/domain/repositories"
)

// Config holds the MinIO connection settings.
type Config struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	Bucket          string
}

// DocumentVault stores users' medical documents in object storage. Objects
// are namespaced by user id so listing and access checks reduce to a key
// prefix.
type DocumentVault struct {
	client *minio.Client
	bucket string
	logger *zap.Logger
}

var _ repositories.DocumentVault = (*DocumentVault)(nil)

func NewDocumentVault(cfg Config, logger *zap.Logger) (*DocumentVault, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
		logger.Info("created document bucket", zap.String("bucket", cfg.Bucket))
	}

	return &DocumentVault{client: client, bucket: cfg.Bucket, logger: logger}, nil
}

func (v *DocumentVault) Put(ctx context.Context, userID, name, contentType string, r io.Reader, size int64) (*repositories.StoredDocument, error) {
	key := fmt.Sprintf("%s/%s-%s", userID, uuid.NewString(), name)

	info, err := v.client.PutObject(ctx, v.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
		UserMetadata: map[string]string{
			"original-name": name,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store document: %w", err)
	}

	return &repositories.StoredDocument{
		Key:         key,
		Name:        name,
		ContentType: contentType,
		Size:        info.Size,
		UploadedAt:  time.Now(),
	}, nil
}

func (v *DocumentVault) List(ctx context.Context, userID string) ([]repositories.StoredDocument, error) {
	var docs []repositories.StoredDocument
	objects := v.client.ListObjects(ctx, v.bucket, minio.ListObjectsOptions{
		Prefix:    userID + "/",
		Recursive: true,
	})
	for object := range objects {
		if object.Err != nil {
			return nil, fmt.Errorf("failed to list documents: %w", object.Err)
		}
		docs = append(docs, repositories.StoredDocument{
			Key:         object.Key,
			Name:        displayName(object.Key),
			ContentType: object.ContentType,
			Size:        object.Size,
			UploadedAt:  object.LastModified,
		})
	}
	return docs, nil
}

func (v *DocumentVault) PresignedURL(ctx context.Context, userID, key string, expiry time.Duration) (string, error) {
	if err := checkOwnership(userID, key); err != nil {
		return "", err
	}
	url, err := v.client.PresignedGetObject(ctx, v.bucket, key, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("failed to presign document url: %w", err)
	}
	return url.String(), nil
}

func (v *DocumentVault) Delete(ctx context.Context, userID, key string) error {
	if err := checkOwnership(userID, key); err != nil {
		return err
	}
	if err := v.client.RemoveObject(ctx, v.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

// checkOwnership rejects keys outside the user's prefix.
func checkOwnership(userID, key string) error {
	if !strings.HasPrefix(key, userID+"/") {
		return fmt.Errorf("document %s: %w", key, domain.ErrPermissionDenied)
	}
	return nil
}

// displayName strips the user prefix and the uuid from an object key.
func displayName(key string) string {
	name := key
	if i := strings.IndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	// Keys are "<uuid>-<original name>"; the uuid is 36 chars.
	if len(name) > 37 && name[36] == '-' {
		name = name[37:]
	}
	return name
}
