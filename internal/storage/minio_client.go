package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/flicker-social/backend/internal/apperrors"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOStorage stores story media in a MinIO/S3 bucket.
type MinIOStorage struct {
	client    *minio.Client
	bucket    string
	publicURL string
}

// NewMinIOStorage connects to MinIO and ensures the media bucket exists.
func NewMinIOStorage(ctx context.Context, endpoint, accessKey, secretKey, bucket, publicURL string, useSSL bool) (*MinIOStorage, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeStorage, "connect minio")
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeStorage, "check media bucket")
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeStorage, "create media bucket")
		}
	}

	return &MinIOStorage{client: client, bucket: bucket, publicURL: publicURL}, nil
}

func (s *MinIOStorage) Upload(ctx context.Context, objectName, contentType string, file io.Reader, size int64) (string, error) {
	_, err := s.client.PutObject(ctx, s.bucket, objectName, file, size,
		minio.PutObjectOptions{
			ContentType: contentType,
			UserMetadata: map[string]string{
				"uploaded-at": time.Now().Format(time.RFC3339),
			},
		})
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeStorage, "upload media")
	}
	return fmt.Sprintf("%s/%s/%s", s.publicURL, s.bucket, objectName), nil
}

func (s *MinIOStorage) Delete(ctx context.Context, objectName string) error {
	err := s.client.RemoveObject(ctx, s.bucket, objectName, minio.RemoveObjectOptions{})
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeStorage, "delete media")
	}
	return nil
}
