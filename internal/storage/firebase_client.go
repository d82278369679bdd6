package storage

import (
	"context"
	"fmt"
	"io"

	fbstorage "firebase.google.com/go/v4/storage"
	"github.com/flicker-social/backend/internal/apperrors"
)

// FirebaseStorage stores story media in a Firebase Cloud Storage bucket.
// Objects are written private; the returned URL goes through the public
// storage host, so the bucket is expected to allow read access via rules.
type FirebaseStorage struct {
	client *fbstorage.Client
	bucket string
}

// NewFirebaseStorage wraps an initialized Firebase storage client.
func NewFirebaseStorage(client *fbstorage.Client, bucket string) *FirebaseStorage {
	return &FirebaseStorage{client: client, bucket: bucket}
}

func (s *FirebaseStorage) Upload(ctx context.Context, objectName, contentType string, file io.Reader, size int64) (string, error) {
	bucket, err := s.client.Bucket(s.bucket)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeStorage, "open bucket")
	}

	w := bucket.Object(objectName).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, file); err != nil {
		_ = w.Close()
		return "", apperrors.Wrap(err, apperrors.CodeStorage, "write media")
	}
	if err := w.Close(); err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeStorage, "finalize media")
	}

	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", s.bucket, objectName), nil
}

func (s *FirebaseStorage) Delete(ctx context.Context, objectName string) error {
	bucket, err := s.client.Bucket(s.bucket)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeStorage, "open bucket")
	}
	if err := bucket.Object(objectName).Delete(ctx); err != nil {
		return apperrors.Wrap(err, apperrors.CodeStorage, "delete media")
	}
	return nil
}
