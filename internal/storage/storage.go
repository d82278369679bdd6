// Package storage holds the durable media backends behind the upload
// pipeline. Failures surface as storage_error.
package storage

import (
	"context"
	"io"
)

// MediaStorage accepts a byte stream and returns a durable URL.
type MediaStorage interface {
	Upload(ctx context.Context, objectName, contentType string, file io.Reader, size int64) (string, error)
	Delete(ctx context.Context, objectName string) error
}
