package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when nothing is stored under the key.
var ErrNotFound = errors.New("object not found")

// Storage keeps screenshots and their metadata. Put returns the location the
// object can be fetched back from with Get: a file path for local storage and
// an s3:// URL for S3.
type Storage interface {
	Put(ctx context.Context, key string, data []byte) (string, error)
	Get(ctx context.Context, location string) ([]byte, error)
}
