package storage

import (
	"context"
	"time"
)

type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified *time.Time
}

// Service archives generated GPX documents in remote object storage.
type Service interface {
	PutDocument(ctx context.Context, bucket, key, contentType string, body []byte) (string, error)
	ListObjects(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error)
}
