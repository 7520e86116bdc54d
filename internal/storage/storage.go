// Package storage archives run reports in object storage.
package storage

import (
	"context"
	"errors"
	"path"
	"strings"
)

// Common errors for storage operations.
var (
	ErrObjectNotFound     = errors.New("object not found")
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrUploadFailed       = errors.New("upload failed")
	ErrDownloadFailed     = errors.New("download failed")
	ErrDeleteFailed       = errors.New("delete failed")
)

// ObjectStorage abstracts the object stores a report can be published to.
// Implementations include S3 and the local filesystem.
type ObjectStorage interface {
	// Put writes body to objectPath, replacing any existing object.
	Put(ctx context.Context, objectPath string, body []byte, contentType string) error

	// PutIfAbsent writes body only when objectPath does not exist yet.
	// It returns ErrPreconditionFailed when the object is already present.
	PutIfAbsent(ctx context.Context, objectPath string, body []byte, contentType string) error

	// Get returns the object's contents, or ErrObjectNotFound.
	Get(ctx context.Context, objectPath string) ([]byte, error)

	// Exists checks if an object exists in storage.
	Exists(ctx context.Context, objectPath string) (bool, error)

	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, objectPath string) error

	// List returns all object paths under the given prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Prefixed wraps an ObjectStorage and prepends a prefix to all object paths.
type Prefixed struct {
	inner  ObjectStorage
	prefix string
}

// WithPrefix returns inner scoped to prefix. An empty prefix returns inner.
func WithPrefix(inner ObjectStorage, prefix string) ObjectStorage {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return inner
	}
	return &Prefixed{inner: inner, prefix: prefix}
}

func (p *Prefixed) key(objectPath string) string {
	return path.Join(p.prefix, objectPath)
}

func (p *Prefixed) Put(ctx context.Context, objectPath string, body []byte, contentType string) error {
	return p.inner.Put(ctx, p.key(objectPath), body, contentType)
}

func (p *Prefixed) PutIfAbsent(ctx context.Context, objectPath string, body []byte, contentType string) error {
	return p.inner.PutIfAbsent(ctx, p.key(objectPath), body, contentType)
}

func (p *Prefixed) Get(ctx context.Context, objectPath string) ([]byte, error) {
	return p.inner.Get(ctx, p.key(objectPath))
}

func (p *Prefixed) Exists(ctx context.Context, objectPath string) (bool, error) {
	return p.inner.Exists(ctx, p.key(objectPath))
}

func (p *Prefixed) Delete(ctx context.Context, objectPath string) error {
	return p.inner.Delete(ctx, p.key(objectPath))
}

// List strips the prefix from the returned paths.
func (p *Prefixed) List(ctx context.Context, prefix string) ([]string, error) {
	objects, err := p.inner.List(ctx, p.prefix+"/"+strings.TrimPrefix(prefix, "/"))
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(objects))
	for _, obj := range objects {
		out = append(out, strings.TrimPrefix(obj, p.prefix+"/"))
	}
	return out, nil
}
