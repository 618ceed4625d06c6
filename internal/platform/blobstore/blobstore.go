// Package blobstore stores uploaded images under path-like keys such as
// profileImages/{uid}/profile.jpg and chat/{name}. Backends are in-memory for
// development and S3 for deployments; objects are served back through Handler.
package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

var (
	ErrBlobNotFound = errors.New("blob not found")
	ErrFileTooLarge = errors.New("file exceeds maximum allowed size")
	ErrNotImage     = errors.New("file is not an image")
	ErrInvalidKey   = errors.New("invalid blob key")
)

// MaxImageSize is the largest accepted image upload (5 MB).
const MaxImageSize = 5 * 1024 * 1024

// Object describes a stored blob.
type Object struct {
	Key         string    `json:"key"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	Hash        string    `json:"hash,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

type BlobStore interface {
	// Put stores content under key, replacing any existing object.
	Put(ctx context.Context, key, contentType string, content io.Reader) (*Object, error)
	Get(ctx context.Context, key string) (io.ReadCloser, *Object, error)
	Delete(ctx context.Context, key string) error
}

// ValidateKey rejects empty keys and keys that try to escape their prefix.
func ValidateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "..") || strings.Contains(key, "\\") {
		return ErrInvalidKey
	}
	return nil
}

// ReadImage reads at most MaxImageSize bytes from r and sniffs the content
// type. Anything that does not sniff as image/* is rejected.
func ReadImage(r io.Reader) ([]byte, string, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxImageSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("reading image: %w", err)
	}
	if len(data) > MaxImageSize {
		return nil, "", ErrFileTooLarge
	}
	ct := http.DetectContentType(data)
	if !strings.HasPrefix(ct, "image/") {
		return nil, "", ErrNotImage
	}
	return data, ct, nil
}

// URLBuilder turns keys into client-facing URLs.
type URLBuilder struct {
	base string
}

func NewURLBuilder(base string) URLBuilder {
	return URLBuilder{base: strings.TrimRight(base, "/")}
}

func (u URLBuilder) URL(key string) string {
	return u.base + "/" + key
}

// VersionedURL is URL with a content fingerprint appended, for keys that are
// overwritten in place. Clients holding a cached copy see a new URL when the
// content changes.
func (u URLBuilder) VersionedURL(key string, content []byte) string {
	sum := sha256.Sum256(content)
	return u.URL(key) + "?v=" + hex.EncodeToString(sum[:6])
}

type storedBlob struct {
	object  Object
	content []byte
}

// InMemoryBlobStore is a thread-safe BlobStore for development and tests.
type InMemoryBlobStore struct {
	mu    sync.RWMutex
	blobs map[string]*storedBlob
}

func NewInMemoryBlobStore() *InMemoryBlobStore {
	return &InMemoryBlobStore{
		blobs: make(map[string]*storedBlob),
	}
}

func (s *InMemoryBlobStore) Put(_ context.Context, key, contentType string, content io.Reader) (*Object, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(content)
	if err != nil {
		return nil, fmt.Errorf("reading content: %w", err)
	}

	obj := Object{
		Key:         key,
		ContentType: contentType,
		Size:        int64(len(data)),
		Hash:        fmt.Sprintf("%x", sha256.Sum256(data)),
		CreatedAt:   time.Now().UTC(),
	}

	s.mu.Lock()
	s.blobs[key] = &storedBlob{object: obj, content: data}
	s.mu.Unlock()

	out := obj
	return &out, nil
}

func (s *InMemoryBlobStore) Get(_ context.Context, key string) (io.ReadCloser, *Object, error) {
	s.mu.RLock()
	blob, ok := s.blobs[key]
	s.mu.RUnlock()
	if !ok {
		return nil, nil, ErrBlobNotFound
	}
	obj := blob.object
	return io.NopCloser(bytes.NewReader(blob.content)), &obj, nil
}

func (s *InMemoryBlobStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[key]; !ok {
		return ErrBlobNotFound
	}
	delete(s.blobs, key)
	return nil
}

// Len returns the number of stored objects.
func (s *InMemoryBlobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
