package mockai

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/yungbote/databanana-backend/internal/domain"
)

// Blobs is an in-memory object store. SignedURL returns BaseURL joined with
// the escaped key and an expiry stamp.
type Blobs struct {
	BaseURL string

	mu      sync.RWMutex
	objects map[string]blob
}

type blob struct {
	data        []byte
	contentType string
}

func NewBlobs(baseURL string) *Blobs {
	if baseURL == "" {
		baseURL = "memory://blobs"
	}
	return &Blobs{BaseURL: strings.TrimRight(baseURL, "/"), objects: map[string]blob{}}
}

func (b *Blobs) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("empty object key: %w", domain.ErrInvalidArgument)
	}
	b.mu.Lock()
	b.objects[key] = blob{data: append([]byte(nil), data...), contentType: contentType}
	b.mu.Unlock()
	return nil
}

func (b *Blobs) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	obj, ok := b.objects[key]
	b.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("object %s: %w", key, domain.ErrNotFound)
	}
	return append([]byte(nil), obj.data...), nil
}

func (b *Blobs) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	b.mu.RLock()
	_, ok := b.objects[key]
	b.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("object %s: %w", key, domain.ErrNotFound)
	}
	exp := time.Now().Add(ttl).Unix()
	return b.BaseURL + "/" + (&url.URL{Path: key}).EscapedPath() + "?expires=" + strconv.FormatInt(exp, 10), nil
}

// ContentType reports the stored content type of key.
func (b *Blobs) ContentType(key string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	obj, ok := b.objects[key]
	return obj.contentType, ok
}

func (b *Blobs) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.objects)
}
