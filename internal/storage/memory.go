package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"
)

// Memory is an in-process Gateway for local development and tests.
type Memory struct {
	mu      sync.RWMutex
	objects map[string][]byte

	// FailPut, when set, is returned by Put. Used to simulate outages.
	FailPut error
}

// NewMemory returns an empty in-memory gateway.
func NewMemory() *Memory {
	return &Memory{objects: map[string][]byte{}}
}

func (m *Memory) EnsureBucket(context.Context) error { return nil }

func (m *Memory) Put(ctx context.Context, key string, r io.Reader, _ int64) error {
	if m.FailPut != nil {
		return wrap("put", key, m.FailPut)
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return wrap("put", key, err)
	}
	if err := ctx.Err(); err != nil {
		return wrap("put", key, err)
	}
	m.mu.Lock()
	m.objects[key] = b
	m.mu.Unlock()
	return nil
}

func (m *Memory) Get(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.RLock()
	b, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return nil, wrap("get", key, ErrObjectNotFound)
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *Memory) Presign(_ context.Context, key string, expiresAt time.Time) (string, error) {
	return fmt.Sprintf("memory://recordings/%s?expires=%d", url.PathEscape(key), expiresAt.Unix()), nil
}

// Len reports how many objects are stored.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
