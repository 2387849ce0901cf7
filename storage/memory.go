package storage

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/ruteri/proof-credential-registry/interfaces"
)

// MemoryBackend keeps values in process memory. Used for development and tests.
type MemoryBackend struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{data: make(map[string][]byte)}
}

func (b *MemoryBackend) Put(ctx context.Context, key string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data[key] = slices.Clone(data)
	return nil
}

func (b *MemoryBackend) Get(ctx context.Context, key string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	data, ok := b.data[key]
	if !ok {
		return nil, interfaces.ErrContentNotFound
	}
	return slices.Clone(data), nil
}

func (b *MemoryBackend) List(ctx context.Context, prefix string) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var keys []string
	for k := range b.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (b *MemoryBackend) Available(ctx context.Context) bool { return true }

func (b *MemoryBackend) Name() string { return "memory" }

func (b *MemoryBackend) LocationURI() string { return "memory://" }
