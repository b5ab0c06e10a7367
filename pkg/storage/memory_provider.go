package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// MemoryConfig contains settings for the in-memory provider
type MemoryConfig struct {
	// MaxBytes bounds the total stored value bytes; 0 means unlimited.
	// Used to exercise quota handling deterministically.
	MaxBytes int `json:"max_bytes,omitempty"`
}

// MemoryProvider implements the Provider interface with a mutex-guarded map
type MemoryProvider struct {
	mu        sync.RWMutex
	data      map[string][]byte
	maxBytes  int
	usedBytes int
}

// NewMemoryProvider creates a new in-memory provider
func NewMemoryProvider(config MemoryConfig) *MemoryProvider {
	return &MemoryProvider{
		data:     make(map[string][]byte),
		maxBytes: config.MaxBytes,
	}
}

// Get returns the value stored under key
func (p *MemoryProvider) Get(ctx context.Context, key string) ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	value, ok := p.data[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}

	// Return a copy so callers can't mutate the stored value
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

// Put stores a value under key
func (p *MemoryProvider) Put(ctx context.Context, key string, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	// Check the byte budget before accepting the write
	newUsed := p.usedBytes - len(p.data[key]) + len(value)
	if p.maxBytes > 0 && newUsed > p.maxBytes {
		return fmt.Errorf("memory budget of %d bytes exceeded: %w", p.maxBytes, ErrQuotaExceeded)
	}

	stored := make([]byte, len(value))
	copy(stored, value)
	p.data[key] = stored
	p.usedBytes = newUsed
	return nil
}

// Delete removes a key
func (p *MemoryProvider) Delete(ctx context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if old, ok := p.data[key]; ok {
		p.usedBytes -= len(old)
		delete(p.data, key)
	}
	return nil
}

// Keys returns all keys beginning with prefix, sorted
func (p *MemoryProvider) Keys(ctx context.Context, prefix string) ([]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	keys := make([]string, 0)
	for key := range p.data {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Close releases the provider's resources
func (p *MemoryProvider) Close() error {
	return nil
}
