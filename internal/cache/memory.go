package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/smartdevs17/content-rewards/pkg/utils"
)

type memoryEntry struct {
	data    []byte
	expires time.Time
}

// Memory is a process-local backend
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemory creates an empty in-memory backend
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// SetClock replaces the clock used for expiry
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *Memory) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	now := m.now()
	m.mu.RUnlock()

	if !ok || (!entry.expires.IsZero() && !now.Before(entry.expires)) {
		return false, nil
	}
	if err := json.Unmarshal(entry.data, dest); err != nil {
		return false, utils.WrapAppError(utils.ErrCodeDecode, "Corrupt cache entry", err)
	}
	return true, nil
}

func (m *Memory) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return utils.WrapAppError(utils.ErrCodeInternal, "Failed to encode cache entry", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entry := memoryEntry{data: data}
	if ttl > 0 {
		entry.expires = m.now().Add(ttl)
	}
	m.entries[key] = entry
	return nil
}

func (m *Memory) Delete(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.entries, key)
	}
	return nil
}

func (m *Memory) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]memoryEntry)
	return nil
}

func (m *Memory) Close() error {
	return nil
}
