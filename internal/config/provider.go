package config

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Provider is the durable flat key/value configuration store.
type Provider interface {
	// Lookup returns the value of key and whether it is set.
	Lookup(ctx context.Context, key string) (string, bool, error)

	// Set stores value under key.
	Set(ctx context.Context, key, value string) error

	// Delete removes key.
	Delete(ctx context.Context, key string) error
}

// KVStore is the subset of the durable store that backs a Provider.
type KVStore interface {
	GetValue(ctx context.Context, key string) (string, bool, error)
	SetValue(ctx context.Context, key, value string) error
	DeleteValue(ctx context.Context, key string) error
}

// StoreProvider adapts a KVStore to Provider.
type StoreProvider struct {
	kv KVStore
}

// NewStoreProvider returns a Provider backed by kv.
func NewStoreProvider(kv KVStore) *StoreProvider {
	return &StoreProvider{kv: kv}
}

func (p *StoreProvider) Lookup(ctx context.Context, key string) (string, bool, error) {
	return p.kv.GetValue(ctx, key)
}

func (p *StoreProvider) Set(ctx context.Context, key, value string) error {
	return p.kv.SetValue(ctx, key, value)
}

func (p *StoreProvider) Delete(ctx context.Context, key string) error {
	return p.kv.DeleteValue(ctx, key)
}

// Map is an in-memory Provider for tests and dry runs.
type Map struct {
	mu     sync.Mutex
	values map[string]string
}

// NewMap returns a Map seeded with values.
func NewMap(values map[string]string) *Map {
	m := &Map{values: make(map[string]string, len(values))}
	for k, v := range values {
		m.values[k] = v
	}
	return m
}

func (m *Map) Lookup(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *Map) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *Map) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

// Keys returns the stored keys in sorted order.
func (m *Map) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.values))
	for k := range m.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// String returns the trimmed value of key, or "" when unset or unreadable.
func String(ctx context.Context, p Provider, key string) string {
	v, ok, err := p.Lookup(ctx, key)
	if err != nil || !ok {
		return ""
	}
	return strings.TrimSpace(v)
}

// StringOr returns the value of key, or def when it is unset or blank.
func StringOr(ctx context.Context, p Provider, key, def string) string {
	if v := String(ctx, p, key); v != "" {
		return v
	}
	return def
}

// Int returns the integer value of key. ok is false when the key is unset,
// blank or not an integer.
func Int(ctx context.Context, p Provider, key string) (n int, ok bool) {
	v := String(ctx, p, key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}
