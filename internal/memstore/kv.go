package memstore

import (
	"context"
	"sync"
	"time"
)

// KV is an in-process expiring key-value store.
type KV struct {
	mu  sync.Mutex
	m   map[string]kvEntry
	Now func() time.Time
}

type kvEntry struct {
	v   string
	exp time.Time // zero: never
}

func NewKV() *KV { return &KV{m: map[string]kvEntry{}, Now: time.Now} }

func (k *KV) live(key string) (kvEntry, bool) {
	e, ok := k.m[key]
	if !ok {
		return kvEntry{}, false
	}
	if !e.exp.IsZero() && !k.Now().Before(e.exp) {
		delete(k.m, key)
		return kvEntry{}, false
	}
	return e, true
}

func (k *KV) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return k.Now().Add(ttl)
}

func (k *KV) Get(_ context.Context, key string) (string, bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e, ok := k.live(key)
	return e.v, ok, nil
}

func (k *KV) Set(_ context.Context, key, value string, ttl time.Duration) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.m[key] = kvEntry{v: value, exp: k.expiry(ttl)}
	return nil
}

func (k *KV) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.live(key); ok {
		return false, nil
	}
	k.m[key] = kvEntry{v: value, exp: k.expiry(ttl)}
	return true, nil
}

func (k *KV) Delete(_ context.Context, key string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.m, key)
	return nil
}
