// Bustinel - GTFS-Realtime Trip Recorder
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bustinel

package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/bustinel/internal/config"
)

// Backend names accepted by CACHE_BACKEND.
const (
	BackendMemory = "memory"
	BackendBadger = "badger"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("cache: store closed")

// Store is the fast key/value tier used for dedup.
type Store interface {
	// Exists reports whether key is present and not expired.
	Exists(ctx context.Context, key string) (bool, error)

	// Set stores value under key for ttl.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Close releases the store.
	Close() error
}

// Key returns the cache key for a vehicle fingerprint.
func Key(prefix, fingerprint string) string {
	return prefix + ":vehicle:" + fingerprint
}

// New opens the backend selected by cfg.
func New(cfg config.CacheConfig) (Store, error) {
	switch cfg.Backend {
	case "", BackendMemory:
		return NewMemoryStore(), nil
	case BackendBadger:
		return OpenBadgerStore(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}
