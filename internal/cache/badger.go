// Bustinel - GTFS-Realtime Trip Recorder
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bustinel

package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/bustinel/internal/logging"
	"github.com/tomtom215/bustinel/internal/metrics"
)

const gcInterval = 10 * time.Minute

// BadgerStore is a BadgerDB-backed Store. Expiry uses Badger's native
// entry TTLs, so entries survive restarts until they expire.
type BadgerStore struct {
	db     *badger.DB
	mu     sync.RWMutex
	closed bool

	stop chan struct{}
	done chan struct{}
}

// OpenBadgerStore opens (or creates) a store at path. An empty path opens
// an in-memory instance.
func OpenBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil // Suppress BadgerDB logs

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger cache: %w", err)
	}
	return NewBadgerStore(db), nil
}

// NewBadgerStore wraps an open database and starts value log GC. The store
// owns db and closes it on Close.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	s := &BadgerStore{
		db:   db,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go s.gcLoop()
	return s
}

// Exists implements Store.
func (s *BadgerStore) Exists(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false, ErrClosed
	}

	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = !item.IsDeletedOrExpired()
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("badger lookup %s: %w", key, err)
	}

	metrics.RecordCacheLookup(BackendBadger, found)
	return found, nil
}

// Set implements Store. A non-positive ttl stores nothing.
func (s *BadgerStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry([]byte(key), []byte(value)).WithTTL(ttl))
	})
	if err != nil {
		return fmt.Errorf("badger set %s: %w", key, err)
	}
	return nil
}

// Close stops GC and closes the database.
func (s *BadgerStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.stop)
	<-s.done
	return s.db.Close()
}

// gcLoop reclaims value log space left by expired entries.
func (s *BadgerStore) gcLoop() {
	defer close(s.done)

	ticker := time.NewTicker(gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			// Run until there is nothing left to rewrite.
			for {
				if err := s.db.RunValueLogGC(0.5); err != nil {
					if !errors.Is(err, badger.ErrNoRewrite) {
						logging.Debug().Err(err).Msg("Cache value log GC stopped")
					}
					break
				}
			}
		}
	}
}
