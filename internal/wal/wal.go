// Bustinel - GTFS-Realtime Trip Recorder
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bustinel

package wal

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/bustinel/internal/config"
	"github.com/tomtom215/bustinel/internal/logging"
	"github.com/tomtom215/bustinel/internal/metrics"
)

const prefixPending = "pending:"

// Entry is one outbox entry.
type Entry struct {
	ID string `json:"id"`

	// Payload is the serialized event.
	Payload json.RawMessage `json:"payload"`

	CreatedAt     time.Time `json:"created_at"`
	Attempts      int       `json:"attempts"`
	LastAttemptAt time.Time `json:"last_attempt_at,omitempty"`
	LastError     string    `json:"last_error,omitempty"`
}

// BadgerWAL stores pending entries in BadgerDB. Confirmed entries are
// deleted at once, so the database only ever holds undelivered events.
//
// Claims are held in memory and keep the publish path and the retry loop
// from delivering the same entry concurrently.
type BadgerWAL struct {
	db     *badger.DB
	config config.OutboxConfig

	mu     sync.RWMutex
	closed bool

	claims sync.Map // entry ID -> time claimed
}

// Open opens (or creates) the WAL at cfg.Path.
func Open(cfg config.OutboxConfig) (*BadgerWAL, error) {
	if cfg.Path == "" {
		return nil, errors.New("wal path is required")
	}

	opts := badger.DefaultOptions(cfg.Path)
	opts.SyncWrites = cfg.SyncWrites
	opts.Logger = nil // Suppress BadgerDB logs

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	w := &BadgerWAL{db: db, config: cfg}
	pending, err := w.countPending()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	metrics.OutboxPending.Set(float64(pending))

	logging.Info().
		Str("path", cfg.Path).
		Bool("sync_writes", cfg.SyncWrites).
		Int("pending", pending).
		Msg("Event outbox opened")
	return w, nil
}

// Config returns the configuration the WAL was opened with.
func (w *BadgerWAL) Config() config.OutboxConfig {
	return w.config
}

func (w *BadgerWAL) checkOpen() error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return ErrWALClosed
	}
	return nil
}

// Write persists payload as a new pending entry and returns its ID. The
// payload must be JSON.
//
// The entry is returned claimed so the retry loop leaves it alone while the
// caller publishes it. The caller must Release it.
func (w *BadgerWAL) Write(ctx context.Context, payload []byte) (string, error) {
	if err := w.checkOpen(); err != nil {
		return "", err
	}
	if len(payload) == 0 {
		return "", ErrEmptyPayload
	}
	if !json.Valid(payload) {
		return "", ErrInvalidPayload
	}

	entry := Entry{
		ID:        uuid.New().String(),
		Payload:   json.RawMessage(payload),
		CreatedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(&entry)
	if err != nil {
		return "", fmt.Errorf("marshal entry: %w", err)
	}

	w.TryClaim(entry.ID)
	err = w.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(prefixPending+entry.ID), data)
		if w.config.EntryTTL > 0 {
			e = e.WithTTL(w.config.EntryTTL)
		}
		return txn.SetEntry(e)
	})
	if err != nil {
		w.Release(entry.ID)
		return "", fmt.Errorf("write to BadgerDB: %w", err)
	}

	metrics.OutboxWrites.Inc()
	metrics.OutboxPending.Inc()
	return entry.ID, nil
}

// Confirm removes a delivered entry.
func (w *BadgerWAL) Confirm(ctx context.Context, entryID string) error {
	if err := w.checkOpen(); err != nil {
		return err
	}
	if entryID == "" {
		return ErrEmptyEntryID
	}
	if err := w.delete(entryID); err != nil {
		return err
	}
	metrics.OutboxPending.Dec()
	return nil
}

// DeleteEntry permanently removes an entry that will never be delivered.
func (w *BadgerWAL) DeleteEntry(ctx context.Context, entryID string) error {
	return w.Confirm(ctx, entryID)
}

func (w *BadgerWAL) delete(entryID string) error {
	key := []byte(prefixPending + entryID)
	return w.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrEntryNotFound
			}
			return fmt.Errorf("get entry: %w", err)
		}
		return txn.Delete(key)
	})
}

// GetPending returns every pending entry, oldest first. Snapshot isolation
// of the read transaction keeps the result consistent under concurrent
// writes.
func (w *BadgerWAL) GetPending(ctx context.Context) ([]*Entry, error) {
	if err := w.checkOpen(); err != nil {
		return nil, err
	}

	var entries []*Entry
	err := w.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(prefixPending)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			item := it.Item()
			var entry Entry
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			}); err != nil {
				logging.Warn().Err(err).Str("key", string(item.Key())).Msg("Outbox skipped malformed entry")
				continue
			}
			entries = append(entries, &entry)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterate pending entries: %w", err)
	}

	sortByCreated(entries)
	return entries, nil
}

// UpdateAttempt records a failed delivery attempt. The entry keeps its
// remaining TTL.
func (w *BadgerWAL) UpdateAttempt(ctx context.Context, entryID, lastError string) error {
	if err := w.checkOpen(); err != nil {
		return err
	}

	key := []byte(prefixPending + entryID)
	return w.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrEntryNotFound
		}
		if err != nil {
			return fmt.Errorf("get entry: %w", err)
		}

		var entry Entry
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		}); err != nil {
			return fmt.Errorf("unmarshal entry: %w", err)
		}

		entry.Attempts++
		entry.LastAttemptAt = time.Now().UTC()
		entry.LastError = lastError

		data, err := json.Marshal(&entry)
		if err != nil {
			return fmt.Errorf("marshal entry: %w", err)
		}

		e := badger.NewEntry(key, data)
		if exp := item.ExpiresAt(); exp > 0 {
			if ttl := time.Until(time.Unix(int64(exp), 0)); ttl > 0 {
				e = e.WithTTL(ttl)
			}
		}
		return txn.SetEntry(e)
	})
}

// TryClaim takes exclusive processing rights for entryID. It returns false
// when another goroutine holds them.
func (w *BadgerWAL) TryClaim(entryID string) bool {
	_, held := w.claims.LoadOrStore(entryID, time.Now())
	return !held
}

// Release gives up a claim taken with TryClaim or Write.
func (w *BadgerWAL) Release(entryID string) {
	w.claims.Delete(entryID)
}

// PendingCount counts pending entries.
func (w *BadgerWAL) PendingCount() (int, error) {
	if err := w.checkOpen(); err != nil {
		return 0, err
	}
	return w.countPending()
}

func (w *BadgerWAL) countPending() (int, error) {
	n := 0
	err := w.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(prefixPending)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			n++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count pending entries: %w", err)
	}
	return n, nil
}

// Close closes the database. Pending entries stay on disk for the next
// process.
func (w *BadgerWAL) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	// Reclaim space left by confirmed entries before closing.
	for w.db.RunValueLogGC(0.5) == nil {
	}
	return w.db.Close()
}

func sortByCreated(entries []*Entry) {
	slices.SortStableFunc(entries, func(a, b *Entry) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
}
