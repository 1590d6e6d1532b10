// Bustinel - GTFS-Realtime Trip Recorder
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bustinel

/*
Package cache is the fast dedup tier in front of the durable record store.

The realtime pipeline checks a vehicle fingerprint here before touching the
database. Entries expire after a TTL, so a miss is normal and is healed from
the record store.

Two backends implement Store:

  - MemoryStore: process-local TTL map, lost on restart (CACHE_BACKEND=memory)
  - BadgerStore: BadgerDB with native TTLs, survives restarts (CACHE_BACKEND=badger)

Keys are built with Key:

	key := cache.Key(cfg.Prefix, record.Fingerprint())
	// "bustinel:vehicle:<sha3-256 hex>"
*/
package cache
