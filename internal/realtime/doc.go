// Bustinel - GTFS-Realtime Trip Recorder
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bustinel

/*
Package realtime turns the live vehicle-position feed into deduplicated trip
records.

Each Pipeline run fetches and decodes the feed, then classifies every
vehicle entity concurrently:

	Skipped    route or agency unknown, or the entity is incomplete
	Cached     fingerprint present in the fast cache
	Persisted  cache miss, natural key already in the record store;
	           the cache entry is restored
	New        staged for insertion
	Failed     a store error or a recovered panic

Staged records are written with a single InsertMany. Only the records the
store reports as inserted are published as trips.observed events and then
cached, so a record that lost a natural-key race produces neither.

The insert and publish tail runs on a context detached from cancellation and
bounded by the drain timeout, so a stop request never abandons a batch
halfway through.
*/
package realtime
