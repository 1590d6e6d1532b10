// Bustinel - GTFS-Realtime Trip Recorder
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bustinel

package wal

import "errors"

var (
	// ErrWALClosed is returned by operations on a closed WAL.
	ErrWALClosed = errors.New("wal is closed")

	// ErrEntryNotFound is returned when an entry does not exist, usually
	// because it was already confirmed or expired.
	ErrEntryNotFound = errors.New("wal entry not found")

	// ErrEmptyEntryID is returned when an empty entry ID is passed.
	ErrEmptyEntryID = errors.New("wal entry id is empty")

	// ErrEmptyPayload is returned by Write for an empty payload.
	ErrEmptyPayload = errors.New("wal payload is empty")

	// ErrInvalidPayload is returned by Write when payload is not valid JSON.
	ErrInvalidPayload = errors.New("wal payload is not valid json")
)
