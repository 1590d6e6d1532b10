// Bustinel - GTFS-Realtime Trip Recorder
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bustinel

//go:build !nats

package eventprocessor

import (
	"context"

	"github.com/tomtom215/bustinel/internal/config"
)

// NewNATSBus returns ErrNATSNotEnabled when NATS dependencies are not
// compiled in. Build with -tags=nats to enable it.
func NewNATSBus(_ context.Context, _ config.NATSConfig) (*Bus, error) {
	return nil, ErrNATSNotEnabled
}
