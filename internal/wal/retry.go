// Bustinel - GTFS-Realtime Trip Recorder
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bustinel

package wal

import (
	"context"
	"math"
	"time"

	"github.com/tomtom215/bustinel/internal/config"
	"github.com/tomtom215/bustinel/internal/eventprocessor"
	"github.com/tomtom215/bustinel/internal/logging"
	"github.com/tomtom215/bustinel/internal/metrics"
)

// RetryServiceName names the retry loop in the supervisor tree.
const RetryServiceName = "event-outbox"

const (
	maxBackoff     = 5 * time.Minute
	publishTimeout = 10 * time.Second
)

type retryResult int

const (
	retryResultSuccess retryResult = iota
	retryResultFailed
	retryResultExpired
	retryResultAbandoned
	retryResultSkipped
)

// RetryStats summarizes one retry run.
type RetryStats struct {
	Pending   int
	Succeeded int
	Failed    int
	Expired   int
	Abandoned int
	Skipped   int
}

// RetryLoop replays pending outbox entries.
type RetryLoop struct {
	wal    *BadgerWAL
	bus    Publisher
	config config.OutboxConfig
}

// NewRetryLoop creates a retry loop over w.
func NewRetryLoop(w *BadgerWAL, bus Publisher, cfg config.OutboxConfig) *RetryLoop {
	return &RetryLoop{wal: w, bus: bus, config: cfg}
}

// RunOnce attempts delivery of every pending entry that is due. It has the
// shape of services.RunFunc.
func (r *RetryLoop) RunOnce(ctx context.Context) error {
	_, err := r.Run(ctx)
	return err
}

// Run is RunOnce with per-run statistics.
func (r *RetryLoop) Run(ctx context.Context) (RetryStats, error) {
	start := time.Now()

	entries, err := r.wal.GetPending(ctx)
	if err != nil {
		metrics.RecordRun(RetryServiceName, time.Since(start), "error")
		return RetryStats{}, err
	}

	stats := RetryStats{Pending: len(entries)}
	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		switch r.process(ctx, entry) {
		case retryResultSuccess:
			stats.Succeeded++
		case retryResultFailed:
			stats.Failed++
		case retryResultExpired:
			stats.Expired++
		case retryResultAbandoned:
			stats.Abandoned++
		case retryResultSkipped:
			stats.Skipped++
		}
	}

	if n, err := r.wal.PendingCount(); err == nil {
		metrics.OutboxPending.Set(float64(n))
	}

	if stats.Succeeded+stats.Failed+stats.Expired+stats.Abandoned > 0 {
		logging.Ctx(ctx).Info().
			Int("pending", stats.Pending).
			Int("succeeded", stats.Succeeded).
			Int("failed", stats.Failed).
			Int("expired", stats.Expired).
			Int("abandoned", stats.Abandoned).
			Msg("Outbox retry complete")
	}
	metrics.RecordRun(RetryServiceName, time.Since(start), "ok")
	return stats, ctx.Err()
}

func (r *RetryLoop) process(ctx context.Context, entry *Entry) retryResult {
	if !r.wal.TryClaim(entry.ID) {
		return retryResultSkipped
	}
	defer r.wal.Release(entry.ID)

	if r.config.EntryTTL > 0 && time.Since(entry.CreatedAt) > r.config.EntryTTL {
		return r.drop(ctx, entry, "expired", retryResultExpired)
	}
	if r.config.MaxRetries > 0 && entry.Attempts >= r.config.MaxRetries {
		return r.drop(ctx, entry, "abandoned", retryResultAbandoned)
	}
	if !r.isReadyForRetry(entry) {
		return retryResultSkipped
	}

	event, err := eventprocessor.DeserializeEvent(entry.Payload)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("entry_id", entry.ID).Msg("Outbox entry is not a valid event")
		return r.drop(ctx, entry, "abandoned", retryResultAbandoned)
	}

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	err = r.bus.Publish(pubCtx, event)
	cancel()
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).
			Str("entry_id", entry.ID).
			Str("event_id", event.EventID).
			Int("attempt", entry.Attempts+1).
			Msg("Outbox retry failed to publish")
		if uerr := r.wal.UpdateAttempt(ctx, entry.ID, err.Error()); uerr != nil {
			logging.Ctx(ctx).Error().Err(uerr).Str("entry_id", entry.ID).Msg("Outbox failed to record attempt")
		}
		metrics.RecordOutboxDelivery("failed")
		return retryResultFailed
	}

	if err := r.wal.Confirm(ctx, entry.ID); err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("entry_id", entry.ID).Msg("Outbox failed to confirm entry")
		return retryResultFailed
	}
	metrics.RecordOutboxDelivery("published")
	return retryResultSuccess
}

func (r *RetryLoop) drop(ctx context.Context, entry *Entry, reason string, result retryResult) retryResult {
	logging.Ctx(ctx).Warn().
		Str("entry_id", entry.ID).
		Int("attempts", entry.Attempts).
		Str("last_error", entry.LastError).
		Str("reason", reason).
		Msg("Outbox dropped undeliverable entry")
	if err := r.wal.DeleteEntry(ctx, entry.ID); err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("entry_id", entry.ID).Msg("Outbox failed to delete entry")
	}
	metrics.RecordOutboxDelivery(reason)
	return result
}

func (r *RetryLoop) isReadyForRetry(entry *Entry) bool {
	if entry.LastAttemptAt.IsZero() {
		return true
	}
	return time.Since(entry.LastAttemptAt) >= r.calculateBackoff(entry.Attempts)
}

// calculateBackoff is base * 2^(attempts-1), capped at five minutes.
func (r *RetryLoop) calculateBackoff(attempts int) time.Duration {
	base := r.config.RetryBackoff
	if attempts <= 1 {
		return base
	}
	if attempts > 50 {
		return maxBackoff
	}
	backoff := time.Duration(float64(base) * math.Pow(2, float64(attempts-1)))
	if backoff <= 0 || backoff > maxBackoff {
		return maxBackoff
	}
	return backoff
}
