// Bustinel - GTFS-Realtime Trip Recorder
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bustinel

package services

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/bustinel/internal/logging"
	"github.com/tomtom215/bustinel/internal/metrics"
)

// RunFunc is one unit of work of a LoopService. Errors are logged and the
// loop continues at the next interval.
type RunFunc func(ctx context.Context) error

// LoopService runs a RunFunc immediately and then once per interval until
// stopped.
//
// A panic in the RunFunc is recovered, logged with its stack, and ends the
// loop for good: Serve returns suture.ErrDoNotRestart so the supervisor
// removes the service instead of restarting it. Callers see a crashed loop
// exactly like a stopped one.
type LoopService struct {
	name     string
	interval time.Duration
	run      RunFunc

	running  atomic.Bool
	stopping atomic.Bool
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewLoopService creates a loop named name that calls run every interval.
func NewLoopService(name string, interval time.Duration, run RunFunc) *LoopService {
	return &LoopService{
		name:     name,
		interval: interval,
		run:      run,
		stopCh:   make(chan struct{}),
	}
}

// errDefect marks a recovered panic.
var errDefect = errors.New("loop body panicked")

// Serve implements suture.Service.
func (s *LoopService) Serve(ctx context.Context) error {
	if s.stopping.Load() {
		return suture.ErrDoNotRestart
	}

	s.running.Store(true)
	defer s.running.Store(false)

	logger := logging.WithComponent(s.name)
	logger.Info().Dur("interval", s.interval).Msg("Service started")

	for {
		if err := s.runOnce(ctx); err != nil {
			switch {
			case errors.Is(err, errDefect):
				s.RequestStop()
				return suture.ErrDoNotRestart
			case ctx.Err() != nil:
				logger.Info().Msg("Service canceled during run")
				return ctx.Err()
			default:
				logger.Error().Err(err).Msg("Run failed, retrying next interval")
			}
		}

		if s.stopping.Load() {
			logger.Info().Msg("Service stopped")
			return suture.ErrDoNotRestart
		}

		timer := time.NewTimer(s.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Info().Msg("Service canceled")
			return ctx.Err()
		case <-s.stopCh:
			timer.Stop()
			logger.Info().Msg("Service stopped")
			return suture.ErrDoNotRestart
		case <-timer.C:
		}
	}
}

// runOnce calls the body with a fresh correlation ID, converting a panic into
// errDefect.
func (s *LoopService) runOnce(ctx context.Context) (err error) {
	runCtx := logging.ContextWithNewCorrelationID(ctx)

	defer func() {
		if r := recover(); r != nil {
			logging.Ctx(runCtx).Error().
				Str("service", s.name).
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("Service crashed, it will not be restarted")
			metrics.RecordError(s.name, metrics.CategoryDefect)
			err = fmt.Errorf("%w: %v", errDefect, r)
		}
	}()

	return s.run(runCtx)
}

// RequestStop sets the stop flag. The loop exits after the current run
// finishes or immediately when it is sleeping. Safe to call more than once.
func (s *LoopService) RequestStop() {
	s.stopping.Store(true)
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// Running reports whether the loop is scheduled and the stop flag is clear.
func (s *LoopService) Running() bool {
	return s.running.Load() && !s.stopping.Load()
}

// String implements fmt.Stringer for suture logs.
func (s *LoopService) String() string {
	return s.name
}
