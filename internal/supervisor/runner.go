// Bustinel - GTFS-Realtime Trip Recorder
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bustinel

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/bustinel/internal/logging"
)

// ErrStopTimeout is returned by Stop when the tree did not drain in time.
var ErrStopTimeout = errors.New("supervisor did not stop within timeout")

// Stoppable is implemented by services that honor a cooperative stop flag,
// such as services.LoopService.
type Stoppable interface {
	RequestStop()
}

// Runner is the process-level handle over a SupervisorTree.
//
// Start schedules every service in the background. Stop sets each loop's
// stop flag, cancels the tree context and waits for every service to
// return, so it never returns while a loop is mid-run.
type Runner struct {
	tree *SupervisorTree

	mu        sync.Mutex
	stoppable []Stoppable
	cancel    context.CancelFunc
	done      chan struct{}
	err       error
}

// NewRunner creates a runner for tree.
func NewRunner(tree *SupervisorTree) *Runner {
	return &Runner{tree: tree}
}

// AddReference registers svc in the reference layer.
func (r *Runner) AddReference(svc suture.Service) {
	r.track(svc)
	r.tree.AddReferenceService(svc)
}

// AddIngest registers svc in the ingest layer.
func (r *Runner) AddIngest(svc suture.Service) {
	r.track(svc)
	r.tree.AddIngestService(svc)
}

// AddAPI registers svc in the API layer.
func (r *Runner) AddAPI(svc suture.Service) {
	r.track(svc)
	r.tree.AddAPIService(svc)
}

func (r *Runner) track(svc suture.Service) {
	if s, ok := svc.(Stoppable); ok {
		r.mu.Lock()
		r.stoppable = append(r.stoppable, s)
		r.mu.Unlock()
	}
}

// Start runs the tree in the background. The returned channel receives the
// tree's terminal error (nil on a clean stop) and is then closed.
// A second call does not start another tree; its channel carries an error.
func (r *Runner) Start(ctx context.Context) <-chan error {
	out := make(chan error, 1)

	r.mu.Lock()
	if r.done != nil {
		r.mu.Unlock()
		out <- errors.New("runner already started")
		close(out)
		return out
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	r.mu.Unlock()

	treeErr := r.tree.ServeBackground(runCtx)
	go func() {
		err := <-treeErr
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		r.mu.Lock()
		r.err = err
		r.mu.Unlock()
		close(r.done)
		out <- err
		close(out)
	}()

	return out
}

// Stop requests a cooperative stop and waits up to timeout for the tree to
// drain. Services that did not return are logged and reported as an error.
func (r *Runner) Stop(timeout time.Duration) error {
	r.mu.Lock()
	stoppable := append([]Stoppable(nil), r.stoppable...)
	cancel, done := r.cancel, r.done
	r.mu.Unlock()

	if done == nil {
		return nil
	}

	for _, s := range stoppable {
		s.RequestStop()
	}
	cancel()

	select {
	case <-done:
	case <-time.After(timeout):
		logging.Error().Dur("timeout", timeout).Msg("Supervisor did not stop in time")
		return ErrStopTimeout
	}

	report, err := r.tree.UnstoppedServiceReport()
	if err != nil {
		logging.Warn().Err(err).Msg("Could not get unstopped service report")
		return nil
	}
	if len(report) > 0 {
		for _, svc := range report {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
		}
		return fmt.Errorf("%d services failed to stop", len(report))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}
