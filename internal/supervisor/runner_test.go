// Bustinel - GTFS-Realtime Trip Recorder
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bustinel

package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/bustinel/internal/supervisor/services"
)

func TestRunner_StartStop(t *testing.T) {
	tree, _ := NewSupervisorTree(quietLogger(), TreeConfig{ShutdownTimeout: time.Second})
	runner := NewRunner(tree)

	var refRuns, ingestRuns atomic.Int32
	ref := services.NewLoopService("reference", time.Hour, func(ctx context.Context) error {
		refRuns.Add(1)
		return nil
	})
	ingest := services.NewLoopService("ingest", 10*time.Millisecond, func(ctx context.Context) error {
		ingestRuns.Add(1)
		return nil
	})
	runner.AddReference(ref)
	runner.AddIngest(ingest)
	runner.AddAPI(newFakeService("api"))

	errCh := runner.Start(context.Background())
	time.Sleep(80 * time.Millisecond)

	if !ref.Running() || !ingest.Running() {
		t.Fatal("loops not running after Start")
	}

	if err := runner.Stop(2 * time.Second); err != nil {
		t.Fatalf("Stop() = %v", err)
	}
	if ref.Running() || ingest.Running() {
		t.Error("loops still running after Stop")
	}
	if refRuns.Load() != 1 {
		t.Errorf("reference ran %d times, want 1", refRuns.Load())
	}
	if ingestRuns.Load() < 2 {
		t.Errorf("ingest ran %d times, want at least 2", ingestRuns.Load())
	}

	select {
	case err, ok := <-errCh:
		if ok && err != nil {
			t.Errorf("Start channel delivered %v", err)
		}
	case <-time.After(time.Second):
		t.Error("Start channel not signaled after Stop")
	}
}

func TestRunner_StopWaitsForInFlightRun(t *testing.T) {
	tree, _ := NewSupervisorTree(quietLogger(), TreeConfig{ShutdownTimeout: 2 * time.Second})
	runner := NewRunner(tree)

	entered := make(chan struct{})
	var finished atomic.Bool
	runner.AddIngest(services.NewLoopService("slow", time.Hour, func(ctx context.Context) error {
		close(entered)
		// The batch tail ignores cancellation.
		time.Sleep(150 * time.Millisecond)
		finished.Store(true)
		return nil
	}))

	runner.Start(context.Background())
	<-entered

	if err := runner.Stop(2 * time.Second); err != nil {
		t.Fatalf("Stop() = %v", err)
	}
	if !finished.Load() {
		t.Error("Stop returned while a run was in flight")
	}
}

func TestRunner_StopTimeout(t *testing.T) {
	tree, _ := NewSupervisorTree(quietLogger(), TreeConfig{ShutdownTimeout: 50 * time.Millisecond})
	runner := NewRunner(tree)

	stubborn := &stubbornService{release: make(chan struct{})}
	defer close(stubborn.release)
	runner.AddIngest(stubborn)

	runner.Start(context.Background())
	time.Sleep(20 * time.Millisecond)

	err := runner.Stop(time.Second)
	if err == nil {
		t.Fatal("Stop() = nil, want error for a service that ignores cancellation")
	}
	if errors.Is(err, ErrStopTimeout) {
		t.Errorf("Stop() = %v, want an unstopped-service report instead of a timeout", err)
	}
}

func TestRunner_StopBeforeStart(t *testing.T) {
	tree, _ := NewSupervisorTree(quietLogger(), TreeConfig{})
	if err := NewRunner(tree).Stop(time.Second); err != nil {
		t.Errorf("Stop() before Start = %v, want nil", err)
	}
}

func TestRunner_StartTwice(t *testing.T) {
	tree, _ := NewSupervisorTree(quietLogger(), TreeConfig{ShutdownTimeout: time.Second})
	runner := NewRunner(tree)
	runner.Start(context.Background())
	defer runner.Stop(time.Second)

	if err := <-runner.Start(context.Background()); err == nil {
		t.Error("second Start delivered nil, want error")
	}
}
