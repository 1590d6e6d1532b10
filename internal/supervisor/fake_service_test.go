// Bustinel - GTFS-Realtime Trip Recorder
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bustinel

package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
)

// fakeService implements suture.Service with controllable failures.
type fakeService struct {
	name       string
	startCount atomic.Int32
	stopCount  atomic.Int32
	failCount  atomic.Int32
	maxFails   int32
}

func newFakeService(name string) *fakeService {
	return &fakeService{name: name}
}

func (f *fakeService) Serve(ctx context.Context) error {
	f.startCount.Add(1)
	defer f.stopCount.Add(1)

	if f.maxFails > 0 && f.failCount.Add(1) <= f.maxFails {
		return errors.New("simulated failure")
	}

	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeService) String() string { return f.name }

// stubbornService ignores cancellation until released.
type stubbornService struct {
	release chan struct{}
}

func (s *stubbornService) Serve(context.Context) error {
	<-s.release
	return nil
}

func (s *stubbornService) String() string { return "stubborn" }
