// Roomwatch - Live Chat Room Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwatch

package services

import (
	"context"
	"errors"
	"time"

	"github.com/tomtom215/roomwatch/internal/logging"
	"github.com/tomtom215/roomwatch/internal/store"
)

// GarbageCollector is satisfied by *store.Store.
type GarbageCollector interface {
	RunGC() error
}

// StoreGCService compacts the store's value log on an interval.
//
// GC failures are logged and retried on the next tick; they never restart
// the service. A closed store ends the service without restart since the
// process is shutting down.
type StoreGCService struct {
	gc       GarbageCollector
	interval time.Duration
	name     string
}

// NewStoreGCService creates the service. A non-positive interval means 10m.
func NewStoreGCService(gc GarbageCollector, interval time.Duration) *StoreGCService {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &StoreGCService{gc: gc, interval: interval, name: "store-gc"}
}

// Serve implements suture.Service.
func (s *StoreGCService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.RunOnce(); err != nil {
				if errors.Is(err, store.ErrClosed) {
					return nil
				}
				logging.Warn().Str("component", s.name).Err(err).Msg("Store GC failed")
			}
		}
	}
}

// RunOnce runs a single GC pass.
func (s *StoreGCService) RunOnce() error {
	start := time.Now()
	if err := s.gc.RunGC(); err != nil {
		return err
	}
	logging.Debug().Str("component", s.name).Dur("took", time.Since(start)).Msg("Store GC finished")
	return nil
}

func (s *StoreGCService) String() string {
	return s.name
}
