// Roomwatch - Live Chat Room Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwatch

package supervisor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/roomwatch/internal/config"
)

// mockService runs until canceled, optionally failing its first runs.
type mockService struct {
	name     string
	starts   atomic.Int32
	failures atomic.Int32
	maxFails int32
}

func (m *mockService) Serve(ctx context.Context) error {
	m.starts.Add(1)
	if m.maxFails > 0 && m.failures.Add(1) <= m.maxFails {
		return errors.New("simulated failure")
	}
	<-ctx.Done()
	return ctx.Err()
}

func (m *mockService) String() string { return m.name }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitStarted(t *testing.T, svc *mockService, n int32) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for svc.starts.Load() < n {
		if time.Now().After(deadline) {
			t.Fatalf("%s: expected %d starts, got %d", svc.name, n, svc.starts.Load())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNewSupervisorTree(t *testing.T) {
	tree, err := NewSupervisorTree(quietLogger(), TreeConfig{})
	if err != nil {
		t.Fatalf("NewSupervisorTree: %v", err)
	}
	if tree.Root() == nil || tree.core == nil || tree.monitoring == nil || tree.api == nil {
		t.Fatal("expected all layers to be created")
	}
	if tree.config != DefaultTreeConfig() {
		t.Errorf("zero config should take defaults, got %+v", tree.config)
	}
}

func TestTreeConfigFromConfig(t *testing.T) {
	got := TreeConfigFromConfig(config.SupervisorConfig{
		FailureThreshold: 3,
		FailureDecay:     10,
		FailureBackoff:   time.Second,
		ShutdownTimeout:  2 * time.Second,
	})
	want := TreeConfig{FailureThreshold: 3, FailureDecay: 10, FailureBackoff: time.Second, ShutdownTimeout: 2 * time.Second}
	if got != want {
		t.Errorf("TreeConfigFromConfig() = %+v, want %+v", got, want)
	}
}

func TestSupervisorTreeLayers(t *testing.T) {
	tree, _ := NewSupervisorTree(quietLogger(), TreeConfig{ShutdownTimeout: time.Second})

	core := &mockService{name: "core"}
	monitoring := &mockService{name: "monitoring"}
	api := &mockService{name: "api"}
	tree.AddCoreService(core)
	tree.AddMonitoringService(monitoring)
	tree.AddAPIService(api)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)

	waitStarted(t, core, 1)
	waitStarted(t, monitoring, 1)
	waitStarted(t, api, 1)

	cancel()
	<-errCh

	report, err := tree.UnstoppedServiceReport()
	if err != nil {
		t.Fatalf("UnstoppedServiceReport: %v", err)
	}
	if len(report) != 0 {
		t.Errorf("expected every service to stop, got %v", report)
	}
}

func TestSupervisorTreeRestartsFailingService(t *testing.T) {
	tree, _ := NewSupervisorTree(quietLogger(), TreeConfig{
		FailureThreshold: 10,
		FailureBackoff:   10 * time.Millisecond,
		ShutdownTimeout:  time.Second,
	})

	failing := &mockService{name: "failing", maxFails: 2}
	stable := &mockService{name: "stable"}
	tree.AddMonitoringService(failing)
	tree.AddAPIService(stable)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go tree.Serve(ctx)

	waitStarted(t, failing, 3)
	waitStarted(t, stable, 1)
	if got := stable.starts.Load(); got != 1 {
		t.Errorf("failure in monitoring layer restarted api service: %d starts", got)
	}
}

func TestEventHook(t *testing.T) {
	var hook suture.EventHook = EventHook(quietLogger())
	if hook == nil {
		t.Fatal("EventHook returned nil")
	}

	sup := suture.New("test", suture.Spec{})
	svc := &mockService{name: "svc"}

	// Must not panic on any event type.
	hook(suture.EventServicePanic{
		Supervisor:     sup,
		SupervisorName: "test",
		Service:        svc,
		ServiceName:    "svc",
		PanicMsg:       "boom",
		Stacktrace:     "stack",
	})
	hook(suture.EventServiceTerminate{
		Supervisor:     sup,
		SupervisorName: "test",
		Service:        svc,
		ServiceName:    "svc",
		Err:            errors.New("x"),
	})
	hook(suture.EventBackoff{Supervisor: sup, SupervisorName: "test"})
	hook(suture.EventResume{Supervisor: sup, SupervisorName: "test"})
}
