package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type countingReconciler struct {
	calls atomic.Int32
	err   error
}

func (r *countingReconciler) ReconcileActivePolls(ctx context.Context) (int, error) {
	r.calls.Add(1)
	return 1, r.err
}

func TestSweeper_RunsEveryInterval(t *testing.T) {
	rec := &countingReconciler{}
	s := NewSweeper(rec, nil, 10*time.Millisecond)
	s.Start()

	deadline := time.Now().Add(2 * time.Second)
	for rec.calls.Load() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("expected at least 3 sweeps, got %d", rec.calls.Load())
		}
		time.Sleep(5 * time.Millisecond)
	}

	s.Stop()
	after := rec.calls.Load()
	time.Sleep(30 * time.Millisecond)
	if rec.calls.Load() != after {
		t.Error("sweeper kept running after Stop")
	}
}

func TestSweeper_ErrorsDoNotStopTheLoop(t *testing.T) {
	rec := &countingReconciler{err: errors.New("store unavailable")}
	s := NewSweeper(rec, nil, 10*time.Millisecond)
	s.Start()
	defer s.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for rec.calls.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("expected sweeps to continue after an error, got %d", rec.calls.Load())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSweeper_StopIsIdempotent(t *testing.T) {
	s := NewSweeper(&countingReconciler{}, nil, time.Hour)
	s.Start()
	s.Stop()
	s.Stop()
}

func TestNewSweeper_DefaultInterval(t *testing.T) {
	s := NewSweeper(&countingReconciler{}, nil, 0)
	if s.interval != 2*time.Second {
		t.Errorf("expected default interval 2s, got %s", s.interval)
	}
}

func TestSweeper_StopWithoutStart(t *testing.T) {
	rec := &countingReconciler{}
	s := NewSweeper(rec, nil, 10*time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked on a sweeper that was never started")
	}

	s.Start()
	time.Sleep(30 * time.Millisecond)
	if rec.calls.Load() != 0 {
		t.Error("a stopped sweeper must not start sweeping")
	}
}
