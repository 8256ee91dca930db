package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

type countingRunner struct {
	runs atomic.Int32
}

func (r *countingRunner) MigrateAll(context.Context) {
	r.runs.Add(1)
}

func TestSchedulerRunsSync(t *testing.T) {
	runner := &countingRunner{}
	s := New(runner, 50*time.Millisecond)
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for runner.runs.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if runner.runs.Load() == 0 {
		t.Fatalf("expected sync to run at least once")
	}
}
